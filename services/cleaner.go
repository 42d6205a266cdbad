package services

import (
	"sort"
	"strings"

	"yad2-pipeline/config"
	"yad2-pipeline/models"
	"yad2-pipeline/utils"
)

// Cleaner transforms a raw table into cleaned, imputed Listings.
type Cleaner struct {
	cfg           config.Pipeline
	rules         []FieldRule
	propertyWords propertyWordSet
	logger        *utils.Logger
}

// NewCleaner creates a Cleaner with the given rule constants and logger.
func NewCleaner(cfg config.Pipeline, logger *utils.Logger) *Cleaner {
	return &Cleaner{
		cfg:           cfg,
		rules:         DetailRules(cfg.DetailSources),
		propertyWords: newPropertyWordSet(cfg.PropertyWords),
		logger:        logger,
	}
}

// draft is a record in flight. A key missing from values is a missing field.
type draft struct {
	raw          models.RawRecord
	values       map[string]float64
	city         string
	neighborhood string
}

// Clean runs field recovery, filtering and imputation over the whole table.
// Rows are only ever dropped for a missing or implausible price.
func (c *Cleaner) Clean(table *models.RawTable) (*models.CleanedTable, *models.RunSummary) {
	summary := &models.RunSummary{
		RowsRead: len(table.Rows),
		Imputed:  make(map[string]int),
	}

	drafts := make([]*draft, 0, len(table.Rows))
	for _, raw := range table.Rows {
		drafts = append(drafts, &draft{raw: raw, values: make(map[string]float64)})
	}

	summary.PriceFallback = c.recoverPrices(drafts)
	c.recoverDetails(drafts)
	c.recoverCities(drafts)

	retained := make([]*draft, 0, len(drafts))
	for _, d := range drafts {
		if _, ok := d.values[models.ColPriceShekels]; !ok {
			summary.DroppedNoPrice++
			continue
		}
		retained = append(retained, d)
	}

	plausible := retained[:0]
	for _, d := range retained {
		if d.values[models.ColPriceShekels] < c.cfg.PriceFloor {
			summary.DroppedBelowFloor++
			continue
		}
		plausible = append(plausible, d)
	}

	c.impute(plausible, summary)

	listings := make([]*models.Listing, 0, len(plausible))
	for _, d := range plausible {
		listings = append(listings, d.listing())
	}

	summary.RowsWritten = len(listings)
	c.logger.Info("[cleaner] Cleaned %d → %d listings (no price %d, below floor %d)",
		summary.RowsRead, summary.RowsWritten, summary.DroppedNoPrice, summary.DroppedBelowFloor)

	return &models.CleanedTable{
		Columns:  OutputColumns(table.Columns),
		Listings: listings,
	}, summary
}

// recoverPrices coerces price_shekels. When no row has a usable value the
// whole column is rebuilt from the free-text price sources.
func (c *Cleaner) recoverPrices(drafts []*draft) bool {
	usable := 0
	for _, d := range drafts {
		if v, ok := ParseStrictNumber(d.raw[models.ColPriceShekels]); ok {
			d.values[models.ColPriceShekels] = v
			usable++
		}
	}
	if usable > 0 || len(drafts) == 0 {
		return false
	}

	c.logger.Warn("[cleaner] Column %s unusable — recovering prices from %v",
		models.ColPriceShekels, c.cfg.PriceSources)

	recovered := 0
	for _, d := range drafts {
		if v, ok := RecoverPrice(d.raw, c.cfg.PriceSources); ok {
			d.values[models.ColPriceShekels] = v
			recovered++
		}
	}
	c.logger.Debug("[cleaner] Recovered %d/%d prices from free text", recovered, len(drafts))
	return true
}

// recoverDetails fills rooms, area and floor. A value already present in the
// raw column wins; the rule table runs only for what is still missing.
func (c *Cleaner) recoverDetails(drafts []*draft) {
	for _, rule := range c.rules {
		hits := 0
		for _, d := range drafts {
			if v, ok := ParseStrictNumber(d.raw[rule.Field]); ok {
				d.values[rule.Field] = v
				continue
			}
			if v, ok := rule.Recover(d.raw); ok {
				d.values[rule.Field] = v
				hits++
			}
		}
		c.logger.Debug("[cleaner] Rule %s recovered %d values", rule.Field, hits)
	}
}

func (c *Cleaner) recoverCities(drafts []*draft) {
	unknown := c.cfg.UnknownCity
	for _, d := range drafts {
		d.city = strings.TrimSpace(d.raw[models.ColCity])
		d.neighborhood = strings.TrimSpace(d.raw[models.ColNeighborhood])

		if d.city == "" || d.neighborhood == "" {
			city, neigh := ParseLocation(d.raw[c.cfg.LocationColumn], unknown)
			if d.city == "" {
				d.city = city
			}
			if d.neighborhood == "" {
				d.neighborhood = neigh
			}
		}

		d.city = KeepCityOnly(d.city, unknown)
		if c.propertyWords.Contains(d.city) {
			d.city = unknown
		}
	}
}

// impute fills rooms, area and floor from the retained rows only: the
// column median when any value is present, the fixed default otherwise.
func (c *Cleaner) impute(drafts []*draft, summary *models.RunSummary) {
	defaults := map[string]float64{
		models.ColRooms:   c.cfg.DefaultRooms,
		models.ColAreaSqm: c.cfg.DefaultArea,
		models.ColFloor:   c.cfg.DefaultFloor,
	}

	for _, col := range []string{models.ColRooms, models.ColAreaSqm, models.ColFloor} {
		var present []float64
		for _, d := range drafts {
			if v, ok := d.values[col]; ok {
				present = append(present, v)
			}
		}

		fill := defaults[col]
		if len(present) > 0 {
			fill = median(present)
		}

		for _, d := range drafts {
			if _, ok := d.values[col]; !ok {
				d.values[col] = fill
				summary.Imputed[col]++
			}
		}
	}

	for _, d := range drafts {
		if d.city == "" || d.city == "nan" {
			d.city = c.cfg.UnknownCity
			summary.Imputed[models.ColCity]++
		}
	}
}

func (d *draft) listing() *models.Listing {
	l := &models.Listing{
		PriceShekels: d.values[models.ColPriceShekels],
		Rooms:        d.values[models.ColRooms],
		AreaSqm:      d.values[models.ColAreaSqm],
		Floor:        d.values[models.ColFloor],
		City:         d.city,
		Neighborhood: d.neighborhood,
		Raw:          d.raw,
	}
	if l.AreaSqm > 0 {
		ppsqm := l.PriceShekels / l.AreaSqm
		l.PricePerSqm = &ppsqm
	}
	return l
}

// OutputColumns keeps the raw header order, adds the expected raw columns
// that were missing, then the derived columns not already present.
func OutputColumns(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	cols := make([]string, 0, len(raw)+len(models.RawColumns)+len(models.DerivedColumns))
	add := func(c string) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
	}
	for _, c := range raw {
		add(c)
	}
	for _, c := range models.RawColumns {
		add(c)
	}
	for _, c := range models.DerivedColumns {
		add(c)
	}
	return cols
}

// median averages the two middle values for an even count.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
