package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"yad2-pipeline/models"
	"yad2-pipeline/utils"
)

// cityAliases lets an English comparison name match Hebrew city values.
var cityAliases = map[string][]string{
	"tel aviv":  {"תל אביב"},
	"jerusalem": {"ירושלים"},
	"haifa":     {"חיפה"},
}

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes the descriptive statistics and, when both cities have
// more than two listings, a Welch t-test of their prices.
func (s *InsightService) Generate(listings []*models.Listing, cityA, cityB string) *models.StatsReport {
	report := &models.StatsReport{Desc: Describe(listings)}

	a := pricesInCity(listings, cityA)
	b := pricesInCity(listings, cityB)
	if len(a) > 2 && len(b) > 2 {
		t, p := WelchTTest(a, b)
		if math.IsNaN(t) {
			s.logger.Warn("[insights] Both price samples are constant, t-test undefined")
			return report
		}
		report.TTest = &models.TTestResult{
			CityA: cityA, CityB: cityB,
			TStat: t, PValue: p,
			NA: len(a), NB: len(b),
		}
	} else {
		s.logger.Debug("[insights] Skipping t-test: %s=%d, %s=%d listings", cityA, len(a), cityB, len(b))
	}
	return report
}

// Describe summarises prices, price per m² and the room distribution.
func Describe(listings []*models.Listing) models.DescriptiveStats {
	d := models.DescriptiveStats{N: len(listings), RoomsDist: make(map[string]int)}
	if len(listings) == 0 {
		return d
	}

	prices := make([]float64, 0, len(listings))
	var ppsqm []float64
	for _, l := range listings {
		prices = append(prices, l.PriceShekels)
		if l.PricePerSqm != nil {
			ppsqm = append(ppsqm, *l.PricePerSqm)
		}
		if !math.IsNaN(l.Rooms) {
			d.RoomsDist[strconv.FormatFloat(l.Rooms, 'f', -1, 64)]++
		}
	}

	d.PriceMean = stat.Mean(prices, nil)
	d.PriceMedian = median(prices)
	if len(prices) > 1 {
		d.PriceStd = stat.StdDev(prices, nil)
	}
	if len(ppsqm) > 0 {
		d.PPSqmMean = stat.Mean(ppsqm, nil)
	}
	return d
}

// WelchTTest returns the t statistic and two-sided p-value of the unequal
// variance two-sample test. Both samples need at least two values.
func WelchTTest(a, b []float64) (float64, float64) {
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	sea, seb := va/na, vb/nb
	se := math.Sqrt(sea + seb)
	if se == 0 {
		return math.NaN(), math.NaN()
	}
	t := (ma - mb) / se
	df := (sea + seb) * (sea + seb) / (sea*sea/(na-1) + seb*seb/(nb-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	return t, p
}

// KPIs are the dashboard headline figures for a set of listings.
func KPIs(listings []*models.Listing) models.KPIs {
	k := models.KPIs{Count: len(listings)}
	if len(listings) == 0 {
		return k
	}
	var prices, ppsqm, areas []float64
	for _, l := range listings {
		prices = append(prices, l.PriceShekels)
		if !math.IsNaN(l.AreaSqm) {
			areas = append(areas, l.AreaSqm)
		}
		if l.PricePerSqm != nil {
			ppsqm = append(ppsqm, *l.PricePerSqm)
		}
	}
	k.MeanPrice = stat.Mean(prices, nil)
	k.MedianArea = median(areas)
	if len(ppsqm) > 0 {
		k.MeanPricePerSqm = stat.Mean(ppsqm, nil)
	}
	return k
}

// MatchesCity reports whether city contains name, case-insensitively, or
// one of name's known aliases.
func MatchesCity(city, name string) bool {
	city = strings.ToLower(city)
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return false
	}
	if strings.Contains(city, key) {
		return true
	}
	for _, alias := range cityAliases[key] {
		if strings.Contains(city, strings.ToLower(alias)) {
			return true
		}
	}
	return false
}

func pricesInCity(listings []*models.Listing, name string) []float64 {
	var out []float64
	for _, l := range listings {
		if MatchesCity(l.City, name) {
			out = append(out, l.PriceShekels)
		}
	}
	return out
}

func (s *InsightService) Print(r *models.StatsReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 YAD2 LISTING STATISTICS\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Prices (₪)\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Listings      : \033[1m%d\033[0m\n", r.Desc.N)
	if r.Desc.N > 0 {
		fmt.Printf("  Mean price    : \033[1;32m%.0f\033[0m\n", r.Desc.PriceMean)
		fmt.Printf("  Median price  : \033[1;32m%.0f\033[0m\n", r.Desc.PriceMedian)
		fmt.Printf("  Std deviation : \033[1;32m%.0f\033[0m\n", r.Desc.PriceStd)
		fmt.Printf("  Mean ₪/m²     : \033[1;32m%.0f\033[0m\n", r.Desc.PPSqmMean)
	} else {
		fmt.Printf("  No price data available\n")
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Rooms Distribution\033[0m\n")
	fmt.Printf("  %s\n", thin)
	rooms := make([]string, 0, len(r.Desc.RoomsDist))
	for k := range r.Desc.RoomsDist {
		rooms = append(rooms, k)
	}
	sort.Slice(rooms, func(i, j int) bool {
		a, _ := strconv.ParseFloat(rooms[i], 64)
		b, _ := strconv.ParseFloat(rooms[j], 64)
		return a < b
	})
	for _, k := range rooms {
		bar := strings.Repeat("█", r.Desc.RoomsDist[k])
		fmt.Printf("  %-6s %s (%d)\n", k, bar, r.Desc.RoomsDist[k])
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  City Comparison\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if r.TTest == nil {
		fmt.Printf("  Not enough listings in both cities\n")
	} else {
		fmt.Printf("  %s (n=%d) vs %s (n=%d)\n", r.TTest.CityA, r.TTest.NA, r.TTest.CityB, r.TTest.NB)
		fmt.Printf("  t = %.3f | p = %.4f\n", r.TTest.TStat, r.TTest.PValue)
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}
