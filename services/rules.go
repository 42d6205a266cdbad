package services

import (
	"regexp"
	"strings"

	"yad2-pipeline/models"
)

var (
	// roomsRegexp captures "4 חדרים" / "3.5 חדר"
	roomsRegexp = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*חדר`)
	// areaRegexp captures "80 מ״ר" / `80 מ"ר` / "80 מ'ר" / "80 מטר"; "3 מתוך 8" is not an area
	areaRegexp = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:מ(?:״|"|')?ר|מטר)`)
	// floorRegexp captures "קומה 2"
	floorRegexp = regexp.MustCompile(`קומה\s*(\d+)`)

	locationSplitRegexp = regexp.MustCompile(`\s*[-/]\s*`)
)

// FieldRule recovers one numeric field by matching Pattern against each of
// Sources in order. The first capture group holds the number.
type FieldRule struct {
	Field   string
	Pattern *regexp.Regexp
	Sources []string
}

// Match applies the rule to a single string.
func (r FieldRule) Match(text string) (float64, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	return ParseStrictNumber(m[1])
}

// Recover scans the record's source columns and stops at the first hit.
func (r FieldRule) Recover(rec models.RawRecord) (float64, bool) {
	for _, col := range r.Sources {
		if v, ok := r.Match(rec[col]); ok {
			return v, true
		}
	}
	return 0, false
}

// DetailRules is the rule table for rooms, area and floor.
func DetailRules(sources []string) []FieldRule {
	return []FieldRule{
		{Field: models.ColRooms, Pattern: roomsRegexp, Sources: sources},
		{Field: models.ColAreaSqm, Pattern: areaRegexp, Sources: sources},
		{Field: models.ColFloor, Pattern: floorRegexp, Sources: sources},
	}
}

// RecoverPrice runs FindFirstNumber over sources in order.
func RecoverPrice(rec models.RawRecord, sources []string) (float64, bool) {
	for _, col := range sources {
		if v, ok := FindFirstNumber(rec[col]); ok {
			return v, true
		}
	}
	return 0, false
}

// ParseLocation splits "city - neighborhood" or "city / neighborhood".
// A blank location yields unknown and no neighborhood.
func ParseLocation(loc, unknown string) (city, neighborhood string) {
	if strings.TrimSpace(loc) == "" {
		return unknown, ""
	}

	var parts []string
	for _, p := range locationSplitRegexp.Split(loc, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	city = strings.TrimSpace(loc)
	if len(parts) > 0 {
		city = parts[0]
	}
	if len(parts) > 1 {
		neighborhood = parts[1]
	}
	if city == "" {
		city = unknown
	}
	return city, neighborhood
}

// KeepCityOnly reduces a comma-joined path ("רמת אביב, תל אביב") to its last segment.
func KeepCityOnly(city, unknown string) string {
	var last string
	for _, p := range strings.Split(city, ",") {
		if p = strings.TrimSpace(p); p != "" {
			last = p
		}
	}
	if last == "" {
		last = strings.TrimSpace(city)
	}
	if last == "" {
		return unknown
	}
	return last
}

// propertyWordSet is the set of listing-type phrases that are never a city.
type propertyWordSet map[string]struct{}

func newPropertyWordSet(words []string) propertyWordSet {
	set := make(propertyWordSet, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

// Contains matches case-insensitively, so "Penthouse" and "penthouse" are both caught.
func (s propertyWordSet) Contains(city string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(city))]
	return ok
}
