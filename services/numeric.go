package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	// currencyRegexp captures the amount after a shekel sign or its textual
	// abbreviation (ש"ח with an ASCII quote or a gershayim).
	currencyRegexp = regexp.MustCompile(`(?:₪|ש"ח|ש״ח)[\s\x{00A0}]*([\d,.\s\x{00A0}]{3,})`)
	// largeNumberRegexp captures any run of four or more digit/separator characters
	largeNumberRegexp = regexp.MustCompile(`\d[\d,.\s\x{00A0}]{3,}`)
)

// ParseNumber converts a token with visual separators into a float.
// When a token carries both ',' and '.', or more than one '.', they are
// treated as thousands separators. It reports false when nothing numeric is left.
func ParseNumber(text string) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		if isBidiControl(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.NewReplacer(",", "", ".", "").Replace(s)
	case strings.Count(s, ".") > 1:
		// "1.250.000": repeated periods can only be thousands separators.
		s = strings.ReplaceAll(s, ".", "")
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FindFirstNumber returns the number a free-text string most likely quotes as
// a price. A currency-marked amount wins over any other large number, so an
// incidental floor or room count earlier in the text is never picked.
func FindFirstNumber(text string) (float64, bool) {
	if m := currencyRegexp.FindStringSubmatch(text); len(m) == 2 {
		return ParseNumber(m[1])
	}
	if m := largeNumberRegexp.FindString(text); m != "" {
		return ParseNumber(m)
	}
	return 0, false
}

// ParseStrictNumber is the column coercion rule: the trimmed value must be a
// plain finite float literal, anything else is missing.
func ParseStrictNumber(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isBidiControl(r rune) bool {
	switch {
	case r == '\u200e', r == '\u200f', r == '\u061c':
		return true
	case r >= '\u202a' && r <= '\u202e':
		return true
	case r >= '\u2066' && r <= '\u2069':
		return true
	}
	return false
}
