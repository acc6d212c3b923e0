package biomarkers

import (
	"regexp"
	"strconv"
	"strings"
)

const numberPattern = `\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?|\.\d+`

var (
	betweenRangeRe = regexp.MustCompile(`(?i)(` + numberPattern + `)\s*(?:-|–|—|to)\s*(` + numberPattern + `)`)
	boundRangeRe   = regexp.MustCompile(`(<=|>=|≤|≥|<|>)\s*(` + numberPattern + `)`)
)

// ParseRange parses "a-b", "a to b", "<b" and ">a" reference ranges.
func ParseRange(raw string) (low, high *float64, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil, false
	}
	if m := betweenRangeRe.FindStringSubmatch(s); m != nil {
		lo, err1 := parseNumber(m[1])
		hi, err2 := parseNumber(m[2])
		if err1 == nil && err2 == nil && lo <= hi {
			return floatPtr(lo), floatPtr(hi), true
		}
	}
	if m := boundRangeRe.FindStringSubmatch(s); m != nil {
		v, err := parseNumber(m[2])
		if err != nil {
			return nil, nil, false
		}
		switch m[1] {
		case "<", "<=", "≤":
			return nil, floatPtr(v), true
		default:
			return floatPtr(v), nil, true
		}
	}
	return nil, nil, false
}

// FormatRange renders bounds the way ParseRange reads them.
func FormatRange(low, high *float64) string {
	switch {
	case low != nil && high != nil:
		return formatNumber(*low) + "-" + formatNumber(*high)
	case high != nil:
		return "<" + formatNumber(*high)
	case low != nil:
		return ">" + formatNumber(*low)
	default:
		return ""
	}
}

// parseNumber accepts thousands separators and a leading comparator.
func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "<>=≤≥ ")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
