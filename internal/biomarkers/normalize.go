package biomarkers

import (
	"math"
	"strings"
)

// Normalize canonicalizes every reading of a report against the default catalog.
func Normalize(readings []Reading) []Reading {
	return DefaultCatalog().Normalize(readings)
}

// Normalize canonicalizes names and units, fills catalog defaults, parses values
// and assigns a status. Readings without a name are dropped.
func (c *Catalog) Normalize(readings []Reading) []Reading {
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if n, ok := c.NormalizeReading(r); ok {
			out = append(out, n)
		}
	}
	return out
}

// NormalizeReading applies catalog defaults to a single reading. An explicit
// flag beats the reference range; with neither the status is unknown.
func (c *Catalog) NormalizeReading(r Reading) (Reading, bool) {
	r.Name = strings.Join(strings.Fields(r.Name), " ")
	if r.Name == "" {
		return Reading{}, false
	}
	entry, known := c.Lookup(r.Name)
	if known {
		r.Name = entry.Name
		if r.Category == "" {
			r.Category = entry.Category
		}
		if strings.TrimSpace(r.Unit) == "" {
			r.Unit = entry.Unit
		}
	}
	r.Unit = c.CanonicalUnit(r.Unit)
	r.ValueText = strings.TrimSpace(r.ValueText)

	if r.Value == nil && r.ValueText != "" {
		if m := valueRe.FindStringSubmatch(r.ValueText); m != nil {
			if v, err := parseNumber(m[2]); err == nil {
				r.Value = floatPtr(v)
			}
		}
	}
	if r.Comparator == "" {
		r.Comparator = comparatorPrefix(r.ValueText)
	}
	if r.ValueText == "" && r.Value != nil {
		r.ValueText = formatNumber(*r.Value)
	}

	if r.RefLow == nil && r.RefHigh == nil {
		r.RefLow, r.RefHigh, _ = ParseRange(r.ReferenceRange)
	}
	if r.RefLow == nil && r.RefHigh == nil && known {
		r.RefLow, r.RefHigh = entry.Range.Low, entry.Range.High
	}
	if strings.TrimSpace(r.ReferenceRange) == "" {
		r.ReferenceRange = FormatRange(r.RefLow, r.RefHigh)
	}

	r.Status = statusFor(r, entry, known)
	r.IsAbnormal = r.Status != StatusNormal && r.Status != StatusUnknown
	r.Confidence = clamp01(r.Confidence)
	return r, true
}

func statusFor(r Reading, entry Entry, known bool) Status {
	if s, ok := statusFromFlag(r.Flag); ok {
		return s
	}
	if r.Value == nil || (r.RefLow == nil && r.RefHigh == nil) {
		return StatusUnknown
	}
	v := *r.Value
	if known {
		if entry.Critical.Low != nil && v < *entry.Critical.Low {
			return StatusCritical
		}
		if entry.Critical.High != nil && v > *entry.Critical.High {
			return StatusCritical
		}
	}
	if r.RefLow != nil && v < *r.RefLow {
		return StatusLow
	}
	if r.RefHigh != nil && v > *r.RefHigh {
		return StatusHigh
	}
	return StatusNormal
}

func statusFromFlag(flag string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "h", "high", "hi", "elevated", "above":
		return StatusHigh, true
	case "l", "low", "lo", "below", "decreased":
		return StatusLow, true
	case "hh", "ll", "critical", "crit", "panic", "critical high", "critical low":
		return StatusCritical, true
	case "n", "normal", "within range", "ok":
		return StatusNormal, true
	default:
		return "", false
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		// some models answer on a 0-100 scale
		if v <= 100 {
			return v / 100
		}
		return 1
	}
	return v
}
