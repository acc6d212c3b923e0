package biomarkers

import "strings"

// Dedupe keeps one reading per lower-cased name. The highest confidence wins;
// on a tie the reading seen first is kept. Output follows first-seen order.
func Dedupe(readings []Reading) []Reading {
	index := make(map[string]int, len(readings))
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		key := strings.ToLower(strings.TrimSpace(r.Name))
		if key == "" {
			continue
		}
		pos, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		if r.Confidence > out[pos].Confidence {
			out[pos] = r
		}
	}
	return out
}
