package biomarkers

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

type jsonReading struct {
	Name           string          `json:"name"`
	Biomarker      string          `json:"biomarker"`
	Test           string          `json:"test"`
	Value          json.RawMessage `json:"value"`
	Unit           string          `json:"unit"`
	ReferenceRange string          `json:"referenceRange"`
	ReferenceAlt   string          `json:"reference_range"`
	Range          string          `json:"range"`
	Status         string          `json:"status"`
	Flag           string          `json:"flag"`
	Confidence     *float64        `json:"confidence"`
	Page           int             `json:"page"`
}

type jsonReport struct {
	TestDate   string        `json:"testDate"`
	LabName    string        `json:"labName"`
	Biomarkers []jsonReading `json:"biomarkers"`
	Readings   []jsonReading `json:"readings"`
}

// DefaultJSONConfidence is used when the model omits a confidence score.
const DefaultJSONConfidence = 0.9

// ParseJSON decodes a model reply into a Report. It tries the whole text, then
// markdown-fenced blocks, then the outermost brace or bracket span.
func ParseJSON(text string) (Report, error) {
	for _, candidate := range jsonCandidates(text) {
		if report, ok := decodeReport(candidate); ok {
			return report, nil
		}
	}
	return Report{}, ErrNoJSON
}

// ExtractJSON returns the first candidate in text that is valid JSON.
func ExtractJSON(text string) (json.RawMessage, error) {
	for _, candidate := range jsonCandidates(text) {
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, ErrNoJSON
}

func jsonCandidates(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	candidates := []string{trimmed}
	for _, m := range fencedBlockRe.FindAllStringSubmatch(trimmed, -1) {
		if block := strings.TrimSpace(m[1]); block != "" {
			candidates = append(candidates, block)
		}
	}
	start := strings.IndexAny(trimmed, "{[")
	end := strings.LastIndexAny(trimmed, "}]")
	if start >= 0 && end > start {
		candidates = append(candidates, trimmed[start:end+1])
	}
	return candidates
}

func decodeReport(candidate string) (Report, bool) {
	raw := []byte(candidate)
	if !json.Valid(raw) {
		return Report{}, false
	}
	switch first := firstNonSpace(raw); first {
	case '{':
		var doc jsonReport
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Report{}, false
		}
		items := doc.Biomarkers
		if len(items) == 0 {
			items = doc.Readings
		}
		return Report{
			TestDate: strings.TrimSpace(doc.TestDate),
			LabName:  strings.TrimSpace(doc.LabName),
			Readings: convertReadings(items),
		}, true
	case '[':
		var items []jsonReading
		if err := json.Unmarshal(raw, &items); err != nil {
			return Report{}, false
		}
		return Report{Readings: convertReadings(items)}, true
	default:
		return Report{}, false
	}
}

func convertReadings(items []jsonReading) []Reading {
	out := make([]Reading, 0, len(items))
	for _, item := range items {
		name := firstNonEmpty(item.Name, item.Biomarker, item.Test)
		if name == "" {
			continue
		}
		valueText, value := decodeValue(item.Value)
		r := Reading{
			Name:           name,
			ValueText:      valueText,
			Value:          value,
			Unit:           strings.TrimSpace(item.Unit),
			ReferenceRange: firstNonEmpty(item.ReferenceRange, item.ReferenceAlt, item.Range),
			Flag:           firstNonEmpty(item.Flag, item.Status),
			Confidence:     DefaultJSONConfidence,
			Page:           item.Page,
		}
		if c := comparatorPrefix(valueText); c != "" {
			r.Comparator = c
		}
		if item.Confidence != nil {
			r.Confidence = *item.Confidence
		}
		out = append(out, r)
	}
	return out
}

func decodeValue(raw json.RawMessage) (string, *float64) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return strconv.FormatFloat(num, 'f', -1, 64), floatPtr(num)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if m := valueRe.FindStringSubmatch(text); m != nil {
			if v, err := parseNumber(m[2]); err == nil {
				return text, floatPtr(v)
			}
		}
		return text, nil
	}
	return string(raw), nil
}

func comparatorPrefix(s string) string {
	for _, c := range []string{"<=", ">=", "≤", "≥", "<", ">"} {
		if strings.HasPrefix(strings.TrimSpace(s), c) {
			return normalizeComparator(c)
		}
	}
	return ""
}

func firstNonSpace(b []byte) byte {
	for _, ch := range b {
		switch ch {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return ch
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
