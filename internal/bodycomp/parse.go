package bodycomp

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"pixelpharm-backend/internal/biomarkers"
)

// quantity accepts 72.5, "72.5", "160 lb" or {"value": 160, "unit": "lb"}.
type quantity struct {
	value *float64
	unit  string
}

func (q *quantity) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		return nil
	}
	switch s[0] {
	case '{':
		var obj struct {
			Value json.RawMessage `json:"value"`
			Unit  string          `json:"unit"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		var inner quantity
		if len(obj.Value) > 0 {
			if err := inner.UnmarshalJSON(obj.Value); err != nil {
				return err
			}
		}
		q.value = inner.value
		q.unit = strings.TrimSpace(obj.Unit)
		if q.unit == "" {
			q.unit = inner.unit
		}
		return nil
	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if m := quantityTextRe.FindStringSubmatch(str); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				q.value = &v
				q.unit = strings.TrimSpace(m[2])
			}
		}
		return nil
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return nil
		}
		q.value = &v
		return nil
	}
}

var quantityTextRe = regexp.MustCompile(`^\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*([A-Za-z%]*)`)

type jsonScan struct {
	ScanDate       string   `json:"scanDate"`
	Date           string   `json:"date"`
	Weight         quantity `json:"weight"`
	WeightKg       quantity `json:"weightKg"`
	BodyFatPercent quantity `json:"bodyFatPercent"`
	BodyFat        quantity `json:"bodyFat"`
	MuscleMass     quantity `json:"muscleMass"`
	MuscleMassKg   quantity `json:"muscleMassKg"`
	SkeletalMuscle quantity `json:"skeletalMuscleMass"`
	BMR            quantity `json:"bmr"`
	BMRKcal        quantity `json:"bmrKcal"`
	VisceralFat    quantity `json:"visceralFat"`
	BoneMass       quantity `json:"boneMass"`
	BoneMassKg     quantity `json:"boneMassKg"`
	WaterPercent   quantity `json:"waterPercent"`
	BodyWater      quantity `json:"bodyWaterPercent"`
	BMI            quantity `json:"bmi"`
}

// ParseJSON decodes a model reply. Masses reported in pounds are converted to kg.
func ParseJSON(text string) (Measurements, error) {
	raw, err := biomarkers.ExtractJSON(text)
	if err != nil {
		return Measurements{}, err
	}
	var doc jsonScan
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Measurements{}, biomarkers.ErrNoJSON
	}

	m := Measurements{
		ScanDate:       normalizeDate(firstNonEmpty(doc.ScanDate, doc.Date)),
		WeightKg:       mass(doc.Weight, doc.WeightKg),
		BodyFatPercent: plain(doc.BodyFatPercent, doc.BodyFat),
		MuscleMassKg:   mass(doc.MuscleMass, doc.MuscleMassKg, doc.SkeletalMuscle),
		BMRKcal:        plain(doc.BMR, doc.BMRKcal),
		VisceralFat:    plain(doc.VisceralFat),
		BoneMassKg:     mass(doc.BoneMass, doc.BoneMassKg),
		WaterPercent:   plain(doc.WaterPercent, doc.BodyWater),
		BMI:            plain(doc.BMI),
	}
	if m.Count() == 0 {
		return m, ErrNoData
	}
	return m, nil
}

type textMetric struct {
	re     *regexp.Regexp
	isMass bool
	set    func(*Measurements, *float64)
}

const numUnit = `\s*[:=]?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(kg|kgs|lb|lbs|pounds|%|kcal)?`

var textMetrics = []textMetric{
	{regexp.MustCompile(`(?i)\b(?:body\s+)?weight\b` + numUnit), true, func(m *Measurements, v *float64) { m.WeightKg = v }},
	{regexp.MustCompile(`(?i)\b(?:percent body fat|body fat(?: percentage| %| percent)?|pbf)\b` + numUnit), false, func(m *Measurements, v *float64) { m.BodyFatPercent = v }},
	{regexp.MustCompile(`(?i)\b(?:skeletal muscle mass|muscle mass|smm|lean mass)\b` + numUnit), true, func(m *Measurements, v *float64) { m.MuscleMassKg = v }},
	{regexp.MustCompile(`(?i)\b(?:basal metabolic rate|bmr)\b` + numUnit), false, func(m *Measurements, v *float64) { m.BMRKcal = v }},
	{regexp.MustCompile(`(?i)\b(?:visceral fat(?: level| rating| area)?)\b` + numUnit), false, func(m *Measurements, v *float64) { m.VisceralFat = v }},
	{regexp.MustCompile(`(?i)\b(?:bone mass|bone mineral content|bmc)\b` + numUnit), true, func(m *Measurements, v *float64) { m.BoneMassKg = v }},
	{regexp.MustCompile(`(?i)\b(?:total body water|body water|water)(?: percent(?:age)?)?\s*[:=]?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(%)`), false, func(m *Measurements, v *float64) { m.WaterPercent = v }},
	{regexp.MustCompile(`(?i)\b(?:bmi|body mass index)\b` + numUnit), false, func(m *Measurements, v *float64) { m.BMI = v }},
}

var scanDateRe = regexp.MustCompile(`(?i)\b(?:scan date|test date|date)\s*[:#]?\s*([0-9]{1,4}[/-][0-9]{1,2}[/-][0-9]{1,4})`)

// ParseText scans OCR text for body composition metrics. The first match of
// each metric wins.
func ParseText(text string) Measurements {
	var m Measurements
	seen := make([]bool, len(textMetrics))
	for _, line := range strings.Split(text, "\n") {
		for i, metric := range textMetrics {
			if seen[i] {
				continue
			}
			match := metric.re.FindStringSubmatch(line)
			if match == nil {
				continue
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
			if err != nil {
				continue
			}
			if metric.isMass && isPounds(match[2]) {
				v = round2(v * poundsToKg)
			}
			metric.set(&m, floatPtr(v))
			seen[i] = true
		}
		if m.ScanDate == "" {
			if dm := scanDateRe.FindStringSubmatch(line); dm != nil {
				m.ScanDate = normalizeDate(dm[1])
			}
		}
	}
	return m
}

func mass(candidates ...quantity) *float64 {
	for _, q := range candidates {
		if q.value == nil {
			continue
		}
		v := *q.value
		if isPounds(q.unit) {
			v = round2(v * poundsToKg)
		}
		return floatPtr(v)
	}
	return nil
}

func plain(candidates ...quantity) *float64 {
	for _, q := range candidates {
		if q.value != nil {
			return floatPtr(*q.value)
		}
	}
	return nil
}

func isPounds(unit string) bool {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "lb", "lbs", "pound", "pounds":
		return true
	}
	return false
}

func normalizeDate(raw string) string {
	if t, ok := biomarkers.ParseDate(raw); ok {
		return t.Format("2006-01-02")
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
