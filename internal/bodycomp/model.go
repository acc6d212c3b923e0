package bodycomp

import (
	"encoding/json"
	"errors"
	"time"
)

const poundsToKg = 0.45359237

var (
	ErrNotFound     = errors.New("body composition result not found")
	ErrNoData       = errors.New("no body composition measurements found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingUpload means the referenced FileUpload row does not exist.
	ErrMissingUpload = errors.New("upload row missing")
)

// Measurements are the metrics read from a scan. Nil means not reported.
type Measurements struct {
	ScanDate       string   `json:"scanDate,omitempty"`
	WeightKg       *float64 `json:"weightKg,omitempty"`
	BodyFatPercent *float64 `json:"bodyFatPercent,omitempty"`
	MuscleMassKg   *float64 `json:"muscleMassKg,omitempty"`
	BMRKcal        *float64 `json:"bmrKcal,omitempty"`
	VisceralFat    *float64 `json:"visceralFat,omitempty"`
	BoneMassKg     *float64 `json:"boneMassKg,omitempty"`
	WaterPercent   *float64 `json:"waterPercent,omitempty"`
	BMI            *float64 `json:"bmi,omitempty"`
}

// Count returns how many metrics are present.
func (m Measurements) Count() int {
	n := 0
	for _, v := range []*float64{m.WeightKg, m.BodyFatPercent, m.MuscleMassKg, m.BMRKcal, m.VisceralFat, m.BoneMassKg, m.WaterPercent, m.BMI} {
		if v != nil {
			n++
		}
	}
	return n
}

// Result is a stored body composition scan.
type Result struct {
	ID       string
	UserID   string
	UploadID string
	Engine   string
	Measurements
	Raw       json.RawMessage
	CreatedAt time.Time
}

func floatPtr(v float64) *float64 { return &v }

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
