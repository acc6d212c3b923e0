package biomarkers

import "errors"

// Status is the clinical interpretation of a single reading.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusHigh     Status = "high"
	StatusLow      Status = "low"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

var (
	// ErrNoJSON means no candidate in an LLM reply decoded as a report.
	ErrNoJSON = errors.New("no parseable json in response")
)

// Reading is one extracted biomarker measurement.
type Reading struct {
	Name           string   `json:"name"`
	Value          *float64 `json:"value,omitempty"`
	ValueText      string   `json:"valueText"`
	Comparator     string   `json:"comparator,omitempty"`
	Unit           string   `json:"unit"`
	ReferenceRange string   `json:"referenceRange,omitempty"`
	RefLow         *float64 `json:"refLow,omitempty"`
	RefHigh        *float64 `json:"refHigh,omitempty"`
	Flag           string   `json:"flag,omitempty"`
	Status         Status   `json:"status"`
	IsAbnormal     bool     `json:"isAbnormal"`
	Confidence     float64  `json:"confidence"`
	Page           int      `json:"page,omitempty"`
	Category       string   `json:"category,omitempty"`
}

// Report is the parsed content of one lab document.
type Report struct {
	TestDate string    `json:"testDate,omitempty"`
	LabName  string    `json:"labName,omitempty"`
	Readings []Reading `json:"biomarkers"`
}

func floatPtr(v float64) *float64 { return &v }
