package bloodtests

import (
	"encoding/json"
	"errors"
	"time"

	"pixelpharm-backend/internal/biomarkers"
)

var (
	ErrNotFound     = errors.New("blood test result not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingUpload means the referenced FileUpload row does not exist.
	ErrMissingUpload = errors.New("upload row missing")
)

// Result is one processed lab document.
type Result struct {
	ID       string
	UserID   string
	UploadID string
	TestDate string
	LabName  string
	Engine   string
	// Biomarkers is the JSON array of readings as extracted.
	Biomarkers json.RawMessage
	CreatedAt  time.Time
}

// Value is a single stored reading owned by a Result.
type Value struct {
	ID             string
	ResultID       string
	UserID         string
	Name           string
	Value          *float64
	ValueText      string
	Unit           string
	ReferenceRange string
	RefLow         *float64
	RefHigh        *float64
	Status         biomarkers.Status
	IsAbnormal     bool
	Confidence     float64
	Page           int
	Category       string
	CreatedAt      time.Time
}
