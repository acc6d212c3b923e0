package insights

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Kind selects the insight prompt.
type Kind string

const (
	KindHealthInsight Kind = "health_insight"
	KindMedicalReview Kind = "medical_review"
)

var (
	ErrNotFound     = errors.New("insight not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoData means the user has no biomarker values to summarize.
	ErrNoData = errors.New("no biomarker data")
	// ErrUnparseable means the model reply held no JSON object.
	ErrUnparseable = errors.New("insight reply unparseable")
)

// ParseKind accepts the wire spellings of a kind. Empty means health_insight.
func ParseKind(raw string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "health_insight", "health-insight", "insight":
		return KindHealthInsight, true
	case "medical_review", "medical-review", "review":
		return KindMedicalReview, true
	}
	return "", false
}

// Insight is a stored narrative summary. Payload keeps the model's JSON as returned.
type Insight struct {
	ID        string
	UserID    string
	Kind      Kind
	Title     string
	Summary   string
	Payload   json.RawMessage
	Model     string
	CreatedAt time.Time
}
