package uploads

import (
	"strings"
	"time"
)

// Status tracks an upload through processing.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Type selects the extraction prompt and the result table.
type Type string

const (
	TypeBloodTest       Type = "blood_test"
	TypeBodyComposition Type = "body_composition"
	TypeOther           Type = "other"
)

// ParseType accepts the wire spellings of an upload type. Empty means blood_test.
func ParseType(raw string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "blood_test", "blood-test", "bloodtest":
		return TypeBloodTest, true
	case "body_composition", "body-composition", "bodycomposition", "inbody", "dexa":
		return TypeBodyComposition, true
	case "other":
		return TypeOther, true
	}
	return "", false
}

// FileUpload is an uploaded document and its processing state.
type FileUpload struct {
	ID               string
	UserID           string
	FileName         string
	OriginalFileName string
	MimeType         string
	SizeBytes        int64
	UploadType       Type
	StorageProvider  string
	StorageKey       string
	Status           Status
	ErrorCode        string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ProcessedAt      *time.Time
}

// StatusUpdate is applied by the processing pipeline.
type StatusUpdate struct {
	Status       Status
	ErrorCode    string
	ErrorMessage string
	ProcessedAt  *time.Time
}
