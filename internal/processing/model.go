package processing

import (
	"errors"
	"time"
)

// Failure codes stored on the upload and on audit rows.
const (
	CodeOCRTimeout     = "OCR_TIMEOUT"
	CodeOCRUnparseable = "OCR_UNPARSEABLE"
	CodeNoReadings     = "NO_READINGS"
	CodeStorage        = "STORAGE_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

var (
	ErrNotFound = errors.New("processing record not found")
	// ErrInProgress means another worker holds the lock for the upload.
	ErrInProgress = errors.New("upload is already being processed")
	// ErrStorage marks failures reading or writing persisted state.
	ErrStorage      = errors.New("storage error")
	ErrInvalidInput = errors.New("invalid input")
)

// Record is one engine invocation kept for auditing.
type Record struct {
	ID             string
	UploadID       string
	UserID         string
	Engine         string
	Model          string
	Status         string
	RawResponse    string
	ErrorCode      string
	ErrorMessage   string
	BiomarkerCount int
	DurationMs     int64
	CreatedAt      time.Time
}

// Failure is a classified processing error.
type Failure struct {
	Code      string
	Retryable bool
	Err       error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Code
	}
	return f.Code + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Temporary reports whether running the upload again could succeed.
func (f *Failure) Temporary() bool { return f.Retryable }
