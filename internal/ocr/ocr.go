// Package ocr turns uploaded documents into biomarker readings or body
// composition measurements using a chain of engines.
package ocr

import (
	"context"
	"errors"

	"pixelpharm-backend/internal/biomarkers"
	"pixelpharm-backend/internal/bodycomp"
)

const (
	UploadTypeBloodTest       = "blood_test"
	UploadTypeBodyComposition = "body_composition"
)

var (
	// ErrNoReadings means every eligible engine ran and none found anything.
	ErrNoReadings = errors.New("no readings found")
	// ErrNoEngine means no configured engine supports the document type.
	ErrNoEngine = errors.New("no engine supports this document")
	// ErrUnparseable means an engine replied but the reply could not be decoded.
	ErrUnparseable = errors.New("engine output unparseable")
)

// Input is one document to read.
type Input struct {
	UploadID   string
	UserID     string
	UploadType string
	MimeType   string
	FileName   string
	// StorageKey locates the stored object for engines that read it in place.
	StorageKey string
	Data       []byte
}

// Output is what a single engine extracted.
type Output struct {
	Engine string
	Model  string
	// Raw is the model reply or the recognized text, kept for the audit trail.
	Raw    string
	Report biomarkers.Report
	Body   bodycomp.Measurements
}

// Count is the number of readings or measurements found.
func (o Output) Count() int {
	return len(o.Report.Readings) + o.Body.Count()
}

// Engine is one document understanding backend.
type Engine interface {
	Name() string
	Supports(mimeType string) bool
	Extract(ctx context.Context, in Input) (Output, error)
}

// IsBodyComposition reports whether in should be parsed as a body scan.
func (in Input) IsBodyComposition() bool {
	return in.UploadType == UploadTypeBodyComposition
}
