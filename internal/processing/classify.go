package processing

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"pixelpharm-backend/internal/biomarkers"
	"pixelpharm-backend/internal/bodycomp"
	"pixelpharm-backend/internal/llm"
	"pixelpharm-backend/internal/ocr"
)

// classifyFailure maps a pipeline error to a stored code and whether a retry
// could succeed.
func classifyFailure(err error) (string, bool) {
	if err == nil {
		return CodeInternal, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeOCRTimeout, true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "ocr timeout"):
		return CodeOCRTimeout, true
	case errors.Is(err, ocr.ErrUnparseable), errors.Is(err, biomarkers.ErrNoJSON):
		return CodeOCRUnparseable, false
	case errors.Is(err, ocr.ErrNoReadings), errors.Is(err, ocr.ErrNoEngine), errors.Is(err, bodycomp.ErrNoData):
		return CodeNoReadings, false
	case errors.Is(err, ErrStorage):
		return CodeStorage, true
	case llm.ShouldRetry(err):
		return CodeInternal, true
	}
	return CodeInternal, false
}

// sanitizeError flattens err to a single line of at most 500 bytes.
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	return truncate(msg, 500)
}

// truncate cuts s to at most n bytes without splitting a rune. Postgres
// rejects invalid UTF-8 in TEXT columns.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
