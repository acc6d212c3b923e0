package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	mimePDF  = "application/pdf"
	mimeText = "text/plain"
)

var (
	// ErrUnsupported is returned for content types that carry no extractable text.
	ErrUnsupported = errors.New("unsupported mime type")
	// ErrNoText is returned when a supported document yields no text at all.
	ErrNoText = errors.New("no text found")
)

// Page is the text of one page, numbered from 1.
type Page struct {
	Number int
	Text   string
}

// Supports reports whether Pages can read mimeType.
func Supports(mimeType string) bool {
	switch normalizeMimeType(mimeType) {
	case mimePDF, mimeText:
		return true
	}
	return false
}

// Pages extracts text per page. PDFs are read with github.com/ledongthuc/pdf;
// plain text is split on form feeds.
func Pages(ctx context.Context, data []byte, mimeType string) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		pages []Page
		err   error
	)
	switch mt := normalizeMimeType(mimeType); mt {
	case mimePDF:
		pages, err = pdfPages(ctx, data)
	case mimeText:
		pages = textPages(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mt)
	}
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNoText
	}
	return pages, nil
}

// Text joins all pages with blank lines.
func Text(pages []Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

func pdfPages(ctx context.Context, data []byte) (pages []Page, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

func textPages(data []byte) []Page {
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	var pages []Page
	for i, chunk := range strings.Split(string(data), "\f") {
		chunk = strings.TrimSpace(strings.ReplaceAll(chunk, "\r\n", "\n"))
		if chunk == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: chunk})
	}
	return pages
}

func normalizeMimeType(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}
