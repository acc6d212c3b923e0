package pattern

import (
	"context"
	"errors"

	"pixelpharm-backend/internal/biomarkers"
	"pixelpharm-backend/internal/bodycomp"
	"pixelpharm-backend/internal/extract"
	"pixelpharm-backend/internal/ocr"
)

const Name = "pattern"

// Engine reads embedded text from PDFs and plain text files and matches it
// against the biomarker catalog. It never calls an external service.
type Engine struct {
	catalog *biomarkers.Catalog
}

func New() *Engine {
	return &Engine{catalog: biomarkers.DefaultCatalog()}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) Supports(mimeType string) bool {
	return extract.Supports(mimeType)
}

func (e *Engine) Extract(ctx context.Context, in ocr.Input) (ocr.Output, error) {
	out := ocr.Output{Engine: Name, Model: "catalog"}
	pages, err := extract.Pages(ctx, in.Data, in.MimeType)
	if errors.Is(err, extract.ErrNoText) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out.Raw = extract.Text(pages)

	if in.IsBodyComposition() {
		out.Body = bodycomp.ParseText(out.Raw)
		return out, nil
	}
	var readings []biomarkers.Reading
	for _, p := range pages {
		readings = append(readings, e.catalog.ParseText(p.Text, p.Number)...)
	}
	testDate, labName := biomarkers.ScanHeader(out.Raw)
	out.Report = biomarkers.Report{TestDate: testDate, LabName: labName, Readings: readings}
	return out, nil
}

var _ ocr.Engine = (*Engine)(nil)
