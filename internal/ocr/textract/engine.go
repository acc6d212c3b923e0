package textract

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"pixelpharm-backend/internal/biomarkers"
	"pixelpharm-backend/internal/bodycomp"
	"pixelpharm-backend/internal/ocr"
)

const Name = "textract"

const defaultPollInterval = 2 * time.Second

// API is the subset of the Textract client the engine calls.
type API interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
	StartDocumentTextDetection(ctx context.Context, params *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, params *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
}

// Locator maps a storage key to the S3 bucket and object key holding it.
type Locator func(key string) (bucket, objectKey string)

// Engine runs AWS Textract text detection and parses the lines with the
// biomarker pattern table. Images go through synchronous detection. PDF and
// TIFF documents need an S3 locator: they run as an asynchronous job so that
// multi-page reports are read in full.
type Engine struct {
	api          API
	catalog      *biomarkers.Catalog
	locate       Locator
	pollInterval time.Duration
}

func New(api API) *Engine {
	return &Engine{api: api, catalog: biomarkers.DefaultCatalog(), pollInterval: defaultPollInterval}
}

// WithS3 enables PDF and TIFF documents, read from S3 through locate.
func (e *Engine) WithS3(locate Locator) *Engine {
	e.locate = locate
	return e
}

// NewFromConfig loads the default AWS config for region.
func NewFromConfig(ctx context.Context, region string) (*Engine, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(textract.NewFromConfig(cfg)), nil
}

func (e *Engine) Name() string { return Name }

// Supports reports whether the engine can read mimeType. Without S3 only
// images are accepted; synchronous detection rejects multi-page documents.
func (e *Engine) Supports(mimeType string) bool {
	switch mimeType {
	case "image/png", "image/jpeg":
		return true
	case "application/pdf", "image/tiff":
		return e.locate != nil
	}
	return false
}

func multiPage(mimeType string) bool {
	return mimeType == "application/pdf" || mimeType == "image/tiff"
}

type line struct {
	text       string
	confidence float64
}

func (e *Engine) Extract(ctx context.Context, in ocr.Input) (ocr.Output, error) {
	blocks, model, err := e.detect(ctx, in)
	if err != nil {
		return ocr.Output{Engine: Name, Model: model}, err
	}

	pages := groupLines(blocks)
	numbers := make([]int, 0, len(pages))
	for n := range pages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var raw strings.Builder
	var readings []biomarkers.Reading
	for i, n := range numbers {
		if i > 0 {
			raw.WriteString("\f")
		}
		for _, l := range pages[n] {
			raw.WriteString(l.text)
			raw.WriteString("\n")
			if in.IsBodyComposition() {
				continue
			}
			for _, r := range e.catalog.ParseText(l.text, n) {
				r.Confidence = l.confidence
				readings = append(readings, r)
			}
		}
	}

	out := ocr.Output{Engine: Name, Model: model, Raw: raw.String()}
	if in.IsBodyComposition() {
		out.Body = bodycomp.ParseText(out.Raw)
		return out, nil
	}
	testDate, labName := biomarkers.ScanHeader(out.Raw)
	out.Report = biomarkers.Report{TestDate: testDate, LabName: labName, Readings: readings}
	return out, nil
}

func (e *Engine) detect(ctx context.Context, in ocr.Input) ([]types.Block, string, error) {
	if multiPage(in.MimeType) && e.locate != nil && in.StorageKey != "" {
		blocks, err := e.detectAsync(ctx, in.StorageKey)
		return blocks, "StartDocumentTextDetection", err
	}
	resp, err := e.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: in.Data},
	})
	if err != nil {
		return nil, "DetectDocumentText", fmt.Errorf("textract detect: %w", err)
	}
	return resp.Blocks, "DetectDocumentText", nil
}

// detectAsync starts a text detection job on the stored object, waits for it
// and collects every result page.
func (e *Engine) detectAsync(ctx context.Context, key string) ([]types.Block, error) {
	bucket, name := e.locate(key)
	start, err := e.api.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(name)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("textract start: %w", err)
	}
	jobID := aws.ToString(start.JobId)

	var (
		blocks []types.Block
		next   *string
	)
	for {
		out, err := e.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: next,
		})
		if err != nil {
			return nil, fmt.Errorf("textract get job=%s: %w", jobID, err)
		}
		switch out.JobStatus {
		case types.JobStatusInProgress:
			if err := wait(ctx, e.pollInterval); err != nil {
				return nil, fmt.Errorf("textract job=%s: %w", jobID, err)
			}
			continue
		case types.JobStatusFailed:
			return nil, fmt.Errorf("textract job=%s failed: %s", jobID, aws.ToString(out.StatusMessage))
		}
		blocks = append(blocks, out.Blocks...)
		if aws.ToString(out.NextToken) == "" {
			return blocks, nil
		}
		next = out.NextToken
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// groupLines collects LINE blocks by page. Confidence is scaled to 0..1.
func groupLines(blocks []types.Block) map[int][]line {
	pages := map[int][]line{}
	for _, b := range blocks {
		if b.BlockType != types.BlockTypeLine || b.Text == nil {
			continue
		}
		page := 1
		if b.Page != nil && *b.Page > 0 {
			page = int(*b.Page)
		}
		conf := 0.0
		if b.Confidence != nil {
			conf = float64(*b.Confidence) / 100
		}
		pages[page] = append(pages[page], line{text: *b.Text, confidence: conf})
	}
	return pages
}

var _ ocr.Engine = (*Engine)(nil)
