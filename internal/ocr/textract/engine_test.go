package textract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"pixelpharm-backend/internal/ocr"
)

type fakeAPI struct {
	out *textract.DetectDocumentTextOutput
	err error
	got *textract.DetectDocumentTextInput

	started *textract.StartDocumentTextDetectionInput
	// pages are returned by successive GetDocumentTextDetection calls.
	pages  []*textract.GetDocumentTextDetectionOutput
	tokens []string
}

func (f *fakeAPI) DetectDocumentText(_ context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.got = in
	return f.out, f.err
}

func (f *fakeAPI) StartDocumentTextDetection(_ context.Context, in *textract.StartDocumentTextDetectionInput, _ ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error) {
	f.started = in
	return &textract.StartDocumentTextDetectionOutput{JobId: aws.String("job-1")}, nil
}

func (f *fakeAPI) GetDocumentTextDetection(_ context.Context, in *textract.GetDocumentTextDetectionInput, _ ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error) {
	f.tokens = append(f.tokens, aws.ToString(in.NextToken))
	if len(f.pages) == 0 {
		return nil, errors.New("no more pages")
	}
	out := f.pages[0]
	f.pages = f.pages[1:]
	return out, nil
}

func lineBlock(text string, conf float32, page int32) types.Block {
	return types.Block{
		BlockType:  types.BlockTypeLine,
		Text:       aws.String(text),
		Confidence: aws.Float32(conf),
		Page:       aws.Int32(page),
	}
}

func TestExtractUsesLineConfidence(t *testing.T) {
	api := &fakeAPI{out: &textract.DetectDocumentTextOutput{Blocks: []types.Block{
		{BlockType: types.BlockTypePage},
		lineBlock("LabCorp", 99, 1),
		lineBlock("Glucose 105 mg/dL 70-99 H", 87.5, 1),
		{BlockType: types.BlockTypeWord, Text: aws.String("Glucose")},
		lineBlock("Sodium 140 135-145 mmol/L", 95, 2),
	}}}
	out, err := New(api).Extract(context.Background(), ocr.Input{MimeType: "image/png", Data: []byte("img")})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(api.got.Document.Bytes) != "img" {
		t.Fatalf("document bytes not forwarded")
	}
	readings := out.Report.Readings
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %+v", readings)
	}
	if readings[0].Confidence != 0.875 {
		t.Fatalf("expected confidence 0.875, got %v", readings[0].Confidence)
	}
	if readings[1].Page != 2 {
		t.Fatalf("expected page 2, got %d", readings[1].Page)
	}
}

func TestExtractBodyComposition(t *testing.T) {
	api := &fakeAPI{out: &textract.DetectDocumentTextOutput{Blocks: []types.Block{
		lineBlock("Weight 80.0 kg", 99, 1),
		lineBlock("Percent Body Fat 20.5 %", 99, 1),
	}}}
	out, err := New(api).Extract(context.Background(), ocr.Input{
		UploadType: ocr.UploadTypeBodyComposition,
		MimeType:   "image/jpeg",
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.Body.Count() != 2 || len(out.Report.Readings) != 0 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestExtractWrapsAPIError(t *testing.T) {
	boom := errors.New("throttled")
	_, err := New(&fakeAPI{err: boom}).Extract(context.Background(), ocr.Input{MimeType: "image/jpeg"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
}

func locate(key string) (string, string) { return "labs-bucket", "prod/" + key }

func TestSupportsMultiPageOnlyWithS3(t *testing.T) {
	e := New(&fakeAPI{})
	if !e.Supports("image/png") || e.Supports("application/pdf") || e.Supports("image/tiff") {
		t.Fatalf("without S3 only images should be supported")
	}
	e.WithS3(locate)
	if !e.Supports("application/pdf") || !e.Supports("image/tiff") {
		t.Fatalf("expected PDF and TIFF with S3")
	}
}

func TestExtractMultiPagePDFRunsAsyncJob(t *testing.T) {
	api := &fakeAPI{pages: []*textract.GetDocumentTextDetectionOutput{
		{JobStatus: types.JobStatusInProgress},
		{
			JobStatus: types.JobStatusSucceeded,
			Blocks:    []types.Block{lineBlock("Glucose 105 mg/dL 70-99 H", 90, 1)},
			NextToken: aws.String("page-2"),
		},
		{
			JobStatus: types.JobStatusSucceeded,
			Blocks:    []types.Block{lineBlock("Sodium 140 135-145 mmol/L", 80, 2)},
		},
	}}
	e := New(api).WithS3(locate)
	e.pollInterval = 0

	out, err := e.Extract(context.Background(), ocr.Input{
		MimeType:   "application/pdf",
		StorageKey: "uploads/abc/report.pdf",
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	loc := api.started.DocumentLocation.S3Object
	if aws.ToString(loc.Bucket) != "labs-bucket" || aws.ToString(loc.Name) != "prod/uploads/abc/report.pdf" {
		t.Fatalf("unexpected S3 location %+v", loc)
	}
	if api.got != nil {
		t.Fatalf("synchronous detection should not run for PDFs")
	}
	if len(api.tokens) != 3 || api.tokens[2] != "page-2" {
		t.Fatalf("unexpected pagination tokens %v", api.tokens)
	}
	if out.Model != "StartDocumentTextDetection" {
		t.Fatalf("unexpected model %q", out.Model)
	}
	readings := out.Report.Readings
	if len(readings) != 2 || readings[1].Page != 2 {
		t.Fatalf("expected readings from both pages, got %+v", readings)
	}
}

func TestExtractFailedAsyncJob(t *testing.T) {
	api := &fakeAPI{pages: []*textract.GetDocumentTextDetectionOutput{
		{JobStatus: types.JobStatusFailed, StatusMessage: aws.String("bad document")},
	}}
	_, err := New(api).WithS3(locate).Extract(context.Background(), ocr.Input{
		MimeType:   "image/tiff",
		StorageKey: "uploads/abc/scan.tiff",
	})
	if err == nil || !strings.Contains(err.Error(), "bad document") {
		t.Fatalf("expected job failure, got %v", err)
	}
}

func TestExtractAsyncJobHonorsDeadline(t *testing.T) {
	api := &fakeAPI{pages: []*textract.GetDocumentTextDetectionOutput{
		{JobStatus: types.JobStatusInProgress},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(api).WithS3(locate).Extract(ctx, ocr.Input{
		MimeType:   "application/pdf",
		StorageKey: "uploads/abc/report.pdf",
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
