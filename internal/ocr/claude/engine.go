package claude

import (
	"context"
	"errors"
	"fmt"

	"pixelpharm-backend/internal/biomarkers"
	"pixelpharm-backend/internal/bodycomp"
	"pixelpharm-backend/internal/llm"
	llmclaude "pixelpharm-backend/internal/llm/claude"
	"pixelpharm-backend/internal/ocr"
)

const Name = "claude"

// Engine sends the document to Claude and decodes the JSON reply.
type Engine struct {
	client llm.Client
	model  string
}

func New(client llm.Client, model string) *Engine {
	return &Engine{client: client, model: model}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) Supports(mimeType string) bool {
	return llmclaude.SupportsMediaType(mimeType)
}

func (e *Engine) Extract(ctx context.Context, in ocr.Input) (ocr.Output, error) {
	prompt, _ := llm.ExtractionPrompt(in.UploadType)
	resp, err := e.client.Complete(ctx, llm.Request{
		System:      llm.SystemPrompt(),
		Prompt:      prompt,
		Attachments: []llm.Attachment{{MediaType: in.MimeType, Data: in.Data}},
	})
	out := ocr.Output{Engine: Name, Model: resp.Model, Raw: resp.Text}
	if out.Model == "" {
		out.Model = e.model
	}
	if err != nil {
		return out, err
	}

	if in.IsBodyComposition() {
		m, err := bodycomp.ParseJSON(resp.Text)
		switch {
		case errors.Is(err, bodycomp.ErrNoData):
			return out, nil
		case err != nil:
			return out, fmt.Errorf("%w: %v", ocr.ErrUnparseable, err)
		}
		out.Body = m
		return out, nil
	}

	report, err := biomarkers.ParseJSON(resp.Text)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ocr.ErrUnparseable, err)
	}
	out.Report = report
	return out, nil
}

var _ ocr.Engine = (*Engine)(nil)
