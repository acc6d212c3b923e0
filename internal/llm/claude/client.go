package claude

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"pixelpharm-backend/internal/llm"
	"pixelpharm-backend/internal/shared/telemetry"
)

const (
	DefaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second
)

// Client implements llm.Client using the Anthropic Messages API.
type Client struct {
	api       anthropic.Client
	model     string
	maxTokens int
}

// Options configure a Client. Zero values take defaults.
type Options struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string
}

// NewClient constructs a Claude client. The SDK's own retries are disabled;
// callers wrap the client with llm.WithRetry.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Client{
		api:       anthropic.NewClient(reqOpts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Attachments)+1)
	for _, att := range req.Attachments {
		block, err := attachmentBlock(att)
		if err != nil {
			return llm.Response{}, err
		}
		blocks = append(blocks, block)
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Temperature: anthropic.Float(0),
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, wrapError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := llm.Response{
		Text:         strings.TrimSpace(text.String()),
		Model:        string(msg.Model),
		StopReason:   string(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	telemetry.Info("llm.response", map[string]any{
		"provider":      "anthropic",
		"model":         out.Model,
		"stop_reason":   out.StopReason,
		"input_tokens":  out.InputTokens,
		"output_tokens": out.OutputTokens,
		"prompt_hash":   llm.HashPrompt(req),
		"request_id":    telemetry.RequestID(ctx),
	})
	if out.Text == "" {
		return out, llm.ErrEmptyResponse
	}
	return out, nil
}

var supportedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// SupportsMediaType reports whether the Messages API accepts mediaType as an attachment.
func SupportsMediaType(mediaType string) bool {
	switch mediaType {
	case "application/pdf", "text/plain":
		return true
	}
	_, ok := supportedImageTypes[mediaType]
	return ok
}

func attachmentBlock(att llm.Attachment) (anthropic.ContentBlockParamUnion, error) {
	switch {
	case att.MediaType == "application/pdf":
		return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(att.Data),
		}), nil
	case att.MediaType == "text/plain":
		return anthropic.NewTextBlock("Document text:\n" + string(att.Data)), nil
	default:
		if _, ok := supportedImageTypes[att.MediaType]; !ok {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("claude: unsupported attachment type %s", att.MediaType)
		}
		return anthropic.NewImageBlockBase64(att.MediaType, base64.StdEncoding.EncodeToString(att.Data)), nil
	}
}

// APIError carries the HTTP status of a failed Messages call.
type APIError struct {
	Status int
	Err    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("claude: http status %d: %v", e.Status, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) HTTPStatus() int { return e.Status }

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &APIError{Status: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("claude request timeout: %w", err)
	}
	return fmt.Errorf("claude: %w", err)
}

var _ llm.Client = (*Client)(nil)
var _ llm.StatusCoder = (*APIError)(nil)
