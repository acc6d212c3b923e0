package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Client abstracts the LLM provider used for document extraction and insights.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Attachment is a document sent alongside the prompt. Data holds raw bytes;
// providers encode it as they need.
type Attachment struct {
	MediaType string
	Data      []byte
}

// Request is a single-turn completion.
type Request struct {
	System      string
	Prompt      string
	Attachments []Attachment
	MaxTokens   int
}

// Response carries the text reply and token usage.
type Response struct {
	Text         string
	Model        string
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

// ErrEmptyResponse is returned when the provider replies without any text.
var ErrEmptyResponse = errors.New("llm response empty")

// ErrNotConfigured is returned by NopClient.
var ErrNotConfigured = errors.New("llm not configured")

// NopClient is used when no API key is configured.
type NopClient struct{}

func (NopClient) Complete(ctx context.Context, req Request) (Response, error) {
	return Response{}, ErrNotConfigured
}

// HashPrompt returns a stable identifier for the system and user prompt text.
func HashPrompt(req Request) string {
	sum := sha256.Sum256([]byte(req.System + "\n\n" + req.Prompt))
	return hex.EncodeToString(sum[:])
}
