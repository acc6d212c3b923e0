package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"pixelpharm-backend/internal/queue"
	"pixelpharm-backend/internal/shared/telemetry"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingUploadID indicates a message without an upload id.
type ErrMissingUploadID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingUploadID) Error() string { return "missing upload id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	UploadID  string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process upload"
	}
	return "process upload: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ShouldRetry reports whether redelivering a message that failed with err could
// help. Errors that classify themselves through Temporary decide; everything
// else is retried.
func ShouldRetry(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// Processor runs the pipeline for one upload.
type Processor interface {
	ProcessUpload(ctx context.Context, uploadID string) error
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.UploadID) == "" {
		return msg, meta, ErrMissingUploadID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, processor Processor, body string) error {
	if processor == nil {
		return errors.New("processing service not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	if strings.TrimSpace(msg.UploadID) == "" {
		return ErrMissingUploadID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	ctxWithRequest := telemetry.WithRequestID(ctx, msg.RequestID)
	if err := processor.ProcessUpload(ctxWithRequest, msg.UploadID); err != nil {
		return ErrProcess{UploadID: msg.UploadID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}
