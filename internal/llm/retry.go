package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"pixelpharm-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

// StatusCoder is implemented by provider errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

type retrying struct {
	base  Client
	delay time.Duration
	label string
}

// WithRetry wraps base so that one transient failure is retried after 300ms.
// label identifies the caller in logs.
func WithRetry(base Client, label string) Client {
	if base == nil {
		return nil
	}
	return retrying{base: base, delay: retryBaseDelay, label: label}
}

func (r retrying) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := r.base.Complete(ctx, req)
	if err == nil || !ShouldRetry(err) || ctx.Err() != nil {
		return resp, err
	}

	telemetry.Warn("llm.retry", map[string]any{
		"attempt":    1,
		"caller":     r.label,
		"request_id": telemetry.RequestID(ctx),
		"error":      err.Error(),
	})
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	return r.base.Complete(ctx, req)
}

// ShouldRetry reports whether err looks transient: timeouts, 5xx, 429 and
// dropped connections.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		return code == 429 || code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "overloaded") || strings.Contains(msg, "rate limit") {
		return true
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unexpected eof") {
		return true
	}
	return false
}
