package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pixelpharm-backend/internal/shared/metrics"
	"pixelpharm-backend/internal/shared/telemetry"
	"pixelpharm-backend/internal/shared/tracing"
)

// Outcome of one engine attempt.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
)

// Attempt describes one engine call, reported to the attempt hook.
type Attempt struct {
	Engine   string
	Model    string
	Outcome  string
	Output   Output
	Err      error
	Duration time.Duration
}

// AttemptHook receives every attempt in order. Hook failures must not stop the chain.
type AttemptHook func(ctx context.Context, in Input, a Attempt)

// Router tries engines in order until one finds at least one reading.
type Router struct {
	engines []Engine
	hook    AttemptHook
	timeout time.Duration
}

// NewRouter orders engines by names. Unknown names are skipped; nil engines are ignored.
func NewRouter(names []string, available map[string]Engine, timeout time.Duration, hook AttemptHook) *Router {
	r := &Router{hook: hook, timeout: timeout}
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true
		engine, ok := available[name]
		if !ok || engine == nil {
			telemetry.Warn("ocr.engine_unavailable", map[string]any{"engine": name})
			continue
		}
		r.engines = append(r.engines, engine)
	}
	return r
}

// Engines returns the engine names in routing order.
func (r *Router) Engines() []string {
	names := make([]string, 0, len(r.engines))
	for _, e := range r.engines {
		names = append(names, e.Name())
	}
	return names
}

// Extract returns the first output with at least one reading. When every
// eligible engine failed the last error is returned; when they all ran
// without finding anything the result is ErrNoReadings.
func (r *Router) Extract(ctx context.Context, in Input) (Output, error) {
	var lastErr error
	tried := 0
	for _, engine := range r.engines {
		if !engine.Supports(in.MimeType) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		tried++
		out, err := r.attempt(ctx, engine, in)
		if err != nil {
			lastErr = err
			continue
		}
		if out.Count() > 0 {
			return out, nil
		}
	}
	switch {
	case tried == 0:
		return Output{}, fmt.Errorf("%w: %s", ErrNoEngine, in.MimeType)
	case lastErr != nil:
		return Output{}, lastErr
	default:
		return Output{}, ErrNoReadings
	}
}

func (r *Router) attempt(ctx context.Context, engine Engine, in Input) (Output, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ocr."+engine.Name())
	defer span.End()
	span.SetAttributes(
		attribute.String("ocr.engine", engine.Name()),
		attribute.String("upload.id", in.UploadID),
		attribute.String("upload.type", in.UploadType),
		attribute.String("upload.mime_type", in.MimeType),
		attribute.Int("upload.size_bytes", len(in.Data)),
	)

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	out, err := engine.Extract(callCtx, in)
	elapsed := time.Since(started)
	if out.Engine == "" {
		out.Engine = engine.Name()
	}

	outcome := OutcomeSucceeded
	switch {
	case err != nil:
		outcome = OutcomeFailed
		tracing.RecordError(span, err)
	case out.Count() == 0:
		outcome = OutcomeEmpty
	}
	span.SetAttributes(
		attribute.String("ocr.outcome", outcome),
		attribute.Int("ocr.count", out.Count()),
	)
	metrics.IncEngineAttempt(engine.Name(), outcome)

	fields := map[string]any{
		"engine":      engine.Name(),
		"outcome":     outcome,
		"count":       out.Count(),
		"duration_ms": elapsed.Milliseconds(),
		"upload_id":   in.UploadID,
		"request_id":  telemetry.RequestID(ctx),
	}
	if err != nil {
		fields["error"] = err.Error()
		telemetry.Warn("ocr.attempt", fields)
	} else {
		telemetry.Info("ocr.attempt", fields)
	}

	if r.hook != nil {
		r.hook(ctx, in, Attempt{
			Engine:   engine.Name(),
			Model:    out.Model,
			Outcome:  outcome,
			Output:   out,
			Err:      err,
			Duration: elapsed,
		})
	}
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return out, fmt.Errorf("%s: ocr timeout: %w", engine.Name(), context.DeadlineExceeded)
	}
	return out, err
}
