package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"pixelpharm-backend/internal/biomarkers"
	"pixelpharm-backend/internal/bloodtests"
	"pixelpharm-backend/internal/bodycomp"
	"pixelpharm-backend/internal/ocr"
	"pixelpharm-backend/internal/queue"
	"pixelpharm-backend/internal/shared/lock"
	"pixelpharm-backend/internal/shared/metrics"
	"pixelpharm-backend/internal/shared/telemetry"
	"pixelpharm-backend/internal/uploads"
)

const (
	defaultLockTTL = 5 * time.Minute
	maxRawResponse = 64 << 10
	messageVersion = 1
)

// Extractor turns document bytes into readings.
type Extractor interface {
	Extract(ctx context.Context, in ocr.Input) (ocr.Output, error)
}

// Service runs the extraction pipeline for uploads.
type Service struct {
	Uploads   *uploads.Service
	Extractor Extractor
	Blood     *bloodtests.Service
	Body      *bodycomp.Service
	Repo      Repo
	Locker    lock.Locker
	// Queue is optional. Without it Start processes in a background goroutine.
	Queue   queue.Client
	LockTTL time.Duration
	Now     func() time.Time
	// Go runs background work. Nil means a plain goroutine.
	Go func(func())

	group singleflight.Group
}

// Start queues an upload owned by userID for processing. Uploads that are
// already queued or processing are returned unchanged unless they went stale.
func (s *Service) Start(ctx context.Context, userID, uploadID string) (uploads.FileUpload, error) {
	upload, err := s.Uploads.Get(ctx, userID, uploadID)
	if err != nil {
		return uploads.FileUpload{}, err
	}
	return s.start(ctx, upload)
}

// ByKeyInput asks for processing of an object that may not have an upload row yet.
type ByKeyInput struct {
	UserID     string
	StorageKey string
	FileName   string
	MimeType   string
	UploadType uploads.Type
}

// ProcessByKey makes sure an upload row exists for the storage key and starts
// processing it.
func (s *Service) ProcessByKey(ctx context.Context, in ByKeyInput) (uploads.FileUpload, error) {
	key := strings.TrimSpace(in.StorageKey)
	if key == "" {
		return uploads.FileUpload{}, fmt.Errorf("%w: s3Key is required", ErrInvalidInput)
	}
	if !uploads.OwnsKey(in.UserID, key) {
		return uploads.FileUpload{}, uploads.ErrNotFound
	}
	upload, _, err := s.Uploads.EnsureUpload(ctx, uploads.EnsureInput{
		UserID:     in.UserID,
		StorageKey: key,
		FileName:   in.FileName,
		MimeType:   in.MimeType,
		UploadType: in.UploadType,
	})
	if err != nil {
		return uploads.FileUpload{}, err
	}
	return s.start(ctx, upload)
}

func (s *Service) start(ctx context.Context, upload uploads.FileUpload) (uploads.FileUpload, error) {
	if upload.Status == uploads.StatusQueued || upload.Status == uploads.StatusProcessing {
		if !s.stale(upload) {
			return upload, nil
		}
		// A run that outlived its lock is gone; the lock still guards a live one.
		telemetry.Warn("processing.stale_restart", map[string]any{
			"request_id": telemetry.RequestID(ctx),
			"upload_id":  upload.ID,
			"status":     upload.Status,
			"updated_at": upload.UpdatedAt.Format(time.RFC3339),
		})
	}
	if err := s.Uploads.SetStatus(ctx, upload.ID, uploads.StatusUpdate{Status: uploads.StatusQueued}); err != nil {
		return uploads.FileUpload{}, err
	}
	telemetry.Info("processing.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"user_id":           upload.UserID,
		"upload_id":         upload.ID,
		"status":            uploads.StatusQueued,
		"status_transition": string(upload.Status) + "->queued",
	})
	previous := upload.Status
	upload.Status = uploads.StatusQueued
	upload.ErrorCode, upload.ErrorMessage = "", ""

	if s.Queue != nil {
		msg := queue.Message{
			UploadID:   upload.ID,
			RequestID:  telemetry.RequestID(ctx),
			EnqueuedAt: s.now().Format(time.RFC3339),
			Version:    messageVersion,
		}
		err := s.Queue.Send(ctx, msg)
		if err == nil {
			return upload, nil
		}
		telemetry.Warn("processing.enqueue_failed", map[string]any{
			"request_id": telemetry.RequestID(ctx),
			"upload_id":  upload.ID,
			"previous":   previous,
			"error":      err.Error(),
		})
	}

	bg := telemetry.Detach(ctx)
	s.spawn(func() {
		if err := s.ProcessUpload(bg, upload.ID); err != nil {
			telemetry.Warn("processing.async_failed", map[string]any{
				"request_id": telemetry.RequestID(bg),
				"upload_id":  upload.ID,
				"error":      err.Error(),
			})
		}
	})
	return upload, nil
}

// ProcessUpload runs the pipeline for one upload. Concurrent calls for the same
// upload in this process share one run; across processes the lock admits one
// holder and the others get ErrInProgress. Completed uploads are skipped.
func (s *Service) ProcessUpload(ctx context.Context, uploadID string) error {
	_, err, _ := s.group.Do(uploadID, func() (any, error) {
		return nil, s.processLocked(ctx, uploadID)
	})
	return err
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return defaultLockTTL
	}
	return s.LockTTL
}

// stale reports whether a queued or processing upload has not moved for
// longer than the lock TTL.
func (s *Service) stale(upload uploads.FileUpload) bool {
	if upload.UpdatedAt.IsZero() {
		return false
	}
	return s.now().Sub(upload.UpdatedAt) > s.lockTTL()
}

func (s *Service) processLocked(ctx context.Context, uploadID string) error {
	ttl := s.lockTTL()
	release := func(context.Context) error { return nil }
	if s.Locker != nil {
		var err error
		release, err = s.Locker.TryLock(ctx, "processing:"+uploadID, ttl)
		if errors.Is(err, lock.ErrHeld) {
			telemetry.Info("processing.locked", map[string]any{
				"request_id": telemetry.RequestID(ctx),
				"upload_id":  uploadID,
			})
			return ErrInProgress
		}
		if err != nil {
			return fmt.Errorf("acquire processing lock: %w", err)
		}
	}
	defer func() {
		if err := release(telemetry.Detach(ctx)); err != nil {
			telemetry.Warn("processing.unlock_failed", map[string]any{"upload_id": uploadID, "error": err.Error()})
		}
	}()

	upload, err := s.Uploads.GetByID(ctx, uploadID)
	if err != nil {
		return err
	}
	if upload.Status == uploads.StatusCompleted {
		return nil
	}
	return s.run(ctx, upload)
}

func (s *Service) run(ctx context.Context, upload uploads.FileUpload) (err error) {
	startedAt := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = s.fail(ctx, upload, fmt.Errorf("panic: %v", r), startedAt)
		}
	}()

	if err := s.Uploads.SetStatus(ctx, upload.ID, uploads.StatusUpdate{Status: uploads.StatusProcessing}); err != nil {
		return s.fail(ctx, upload, fmt.Errorf("%w: set processing: %v", ErrStorage, err), startedAt)
	}
	metrics.IncProcessingStarted()
	telemetry.Info("processing.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"user_id":           upload.UserID,
		"upload_id":         upload.ID,
		"upload_type":       upload.UploadType,
		"status":            uploads.StatusProcessing,
		"status_transition": string(upload.Status) + "->processing",
	})

	data, err := s.fetch(ctx, upload)
	if err != nil {
		return s.fail(ctx, upload, err, startedAt)
	}

	out, err := s.Extractor.Extract(ctx, ocr.Input{
		UploadID:   upload.ID,
		UserID:     upload.UserID,
		UploadType: string(upload.UploadType),
		MimeType:   upload.MimeType,
		FileName:   upload.FileName,
		StorageKey: upload.StorageKey,
		Data:       data,
	})
	if err != nil {
		return s.fail(ctx, upload, err, startedAt)
	}

	var stored int
	if upload.UploadType == uploads.TypeBodyComposition {
		stored, err = s.persistBody(ctx, upload, out)
	} else {
		stored, err = s.persistBlood(ctx, upload, out)
	}
	if err != nil {
		return s.fail(ctx, upload, err, startedAt)
	}

	completedAt := s.now()
	if err := s.Uploads.SetStatus(ctx, upload.ID, uploads.StatusUpdate{Status: uploads.StatusCompleted, ProcessedAt: &completedAt}); err != nil {
		return s.fail(ctx, upload, fmt.Errorf("%w: set completed: %v", ErrStorage, err), startedAt)
	}
	metrics.IncProcessingCompleted()
	metrics.ObserveProcessingDurationMs(durationMs(startedAt, completedAt))
	telemetry.Info("processing.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"user_id":           upload.UserID,
		"upload_id":         upload.ID,
		"engine":            out.Engine,
		"stored":            stored,
		"status":            uploads.StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs(startedAt, completedAt),
	})
	return nil
}

func (s *Service) fetch(ctx context.Context, upload uploads.FileUpload) ([]byte, error) {
	body, err := s.Uploads.Open(ctx, upload)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, upload.StorageKey, err)
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, uploads.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, upload.StorageKey, err)
	}
	if len(data) > uploads.MaxUploadBytes {
		return nil, fmt.Errorf("%w: object %s exceeds %d bytes", ErrStorage, upload.StorageKey, uploads.MaxUploadBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: object %s is empty", ErrStorage, upload.StorageKey)
	}
	return data, nil
}

// persistBlood writes the result row, then one row per reading. A reading that
// fails to insert is logged and skipped.
func (s *Service) persistBlood(ctx context.Context, upload uploads.FileUpload, out ocr.Output) (int, error) {
	report := out.Report
	report.Readings = biomarkers.Dedupe(biomarkers.Normalize(report.Readings))
	if len(report.Readings) == 0 {
		return 0, ocr.ErrNoReadings
	}

	input := bloodtests.ResultInput{
		UserID:   upload.UserID,
		UploadID: upload.ID,
		Engine:   out.Engine,
		Report:   report,
	}
	result, err := s.Blood.CreateResult(ctx, input)
	if errors.Is(err, bloodtests.ErrMissingUpload) {
		if _, _, ensureErr := s.ensureUpload(ctx, upload); ensureErr != nil {
			return 0, fmt.Errorf("%w: recreate upload: %v", ErrStorage, ensureErr)
		}
		result, err = s.Blood.CreateResult(ctx, input)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: create blood test result: %v", ErrStorage, err)
	}

	stored, skipped := 0, 0
	for _, reading := range report.Readings {
		if _, err := s.Blood.AddValue(ctx, result, reading); err != nil {
			skipped++
			telemetry.Warn("processing.biomarker_skipped", map[string]any{
				"request_id": telemetry.RequestID(ctx),
				"upload_id":  upload.ID,
				"result_id":  result.ID,
				"biomarker":  reading.Name,
				"error":      err.Error(),
			})
			continue
		}
		stored++
	}
	metrics.AddBiomarkersStored(stored)
	metrics.AddBiomarkersSkipped(skipped)
	return stored, nil
}

func (s *Service) persistBody(ctx context.Context, upload uploads.FileUpload, out ocr.Output) (int, error) {
	input := bodycomp.SaveInput{
		UserID:       upload.UserID,
		UploadID:     upload.ID,
		Engine:       out.Engine,
		Measurements: out.Body,
		Raw:          out.Raw,
	}
	_, err := s.Body.Save(ctx, input)
	if errors.Is(err, bodycomp.ErrMissingUpload) {
		if _, _, ensureErr := s.ensureUpload(ctx, upload); ensureErr != nil {
			return 0, fmt.Errorf("%w: recreate upload: %v", ErrStorage, ensureErr)
		}
		_, err = s.Body.Save(ctx, input)
	}
	switch {
	case errors.Is(err, bodycomp.ErrNoData):
		return 0, ocr.ErrNoReadings
	case err != nil:
		return 0, fmt.Errorf("%w: create body composition result: %v", ErrStorage, err)
	}
	return out.Body.Count(), nil
}

func (s *Service) ensureUpload(ctx context.Context, upload uploads.FileUpload) (uploads.FileUpload, bool, error) {
	return s.Uploads.EnsureUpload(ctx, uploads.EnsureInput{
		UploadID:   upload.ID,
		UserID:     upload.UserID,
		StorageKey: upload.StorageKey,
		FileName:   upload.OriginalFileName,
		MimeType:   upload.MimeType,
		UploadType: upload.UploadType,
	})
}

// fail stores the classified failure on the upload and returns it.
func (s *Service) fail(ctx context.Context, upload uploads.FileUpload, cause error, startedAt time.Time) error {
	code, retryable := classifyFailure(cause)
	failure := &Failure{Code: code, Retryable: retryable, Err: cause}
	completedAt := s.now()

	updateCtx, cancel := context.WithTimeout(telemetry.Detach(ctx), 10*time.Second)
	defer cancel()
	if err := s.Uploads.SetStatus(updateCtx, upload.ID, uploads.StatusUpdate{
		Status:       uploads.StatusFailed,
		ErrorCode:    code,
		ErrorMessage: sanitizeError(cause),
		ProcessedAt:  &completedAt,
	}); err != nil {
		telemetry.Error("processing.fail_update", map[string]any{
			"upload_id": upload.ID,
			"error":     err.Error(),
			"cause":     cause.Error(),
		})
	}
	metrics.IncProcessingFailed()
	metrics.ObserveProcessingDurationMs(durationMs(startedAt, completedAt))
	telemetry.Warn("processing.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"user_id":           upload.UserID,
		"upload_id":         upload.ID,
		"status":            uploads.StatusFailed,
		"status_transition": "processing->failed",
		"error_code":        code,
		"retryable":         retryable,
		"error":             sanitizeError(cause),
		"duration_ms":       durationMs(startedAt, completedAt),
	})
	return failure
}

// RecordAttempt writes an audit row for one engine call. It is the ocr router's
// attempt hook, so it never fails the pipeline.
func (s *Service) RecordAttempt(ctx context.Context, in ocr.Input, a ocr.Attempt) {
	rec := Record{
		ID:             uuid.NewString(),
		UploadID:       in.UploadID,
		UserID:         in.UserID,
		Engine:         a.Engine,
		Model:          a.Model,
		Status:         a.Outcome,
		RawResponse:    truncate(a.Output.Raw, maxRawResponse),
		BiomarkerCount: a.Output.Count(),
		DurationMs:     a.Duration.Milliseconds(),
		CreatedAt:      s.now(),
	}
	if a.Err != nil {
		rec.ErrorCode, _ = classifyFailure(a.Err)
		rec.ErrorMessage = sanitizeError(a.Err)
	}
	if s.Repo == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(telemetry.Detach(ctx), 5*time.Second)
	defer cancel()
	if err := s.Repo.Create(writeCtx, rec); err != nil {
		telemetry.Warn("processing.audit_failed", map[string]any{
			"request_id": telemetry.RequestID(ctx),
			"upload_id":  in.UploadID,
			"engine":     a.Engine,
			"error":      err.Error(),
		})
	}
}

// Attempts returns the audit rows of an upload owned by userID.
func (s *Service) Attempts(ctx context.Context, userID, uploadID string) ([]Record, error) {
	upload, err := s.Uploads.Get(ctx, userID, uploadID)
	if err != nil {
		return nil, err
	}
	return s.Repo.ListByUpload(ctx, upload.ID)
}

// Record returns one audit row owned by userID.
func (s *Service) Record(ctx context.Context, userID, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, ErrNotFound
	}
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.UserID != userID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *Service) spawn(f func()) {
	if s.Go != nil {
		s.Go(f)
		return
	}
	go f()
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func durationMs(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}
