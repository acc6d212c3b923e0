package uploads

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"pixelpharm-backend/internal/shared/metrics"
	"pixelpharm-backend/internal/shared/storage/object"
	"pixelpharm-backend/internal/shared/telemetry"
	"pixelpharm-backend/internal/shared/util"
	"pixelpharm-backend/internal/usage"
)

const (
	MaxUploadBytes = 10 << 20
	presignExpires = 15 * time.Minute
	sniffLen       = 512
)

var allowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"image/webp":      {},
	"image/gif":       {},
	"image/tiff":      {},
	"text/plain":      {},
}

// IsAllowedContentType reports whether uploads of contentType are accepted.
func IsAllowedContentType(contentType string) bool {
	_, ok := allowedContentTypes[normalizeContentType(contentType)]
	return ok
}

// UsageGate is the quota consulted before an upload is stored.
type UsageGate interface {
	CanConsume(ctx context.Context, userID string, n int) (bool, usage.Usage, error)
	Consume(ctx context.Context, userID string, n int) (usage.Usage, error)
}

// Service contains business logic for uploads.
type Service struct {
	Store     object.ObjectStore
	Presigner object.Presigner
	Repo      Repo
	Usage     UsageGate
	Now       func() time.Time
}

// UploadInput describes a direct multipart upload.
type UploadInput struct {
	UserID     string
	FileName   string
	UploadType Type
	Body       io.Reader
}

// Upload checks the quota, stores the bytes and records the upload.
func (s *Service) Upload(ctx context.Context, in UploadInput) (FileUpload, error) {
	if strings.TrimSpace(in.FileName) == "" || in.Body == nil {
		return FileUpload{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if in.UploadType == "" {
		in.UploadType = TypeBloodTest
	}
	if err := s.checkQuota(ctx, in.UserID); err != nil {
		return FileUpload{}, err
	}

	br := bufio.NewReaderSize(in.Body, sniffLen)
	sniff, _ := br.Peek(sniffLen)
	contentType := object.DetectContentType(sniff, in.FileName)
	if !IsAllowedContentType(contentType) {
		return FileUpload{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	key, err := object.NewUploadKey(in.UserID, in.FileName)
	if err != nil {
		return FileUpload{}, fmt.Errorf("%w: invalid fileName", ErrInvalidInput)
	}
	size, err := s.Store.Put(ctx, key, contentType, io.LimitReader(br, MaxUploadBytes+1))
	if err != nil {
		s.discard(ctx, key, err)
		return FileUpload{}, err
	}
	if size > MaxUploadBytes {
		s.discard(ctx, key, ErrTooLarge)
		return FileUpload{}, ErrTooLarge
	}

	now := s.now()
	upload := FileUpload{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		FileName:         object.FileNameFromKey(key),
		OriginalFileName: strings.TrimSpace(in.FileName),
		MimeType:         contentType,
		SizeBytes:        size,
		UploadType:       in.UploadType,
		StorageProvider:  s.Store.Provider(),
		StorageKey:       key,
		Status:           StatusUploaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.Create(ctx, upload); err != nil {
		s.discard(ctx, key, err)
		return FileUpload{}, err
	}
	s.consume(ctx, upload)
	return upload, nil
}

// discard removes an object that no upload row will reference.
func (s *Service) discard(ctx context.Context, key string, cause error) {
	cleanupCtx, cancel := context.WithTimeout(telemetry.Detach(ctx), 10*time.Second)
	defer cancel()
	if err := s.Store.Delete(cleanupCtx, key); err != nil {
		telemetry.Warn("uploads.discard_failed", map[string]any{
			"key":        key,
			"cause":      cause.Error(),
			"error":      err.Error(),
			"request_id": telemetry.RequestID(ctx),
		})
	}
}

// PresignInput describes a direct-to-S3 upload request.
type PresignInput struct {
	UserID      string
	FileName    string
	ContentType string
	SizeBytes   int64
}

// PresignResult is the URL the client PUTs the file to.
type PresignResult struct {
	UploadURL        string
	Key              string
	ExpiresInSeconds int64
}

func (s *Service) Presign(ctx context.Context, in PresignInput) (PresignResult, error) {
	if s.Presigner == nil {
		return PresignResult{}, ErrPresignUnavailable
	}
	if strings.TrimSpace(in.FileName) == "" {
		return PresignResult{}, fmt.Errorf("%w: fileName is required", ErrInvalidInput)
	}
	contentType := normalizeContentType(in.ContentType)
	if !IsAllowedContentType(contentType) {
		return PresignResult{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if in.SizeBytes <= 0 {
		return PresignResult{}, fmt.Errorf("%w: sizeBytes must be positive", ErrInvalidInput)
	}
	if in.SizeBytes > MaxUploadBytes {
		return PresignResult{}, ErrTooLarge
	}
	if err := s.checkQuota(ctx, in.UserID); err != nil {
		return PresignResult{}, err
	}

	key, err := object.NewUploadKey(in.UserID, in.FileName)
	if err != nil {
		return PresignResult{}, fmt.Errorf("%w: invalid fileName", ErrInvalidInput)
	}
	url, err := s.Presigner.PresignPut(ctx, key, contentType, presignExpires)
	if err != nil {
		telemetry.Error("uploads.presign.failed", map[string]any{
			"error":       err,
			"key":         key,
			"contentType": contentType,
			"sizeBytes":   in.SizeBytes,
			"request_id":  telemetry.RequestID(ctx),
		})
		return PresignResult{}, err
	}
	return PresignResult{
		UploadURL:        url,
		Key:              key,
		ExpiresInSeconds: int64(presignExpires.Seconds()),
	}, nil
}

// FromS3Input registers an object the client already uploaded via a presigned URL.
type FromS3Input struct {
	UserID           string
	Key              string
	OriginalFileName string
	ContentType      string
	SizeBytes        int64
	UploadType       Type
}

// CreateFromS3 records an object under the caller's prefix. Registering the
// same key twice returns the existing upload.
func (s *Service) CreateFromS3(ctx context.Context, in FromS3Input) (FileUpload, error) {
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return FileUpload{}, fmt.Errorf("%w: s3Key is required", ErrInvalidInput)
	}
	if !OwnsKey(in.UserID, key) {
		return FileUpload{}, fmt.Errorf("%w: s3Key is not owned by caller", ErrInvalidInput)
	}
	if existing, err := s.Repo.GetByStorageKey(ctx, key); err == nil {
		if existing.UserID != in.UserID {
			return FileUpload{}, ErrNotFound
		}
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return FileUpload{}, err
	}

	info, err := s.Store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return FileUpload{}, fmt.Errorf("%w: object does not exist", ErrInvalidInput)
		}
		return FileUpload{}, err
	}
	size := info.SizeBytes
	if size <= 0 {
		size = in.SizeBytes
	}
	if size > MaxUploadBytes {
		return FileUpload{}, ErrTooLarge
	}
	contentType := normalizeContentType(in.ContentType)
	if contentType == "" {
		contentType = normalizeContentType(info.ContentType)
	}
	if !IsAllowedContentType(contentType) {
		return FileUpload{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if err := s.checkQuota(ctx, in.UserID); err != nil {
		return FileUpload{}, err
	}
	if in.UploadType == "" {
		in.UploadType = TypeBloodTest
	}

	original := strings.TrimSpace(in.OriginalFileName)
	if original == "" {
		original = object.FileNameFromKey(key)
	}
	now := s.now()
	upload := FileUpload{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		FileName:         object.FileNameFromKey(key),
		OriginalFileName: original,
		MimeType:         contentType,
		SizeBytes:        size,
		UploadType:       in.UploadType,
		StorageProvider:  s.Store.Provider(),
		StorageKey:       key,
		Status:           StatusUploaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.Create(ctx, upload); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return s.Repo.GetByStorageKey(ctx, key)
		}
		return FileUpload{}, err
	}
	s.consume(ctx, upload)
	return upload, nil
}

// List returns the caller's uploads, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]FileUpload, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// Get returns an upload owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (FileUpload, error) {
	if _, err := uuid.Parse(id); err != nil {
		return FileUpload{}, ErrNotFound
	}
	return s.Repo.GetForUser(ctx, userID, id)
}

// GetByID returns an upload regardless of owner. Used by the worker.
func (s *Service) GetByID(ctx context.Context, id string) (FileUpload, error) {
	if _, err := uuid.Parse(id); err != nil {
		return FileUpload{}, ErrNotFound
	}
	return s.Repo.Get(ctx, id)
}

// Open streams the stored bytes of an upload.
func (s *Service) Open(ctx context.Context, u FileUpload) (io.ReadCloser, error) {
	return s.Store.Get(ctx, u.StorageKey)
}

func (s *Service) SetStatus(ctx context.Context, id string, upd StatusUpdate) error {
	return s.Repo.UpdateStatus(ctx, id, upd)
}

// EnsureInput identifies an upload that downstream rows need to reference.
type EnsureInput struct {
	UploadID   string
	UserID     string
	StorageKey string
	FileName   string
	MimeType   string
	UploadType Type
}

// EnsureUpload returns the existing upload for the id or storage key, or
// creates a fallback row so that result rows can reference it. created is
// true when a fallback row was written.
func (s *Service) EnsureUpload(ctx context.Context, in EnsureInput) (upload FileUpload, created bool, err error) {
	if in.UploadID != "" {
		if _, perr := uuid.Parse(in.UploadID); perr != nil {
			return FileUpload{}, false, fmt.Errorf("%w: invalid upload id", ErrInvalidInput)
		}
		existing, err := s.Repo.Get(ctx, in.UploadID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return FileUpload{}, false, err
		}
	}

	key := strings.TrimSpace(in.StorageKey)
	if key == "" {
		return FileUpload{}, false, fmt.Errorf("%w: storage key required", ErrInvalidInput)
	}
	existing, err := s.Repo.GetByStorageKey(ctx, key)
	if err == nil {
		if in.UserID != "" && existing.UserID != in.UserID {
			return FileUpload{}, false, ErrNotFound
		}
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return FileUpload{}, false, err
	}

	id := in.UploadID
	if id == "" {
		id = uuid.NewString()
	}
	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" {
		fileName = object.FileNameFromKey(key)
	}
	mimeType := normalizeContentType(in.MimeType)
	var size int64
	if info, serr := s.Store.Stat(ctx, key); serr == nil {
		size = info.SizeBytes
		if mimeType == "" {
			mimeType = normalizeContentType(info.ContentType)
		}
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = object.ContentTypeFromName(fileName)
	}
	uploadType := in.UploadType
	if uploadType == "" {
		uploadType = TypeBloodTest
	}

	now := s.now()
	upload = FileUpload{
		ID:               id,
		UserID:           in.UserID,
		FileName:         fileName,
		OriginalFileName: fileName,
		MimeType:         mimeType,
		SizeBytes:        size,
		UploadType:       uploadType,
		StorageProvider:  s.Store.Provider(),
		StorageKey:       key,
		Status:           StatusUploaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.Create(ctx, upload); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			existing, gerr := s.Repo.GetByStorageKey(ctx, key)
			return existing, false, gerr
		}
		return FileUpload{}, false, err
	}

	metrics.IncFallbackUploads()
	telemetry.Warn("uploads.fallback_created", map[string]any{
		"upload_id":   upload.ID,
		"user_id":     upload.UserID,
		"storage_key": key,
		"request_id":  telemetry.RequestID(ctx),
	})
	return upload, true, nil
}

// OwnsKey reports whether key lives under the user's upload prefix.
func OwnsKey(userID, key string) bool {
	prefix := path.Join("uploads", util.HashUserKey(userID)) + "/"
	return strings.HasPrefix(strings.TrimPrefix(key, "/"), prefix)
}

func (s *Service) checkQuota(ctx context.Context, userID string) error {
	if s.Usage == nil {
		return nil
	}
	ok, _, err := s.Usage.CanConsume(ctx, userID, 1)
	if err != nil {
		return err
	}
	if !ok {
		return usage.ErrLimitReached
	}
	return nil
}

// consume records the stored upload against the quota. A lost race with a
// concurrent upload is logged; the stored upload is kept.
func (s *Service) consume(ctx context.Context, u FileUpload) {
	if s.Usage == nil {
		return
	}
	if _, err := s.Usage.Consume(ctx, u.UserID, 1); err != nil {
		telemetry.Warn("uploads.usage_consume_failed", map[string]any{
			"upload_id":  u.ID,
			"user_id":    u.UserID,
			"error":      err,
			"request_id": telemetry.RequestID(ctx),
		})
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeContentType(raw string) string {
	ct := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}
