package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a storage key has no object behind it.
var ErrNotFound = errors.New("object not found")

// Info describes a stored object.
type Info struct {
	Key         string
	SizeBytes   int64
	ContentType string
}

// ObjectStore is the byte storage behind uploaded documents.
type ObjectStore interface {
	// Put writes r under key and returns the number of bytes stored.
	Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Info, error)
	// Delete removes key. A missing object is not an error.
	Delete(ctx context.Context, key string) error
	// Provider names the backend ("local" or "s3") for FileUpload.storageProvider.
	Provider() string
}

// Presigner issues time-limited direct upload URLs. Only the S3 store implements it.
type Presigner interface {
	PresignPut(ctx context.Context, key string, contentType string, expires time.Duration) (string, error)
}
