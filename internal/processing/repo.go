package processing

import "context"

// Repo stores audit rows for engine invocations.
type Repo interface {
	Create(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	ListByUpload(ctx context.Context, uploadID string) ([]Record, error)
}
