package uploads

import "context"

// Repo persists FileUpload rows.
type Repo interface {
	Create(ctx context.Context, u FileUpload) error
	Get(ctx context.Context, id string) (FileUpload, error)
	GetForUser(ctx context.Context, userID, id string) (FileUpload, error)
	GetByStorageKey(ctx context.Context, key string) (FileUpload, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]FileUpload, error)
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error
}
