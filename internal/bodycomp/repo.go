package bodycomp

import "context"

type Repo interface {
	Create(ctx context.Context, r Result) error
	GetForUser(ctx context.Context, userID, id string) (Result, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Result, error)
}
