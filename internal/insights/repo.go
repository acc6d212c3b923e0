package insights

import "context"

type Repo interface {
	Create(ctx context.Context, in Insight) error
	GetForUser(ctx context.Context, userID, id string) (Insight, error)
	// ListByUser returns newest first. An empty kind lists every kind.
	ListByUser(ctx context.Context, userID string, kind Kind, limit, offset int) ([]Insight, error)
}
