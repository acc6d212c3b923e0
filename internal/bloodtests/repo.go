package bloodtests

import "context"

type Repo interface {
	CreateResult(ctx context.Context, r Result) error
	CreateValue(ctx context.Context, v Value) error
	GetResult(ctx context.Context, userID, id string) (Result, error)
	ListResults(ctx context.Context, userID string, limit, offset int) ([]Result, error)
	ListValues(ctx context.Context, resultID string) ([]Value, error)
	// LatestValues returns the newest value per biomarker name.
	LatestValues(ctx context.Context, userID string) ([]Value, error)
	// History returns values for one biomarker, newest first.
	History(ctx context.Context, userID, name string, limit int) ([]Value, error)
}
