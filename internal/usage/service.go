package usage

import "context"

type store interface {
	EnsurePeriod(ctx context.Context, userID string) (Usage, error)
	Consume(ctx context.Context, userID string, n int) (Usage, error)
	Reset(ctx context.Context, userID string) (Usage, error)
	SetPlan(ctx context.Context, userID, plan string) (Usage, error)
}

// Service manages upload quotas via an underlying store.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// EnsurePeriod returns current usage, starting a new window if the old one ended.
func (s *Service) EnsurePeriod(ctx context.Context, userID string) (Usage, error) {
	return s.store.EnsurePeriod(ctx, userID)
}

// CanConsume reports whether the user can consume n uploads.
func (s *Service) CanConsume(ctx context.Context, userID string, n int) (bool, Usage, error) {
	u, err := s.store.EnsurePeriod(ctx, userID)
	if err != nil {
		return false, Usage{}, err
	}
	if n <= 0 {
		return true, u, nil
	}
	return u.Used+n <= u.Limit, u, nil
}

// Consume increments usage by n, failing with ErrLimitReached past the limit.
func (s *Service) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	return s.store.Consume(ctx, userID, n)
}

// Reset zeroes usage and starts a new window.
func (s *Service) Reset(ctx context.Context, userID string) (Usage, error) {
	return s.store.Reset(ctx, userID)
}

// SetPlan switches the user's plan and its limit. Used is kept.
func (s *Service) SetPlan(ctx context.Context, userID, plan string) (Usage, error) {
	return s.store.SetPlan(ctx, userID, plan)
}

// SyncPlan applies the plan carried by the caller's identity.
func (s *Service) SyncPlan(ctx context.Context, userID, plan string) error {
	_, err := s.store.SetPlan(ctx, userID, plan)
	return err
}
