package usage

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]Usage
	now  func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		data: make(map[string]Usage),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// current must be called with mu held.
func (s *memoryStore) current(userID string) Usage {
	now := s.now()
	u, ok := s.data[userID]
	if !ok {
		u = newUsage(PlanFree, now)
	}
	u, _ = rollover(u, now)
	s.data[userID] = u
	return u
}

func (s *memoryStore) EnsurePeriod(ctx context.Context, userID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(userID), nil
}

func (s *memoryStore) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	if n <= 0 {
		return u, nil
	}
	if u.Used+n > u.Limit {
		return Usage{}, ErrLimitReached
	}
	u.Used += n
	s.data[userID] = u
	return u, nil
}

func (s *memoryStore) Reset(ctx context.Context, userID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	u.Used = 0
	u.ResetsAt = s.now().Add(window)
	s.data[userID] = u
	return u, nil
}

func (s *memoryStore) SetPlan(ctx context.Context, userID, plan string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	u.Plan = NormalizePlan(plan)
	u.Limit = LimitFor(u.Plan)
	s.data[userID] = u
	return u, nil
}
