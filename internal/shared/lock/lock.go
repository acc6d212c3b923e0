package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("lock already held")

// Locker hands out expiring exclusive locks keyed by name.
type Locker interface {
	// TryLock acquires key for at most ttl. It never blocks waiting for a holder.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Memory is an in-process Locker for single-instance deployments and tests.
type Memory struct {
	mu    sync.Mutex
	held  map[string]memoryLease
	clock func() time.Time
}

type memoryLease struct {
	token   string
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{held: map[string]memoryLease{}, clock: time.Now}
}

func (m *Memory) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if lease, ok := m.held[key]; ok && now.Before(lease.expires) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	m.held[key] = memoryLease{token: token, expires: now.Add(ttl)}
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if lease, ok := m.held[key]; ok && lease.token == token {
			delete(m.held, key)
		}
		return nil
	}, nil
}
