package insights

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu       sync.RWMutex
	insights map[string]Insight
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{insights: make(map[string]Insight)}
}

func (m *MemoryRepo) Create(ctx context.Context, in Insight) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights[in.ID] = in
	return nil
}

func (m *MemoryRepo) GetForUser(ctx context.Context, userID, id string) (Insight, error) {
	if err := ctx.Err(); err != nil {
		return Insight{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.insights[id]
	if !ok || in.UserID != userID {
		return Insight{}, ErrNotFound
	}
	return in, nil
}

func (m *MemoryRepo) ListByUser(ctx context.Context, userID string, kind Kind, limit, offset int) ([]Insight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := []Insight{}
	for _, in := range m.insights {
		if in.UserID == userID && (kind == "" || in.Kind == kind) {
			out = append(out, in)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []Insight{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
