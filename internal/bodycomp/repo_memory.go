package bodycomp

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	results map[string]Result

	// UploadExists stands in for the upload foreign key. Nil accepts every id.
	UploadExists func(ctx context.Context, uploadID string) bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{results: make(map[string]Result)}
}

func (m *MemoryRepo) Create(ctx context.Context, r Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.UploadExists != nil && !m.UploadExists(ctx, r.UploadID) {
		return ErrMissingUpload
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ID] = r
	return nil
}

func (m *MemoryRepo) GetForUser(ctx context.Context, userID, id string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok || r.UserID != userID {
		return Result{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := []Result{}
	for _, r := range m.results {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []Result{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
