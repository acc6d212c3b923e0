package bloodtests

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	results map[string]Result
	values  []Value

	// UploadExists stands in for the upload foreign key. Nil accepts every id.
	UploadExists func(ctx context.Context, uploadID string) bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{results: make(map[string]Result)}
}

func (m *MemoryRepo) CreateResult(ctx context.Context, r Result) error {
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

func (m *MemoryRepo) CreateValue(ctx context.Context, v Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[v.ResultID]; !ok {
		return ErrNotFound
	}
	m.values = append(m.values, v)
	return nil
}

func (m *MemoryRepo) GetResult(ctx context.Context, userID, id string) (Result, error) {
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

func (m *MemoryRepo) ListResults(ctx context.Context, userID string, limit, offset int) ([]Result, error) {
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
	return page(out, limit, offset), nil
}

func (m *MemoryRepo) ListValues(ctx context.Context, resultID string) ([]Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Value{}
	for _, v := range m.values {
		if v.ResultID == resultID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *MemoryRepo) LatestValues(ctx context.Context, userID string) ([]Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	latest := map[string]Value{}
	for _, v := range m.values {
		if v.UserID != userID {
			continue
		}
		key := strings.ToLower(v.Name)
		if cur, ok := latest[key]; !ok || !v.CreatedAt.Before(cur.CreatedAt) {
			latest[key] = v
		}
	}
	m.mu.RUnlock()
	out := make([]Value, 0, len(latest))
	for _, v := range latest {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (m *MemoryRepo) History(ctx context.Context, userID, name string, limit int) ([]Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := []Value{}
	for _, v := range m.values {
		if v.UserID == userID && strings.EqualFold(v.Name, name) {
			out = append(out, v)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

var _ Repo = (*MemoryRepo)(nil)
