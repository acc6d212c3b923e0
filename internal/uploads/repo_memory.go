package uploads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for dev and tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	uploads map[string]FileUpload
	byKey   map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		uploads: make(map[string]FileUpload),
		byKey:   make(map[string]string),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, u FileUpload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[u.StorageKey]; ok {
		return ErrDuplicateKey
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	r.uploads[u.ID] = u
	r.byKey[u.StorageKey] = u.ID
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (FileUpload, error) {
	if err := ctx.Err(); err != nil {
		return FileUpload{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.uploads[id]
	if !ok {
		return FileUpload{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepo) GetForUser(ctx context.Context, userID, id string) (FileUpload, error) {
	u, err := r.Get(ctx, id)
	if err != nil {
		return FileUpload{}, err
	}
	if u.UserID != userID {
		return FileUpload{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepo) GetByStorageKey(ctx context.Context, key string) (FileUpload, error) {
	if err := ctx.Err(); err != nil {
		return FileUpload{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return FileUpload{}, ErrNotFound
	}
	return r.uploads[id], nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]FileUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []FileUpload
	for _, u := range r.uploads {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []FileUpload{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = upd.Status
	u.ErrorCode = upd.ErrorCode
	u.ErrorMessage = upd.ErrorMessage
	if upd.ProcessedAt != nil {
		t := *upd.ProcessedAt
		u.ProcessedAt = &t
	}
	u.UpdatedAt = time.Now().UTC()
	r.uploads[id] = u
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
