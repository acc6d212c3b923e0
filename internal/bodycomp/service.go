package bodycomp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// SaveInput is one parsed scan to persist.
type SaveInput struct {
	UserID       string
	UploadID     string
	Engine       string
	Measurements Measurements
	Raw          string
}

// Save stores a scan. The raw engine output is kept when it is valid JSON.
func (s *Service) Save(ctx context.Context, in SaveInput) (Result, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.UploadID) == "" {
		return Result{}, fmt.Errorf("%w: user and upload ids are required", ErrInvalidInput)
	}
	if in.Measurements.Count() == 0 {
		return Result{}, ErrNoData
	}
	res := Result{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		UploadID:     in.UploadID,
		Engine:       in.Engine,
		Measurements: in.Measurements,
		CreatedAt:    time.Now().UTC(),
	}
	if raw := strings.TrimSpace(in.Raw); raw != "" && json.Valid([]byte(raw)) {
		res.Raw = json.RawMessage(raw)
	} else if raw != "" {
		encoded, _ := json.Marshal(map[string]string{"text": raw})
		res.Raw = encoded
	}
	if err := s.Repo.Create(ctx, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (Result, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Result{}, ErrNotFound
	}
	return s.Repo.GetForUser(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Result, error) {
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}
