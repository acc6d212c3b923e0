package bloodtests

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pixelpharm-backend/internal/biomarkers"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type Service struct {
	Repo Repo
	Now  func() time.Time
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo, Now: time.Now}
}

// ResultInput is the header of one processed report.
type ResultInput struct {
	UserID   string
	UploadID string
	Engine   string
	Report   biomarkers.Report
}

// CreateResult stores the report header and the raw readings blob. Values are
// written separately with AddValue so that one bad reading never loses the rest.
func (s *Service) CreateResult(ctx context.Context, in ResultInput) (Result, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.UploadID) == "" {
		return Result{}, fmt.Errorf("%w: user and upload ids are required", ErrInvalidInput)
	}
	readings := in.Report.Readings
	if readings == nil {
		readings = []biomarkers.Reading{}
	}
	blob, err := json.Marshal(readings)
	if err != nil {
		return Result{}, fmt.Errorf("encode readings: %w", err)
	}
	res := Result{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		UploadID:   in.UploadID,
		TestDate:   in.Report.TestDate,
		LabName:    in.Report.LabName,
		Engine:     in.Engine,
		Biomarkers: blob,
		CreatedAt:  s.now(),
	}
	if err := s.Repo.CreateResult(ctx, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// AddValue stores one normalized reading under res.
func (s *Service) AddValue(ctx context.Context, res Result, r biomarkers.Reading) (Value, error) {
	if strings.TrimSpace(r.Name) == "" {
		return Value{}, fmt.Errorf("%w: biomarker name is required", ErrInvalidInput)
	}
	v := Value{
		ID:             uuid.NewString(),
		ResultID:       res.ID,
		UserID:         res.UserID,
		Name:           r.Name,
		Value:          r.Value,
		ValueText:      r.ValueText,
		Unit:           r.Unit,
		ReferenceRange: r.ReferenceRange,
		RefLow:         r.RefLow,
		RefHigh:        r.RefHigh,
		Status:         r.Status,
		IsAbnormal:     r.IsAbnormal,
		Confidence:     r.Confidence,
		Page:           r.Page,
		Category:       r.Category,
		CreatedAt:      s.now(),
	}
	if v.Status == "" {
		v.Status = biomarkers.StatusUnknown
	}
	if err := s.Repo.CreateValue(ctx, v); err != nil {
		return Value{}, err
	}
	return v, nil
}

// Get returns a result and its values.
func (s *Service) Get(ctx context.Context, userID, id string) (Result, []Value, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Result{}, nil, ErrNotFound
	}
	res, err := s.Repo.GetResult(ctx, userID, id)
	if err != nil {
		return Result{}, nil, err
	}
	values, err := s.Repo.ListValues(ctx, res.ID)
	if err != nil {
		return Result{}, nil, err
	}
	return res, values, nil
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Result, error) {
	return s.Repo.ListResults(ctx, userID, limit, offset)
}

func (s *Service) Latest(ctx context.Context, userID string) ([]Value, error) {
	return s.Repo.LatestValues(ctx, userID)
}

// History returns the values recorded for one biomarker. Aliases resolve to
// the catalog name first.
func (s *Service) History(ctx context.Context, userID, name string, limit int) ([]Value, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: biomarker name is required", ErrInvalidInput)
	}
	if entry, ok := biomarkers.DefaultCatalog().Lookup(name); ok {
		name = entry.Name
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.Repo.History(ctx, userID, name, limit)
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
