package users

import (
	"context"
	"errors"
	"strings"
)

// PlanSyncer receives the plan carried by the caller's token.
type PlanSyncer interface {
	SyncPlan(ctx context.Context, userID, plan string) error
}

type Service struct {
	Repo  Repo
	Plans PlanSyncer
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// UpsertFromClaims persists the identity carried by a verified bearer token.
func (s *Service) UpsertFromClaims(ctx context.Context, user User) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" {
		return User{}, errors.New("user id is required")
	}
	user.Email = strings.TrimSpace(user.Email)
	user.FullName = strings.TrimSpace(user.FullName)
	user.Plan = strings.ToLower(strings.TrimSpace(user.Plan))
	if user.Plan == "" {
		user.Plan = DefaultPlan
	}
	saved, err := s.Repo.Upsert(ctx, user)
	if err != nil {
		return User{}, err
	}
	if s.Plans != nil {
		if err := s.Plans.SyncPlan(ctx, saved.ID, saved.Plan); err != nil {
			return User{}, err
		}
	}
	return saved, nil
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, errors.New("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}
