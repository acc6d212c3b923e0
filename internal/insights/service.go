package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pixelpharm-backend/internal/biomarkers"
	"pixelpharm-backend/internal/bloodtests"
	"pixelpharm-backend/internal/llm"
	"pixelpharm-backend/internal/shared/telemetry"
)

const insightMaxTokens = 2048

// ValueSource supplies the latest biomarker values of a user.
type ValueSource interface {
	Latest(ctx context.Context, userID string) ([]bloodtests.Value, error)
}

type Service struct {
	Repo   Repo
	Values ValueSource
	LLM    llm.Client
	Model  string
	Now    func() time.Time
}

type promptValue struct {
	Name           string   `json:"name"`
	Value          *float64 `json:"value,omitempty"`
	ValueText      string   `json:"valueText,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	ReferenceRange string   `json:"referenceRange,omitempty"`
	Status         string   `json:"status"`
	Category       string   `json:"category,omitempty"`
	RecordedAt     string   `json:"recordedAt"`
}

type replyHeader struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Generate summarizes the user's latest biomarker values with the LLM and
// stores the reply.
func (s *Service) Generate(ctx context.Context, userID string, kind Kind) (Insight, error) {
	if strings.TrimSpace(userID) == "" {
		return Insight{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	values, err := s.Values.Latest(ctx, userID)
	if err != nil {
		return Insight{}, err
	}
	if len(values) == 0 {
		return Insight{}, ErrNoData
	}

	payload := make([]promptValue, 0, len(values))
	for _, v := range values {
		payload = append(payload, promptValue{
			Name:           v.Name,
			Value:          v.Value,
			ValueText:      v.ValueText,
			Unit:           v.Unit,
			ReferenceRange: v.ReferenceRange,
			Status:         string(v.Status),
			Category:       v.Category,
			RecordedAt:     v.CreatedAt.UTC().Format("2006-01-02"),
		})
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return Insight{}, fmt.Errorf("encode biomarkers: %w", err)
	}
	prompt, _ := llm.InsightPrompt(string(kind), string(encoded))

	started := time.Now()
	resp, err := s.LLM.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: insightMaxTokens})
	if err != nil {
		return Insight{}, fmt.Errorf("insight completion: %w", err)
	}
	raw, err := biomarkers.ExtractJSON(resp.Text)
	if err != nil {
		return Insight{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	var header replyHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return Insight{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	model := resp.Model
	if model == "" {
		model = s.Model
	}
	insight := Insight{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Title:     strings.TrimSpace(header.Title),
		Summary:   strings.TrimSpace(header.Summary),
		Payload:   raw,
		Model:     model,
		CreatedAt: s.now(),
	}
	if insight.Title == "" {
		insight.Title = defaultTitle(kind)
	}
	if err := s.Repo.Create(ctx, insight); err != nil {
		return Insight{}, err
	}
	telemetry.Info("insights.generated", map[string]any{
		"request_id":  telemetry.RequestID(ctx),
		"user_id":     userID,
		"insight_id":  insight.ID,
		"kind":        kind,
		"biomarkers":  len(values),
		"model":       model,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return insight, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (Insight, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Insight{}, ErrNotFound
	}
	return s.Repo.GetForUser(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID string, kind Kind, limit, offset int) ([]Insight, error) {
	return s.Repo.ListByUser(ctx, userID, kind, limit, offset)
}

func defaultTitle(kind Kind) string {
	if kind == KindMedicalReview {
		return "Medical review"
	}
	return "Health insight"
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
