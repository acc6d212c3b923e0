package insights

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelpharm-backend/internal/biomarkers"
	"pixelpharm-backend/internal/bloodtests"
	"pixelpharm-backend/internal/llm"
)

type staticValues []bloodtests.Value

func (s staticValues) Latest(context.Context, string) ([]bloodtests.Value, error) {
	return s, nil
}

type scriptedLLM struct {
	text string
	err  error
	req  llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.req = req
	return llm.Response{Text: s.text, Model: "claude-test"}, s.err
}

func glucose() bloodtests.Value {
	v := 105.0
	return bloodtests.Value{
		Name:      "Glucose",
		Value:     &v,
		Unit:      "mg/dL",
		Status:    biomarkers.StatusHigh,
		CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerateStoresParsedReply(t *testing.T) {
	model := &scriptedLLM{text: "Sure:\n```json\n{\"title\":\"Mostly good\",\"summary\":\"Glucose is a bit high.\",\"findings\":[],\"recommendations\":[\"Recheck fasting glucose\"]}\n```"}
	svc := &Service{Repo: NewMemoryRepo(), Values: staticValues{glucose()}, LLM: model}

	insight, err := svc.Generate(context.Background(), "u1", KindMedicalReview)
	require.NoError(t, err)
	assert.Equal(t, "Mostly good", insight.Title)
	assert.Equal(t, KindMedicalReview, insight.Kind)
	assert.Equal(t, "claude-test", insight.Model)
	assert.Contains(t, model.req.Prompt, `"name": "Glucose"`)
	assert.NotContains(t, model.req.Prompt, "{{BIOMARKERS}}")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(insight.Payload, &payload))
	assert.Len(t, payload["recommendations"], 1)

	got, err := svc.Get(context.Background(), "u1", insight.ID)
	require.NoError(t, err)
	assert.Equal(t, insight.ID, got.ID)

	list, err := svc.List(context.Background(), "u1", KindHealthInsight, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGenerateWithoutValues(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Values: staticValues{}, LLM: &scriptedLLM{}}
	_, err := svc.Generate(context.Background(), "u1", KindHealthInsight)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGenerateUnparseableReply(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Values: staticValues{glucose()}, LLM: &scriptedLLM{text: "I cannot help with that."}}
	_, err := svc.Generate(context.Background(), "u1", KindHealthInsight)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestGenerateDefaultsTitle(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Values: staticValues{glucose()}, LLM: &scriptedLLM{text: `{"summary":"ok"}`}, Model: "fallback"}
	insight, err := svc.Generate(context.Background(), "u1", KindHealthInsight)
	require.NoError(t, err)
	assert.Equal(t, "Health insight", insight.Title)
}

func TestGenerateLLMError(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Values: staticValues{glucose()}, LLM: llm.NopClient{}}
	_, err := svc.Generate(context.Background(), "u1", KindHealthInsight)
	assert.True(t, errors.Is(err, llm.ErrNotConfigured))
}

func TestParseKind(t *testing.T) {
	for raw, want := range map[string]Kind{"": KindHealthInsight, "Medical-Review": KindMedicalReview, "insight": KindHealthInsight} {
		got, ok := ParseKind(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseKind(strings.Repeat("x", 3))
	assert.False(t, ok)
}
