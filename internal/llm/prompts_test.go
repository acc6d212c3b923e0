package llm

import (
	"strings"
	"testing"
)

func TestExtractionPromptByType(t *testing.T) {
	blood, ok := ExtractionPrompt("blood_test")
	if !ok || !strings.Contains(blood, "\"biomarkers\"") {
		t.Fatalf("unexpected blood test prompt")
	}
	body, ok := ExtractionPrompt("body_composition")
	if !ok || !strings.Contains(body, "bodyFatPercent") {
		t.Fatalf("unexpected body composition prompt")
	}
	fallback, ok := ExtractionPrompt("xray")
	if ok || fallback != blood {
		t.Fatalf("expected blood test fallback for unknown type")
	}
}

func TestInsightPromptInjectsBiomarkers(t *testing.T) {
	p, ok := InsightPrompt("medical_review", `[{"name":"Glucose"}]`)
	if !ok {
		t.Fatalf("expected medical_review to be known")
	}
	if strings.Contains(p, biomarkersPlaceholder) || !strings.Contains(p, `"Glucose"`) {
		t.Fatalf("placeholder not replaced: %s", p)
	}
}
