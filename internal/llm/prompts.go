package llm

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/system.txt
	systemPrompt string
	//go:embed prompts/blood_test.txt
	bloodTestPrompt string
	//go:embed prompts/body_composition.txt
	bodyCompositionPrompt string
	//go:embed prompts/health_insight.txt
	healthInsightPrompt string
	//go:embed prompts/medical_review.txt
	medicalReviewPrompt string
)

const biomarkersPlaceholder = "{{BIOMARKERS}}"

// SystemPrompt is shared by every extraction request.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

// ExtractionPrompt returns the extraction prompt for an upload type and whether
// the type was recognized. Unknown types get the blood test prompt.
func ExtractionPrompt(uploadType string) (string, bool) {
	switch uploadType {
	case "body_composition":
		return strings.TrimSpace(bodyCompositionPrompt), true
	case "blood_test", "other":
		return strings.TrimSpace(bloodTestPrompt), true
	default:
		return strings.TrimSpace(bloodTestPrompt), false
	}
}

// InsightPrompt renders the insight prompt for kind with the biomarker JSON.
func InsightPrompt(kind string, biomarkersJSON string) (string, bool) {
	var tmpl string
	known := true
	switch kind {
	case "medical_review":
		tmpl = medicalReviewPrompt
	case "health_insight":
		tmpl = healthInsightPrompt
	default:
		tmpl = healthInsightPrompt
		known = false
	}
	return strings.TrimSpace(strings.Replace(tmpl, biomarkersPlaceholder, biomarkersJSON, 1)), known
}
