package biomarkers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCanonicalizesAndComputesStatus(t *testing.T) {
	in := []Reading{
		{Name: "  hba1c ", ValueText: "6.1", Unit: "%", Confidence: 0.9},
		{Name: "LDL-C", Value: floatPtr(90), Unit: "MG/DL", ReferenceRange: "<100", Confidence: 0.8},
		{Name: "Mystery Marker", ValueText: "12", Unit: "units", Confidence: 0.5},
		{Name: "", ValueText: "1"},
	}
	out := Normalize(in)
	require.Len(t, out, 3)

	a1c := out[0]
	assert.Equal(t, "Hemoglobin A1c", a1c.Name)
	assert.Equal(t, "metabolic", a1c.Category)
	assert.Equal(t, 6.1, *a1c.Value)
	assert.Equal(t, "<5.6", a1c.ReferenceRange)
	assert.Equal(t, StatusHigh, a1c.Status)
	assert.True(t, a1c.IsAbnormal)

	ldl := out[1]
	assert.Equal(t, "LDL Cholesterol", ldl.Name)
	assert.Equal(t, "mg/dL", ldl.Unit)
	assert.Equal(t, StatusNormal, ldl.Status)
	assert.False(t, ldl.IsAbnormal)

	unknown := out[2]
	assert.Equal(t, "Mystery Marker", unknown.Name)
	assert.Equal(t, "units", unknown.Unit)
	assert.Equal(t, StatusUnknown, unknown.Status)
	assert.False(t, unknown.IsAbnormal)
}

func TestNormalizeExplicitFlagBeatsRange(t *testing.T) {
	out := Normalize([]Reading{{Name: "Glucose", Value: floatPtr(85), ReferenceRange: "70-99", Flag: "H"}})
	require.Len(t, out, 1)
	assert.Equal(t, StatusHigh, out[0].Status)
}

func TestNormalizeCriticalFromCatalog(t *testing.T) {
	out := Normalize([]Reading{{Name: "Potassium", Value: floatPtr(7.0), ReferenceRange: "3.5-5.1"}})
	require.Len(t, out, 1)
	assert.Equal(t, StatusCritical, out[0].Status)
	assert.True(t, out[0].IsAbnormal)
}

func TestNormalizeLowAndDefaults(t *testing.T) {
	out := Normalize([]Reading{{Name: "ferritin", Value: floatPtr(12)}})
	require.Len(t, out, 1)
	assert.Equal(t, "Ferritin", out[0].Name)
	assert.Equal(t, "ng/mL", out[0].Unit)
	assert.Equal(t, "30-400", out[0].ReferenceRange)
	assert.Equal(t, StatusLow, out[0].Status)
	assert.Equal(t, "12", out[0].ValueText)
}

func TestNormalizeConfidenceScale(t *testing.T) {
	out := Normalize([]Reading{
		{Name: "TSH", Value: floatPtr(1), Confidence: 87},
		{Name: "ALT", Value: floatPtr(1), Confidence: -1},
	})
	assert.InDelta(t, 0.87, out[0].Confidence, 1e-9)
	assert.Equal(t, 0.0, out[1].Confidence)
}

func TestDedupeKeepsHighestConfidenceFirstSeenOrder(t *testing.T) {
	in := []Reading{
		{Name: "Glucose", ValueText: "100", Confidence: 0.6, Page: 1},
		{Name: "TSH", ValueText: "2.0", Confidence: 0.9, Page: 1},
		{Name: "glucose", ValueText: "101", Confidence: 0.95, Page: 2},
		{Name: "TSH", ValueText: "2.1", Confidence: 0.9, Page: 2},
		{Name: "Sodium", ValueText: "140", Confidence: 0.5, Page: 3},
	}
	out := Dedupe(in)
	require.Len(t, out, 3)
	assert.Equal(t, "glucose", out[0].Name)
	assert.Equal(t, "101", out[0].ValueText)
	assert.Equal(t, "TSH", out[1].Name)
	assert.Equal(t, "2.0", out[1].ValueText, "tie keeps first seen")
	assert.Equal(t, "Sodium", out[2].Name)
}

func TestCatalogRejectsConflictingAliases(t *testing.T) {
	_, err := ParseCatalog([]byte(`
biomarkers:
  - name: A
    aliases: [x]
  - name: B
    aliases: [x]
`))
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	for _, raw := range []string{"2024-03-02", "03/02/2024", "Mar 2, 2024", "02-Mar-2024"} {
		got, ok := ParseDate(raw)
		require.True(t, ok, raw)
		assert.Equal(t, "2024-03-02", got.Format("2006-01-02"), raw)
	}
	_, ok := ParseDate("last tuesday")
	assert.False(t, ok)
}
