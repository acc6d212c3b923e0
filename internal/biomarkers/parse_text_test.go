package biomarkers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTextLines(t *testing.T) {
	cases := []struct {
		name      string
		line      string
		wantName  string
		wantValue float64
		wantText  string
		wantUnit  string
		wantRange string
		wantFlag  string
	}{
		{
			name: "value unit range flag", line: "Glucose 105 mg/dL 70-99 H",
			wantName: "Glucose", wantValue: 105, wantText: "105", wantUnit: "mg/dL", wantRange: "70-99", wantFlag: "H",
		},
		{
			name: "thousands separator", line: "WBC 6,500 /uL 4,500 - 11,000",
			wantName: "White Blood Cells", wantValue: 6500, wantText: "6,500", wantUnit: "/uL", wantRange: "4,500 - 11,000",
		},
		{
			name: "to range", line: "Hemoglobin A1c 5.9 % 4.0 to 5.6",
			wantName: "Hemoglobin A1c", wantValue: 5.9, wantText: "5.9", wantUnit: "%", wantRange: "4.0 to 5.6",
		},
		{
			name: "upper bound and word flag", line: "LDL Cholesterol: 130 mg/dL (<100) High",
			wantName: "LDL Cholesterol", wantValue: 130, wantText: "130", wantUnit: "mg/dL", wantRange: "<100", wantFlag: "High",
		},
		{
			name: "comparator value", line: "C-Reactive Protein <0.5 mg/L <3.0",
			wantName: "C-Reactive Protein", wantValue: 0.5, wantText: "<0.5", wantUnit: "mg/L", wantRange: "<3.0",
		},
		{
			name: "qualifier after comma", line: "Vitamin D, 25-Hydroxy 18 ng/mL 30-100 L",
			wantName: "Vitamin D", wantValue: 18, wantText: "18", wantUnit: "ng/mL", wantRange: "30-100", wantFlag: "L",
		},
		{
			name: "flag in unit position", line: "Triglycerides 180 H",
			wantName: "Triglycerides", wantValue: 180, wantText: "180", wantFlag: "H",
		},
		{
			name: "unit after range", line: "Sodium 140 135-145 mmol/L",
			wantName: "Sodium", wantValue: 140, wantText: "140", wantUnit: "mmol/L", wantRange: "135-145",
		},
		{
			name: "scientific unit", line: "Platelets 250 x10^3/uL 150-450",
			wantName: "Platelets", wantValue: 250, wantText: "250", wantUnit: "x10^3/uL", wantRange: "150-450",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			readings := ParseText(tc.line, 2)
			require.Len(t, readings, 1)
			r := readings[0]
			assert.Equal(t, tc.wantName, r.Name)
			require.NotNil(t, r.Value)
			assert.InDelta(t, tc.wantValue, *r.Value, 1e-9)
			assert.Equal(t, tc.wantText, r.ValueText)
			assert.Equal(t, tc.wantUnit, r.Unit)
			assert.Equal(t, tc.wantRange, r.ReferenceRange)
			assert.Equal(t, tc.wantFlag, r.Flag)
			assert.Equal(t, 2, r.Page)
			assert.Equal(t, PatternConfidence, r.Confidence)
		})
	}
}

func TestParseTextLongestAliasWins(t *testing.T) {
	readings := ParseText("HDL Cholesterol 55 mg/dL >40\nTotal Cholesterol 180 mg/dL <200", 1)
	require.Len(t, readings, 2)
	assert.Equal(t, "HDL Cholesterol", readings[0].Name)
	assert.Equal(t, "Total Cholesterol", readings[1].Name)
}

func TestParseTextRequiresWordBoundary(t *testing.T) {
	// "ALT" inside "SALT" and "VLDL" must not match
	readings := ParseText("SALT 12 mg\nVLDL 30 mg/dL", 1)
	assert.Empty(t, readings)
}

func TestParseTextSkipsLinesWithoutValues(t *testing.T) {
	text := "COMPREHENSIVE METABOLIC PANEL\nGlucose\nGlucose (fasting) 92 mg/dL 70-99\n\nPatient: Jane"
	readings := ParseText(text, 1)
	require.Len(t, readings, 1)
	assert.Equal(t, "Glucose", readings[0].Name)
	assert.InDelta(t, 92, *readings[0].Value, 1e-9)
}

func TestParseTextOneReadingPerLine(t *testing.T) {
	readings := ParseText("Sodium 140 mmol/L Potassium 4.1 mmol/L", 1)
	require.Len(t, readings, 1)
}

func TestParseRange(t *testing.T) {
	lo, hi, ok := ParseRange("3.5 - 5.1")
	require.True(t, ok)
	assert.Equal(t, 3.5, *lo)
	assert.Equal(t, 5.1, *hi)

	lo, hi, ok = ParseRange("<200")
	require.True(t, ok)
	assert.Nil(t, lo)
	assert.Equal(t, 200.0, *hi)

	lo, hi, ok = ParseRange("> 40")
	require.True(t, ok)
	assert.Equal(t, 40.0, *lo)
	assert.Nil(t, hi)

	_, _, ok = ParseRange("see note")
	assert.False(t, ok)

	assert.Equal(t, "70-99", FormatRange(floatPtr(70), floatPtr(99)))
	assert.Equal(t, "<5.6", FormatRange(nil, floatPtr(5.6)))
}
