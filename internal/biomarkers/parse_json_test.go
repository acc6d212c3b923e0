package biomarkers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONWholeObject(t *testing.T) {
	report, err := ParseJSON(`{"testDate":"2024-03-02","labName":"Quest","biomarkers":[
		{"name":"Glucose","value":105,"unit":"mg/dL","referenceRange":"70-99","status":"high","confidence":0.97},
		{"name":"TSH","value":"2.10","unit":"mIU/L"}
	]}`)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02", report.TestDate)
	assert.Equal(t, "Quest", report.LabName)
	require.Len(t, report.Readings, 2)

	glucose := report.Readings[0]
	assert.Equal(t, "Glucose", glucose.Name)
	assert.Equal(t, 105.0, *glucose.Value)
	assert.Equal(t, "high", glucose.Flag)
	assert.Equal(t, 0.97, glucose.Confidence)

	tsh := report.Readings[1]
	assert.Equal(t, "2.10", tsh.ValueText)
	assert.InDelta(t, 2.1, *tsh.Value, 1e-9)
	assert.Equal(t, DefaultJSONConfidence, tsh.Confidence)
}

func TestParseJSONFencedBlock(t *testing.T) {
	reply := "Here are the results:\n```json\n{\"biomarkers\":[{\"name\":\"Ferritin\",\"value\":\"<5\",\"unit\":\"ng/mL\"}]}\n```\nLet me know if you need more."
	report, err := ParseJSON(reply)
	require.NoError(t, err)
	require.Len(t, report.Readings, 1)
	assert.Equal(t, "<5", report.Readings[0].ValueText)
	assert.Equal(t, "<", report.Readings[0].Comparator)
	assert.Equal(t, 5.0, *report.Readings[0].Value)
}

func TestParseJSONBareArrayInProse(t *testing.T) {
	reply := `Extracted: [{"biomarker":"Sodium","value":140,"unit":"mmol/L"}] (end)`
	report, err := ParseJSON(reply)
	require.NoError(t, err)
	require.Len(t, report.Readings, 1)
	assert.Equal(t, "Sodium", report.Readings[0].Name)
}

func TestParseJSONSkipsNamelessEntries(t *testing.T) {
	report, err := ParseJSON(`[{"value":1},{"name":" ALT ","value":30}]`)
	require.NoError(t, err)
	require.Len(t, report.Readings, 1)
	assert.Equal(t, "ALT", report.Readings[0].Name)
}

func TestParseJSONNoJSON(t *testing.T) {
	for _, reply := range []string{"", "I could not read this document.", "{not json}", "```\nstill not json\n```"} {
		_, err := ParseJSON(reply)
		assert.ErrorIs(t, err, ErrNoJSON, "reply %q", reply)
	}
}

func TestExtractJSON(t *testing.T) {
	raw, err := ExtractJSON("```json\n{\"title\":\"ok\"}\n```")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"ok"}`, string(raw))
}
