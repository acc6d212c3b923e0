package bloodtests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelpharm-backend/internal/biomarkers"
)

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func value(v float64) *float64 { return &v }

func TestCreateResultAndValues(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	svc.Now = fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	res, err := svc.CreateResult(ctx, ResultInput{
		UserID:   "u1",
		UploadID: "up1",
		Engine:   "claude",
		Report: biomarkers.Report{
			TestDate: "2025-01-01",
			LabName:  "Quest",
			Readings: []biomarkers.Reading{{Name: "Glucose", Value: value(95)}},
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Glucose","value":95,"valueText":"","unit":"","status":"","isAbnormal":false,"confidence":0}]`, string(res.Biomarkers))

	v, err := svc.AddValue(ctx, res, biomarkers.Reading{Name: "Glucose", Value: value(95), Unit: "mg/dL"})
	require.NoError(t, err)
	assert.Equal(t, biomarkers.StatusUnknown, v.Status)

	_, err = svc.AddValue(ctx, res, biomarkers.Reading{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, values, err := svc.Get(ctx, "u1", res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quest", got.LabName)
	require.Len(t, values, 1)

	_, _, err = svc.Get(ctx, "u2", res.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = svc.Get(ctx, "u1", "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateResultMissingUpload(t *testing.T) {
	repo := NewMemoryRepo()
	repo.UploadExists = func(context.Context, string) bool { return false }
	svc := NewService(repo)

	_, err := svc.CreateResult(context.Background(), ResultInput{UserID: "u1", UploadID: "gone", Engine: "pattern"})
	assert.ErrorIs(t, err, ErrMissingUpload)
}

func TestLatestAndHistory(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	svc.Now = fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, glucose := range []float64{90, 101, 97} {
		res, err := svc.CreateResult(ctx, ResultInput{UserID: "u1", UploadID: "up", Engine: "pattern"})
		require.NoError(t, err)
		_, err = svc.AddValue(ctx, res, biomarkers.Reading{Name: "Glucose", Value: value(glucose)})
		require.NoError(t, err)
		_, err = svc.AddValue(ctx, res, biomarkers.Reading{Name: "Sodium", Value: value(140)})
		require.NoError(t, err)
	}

	latest, err := svc.Latest(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "Glucose", latest[0].Name)
	assert.Equal(t, 97.0, *latest[0].Value)

	history, err := svc.History(ctx, "u1", "glucose", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 97.0, *history[0].Value)
	assert.Equal(t, 101.0, *history[1].Value)

	_, err = svc.History(ctx, "u1", "  ", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
