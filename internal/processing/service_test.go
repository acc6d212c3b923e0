package processing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelpharm-backend/internal/bloodtests"
	"pixelpharm-backend/internal/bodycomp"
	"pixelpharm-backend/internal/ocr"
	"pixelpharm-backend/internal/ocr/pattern"
	"pixelpharm-backend/internal/queue"
	"pixelpharm-backend/internal/shared/metrics"
	"pixelpharm-backend/internal/shared/lock"
	"pixelpharm-backend/internal/shared/storage/object/local"
	"pixelpharm-backend/internal/uploads"
)

type fixture struct {
	svc       *Service
	uploads   *uploads.Service
	bloodRepo *bloodtests.MemoryRepo
	audit     *MemoryRepo
	locker    *lock.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	up := &uploads.Service{Store: local.New(t.TempDir()), Repo: uploads.NewMemoryRepo()}
	bloodRepo := bloodtests.NewMemoryRepo()
	audit := NewMemoryRepo()
	locker := lock.NewMemory()
	svc := &Service{
		Uploads: up,
		Blood:   bloodtests.NewService(bloodRepo),
		Body:    bodycomp.NewService(bodycomp.NewMemoryRepo()),
		Repo:    audit,
		Locker:  locker,
		Go:      func(f func()) { f() },
	}
	svc.Extractor = ocr.NewRouter([]string{"pattern"}, map[string]ocr.Engine{"pattern": pattern.New()}, time.Second, svc.RecordAttempt)
	return &fixture{svc: svc, uploads: up, bloodRepo: bloodRepo, audit: audit, locker: locker}
}

func (f *fixture) upload(t *testing.T, text string, typ uploads.Type) uploads.FileUpload {
	t.Helper()
	u, err := f.uploads.Upload(context.Background(), uploads.UploadInput{
		UserID:     "u1",
		FileName:   "labs.txt",
		UploadType: typ,
		Body:       strings.NewReader(text),
	})
	require.NoError(t, err)
	return u
}

type stubExtractor struct {
	out ocr.Output
	err error
}

func (s stubExtractor) Extract(context.Context, ocr.Input) (ocr.Output, error) {
	return s.out, s.err
}

// failingValues rejects the first value insert.
type failingValues struct {
	*bloodtests.MemoryRepo
	calls atomic.Int32
}

func (r *failingValues) CreateValue(ctx context.Context, v bloodtests.Value) error {
	if r.calls.Add(1) == 1 {
		return errors.New("value rejected")
	}
	return r.MemoryRepo.CreateValue(ctx, v)
}

type recordingQueue struct {
	msgs []queue.Message
	err  error
}

func (q *recordingQueue) Send(_ context.Context, msg queue.Message) error {
	q.msgs = append(q.msgs, msg)
	return q.err
}

func TestProcessUploadStoresDedupedReadings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "Glucose 105 mg/dL 70-99 H\nGlucose 101 mg/dL 70-99\nSodium 140 135-145 mmol/L\n", uploads.TypeBloodTest)

	require.NoError(t, f.svc.ProcessUpload(ctx, up.ID))

	got, err := f.uploads.GetByID(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, uploads.StatusCompleted, got.Status)
	assert.NotNil(t, got.ProcessedAt)

	latest, err := f.svc.Blood.Latest(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "Glucose", latest[0].Name)
	assert.Equal(t, 105.0, *latest[0].Value)

	records, err := f.svc.Attempts(ctx, "u1", up.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ocr.OutcomeSucceeded, records[0].Status)
	assert.Equal(t, "pattern", records[0].Engine)

	rec, err := f.svc.Record(ctx, "u1", records[0].ID)
	require.NoError(t, err)
	assert.Contains(t, rec.RawResponse, "Sodium")
	_, err = f.svc.Record(ctx, "u2", records[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// A completed upload is not processed twice.
	require.NoError(t, f.svc.ProcessUpload(ctx, up.ID))
	records, _ = f.svc.Attempts(ctx, "u1", up.ID)
	assert.Len(t, records, 1)
}

func TestProcessUploadWithoutReadingsFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "nothing useful here", uploads.TypeBloodTest)

	err := f.svc.ProcessUpload(ctx, up.ID)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, CodeNoReadings, failure.Code)
	assert.False(t, failure.Retryable)

	got, _ := f.uploads.GetByID(ctx, up.ID)
	assert.Equal(t, uploads.StatusFailed, got.Status)
	assert.Equal(t, CodeNoReadings, got.ErrorCode)

	records, _ := f.svc.Attempts(ctx, "u1", up.ID)
	require.Len(t, records, 1)
	assert.Equal(t, ocr.OutcomeEmpty, records[0].Status)
}

func TestProcessUploadRecreatesMissingUploadOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "Glucose 95 mg/dL 70-99\n", uploads.TypeBloodTest)

	var calls atomic.Int32
	f.bloodRepo.UploadExists = func(context.Context, string) bool {
		return calls.Add(1) > 1
	}

	require.NoError(t, f.svc.ProcessUpload(ctx, up.ID))
	assert.Equal(t, int32(2), calls.Load())
}

func TestProcessUploadBodyComposition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "Weight 176 lb\nPercent Body Fat 21.5 %\nBMI 24.1\n", uploads.TypeBodyComposition)

	require.NoError(t, f.svc.ProcessUpload(ctx, up.ID))

	results, err := f.svc.Body.List(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].WeightKg)
	assert.InDelta(t, 79.83, *results[0].WeightKg, 0.01)
}

func TestProcessUploadClassifiesExtractorErrors(t *testing.T) {
	cases := []struct {
		err       error
		code      string
		retryable bool
	}{
		{fmt.Errorf("claude: %w", ocr.ErrUnparseable), CodeOCRUnparseable, false},
		{fmt.Errorf("claude: ocr timeout: %w", context.DeadlineExceeded), CodeOCRTimeout, true},
		{errors.New("unexpected"), CodeInternal, false},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			f := newFixture(t)
			f.svc.Extractor = stubExtractor{err: tc.err}
			up := f.upload(t, "Glucose 95 mg/dL", uploads.TypeBloodTest)

			err := f.svc.ProcessUpload(context.Background(), up.ID)
			var failure *Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tc.code, failure.Code)
			assert.Equal(t, tc.retryable, failure.Retryable)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestProcessUploadHeldLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "Glucose 95 mg/dL", uploads.TypeBloodTest)

	release, err := f.locker.TryLock(ctx, "processing:"+up.ID, time.Minute)
	require.NoError(t, err)
	defer release(ctx)

	assert.ErrorIs(t, f.svc.ProcessUpload(ctx, up.ID), ErrInProgress)
}

func TestStartProcessesInlineWithoutQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "Glucose 95 mg/dL 70-99\n", uploads.TypeBloodTest)

	started, err := f.svc.Start(ctx, "u1", up.ID)
	require.NoError(t, err)
	assert.Equal(t, uploads.StatusQueued, started.Status)

	got, _ := f.uploads.GetByID(ctx, up.ID)
	assert.Equal(t, uploads.StatusCompleted, got.Status)

	_, err = f.svc.Start(ctx, "u2", up.ID)
	assert.ErrorIs(t, err, uploads.ErrNotFound)
}

func TestStartEnqueues(t *testing.T) {
	f := newFixture(t)
	q := &recordingQueue{}
	f.svc.Queue = q
	ctx := context.Background()
	up := f.upload(t, "Glucose 95 mg/dL 70-99\n", uploads.TypeBloodTest)

	_, err := f.svc.Start(ctx, "u1", up.ID)
	require.NoError(t, err)
	require.Len(t, q.msgs, 1)
	assert.Equal(t, up.ID, q.msgs[0].UploadID)
	assert.Equal(t, 1, q.msgs[0].Version)

	got, _ := f.uploads.GetByID(ctx, up.ID)
	assert.Equal(t, uploads.StatusQueued, got.Status)

	// Already queued uploads are not sent again.
	_, err = f.svc.Start(ctx, "u1", up.ID)
	require.NoError(t, err)
	assert.Len(t, q.msgs, 1)
}

func TestStartFallsBackWhenEnqueueFails(t *testing.T) {
	f := newFixture(t)
	f.svc.Queue = &recordingQueue{err: errors.New("sqs down")}
	ctx := context.Background()
	up := f.upload(t, "Glucose 95 mg/dL 70-99\n", uploads.TypeBloodTest)

	_, err := f.svc.Start(ctx, "u1", up.ID)
	require.NoError(t, err)
	got, _ := f.uploads.GetByID(ctx, up.ID)
	assert.Equal(t, uploads.StatusCompleted, got.Status)
}

func TestProcessByKeyCreatesFallbackUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "Glucose 95 mg/dL 70-99\n", uploads.TypeBloodTest)

	_, err := f.svc.ProcessByKey(ctx, ByKeyInput{UserID: "u2", StorageKey: up.StorageKey})
	assert.ErrorIs(t, err, uploads.ErrNotFound)

	_, err = f.svc.ProcessByKey(ctx, ByKeyInput{UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := f.svc.ProcessByKey(ctx, ByKeyInput{UserID: "u1", StorageKey: up.StorageKey})
	require.NoError(t, err)
	assert.Equal(t, up.ID, got.ID)
}

func TestSanitizeErrorTruncates(t *testing.T) {
	msg := sanitizeError(errors.New("line one\nline two " + strings.Repeat("x", 600)))
	assert.Len(t, msg, 500)
	assert.NotContains(t, msg, "\n")
}

func TestSanitizeErrorKeepsValidUTF8(t *testing.T) {
	msg := sanitizeError(errors.New(strings.Repeat("x", 499) + "µmol/L out of range"))
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, strings.Repeat("x", 499), msg)

	raw := truncate(strings.Repeat("a", maxRawResponse-1)+"µ", maxRawResponse)
	assert.True(t, utf8.ValidString(raw))
	assert.Len(t, raw, maxRawResponse-1)
}

func TestRecordAttemptStoresValidUTF8(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := ocr.Input{UploadID: "up-1", UserID: "u1"}
	f.svc.RecordAttempt(ctx, in, ocr.Attempt{
		Engine:  "claude",
		Outcome: ocr.OutcomeFailed,
		Output:  ocr.Output{Raw: strings.Repeat("a", maxRawResponse-1) + "µmol/L"},
		Err:     errors.New(strings.Repeat("e", 499) + "µ"),
	})

	records, err := f.audit.ListByUpload(ctx, "up-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, utf8.ValidString(records[0].RawResponse))
	assert.True(t, utf8.ValidString(records[0].ErrorMessage))
}

func TestProcessUploadSkipsFailedValueInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := &failingValues{MemoryRepo: f.bloodRepo}
	f.svc.Blood = bloodtests.NewService(repo)
	up := f.upload(t, "Glucose 95 mg/dL 70-99\nSodium 140 135-145 mmol/L\n", uploads.TypeBloodTest)
	skippedBefore := metrics.BiomarkersSkipped()

	require.NoError(t, f.svc.ProcessUpload(ctx, up.ID))

	got, err := f.uploads.GetByID(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, uploads.StatusCompleted, got.Status)

	latest, err := f.svc.Blood.Latest(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, int32(2), repo.calls.Load())
	assert.Equal(t, uint64(1), metrics.BiomarkersSkipped()-skippedBefore)
}

func TestStartRestartsStaleProcessingUpload(t *testing.T) {
	f := newFixture(t)
	f.svc.LockTTL = time.Minute
	ctx := context.Background()
	up := f.upload(t, "Glucose 95 mg/dL 70-99\n", uploads.TypeBloodTest)
	require.NoError(t, f.uploads.SetStatus(ctx, up.ID, uploads.StatusUpdate{Status: uploads.StatusProcessing}))

	// A recent processing row belongs to a live run.
	started, err := f.svc.Start(ctx, "u1", up.ID)
	require.NoError(t, err)
	assert.Equal(t, uploads.StatusProcessing, started.Status)
	got, _ := f.uploads.GetByID(ctx, up.ID)
	assert.Equal(t, uploads.StatusProcessing, got.Status)

	f.svc.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	started, err = f.svc.Start(ctx, "u1", up.ID)
	require.NoError(t, err)
	assert.Equal(t, uploads.StatusQueued, started.Status)
	got, _ = f.uploads.GetByID(ctx, up.ID)
	assert.Equal(t, uploads.StatusCompleted, got.Status)
}

func TestStartLeavesStaleUploadToLockHolder(t *testing.T) {
	f := newFixture(t)
	f.svc.LockTTL = time.Minute
	f.svc.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	ctx := context.Background()
	up := f.upload(t, "Glucose 95 mg/dL 70-99\n", uploads.TypeBloodTest)
	require.NoError(t, f.uploads.SetStatus(ctx, up.ID, uploads.StatusUpdate{Status: uploads.StatusQueued}))

	release, err := f.locker.TryLock(ctx, "processing:"+up.ID, time.Minute)
	require.NoError(t, err)
	defer release(ctx)

	_, err = f.svc.Start(ctx, "u1", up.ID)
	require.NoError(t, err)
	records, _ := f.svc.Attempts(ctx, "u1", up.ID)
	assert.Empty(t, records)
}
