package bloodtests

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"pixelpharm-backend/internal/biomarkers"
)

var valueRowColumns = []string{
	"id", "result_id", "user_id", "name", "value", "value_text", "unit", "reference_range",
	"ref_low", "ref_high", "status", "is_abnormal", "confidence", "page", "category", "created_at",
}

func TestPGCreateResultMapsForeignKeyViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO blood_test_results")).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	repo := &PGRepo{DB: db}
	err = repo.CreateResult(context.Background(), Result{ID: "r1", UserID: "u1", UploadID: "missing", Engine: "claude"})
	if !errors.Is(err, ErrMissingUpload) {
		t.Fatalf("expected ErrMissingUpload, got %v", err)
	}
}

func TestPGCreateResultDefaultsEmptyPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO blood_test_results")).
		WithArgs("r1", "u1", "up1", sqlmock.AnyArg(), nil, "pattern", []byte("[]"), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &PGRepo{DB: db}
	if err := repo.CreateResult(context.Background(), Result{ID: "r1", UserID: "u1", UploadID: "up1", Engine: "pattern", CreatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGLatestValuesScansNullables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT ON (lower(name))")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(valueRowColumns).
			AddRow("v1", "r1", "u1", "Glucose", 105.0, "105", "mg/dL", "70-99", 70.0, 99.0, "high", true, 0.9, 1, "metabolic", now).
			AddRow("v2", "r1", "u1", "HIV Screen", nil, "Negative", "", "", nil, nil, "unknown", false, 0.6, 0, "", now))

	repo := &PGRepo{DB: db}
	values, err := repo.LatestValues(context.Background(), "u1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(values))
	}
	if values[0].Status != biomarkers.StatusHigh || values[0].RefHigh == nil || *values[0].RefHigh != 99 {
		t.Fatalf("unexpected first value %+v", values[0])
	}
	if values[1].Value != nil || values[1].ValueText != "Negative" {
		t.Fatalf("unexpected second value %+v", values[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGGetResultNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM blood_test_results WHERE user_id = $1 AND id = $2")).
		WithArgs("u1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := &PGRepo{DB: db}
	if _, err := repo.GetResult(context.Background(), "u1", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
