package bloodtests

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"pixelpharm-backend/internal/biomarkers"
)

type PGRepo struct {
	DB *sql.DB
}

const (
	resultColumns = `id, user_id, upload_id, test_date, lab_name, engine, biomarkers, created_at`
	valueColumns  = `id, result_id, user_id, name, value, value_text, unit, reference_range, ref_low, ref_high, status, is_abnormal, confidence, page, category, created_at`
)

// CreateResult inserts the result row. A missing upload surfaces as ErrMissingUpload.
func (r *PGRepo) CreateResult(ctx context.Context, res Result) error {
	const query = `
INSERT INTO blood_test_results (` + resultColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var testDate sql.NullTime
	if t, err := time.Parse("2006-01-02", res.TestDate); err == nil {
		testDate = sql.NullTime{Time: t, Valid: true}
	}
	payload := []byte(res.Biomarkers)
	if len(payload) == 0 {
		payload = []byte("[]")
	}
	_, err := r.DB.ExecContext(ctx, query,
		res.ID,
		res.UserID,
		res.UploadID,
		testDate,
		nullString(res.LabName),
		res.Engine,
		payload,
		res.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrMissingUpload
	}
	return err
}

func (r *PGRepo) CreateValue(ctx context.Context, v Value) error {
	const query = `
INSERT INTO biomarker_values (` + valueColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.DB.ExecContext(ctx, query,
		v.ID,
		v.ResultID,
		v.UserID,
		v.Name,
		nullFloat(v.Value),
		v.ValueText,
		v.Unit,
		v.ReferenceRange,
		nullFloat(v.RefLow),
		nullFloat(v.RefHigh),
		string(v.Status),
		v.IsAbnormal,
		v.Confidence,
		v.Page,
		v.Category,
		v.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}

func (r *PGRepo) GetResult(ctx context.Context, userID, id string) (Result, error) {
	query := `SELECT ` + resultColumns + ` FROM blood_test_results WHERE user_id = $1 AND id = $2 LIMIT 1`
	return scanResult(r.DB.QueryRowContext(ctx, query, userID, id))
}

func (r *PGRepo) ListResults(ctx context.Context, userID string, limit, offset int) ([]Result, error) {
	query := `SELECT ` + resultColumns + `
FROM blood_test_results
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Result{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *PGRepo) ListValues(ctx context.Context, resultID string) ([]Value, error) {
	query := `SELECT ` + valueColumns + ` FROM biomarker_values WHERE result_id = $1 ORDER BY page, created_at`
	return r.queryValues(ctx, query, resultID)
}

func (r *PGRepo) LatestValues(ctx context.Context, userID string) ([]Value, error) {
	query := `SELECT DISTINCT ON (lower(name)) ` + valueColumns + `
FROM biomarker_values
WHERE user_id = $1
ORDER BY lower(name), created_at DESC`
	return r.queryValues(ctx, query, userID)
}

func (r *PGRepo) History(ctx context.Context, userID, name string, limit int) ([]Value, error) {
	query := `SELECT ` + valueColumns + `
FROM biomarker_values
WHERE user_id = $1 AND lower(name) = lower($2)
ORDER BY created_at DESC
LIMIT $3`
	return r.queryValues(ctx, query, userID, name, limit)
}

func (r *PGRepo) queryValues(ctx context.Context, query string, args ...any) ([]Value, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Value{}
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (Result, error) {
	var res Result
	var testDate sql.NullTime
	var labName sql.NullString
	var payload []byte
	err := row.Scan(
		&res.ID,
		&res.UserID,
		&res.UploadID,
		&testDate,
		&labName,
		&res.Engine,
		&payload,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if testDate.Valid {
		res.TestDate = testDate.Time.Format("2006-01-02")
	}
	res.LabName = labName.String
	res.Biomarkers = payload
	return res, nil
}

func scanValue(row rowScanner) (Value, error) {
	var v Value
	var value, low, high sql.NullFloat64
	var status string
	err := row.Scan(
		&v.ID,
		&v.ResultID,
		&v.UserID,
		&v.Name,
		&value,
		&v.ValueText,
		&v.Unit,
		&v.ReferenceRange,
		&low,
		&high,
		&status,
		&v.IsAbnormal,
		&v.Confidence,
		&v.Page,
		&v.Category,
		&v.CreatedAt,
	)
	if err != nil {
		return Value{}, err
	}
	v.Value = floatFromNull(value)
	v.RefLow = floatFromNull(low)
	v.RefHigh = floatFromNull(high)
	v.Status = biomarkers.Status(status)
	return v, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ Repo = (*PGRepo)(nil)
