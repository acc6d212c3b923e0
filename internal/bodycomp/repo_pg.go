package bodycomp

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PGRepo struct {
	DB *sql.DB
}

const resultColumns = `id, user_id, upload_id, scan_date, weight_kg, body_fat_percent, muscle_mass_kg, bmr_kcal, visceral_fat, bone_mass_kg, water_percent, bmi, engine, raw, created_at`

// Create inserts a scan. A missing upload row surfaces as ErrMissingUpload.
func (r *PGRepo) Create(ctx context.Context, res Result) error {
	const query = `
INSERT INTO body_composition_results (` + resultColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	var scanDate sql.NullTime
	if t, err := time.Parse("2006-01-02", res.ScanDate); err == nil {
		scanDate = sql.NullTime{Time: t, Valid: true}
	}
	var raw any
	if len(res.Raw) > 0 {
		raw = []byte(res.Raw)
	}
	_, err := r.DB.ExecContext(ctx, query,
		res.ID,
		res.UserID,
		res.UploadID,
		scanDate,
		nullFloat(res.WeightKg),
		nullFloat(res.BodyFatPercent),
		nullFloat(res.MuscleMassKg),
		nullFloat(res.BMRKcal),
		nullFloat(res.VisceralFat),
		nullFloat(res.BoneMassKg),
		nullFloat(res.WaterPercent),
		nullFloat(res.BMI),
		res.Engine,
		raw,
		res.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrMissingUpload
	}
	return err
}

func (r *PGRepo) GetForUser(ctx context.Context, userID, id string) (Result, error) {
	query := `SELECT ` + resultColumns + ` FROM body_composition_results WHERE user_id = $1 AND id = $2 LIMIT 1`
	return scanResult(r.DB.QueryRowContext(ctx, query, userID, id))
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Result, error) {
	query := `SELECT ` + resultColumns + `
FROM body_composition_results
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (Result, error) {
	var res Result
	var scanDate sql.NullTime
	var weight, fat, muscle, bmr, visceral, bone, water, bmi sql.NullFloat64
	var raw []byte
	err := row.Scan(
		&res.ID,
		&res.UserID,
		&res.UploadID,
		&scanDate,
		&weight,
		&fat,
		&muscle,
		&bmr,
		&visceral,
		&bone,
		&water,
		&bmi,
		&res.Engine,
		&raw,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if scanDate.Valid {
		res.ScanDate = scanDate.Time.Format("2006-01-02")
	}
	res.WeightKg = floatFromNull(weight)
	res.BodyFatPercent = floatFromNull(fat)
	res.MuscleMassKg = floatFromNull(muscle)
	res.BMRKcal = floatFromNull(bmr)
	res.VisceralFat = floatFromNull(visceral)
	res.BoneMassKg = floatFromNull(bone)
	res.WaterPercent = floatFromNull(water)
	res.BMI = floatFromNull(bmi)
	if len(raw) > 0 {
		res.Raw = raw
	}
	return res, nil
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
