package processing

import (
	"context"
	"database/sql"
	"errors"
)

type PGRepo struct {
	DB *sql.DB
}

const recordColumns = `id, upload_id, user_id, engine, model, status, raw_response, error_code, error_message, biomarker_count, duration_ms, created_at`

func (r *PGRepo) Create(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO ai_processing_results (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.DB.ExecContext(ctx, query,
		rec.ID,
		rec.UploadID,
		rec.UserID,
		rec.Engine,
		rec.Model,
		rec.Status,
		nullString(rec.RawResponse),
		nullString(rec.ErrorCode),
		nullString(rec.ErrorMessage),
		rec.BiomarkerCount,
		rec.DurationMs,
		rec.CreatedAt,
	)
	return err
}

func (r *PGRepo) Get(ctx context.Context, id string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM ai_processing_results WHERE id = $1 LIMIT 1`
	return scanRecord(r.DB.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) ListByUpload(ctx context.Context, uploadID string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM ai_processing_results WHERE upload_id = $1 ORDER BY created_at`
	rows, err := r.DB.QueryContext(ctx, query, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var raw, code, msg sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.UploadID,
		&rec.UserID,
		&rec.Engine,
		&rec.Model,
		&rec.Status,
		&raw,
		&code,
		&msg,
		&rec.BiomarkerCount,
		&rec.DurationMs,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.RawResponse = raw.String
	rec.ErrorCode = code.String
	rec.ErrorMessage = msg.String
	return rec, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
