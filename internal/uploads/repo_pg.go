package uploads

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const uploadColumns = `id, user_id, file_name, original_file_name, mime_type, size_bytes, upload_type, storage_provider, storage_key, status, error_code, error_message, created_at, updated_at, processed_at`

func (r *PGRepo) Create(ctx context.Context, u FileUpload) error {
	const query = `
INSERT INTO file_uploads (
    id,
    user_id,
    file_name,
    original_file_name,
    mime_type,
    size_bytes,
    upload_type,
    storage_provider,
    storage_key,
    status,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	originalName := u.OriginalFileName
	if originalName == "" {
		originalName = u.FileName
	}
	provider := u.StorageProvider
	if provider == "" {
		provider = "local"
	}
	status := u.Status
	if status == "" {
		status = StatusUploaded
	}
	uploadType := u.UploadType
	if uploadType == "" {
		uploadType = TypeBloodTest
	}

	_, err := r.DB.ExecContext(ctx, query,
		u.ID,
		u.UserID,
		u.FileName,
		originalName,
		u.MimeType,
		u.SizeBytes,
		string(uploadType),
		provider,
		u.StorageKey,
		string(status),
		u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateKey
	}
	return err
}

func (r *PGRepo) Get(ctx context.Context, id string) (FileUpload, error) {
	query := `SELECT ` + uploadColumns + ` FROM file_uploads WHERE id = $1 LIMIT 1`
	return scanUpload(r.DB.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) GetForUser(ctx context.Context, userID, id string) (FileUpload, error) {
	query := `SELECT ` + uploadColumns + ` FROM file_uploads WHERE user_id = $1 AND id = $2 LIMIT 1`
	return scanUpload(r.DB.QueryRowContext(ctx, query, userID, id))
}

func (r *PGRepo) GetByStorageKey(ctx context.Context, key string) (FileUpload, error) {
	query := `SELECT ` + uploadColumns + ` FROM file_uploads WHERE storage_key = $1 LIMIT 1`
	return scanUpload(r.DB.QueryRowContext(ctx, query, key))
}

// ListByUser lists uploads ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]FileUpload, error) {
	query := `SELECT ` + uploadColumns + `
FROM file_uploads
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []FileUpload{}
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error {
	const query = `
UPDATE file_uploads
SET status = $1, error_code = $2, error_message = $3, processed_at = COALESCE($4, processed_at), updated_at = now()
WHERE id = $5`
	var processedAt sql.NullTime
	if upd.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *upd.ProcessedAt, Valid: true}
	}
	res, err := r.DB.ExecContext(ctx, query,
		string(upd.Status),
		nullableString(upd.ErrorCode),
		nullableString(upd.ErrorMessage),
		processedAt,
		id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (FileUpload, error) {
	var u FileUpload
	var uploadType, status string
	var errorCode, errorMessage sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.UserID,
		&u.FileName,
		&u.OriginalFileName,
		&u.MimeType,
		&u.SizeBytes,
		&uploadType,
		&u.StorageProvider,
		&u.StorageKey,
		&status,
		&errorCode,
		&errorMessage,
		&u.CreatedAt,
		&u.UpdatedAt,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileUpload{}, ErrNotFound
		}
		return FileUpload{}, err
	}
	u.UploadType = Type(uploadType)
	u.Status = Status(status)
	if errorCode.Valid {
		u.ErrorCode = errorCode.String
	}
	if errorMessage.Valid {
		u.ErrorMessage = errorMessage.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		u.ProcessedAt = &t
	}
	return u, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)
