package insights

import (
	"context"
	"database/sql"
	"errors"
)

type PGRepo struct {
	DB *sql.DB
}

const insightColumns = `id, user_id, kind, title, summary, payload, model, created_at`

func (r *PGRepo) Create(ctx context.Context, in Insight) error {
	const query = `
INSERT INTO insights (` + insightColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	payload := []byte(in.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.DB.ExecContext(ctx, query,
		in.ID,
		in.UserID,
		string(in.Kind),
		in.Title,
		in.Summary,
		payload,
		in.Model,
		in.CreatedAt,
	)
	return err
}

func (r *PGRepo) GetForUser(ctx context.Context, userID, id string) (Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE user_id = $1 AND id = $2 LIMIT 1`
	return scanInsight(r.DB.QueryRowContext(ctx, query, userID, id))
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, kind Kind, limit, offset int) ([]Insight, error) {
	query := `SELECT ` + insightColumns + `
FROM insights
WHERE user_id = $1 AND ($2 = '' OR kind = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, userID, string(kind), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Insight{}
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInsight(row rowScanner) (Insight, error) {
	var in Insight
	var kind string
	var payload []byte
	err := row.Scan(&in.ID, &in.UserID, &kind, &in.Title, &in.Summary, &payload, &in.Model, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Insight{}, ErrNotFound
		}
		return Insight{}, err
	}
	in.Kind = Kind(kind)
	in.Payload = payload
	return in, nil
}

var _ Repo = (*PGRepo)(nil)
