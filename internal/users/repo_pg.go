package users

import (
	"context"
	"database/sql"
	"errors"
)

type PGRepo struct {
	DB *sql.DB
}

// Upsert keeps the stored email and name when the incoming ones are empty.
func (r *PGRepo) Upsert(ctx context.Context, user User) (User, error) {
	const query = `
INSERT INTO users (id, email, full_name, plan, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
ON CONFLICT (id) DO UPDATE SET
  email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
  full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), users.full_name),
  plan = EXCLUDED.plan,
  updated_at = now()
RETURNING id, email, full_name, plan, subscription_status, created_at, updated_at`
	var out User
	err := r.DB.QueryRowContext(ctx, query, user.ID, user.Email, user.FullName, user.Plan).Scan(
		&out.ID,
		&out.Email,
		&out.FullName,
		&out.Plan,
		&out.SubscriptionStatus,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return out, nil
}

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	const query = `
SELECT id, email, full_name, plan, subscription_status, created_at, updated_at
FROM users
WHERE id = $1
LIMIT 1`
	var user User
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.Plan,
		&user.SubscriptionStatus,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}
