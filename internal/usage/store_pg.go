package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type pgStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *pgStore) EnsurePeriod(ctx context.Context, userID string) (Usage, error) {
	return s.inTx(ctx, userID, func(ctx context.Context, tx *sql.Tx, u Usage) (Usage, error) {
		return u, nil
	})
}

func (s *pgStore) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	return s.inTx(ctx, userID, func(ctx context.Context, tx *sql.Tx, u Usage) (Usage, error) {
		if n <= 0 {
			return u, nil
		}
		if u.Used+n > u.Limit {
			return Usage{}, ErrLimitReached
		}
		u.Used += n
		if _, err := tx.ExecContext(ctx, `
UPDATE usage SET used_count = $1, updated_at = now() WHERE user_id = $2`, u.Used, userID); err != nil {
			return Usage{}, err
		}
		return u, nil
	})
}

func (s *pgStore) Reset(ctx context.Context, userID string) (Usage, error) {
	return s.inTx(ctx, userID, func(ctx context.Context, tx *sql.Tx, u Usage) (Usage, error) {
		u.Used = 0
		u.ResetsAt = s.now().Add(window)
		if _, err := tx.ExecContext(ctx, `
UPDATE usage SET used_count = 0, resets_at = $1, updated_at = now() WHERE user_id = $2`, u.ResetsAt, userID); err != nil {
			return Usage{}, err
		}
		return u, nil
	})
}

func (s *pgStore) SetPlan(ctx context.Context, userID, plan string) (Usage, error) {
	return s.inTx(ctx, userID, func(ctx context.Context, tx *sql.Tx, u Usage) (Usage, error) {
		u.Plan = NormalizePlan(plan)
		u.Limit = LimitFor(u.Plan)
		if _, err := tx.ExecContext(ctx, `
UPDATE usage SET plan = $1, limit_count = $2, updated_at = now() WHERE user_id = $3`, u.Plan, u.Limit, userID); err != nil {
			return Usage{}, err
		}
		return u, nil
	})
}

// inTx locks the user's usage row, rolls the window over if needed, and runs fn.
func (s *pgStore) inTx(ctx context.Context, userID string, fn func(context.Context, *sql.Tx, Usage) (Usage, error)) (out Usage, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Usage{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	u, err := s.lockAndEnsure(ctx, tx, userID)
	if err != nil {
		return Usage{}, err
	}
	out, err = fn(ctx, tx, u)
	if err != nil {
		return Usage{}, err
	}
	if err = tx.Commit(); err != nil {
		return Usage{}, err
	}
	return out, nil
}

func (s *pgStore) lockAndEnsure(ctx context.Context, tx *sql.Tx, userID string) (Usage, error) {
	var u Usage
	err := tx.QueryRowContext(ctx, `
SELECT plan, limit_count, used_count, resets_at FROM usage WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&u.Plan, &u.Limit, &u.Used, &u.ResetsAt)
	now := s.now()
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return Usage{}, err
		}
		u = newUsage(PlanFree, now)
		if _, err := tx.ExecContext(ctx, `
INSERT INTO usage (user_id, plan, limit_count, used_count, resets_at) VALUES ($1, $2, $3, $4, $5)`,
			userID, u.Plan, u.Limit, u.Used, u.ResetsAt); err != nil {
			return Usage{}, err
		}
		return u, nil
	}

	u, rolled := rollover(u, now)
	if rolled {
		if _, err := tx.ExecContext(ctx, `
UPDATE usage SET used_count = $1, resets_at = $2, updated_at = now() WHERE user_id = $3`, u.Used, u.ResetsAt, userID); err != nil {
			return Usage{}, err
		}
	}
	return u, nil
}
