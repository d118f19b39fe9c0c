package agentusage

import (
	"context"

	"bridgetalk/internal/infra"
)

// Store handles agent_usage persistence.
type Store struct {
	db infra.Querier
}

func NewStore(db infra.Querier) *Store {
	return &Store{db: db}
}

// Use atomically checks the monthly allowance and deducts one call. The
// counter restarts at allowance when last_reset_month is behind month.
// Returns ErrQuotaExhausted when no row was updated (quota spent or user absent).
func (s *Store) Use(ctx context.Context, uid, month string, allowance int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE agent_usage SET
			calls_remaining = CASE WHEN last_reset_month <> $1 THEN $2 - 1 ELSE calls_remaining - 1 END,
			last_reset_month = $1
		WHERE uid = $3 AND (last_reset_month < $1 OR calls_remaining > 0)
	`, month, allowance, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaExhausted
	}
	return nil
}

// EnsureUser inserts a row for uid with a full allowance; an existing row is left alone.
func (s *Store) EnsureUser(ctx context.Context, uid, month string, allowance int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agent_usage (uid, calls_remaining, last_reset_month)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO NOTHING
	`, uid, allowance, month)
	return err
}

// Remaining returns the calls left for uid in month, or allowance for an
// unknown user or a stale month.
func (s *Store) Remaining(ctx context.Context, uid, month string, allowance int) (int, error) {
	var left int
	var last string
	err := s.db.QueryRow(ctx,
		`SELECT calls_remaining, last_reset_month FROM agent_usage WHERE uid = $1`, uid,
	).Scan(&left, &last)
	if err != nil {
		if isNoRows(err) {
			return allowance, nil
		}
		return 0, err
	}
	if last < month {
		return allowance, nil
	}
	return left, nil
}
