// README: Agent usage tests (lazy month reset, quota boundary and the provider guard).
package agentusage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"

	"bridgetalk/internal/ai"
)

func newMockService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	svc := NewService(NewStore(mock), 5)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	return svc, mock
}

// TestUseDeductsFromExistingRow verifies a single UPDATE when the row exists.
func TestUseDeductsFromExistingRow(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE agent_usage SET`).
		WithArgs("2026-03", 5, "walker123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := svc.Use(context.Background(), "walker123"); err != nil {
		t.Fatalf("Use: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestUseNewUser verifies that a user absent from the table is initialised on first call.
func TestUseNewUser(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE agent_usage SET`).
		WithArgs("2026-03", 5, "walker_new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO agent_usage`).
		WithArgs("walker_new", 5, "2026-03").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE agent_usage SET`).
		WithArgs("2026-03", 5, "walker_new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := svc.Use(context.Background(), "walker_new"); err != nil {
		t.Fatalf("Use: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestUseExhausted verifies that a spent allowance survives the insert retry.
func TestUseExhausted(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE agent_usage SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO agent_usage`).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`UPDATE agent_usage SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := svc.Use(context.Background(), "walker_zero")
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("Use = %v, want ErrQuotaExhausted", err)
	}
}

func TestUseStorageError(t *testing.T) {
	svc, mock := newMockService(t)
	boom := errors.New("connection reset")

	mock.ExpectExec(`UPDATE agent_usage SET`).WillReturnError(boom)

	if err := svc.Use(context.Background(), "walker123"); !errors.Is(err, boom) {
		t.Fatalf("Use = %v, want %v", err, boom)
	}
}

func TestRemaining(t *testing.T) {
	cases := []struct {
		name  string
		setup func(mock pgxmock.PgxPoolIface)
		want  int
	}{
		{"current month", func(mock pgxmock.PgxPoolIface) {
			mock.ExpectQuery(`SELECT calls_remaining, last_reset_month FROM agent_usage`).
				WithArgs("walker123").
				WillReturnRows(pgxmock.NewRows([]string{"calls_remaining", "last_reset_month"}).AddRow(2, "2026-03"))
		}, 2},
		{"stale month resets", func(mock pgxmock.PgxPoolIface) {
			mock.ExpectQuery(`SELECT calls_remaining, last_reset_month FROM agent_usage`).
				WithArgs("walker123").
				WillReturnRows(pgxmock.NewRows([]string{"calls_remaining", "last_reset_month"}).AddRow(0, "2026-02"))
		}, 5},
		{"unknown user", func(mock pgxmock.PgxPoolIface) {
			mock.ExpectQuery(`SELECT calls_remaining, last_reset_month FROM agent_usage`).
				WithArgs("walker123").
				WillReturnError(pgx.ErrNoRows)
		}, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, mock := newMockService(t)
			tc.setup(mock)
			got, err := svc.Remaining(context.Background(), "walker123")
			if err != nil {
				t.Fatalf("Remaining: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Remaining = %d, want %d", got, tc.want)
			}
		})
	}
}

type countingAgent struct {
	calls int
}

func (a *countingAgent) ParseUserIntent(ctx context.Context, msg string, _ map[string]string) (*ai.IntentResult, error) {
	a.calls++
	return &ai.IntentResult{Reply: "ok"}, nil
}

func TestGuardChargesOwner(t *testing.T) {
	svc, mock := newMockService(t)
	agent := &countingAgent{}
	g := Guard(agent, svc)

	mock.ExpectExec(`UPDATE agent_usage SET`).
		WithArgs("2026-03", 5, "walker123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	res, err := g.ParseUserIntent(context.Background(), "take me home", map[string]string{ai.ContextUID: "walker123"})
	if err != nil || res.Reply != "ok" {
		t.Fatalf("ParseUserIntent = %+v, %v", res, err)
	}
	if agent.calls != 1 {
		t.Fatalf("agent calls = %d, want 1", agent.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGuardRefusesWhenExhausted(t *testing.T) {
	svc, mock := newMockService(t)
	agent := &countingAgent{}
	g := Guard(agent, svc)

	mock.ExpectExec(`UPDATE agent_usage SET`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO agent_usage`).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`UPDATE agent_usage SET`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := g.ParseUserIntent(context.Background(), "take me home", map[string]string{ai.ContextUID: "walker123"})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("err = %v, want ErrQuotaExhausted", err)
	}
	if agent.calls != 0 {
		t.Fatalf("agent called %d times after quota ran out", agent.calls)
	}
}

func TestGuardAnonymousAndStorageFailure(t *testing.T) {
	svc, mock := newMockService(t)
	agent := &countingAgent{}
	g := Guard(agent, svc)

	if _, err := g.ParseUserIntent(context.Background(), "hi", nil); err != nil {
		t.Fatalf("anonymous call: %v", err)
	}

	mock.ExpectExec(`UPDATE agent_usage SET`).WillReturnError(errors.New("db down"))
	if _, err := g.ParseUserIntent(context.Background(), "hi", map[string]string{ai.ContextUID: "walker123"}); err != nil {
		t.Fatalf("call with storage failure: %v", err)
	}
	if agent.calls != 2 {
		t.Fatalf("agent calls = %d, want 2", agent.calls)
	}
}
