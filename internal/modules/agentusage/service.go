// README: Monthly per-user allowance of remote agent calls, enforced around the agent provider.
package agentusage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bridgetalk/internal/ai"
)

var quotaRejections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bridgetalk",
	Subsystem: "agent",
	Name:      "quota_rejections_total",
	Help:      "Agent calls refused because the user's monthly allowance was spent",
})

// Service orchestrates agent usage accounting.
type Service struct {
	store     *Store
	allowance int
	now       func() time.Time
}

// NewService creates a Service; allowance <= 0 uses DefaultMonthlyCalls.
func NewService(store *Store, allowance int) *Service {
	if allowance <= 0 {
		allowance = DefaultMonthlyCalls
	}
	return &Service{store: store, allowance: allowance, now: time.Now}
}

// Use deducts one call from uid's monthly allowance. A missing row is
// created and the call is consumed at once.
func (s *Service) Use(ctx context.Context, uid string) error {
	month := s.now().UTC().Format(monthLayout)
	err := s.store.Use(ctx, uid, month, s.allowance)
	if !errors.Is(err, ErrQuotaExhausted) {
		return err
	}

	// Row may be missing: create it, then retry the deduction once.
	if err := s.store.EnsureUser(ctx, uid, month, s.allowance); err != nil {
		return err
	}
	return s.store.Use(ctx, uid, month, s.allowance)
}

func (s *Service) Remaining(ctx context.Context, uid string) (int, error) {
	return s.store.Remaining(ctx, uid, s.now().UTC().Format(monthLayout), s.allowance)
}

// Guard wraps an agent so every call is charged to the session owner named
// in the request context. Calls without an owner are not metered. A quota
// error reaches the caller like any agent failure; a storage error is
// logged and the call goes through.
func Guard(agent ai.LLMProvider, svc *Service) ai.LLMProvider {
	return &guarded{agent: agent, svc: svc}
}

type guarded struct {
	agent ai.LLMProvider
	svc   *Service
}

func (g *guarded) ParseUserIntent(ctx context.Context, userMessage string, currentContext map[string]string) (*ai.IntentResult, error) {
	if uid := currentContext[ai.ContextUID]; uid != "" {
		err := g.svc.Use(ctx, uid)
		switch {
		case errors.Is(err, ErrQuotaExhausted):
			quotaRejections.Inc()
			return nil, err
		case err != nil:
			log.Printf("agentusage: charge %s: %v", uid, err)
		}
	}
	return g.agent.ParseUserIntent(ctx, userMessage, currentContext)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
