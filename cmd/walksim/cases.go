// README: Simulator checks; environment, migration, session lifecycle, the simulated walk and load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"bridgetalk/internal/modules/navigation"
)

const (
	StatusPass    = "PASS"
	StatusFail    = "FAIL"
	StatusPending = "PENDING"
	StatusSkip    = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// Filled in as the walk progresses.
	session navigation.Snapshot
	route   navigation.Route
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: checkHealth},
		{Name: "Session: create", Run: createSession},
		{Name: "Session: first fix", Run: firstFix},
		{Name: "Session: typed destination routes", Run: requestRoute},
		{Name: "Session: route readable", Run: fetchRoute},
		{Name: "Session: start navigation", Run: startNavigation},
		{Name: "Walk: follow steps to arrival", Run: walkRoute},
		{Name: "Redis: snapshot stored", Run: checkSnapshotKey},
		{Name: "Trips: arrival recorded", Run: checkTrips},
		{Name: "Session: close", Run: closeSession},
		{Name: "Session: closed session rejects taps", Run: tapAfterClose},
		{Name: "Load: create and close sessions", Run: loadSessions},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: StatusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: StatusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	return Result{Status: StatusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: StatusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func checkHealth(ctx context.Context, r *Runner) Result {
	start := time.Now()
	status, _, err := r.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: StatusPass, Latency: time.Since(start)}
}

func createSession(ctx context.Context, r *Runner) Result {
	start := time.Now()
	status, body, err := r.do(ctx, http.MethodPost, "/api/nav/sessions", nil)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status != http.StatusCreated {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d body=%s", status, body)}
	}
	if err := json.Unmarshal(body, &r.session); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if r.session.Phase != navigation.PhaseIdle {
		return Result{Status: StatusFail, Note: "phase=" + string(r.session.Phase)}
	}
	return Result{Status: StatusPass, Latency: time.Since(start), Note: "id=" + string(r.session.ID)}
}

func firstFix(ctx context.Context, r *Runner) Result {
	if r.session.ID == "" {
		return Result{Status: StatusSkip, Note: "no session"}
	}
	start := time.Now()
	if err := r.sendFix(ctx, r.cfg.OriginLat, r.cfg.OriginLng); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass, Latency: time.Since(start)}
}

func requestRoute(ctx context.Context, r *Runner) Result {
	if r.session.ID == "" {
		return Result{Status: StatusSkip, Note: "no session"}
	}
	start := time.Now()
	status, body, err := r.do(ctx, http.MethodPost, r.sessionPath("/destination"),
		map[string]string{"destination": r.cfg.Destination})
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status != http.StatusAccepted {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d body=%s", status, body)}
	}
	snap, err := r.waitPhase(ctx, 20*time.Second, navigation.PhaseReady, navigation.PhaseError)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	latency := time.Since(start)
	if snap.Phase == navigation.PhaseError {
		if snap.Error == navigation.CodeMapsNotReady {
			return Result{Status: StatusPending, Latency: latency, Note: "maps not configured on server"}
		}
		return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("error=%s %s", snap.Error, snap.ErrorDetail)}
	}
	return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("steps=%d", snap.StepCount)}
}

func fetchRoute(ctx context.Context, r *Runner) Result {
	if r.session.ID == "" {
		return Result{Status: StatusSkip, Note: "no session"}
	}
	status, body, err := r.do(ctx, http.MethodGet, r.sessionPath("/route"), nil)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status == http.StatusConflict {
		return Result{Status: StatusSkip, Note: "no route"}
	}
	if status != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", status)}
	}
	if err := json.Unmarshal(body, &r.route); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("%s, %s, %s", r.route.TravelMode, r.route.TotalDistanceText, r.route.TotalDurationText)}
}

func startNavigation(ctx context.Context, r *Runner) Result {
	if len(r.route.Steps) == 0 {
		return Result{Status: StatusSkip, Note: "no route"}
	}
	status, body, err := r.do(ctx, http.MethodPost, r.sessionPath("/start"), nil)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d body=%s", status, body)}
	}
	snap, err := r.waitPhase(ctx, 5*time.Second, navigation.PhaseNavigating)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass, Note: snap.Instruction}
}

func walkRoute(ctx context.Context, r *Runner) Result {
	if len(r.route.Steps) == 0 {
		return Result{Status: StatusSkip, Note: "no route"}
	}
	start := time.Now()
	fixes, err := r.walk(ctx)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	snap, err := r.waitPhase(ctx, 10*time.Second, navigation.PhaseIdle)
	if err != nil {
		return Result{Status: StatusFail, Note: fmt.Sprintf("after %d fixes: %v", fixes, err)}
	}
	if snap.Error != "" {
		return Result{Status: StatusFail, Note: fmt.Sprintf("error=%s", snap.Error)}
	}
	return Result{Status: StatusPass, Latency: time.Since(start), Note: fmt.Sprintf("fixes=%d", fixes)}
}

func checkSnapshotKey(ctx context.Context, r *Runner) Result {
	if r.redis == nil || r.session.ID == "" {
		return Result{Status: StatusSkip, Note: "redis or session missing"}
	}
	n, err := r.redis.Exists(ctx, "navigation:session:"+string(r.session.ID)).Result()
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if n != 1 {
		return Result{Status: StatusFail, Note: "snapshot key missing"}
	}
	return Result{Status: StatusPass}
}

func checkTrips(ctx context.Context, r *Runner) Result {
	if r.session.ID == "" || len(r.route.Steps) == 0 {
		return Result{Status: StatusSkip, Note: "no walk"}
	}
	if r.session.Owner == "" {
		return Result{Status: StatusSkip, Note: "anonymous session"}
	}
	status, body, err := r.do(ctx, http.MethodGet, "/api/nav/trips?owner="+r.session.Owner, nil)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", status)}
	}
	var out struct {
		Trips []navigation.Trip `json:"trips"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, t := range out.Trips {
		if t.SessionID == r.session.ID {
			if t.Outcome != navigation.OutcomeArrived {
				return Result{Status: StatusFail, Note: "outcome=" + string(t.Outcome)}
			}
			return Result{Status: StatusPass}
		}
	}
	if len(out.Trips) == 0 {
		return Result{Status: StatusPending, Note: "trip log empty, postgres disabled on server?"}
	}
	return Result{Status: StatusFail, Note: "trip not found"}
}

func closeSession(ctx context.Context, r *Runner) Result {
	if r.session.ID == "" {
		return Result{Status: StatusSkip, Note: "no session"}
	}
	status, _, err := r.do(ctx, http.MethodDelete, r.sessionPath(""), nil)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: StatusPass}
}

func tapAfterClose(ctx context.Context, r *Runner) Result {
	if r.session.ID == "" {
		return Result{Status: StatusSkip, Note: "no session"}
	}
	status, _, err := r.do(ctx, http.MethodPost, r.sessionPath("/tap"), nil)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	// Without redis the closed session is simply unknown.
	if status == http.StatusNotFound || status == http.StatusGone {
		return Result{Status: StatusPass, Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", status)}
}

func loadSessions(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				ok := r.createAndClose(ctx)
				mu.Lock()
				if ok {
					count++
				} else {
					errCount++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: StatusFail, Note: "no sessions completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("sessions/s=%.1f errors=%d", rps, errCount)}
}

func (r *Runner) createAndClose(ctx context.Context) bool {
	status, body, err := r.do(ctx, http.MethodPost, "/api/nav/sessions", nil)
	if err != nil || status != http.StatusCreated {
		return false
	}
	var snap navigation.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return false
	}
	status, _, err = r.do(ctx, http.MethodDelete, "/api/nav/sessions/"+string(snap.ID), nil)
	return err == nil && status == http.StatusOK
}

func (r *Runner) sessionPath(suffix string) string {
	return "/api/nav/sessions/" + string(r.session.ID) + suffix
}

func (r *Runner) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

func (r *Runner) snapshot(ctx context.Context) (navigation.Snapshot, error) {
	var snap navigation.Snapshot
	status, body, err := r.do(ctx, http.MethodGet, r.sessionPath(""), nil)
	if err != nil {
		return snap, err
	}
	if status != http.StatusOK {
		return snap, fmt.Errorf("get session: status=%d", status)
	}
	err = json.Unmarshal(body, &snap)
	return snap, err
}

// waitPhase polls the session until it reaches one of the wanted phases.
func (r *Runner) waitPhase(ctx context.Context, timeout time.Duration, want ...navigation.Phase) (navigation.Snapshot, error) {
	deadline := time.Now().Add(timeout)
	var last navigation.Snapshot
	for time.Now().Before(deadline) {
		snap, err := r.snapshot(ctx)
		if err != nil {
			return snap, err
		}
		last = snap
		for _, p := range want {
			if snap.Phase == p {
				return snap, nil
			}
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return last, fmt.Errorf("phase %s after %s, want %v", last.Phase, timeout, want)
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
