// README: Walk simulator; drives a running API through a full voice-free navigation and prints a check summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	sim := NewRunner(cfg)
	results := sim.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, pending, skipped := 0, 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusPending:
			pending++
		case StatusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d PENDING=%d SKIP=%d\n", pass, fail, pending, skipped)

	if fail > 0 || (cfg.Strict && pending > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL        string
	Token          string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration

	Destination string
	OriginLat   float64
	OriginLng   float64
	// HopMeters is the spacing of simulated fixes along each step.
	HopMeters float64
	Interval  time.Duration

	Concurrency int
	Duration    time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("BT_SIM_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.Token, "token", envOrDefault("BT_SIM_TOKEN", ""), "Firebase ID token, empty for an open API")
	flag.StringVar(&cfg.DSN, "dsn", envOrDefault("BT_DB_DSN", ""), "Postgres DSN")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("BT_REDIS_ADDR", ""), "Redis address")
	flag.StringVar(&cfg.MigrationPath, "migration", envOrDefault("BT_SIM_MIGRATION", "migrations/0001_navigation.sql"), "Migration SQL path")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", envOrDefaultBool("BT_SIM_APPLY_MIGRATION", false), "Apply migration SQL before the walk")
	flag.BoolVar(&cfg.Strict, "strict", envOrDefaultBool("BT_SIM_STRICT", false), "Fail on pending checks")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("BT_SIM_TIMEOUT", 3*time.Minute), "Total timeout")
	flag.StringVar(&cfg.Destination, "destination", envOrDefault("BT_SIM_DESTINATION", "Bryant Park"), "Typed destination")
	flag.Float64Var(&cfg.OriginLat, "lat", envOrDefaultFloat("BT_SIM_LAT", 40.7580), "Origin latitude")
	flag.Float64Var(&cfg.OriginLng, "lng", envOrDefaultFloat("BT_SIM_LNG", -73.9855), "Origin longitude")
	flag.Float64Var(&cfg.HopMeters, "hop", envOrDefaultFloat("BT_SIM_HOP_M", 10), "Metres between simulated fixes")
	flag.DurationVar(&cfg.Interval, "interval", envOrDefaultDuration("BT_SIM_INTERVAL", 50*time.Millisecond), "Delay between fixes")
	flag.IntVar(&cfg.Concurrency, "concurrency", envOrDefaultInt("BT_SIM_CONCURRENCY", 10), "Concurrency for load checks")
	flag.DurationVar(&cfg.Duration, "duration", envOrDefaultDuration("BT_SIM_DURATION", 5*time.Second), "Duration for load checks")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
