package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BT_HTTP_ADDR", "")
	t.Setenv("BT_NAV_ANNOUNCE_M", "")
	t.Setenv("BT_NAV_ADVANCE_M", "")
	t.Setenv("BT_AGENT", "")
	t.Setenv("BT_AGENT_MONTHLY_CALLS", "")
	t.Setenv("BT_NAV_PLAYBACK_GRACE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Navigation.AnnounceMeters != 50 || cfg.Navigation.AdvanceMeters != 15 {
		t.Errorf("thresholds = %v/%v, want 50/15", cfg.Navigation.AnnounceMeters, cfg.Navigation.AdvanceMeters)
	}
	if cfg.Navigation.TransitMeters != 1000 {
		t.Errorf("TransitMeters = %v, want 1000", cfg.Navigation.TransitMeters)
	}
	if cfg.Navigation.RetryDelay != 400*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 400ms", cfg.Navigation.RetryDelay)
	}
	if cfg.Navigation.PlaybackGrace != 5*time.Second {
		t.Errorf("PlaybackGrace = %v, want 5s", cfg.Navigation.PlaybackGrace)
	}
	if cfg.Agent.Provider != "vapi" {
		t.Errorf("Agent.Provider = %q, want vapi", cfg.Agent.Provider)
	}
	if cfg.Agent.MonthlyCalls != 300 {
		t.Errorf("Agent.MonthlyCalls = %d, want 300", cfg.Agent.MonthlyCalls)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BT_NAV_ANNOUNCE_M", "80")
	t.Setenv("BT_NAV_ADVANCE_M", "20")
	t.Setenv("BT_NAV_RETRY_DELAY", "1s")
	t.Setenv("BT_AGENT", "Gemini")
	t.Setenv("BT_NAV_INTERIM_RESULTS", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Navigation.AnnounceMeters != 80 || cfg.Navigation.AdvanceMeters != 20 {
		t.Errorf("thresholds = %v/%v, want 80/20", cfg.Navigation.AnnounceMeters, cfg.Navigation.AdvanceMeters)
	}
	if cfg.Navigation.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.Navigation.RetryDelay)
	}
	if cfg.Agent.Provider != "gemini" {
		t.Errorf("Agent.Provider = %q, want gemini", cfg.Agent.Provider)
	}
	if !cfg.Navigation.InterimResults {
		t.Errorf("InterimResults = false, want true")
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"zero announce", func(c *Config) { c.Navigation.AnnounceMeters = 0 }, "BT_NAV_ANNOUNCE_M"},
		{"advance above announce", func(c *Config) { c.Navigation.AdvanceMeters = 60 }, "BT_NAV_ADVANCE_M must not exceed"},
		{"unknown agent", func(c *Config) { c.Agent.Provider = "dialogflow" }, "BT_AGENT"},
		{"negative playback grace", func(c *Config) { c.Navigation.PlaybackGrace = -time.Second }, "BT_NAV_PLAYBACK_GRACE"},
		{"negative quota", func(c *Config) { c.Agent.MonthlyCalls = -1 }, "BT_AGENT_MONTHLY_CALLS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			cfg.Navigation = NavigationConfig{AnnounceMeters: 50, AdvanceMeters: 15, TransitMeters: 1000}
			tc.mut(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestEnvHelpersIgnoreGarbage(t *testing.T) {
	t.Setenv("BT_TEST_INT", "abc")
	t.Setenv("BT_TEST_DUR", "soon")
	if got := envOrDefaultInt("BT_TEST_INT", 7); got != 7 {
		t.Errorf("envOrDefaultInt = %d, want 7", got)
	}
	if got := envOrDefaultDuration("BT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("envOrDefaultDuration = %v, want 1m", got)
	}
}
