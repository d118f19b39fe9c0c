// README: Config loader with env defaults for HTTP, storage, Google services, agent and navigation settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// NavigationConfig holds the step-tracking and speech retry tunables.
type NavigationConfig struct {
	AnnounceMeters   float64
	AdvanceMeters    float64
	TransitMeters    float64
	RetryDelay       time.Duration
	LocationTimeout  time.Duration
	FixMaxAge        time.Duration
	PlaybackGrace    time.Duration
	RecognitionLang  string
	InterimResults   bool
	SnapshotTTLHours int
}

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
		CheckRevoked    bool
	}
	Maps struct {
		APIKey   string
		Language string
		Region   string
	}
	TTS struct {
		APIKey          string
		CredentialsFile string
		LanguageCode    string
		VoiceName       string
	}
	Agent struct {
		// Provider is "vapi", "gemini" or "" (local prefix matching only).
		Provider  string
		VapiURL   string
		VapiKey   string
		GeminiKey string
		Timeout   time.Duration
		// MonthlyCalls caps agent calls per user and month when Postgres is
		// configured; 0 disables the cap.
		MonthlyCalls int
	}
	Navigation NavigationConfig
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	cfg.HTTP.Addr = envOrDefault("BT_HTTP_ADDR", ":8080")
	cfg.DB.DSN = envOrDefault("BT_DB_DSN", "")
	cfg.Redis.Addr = envOrDefault("BT_REDIS_ADDR", "")
	cfg.Firebase.ProjectID = envOrDefault("BT_FIREBASE_PROJECT_ID", "")
	cfg.Firebase.CredentialsFile = envOrDefault("BT_FIREBASE_CREDENTIALS", "")
	cfg.Firebase.CheckRevoked = envOrDefaultBool("BT_FIREBASE_CHECK_REVOKED", false)

	cfg.Maps.APIKey = envOrDefault("GOOGLE_MAPS_API_KEY", "")
	cfg.Maps.Language = envOrDefault("BT_MAPS_LANGUAGE", "en")
	cfg.Maps.Region = envOrDefault("BT_MAPS_REGION", "")

	cfg.TTS.APIKey = envOrDefault("GOOGLE_CLOUD_TTS_API_KEY", "")
	cfg.TTS.CredentialsFile = envOrDefault("BT_TTS_CREDENTIALS", "")
	cfg.TTS.LanguageCode = envOrDefault("BT_TTS_LANGUAGE", "en-US")
	cfg.TTS.VoiceName = envOrDefault("BT_TTS_VOICE", "")

	cfg.Agent.Provider = strings.ToLower(envOrDefault("BT_AGENT", "vapi"))
	cfg.Agent.VapiURL = envOrDefault("VAPI_API_URL", "")
	cfg.Agent.VapiKey = envOrDefault("VAPI_API_KEY", "")
	cfg.Agent.GeminiKey = envOrDefault("GEMINI_API_KEY", "")
	cfg.Agent.Timeout = envOrDefaultDuration("BT_AGENT_TIMEOUT", 10*time.Second)
	cfg.Agent.MonthlyCalls = envOrDefaultInt("BT_AGENT_MONTHLY_CALLS", 300)

	cfg.Navigation.AnnounceMeters = envOrDefaultFloat("BT_NAV_ANNOUNCE_M", 50)
	cfg.Navigation.AdvanceMeters = envOrDefaultFloat("BT_NAV_ADVANCE_M", 15)
	cfg.Navigation.TransitMeters = envOrDefaultFloat("BT_NAV_TRANSIT_M", 1000)
	cfg.Navigation.RetryDelay = envOrDefaultDuration("BT_NAV_RETRY_DELAY", 400*time.Millisecond)
	cfg.Navigation.LocationTimeout = envOrDefaultDuration("BT_NAV_LOCATION_TIMEOUT", 10*time.Second)
	cfg.Navigation.FixMaxAge = envOrDefaultDuration("BT_NAV_FIX_MAX_AGE", 5*time.Second)
	cfg.Navigation.PlaybackGrace = envOrDefaultDuration("BT_NAV_PLAYBACK_GRACE", 5*time.Second)
	cfg.Navigation.RecognitionLang = envOrDefault("BT_NAV_RECOGNITION_LANG", "en-US")
	cfg.Navigation.InterimResults = envOrDefaultBool("BT_NAV_INTERIM_RESULTS", false)
	cfg.Navigation.SnapshotTTLHours = envOrDefaultInt("BT_NAV_SNAPSHOT_TTL_HOURS", 24)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the navigation thresholds are usable.
func (c Config) Validate() error {
	var errs []string
	n := c.Navigation
	if n.AnnounceMeters <= 0 {
		errs = append(errs, "BT_NAV_ANNOUNCE_M must be positive")
	}
	if n.AdvanceMeters <= 0 {
		errs = append(errs, "BT_NAV_ADVANCE_M must be positive")
	}
	if n.AdvanceMeters > n.AnnounceMeters {
		errs = append(errs, "BT_NAV_ADVANCE_M must not exceed BT_NAV_ANNOUNCE_M")
	}
	if n.TransitMeters <= 0 {
		errs = append(errs, "BT_NAV_TRANSIT_M must be positive")
	}
	if c.Agent.MonthlyCalls < 0 {
		errs = append(errs, "BT_AGENT_MONTHLY_CALLS must not be negative")
	}
	if n.RetryDelay < 0 {
		errs = append(errs, "BT_NAV_RETRY_DELAY must not be negative")
	}
	if n.PlaybackGrace < 0 {
		errs = append(errs, "BT_NAV_PLAYBACK_GRACE must not be negative")
	}
	switch c.Agent.Provider {
	case "", "none", "vapi", "gemini":
	default:
		errs = append(errs, fmt.Sprintf("BT_AGENT must be vapi, gemini or none, got %q", c.Agent.Provider))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
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

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
