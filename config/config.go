// Package config loads the service configuration from the environment.
// A .env file, when present, is read first.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Backend modes.
const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

type Config struct {
	// --- HTTP ---
	Port              string   `envconfig:"PORT" default:"5200"`
	AllowedOriginsRaw string   `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	AllowedOrigins    []string `envconfig:"-"`
	GatewayToken      string   `envconfig:"GAME_SERVICE_TOKEN" required:"true"`

	// --- Application ---
	AppEnv      string         `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string         `envconfig:"APP_LOG_LEVEL" default:"info"`
	AppTimezone string         `envconfig:"APP_TIMEZONE" default:"UTC"`
	Location    *time.Location `envconfig:"-"`

	// --- Backend ---
	BackendMode        string        `envconfig:"BACKEND_MODE" default:"postgres"`
	DatabaseURL        string        `envconfig:"DATABASE_URL"`
	SupabaseURL        string        `envconfig:"SUPABASE_URL"`
	SupabaseServiceKey string        `envconfig:"SUPABASE_SERVICE_KEY"`
	BackendTimeout     time.Duration `envconfig:"BACKEND_TIMEOUT" default:"12s"`
	BackendMaxRetries  uint64        `envconfig:"BACKEND_MAX_RETRIES" default:"3"`

	// --- Auth provider (stream tokens) ---
	AuthURL    string `envconfig:"AUTH_URL"`
	AuthAPIKey string `envconfig:"AUTH_API_KEY"`

	// --- Rewards ---
	DailyClaimAmount int64         `envconfig:"DAILY_CLAIM_AMOUNT" default:"10"`
	ClaimCooldown    time.Duration `envconfig:"CLAIM_COOLDOWN" default:"24h"`

	// --- Member sync ---
	SyncServiceURL  string        `envconfig:"SYNC_SERVICE_URL"`
	SyncServicePath string        `envconfig:"SYNC_SERVICE_PATH" default:"/api/v1/public/profiles"`
	SyncInterval    time.Duration `envconfig:"SYNC_INTERVAL" default:"1m"`

	// --- Activity archive (R2) ---
	ArchiveEnabled    bool   `envconfig:"ARCHIVE_ENABLED" default:"false"`
	ArchivePrefix     string `envconfig:"ARCHIVE_PREFIX" default:"activity"`
	CloudflareAccount string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID     string `envconfig:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string `envconfig:"R2_ACCESS_KEY_SECRET"`
	R2Bucket          string `envconfig:"R2_BUCKET_NAME"`
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GatewayToken) == "" {
		return fmt.Errorf("GAME_SERVICE_TOKEN must not be empty")
	}
	switch c.BackendMode {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when BACKEND_MODE=%s", BackendPostgres)
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required when BACKEND_MODE=%s", BackendSupabase)
		}
	default:
		return fmt.Errorf("BACKEND_MODE must be %q or %q, got %q", BackendPostgres, BackendSupabase, c.BackendMode)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be > 0")
	}
	if c.DailyClaimAmount <= 0 {
		return fmt.Errorf("DAILY_CLAIM_AMOUNT must be > 0")
	}
	if c.ClaimCooldown <= 0 {
		return fmt.Errorf("CLAIM_COOLDOWN must be > 0")
	}
	if c.SyncServiceURL != "" && c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be > 0 when SYNC_SERVICE_URL is set")
	}
	if c.ArchiveEnabled {
		if c.BackendMode != BackendPostgres {
			return fmt.Errorf("ARCHIVE_ENABLED requires BACKEND_MODE=%s", BackendPostgres)
		}
		if c.CloudflareAccount == "" || c.R2AccessKeyID == "" || c.R2AccessKeySecret == "" || c.R2Bucket == "" {
			return fmt.Errorf("R2 credentials are required when ARCHIVE_ENABLED=true")
		}
	}
	return nil
}

// Load reads .env (if any) and the environment into a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.AllowedOrigins = splitCSV(cfg.AllowedOriginsRaw)
	cfg.BackendMode = strings.ToLower(strings.TrimSpace(cfg.BackendMode))

	loc, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.AuthURL == "" {
		cfg.AuthURL = cfg.SupabaseURL
	}
	if cfg.AuthAPIKey == "" {
		cfg.AuthAPIKey = cfg.SupabaseServiceKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
