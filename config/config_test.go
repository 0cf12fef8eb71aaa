package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GAME_SERVICE_TOKEN", "gateway-secret")
	t.Setenv("BACKEND_MODE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/avolve")
}

func TestFromEnv_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != "5200" {
		t.Errorf("expected default port 5200, got %s", cfg.Port)
	}
	if cfg.BackendTimeout != 12*time.Second {
		t.Errorf("expected 12s backend timeout, got %s", cfg.BackendTimeout)
	}
	if cfg.ClaimCooldown != 24*time.Hour {
		t.Errorf("expected 24h cooldown, got %s", cfg.ClaimCooldown)
	}
	if cfg.Location != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Location)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestFromEnv_SplitsOrigins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://a.example|https://b.example" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestFromEnv_SupabaseDefaultsAuth(t *testing.T) {
	t.Setenv("GAME_SERVICE_TOKEN", "gateway-secret")
	t.Setenv("BACKEND_MODE", "Supabase")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.BackendMode != BackendSupabase {
		t.Errorf("expected supabase mode, got %s", cfg.BackendMode)
	}
	if cfg.AuthURL != "https://project.supabase.co" || cfg.AuthAPIKey != "service-key" {
		t.Errorf("expected auth to default to supabase, got %s / %s", cfg.AuthURL, cfg.AuthAPIKey)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"BACKEND_MODE": "mysql"}, "BACKEND_MODE"},
		{"postgres without dsn", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL"},
		{"supabase without key", map[string]string{"BACKEND_MODE": "supabase", "SUPABASE_URL": "https://x"}, "SUPABASE_SERVICE_KEY"},
		{"bad timezone", map[string]string{"APP_TIMEZONE": "Mars/Olympus"}, "APP_TIMEZONE"},
		{"zero claim amount", map[string]string{"DAILY_CLAIM_AMOUNT": "0"}, "DAILY_CLAIM_AMOUNT"},
		{"archive without credentials", map[string]string{"ARCHIVE_ENABLED": "true"}, "R2"},
		{"sync without interval", map[string]string{"SYNC_SERVICE_URL": "http://profiles", "SYNC_INTERVAL": "0s"}, "SYNC_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := fromEnv()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestFromEnv_MissingGatewayToken(t *testing.T) {
	t.Setenv("GAME_SERVICE_TOKEN", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/avolve")
	if _, err := fromEnv(); err == nil {
		t.Fatal("expected missing GAME_SERVICE_TOKEN to fail")
	}
}
