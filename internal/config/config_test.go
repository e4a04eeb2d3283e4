package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"auth": {"signing_key": "secret"},
		"databases": {"sqlite3": {"dsn": "chat.db"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":8090" {
		t.Fatalf("server address default not applied: %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Auth.AccessTTL != 5*time.Minute || cfg.Auth.RefreshTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttls: %v %v", cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	}
	if cfg.Middleware.RateLimit != 5 || cfg.Middleware.RateWindow() != time.Minute {
		t.Fatalf("unexpected rate limit defaults: %d/%v", cfg.Middleware.RateLimit, cfg.Middleware.RateWindow())
	}
	if cfg.Middleware.TimeWindowStart != "06:00" || cfg.Middleware.TimeWindowEnd != "21:00" {
		t.Fatalf("unexpected time window: %s-%s", cfg.Middleware.TimeWindowStart, cfg.Middleware.TimeWindowEnd)
	}
	want := filepath.Join(filepath.Dir(path), "chat.db")
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("sqlite dsn not resolved: want %s got %s", want, got)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `{"auth": {"signing_key": "from-file"}}`)
	t.Setenv("MESSAGEHUB_AUTH_SIGNING_KEY", "from-env")
	t.Setenv("MESSAGEHUB_MIDDLEWARE_RATE_LIMIT", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.SigningKey != "from-env" {
		t.Fatalf("expected env signing key, got %q", cfg.Auth.SigningKey)
	}
	if cfg.Middleware.RateLimit != 9 {
		t.Fatalf("expected env rate limit 9, got %d", cfg.Middleware.RateLimit)
	}
}

func TestValidateAuthRequiresSigningKey(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load without signing key: %v", err)
	}
	if err := cfg.ValidateAuth(); err == nil {
		t.Fatalf("expected error without signing key")
	}
	cfg.Auth.SigningKey = "k"
	if err := cfg.ValidateAuth(); err != nil {
		t.Fatalf("ValidateAuth: %v", err)
	}
}

func TestLoadGitHubDefaults(t *testing.T) {
	path := writeConfig(t, `{"github": {"timeout": "3s"}}`)
	t.Setenv("MESSAGEHUB_GITHUB_BASE_URL", "http://127.0.0.1:9999")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GitHub.BaseURL != "http://127.0.0.1:9999" || cfg.GitHub.Timeout != 3*time.Second {
		t.Fatalf("unexpected github config %+v", cfg.GitHub)
	}
}

func TestLoadUnknownDriver(t *testing.T) {
	path := writeConfig(t, `{"basic_config": {"db_driver": "mysql"}, "auth": {"signing_key": "k"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for driver without database config")
	}
}
