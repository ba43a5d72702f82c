package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadReadsSections(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
storage:
  driver: bolt
bolt:
  path: /tmp/x.db
redis:
  addr: localhost:6379
  session_ttl: 2h
grading:
  workers: 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Storage.Driver != DriverBolt || cfg.Bolt.Path != "/tmp/x.db" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Grading.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Grading.Workers)
	}
	if got := TTLDuration(cfg.Redis.SessionTTL, time.Minute); got != 2*time.Hour {
		t.Fatalf("expected 2h session ttl, got %v", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Storage.Driver != DriverMemory || cfg.Grading.Workers != 4 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("POSTGRES_URL", "postgres://env")
	path := writeConfig(t, "auth:\n  jwt_secret: from-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("expected env secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Postgres.URL != "postgres://env" {
		t.Fatalf("expected env postgres url, got %q", cfg.Postgres.URL)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: mongo\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := TTLDuration("nonsense", time.Second); got != time.Second {
		t.Fatalf("expected fallback for invalid, got %v", got)
	}
}
