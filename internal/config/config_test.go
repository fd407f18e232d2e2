package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("YIELDSNAP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("expected default timeout 10s, got %s", cfg.RequestTimeout)
	}
	if !cfg.EnableCircuitBreaker {
		t.Fatal("expected circuit breaker enabled by default")
	}
	if cfg.MaxAPY != 1000.0 {
		t.Fatalf("expected default max APY 1000, got %f", cfg.MaxAPY)
	}
}

func TestLoadPrecedenceEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	body := "port: \"9000\"\ntimeout: 3s\nbreaker:\n  max_apy: 200\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("YIELDSNAP_CONFIG", configPath)
	t.Setenv("PORT", "9999")

	cfg := Load()
	if cfg.Port != "9999" {
		t.Fatalf("expected env to win, got port=%s", cfg.Port)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Fatalf("expected timeout from file, got %s", cfg.RequestTimeout)
	}
	if cfg.MaxAPY != 200 {
		t.Fatalf("expected max APY from file, got %f", cfg.MaxAPY)
	}
}

func TestLoadIgnoresBrokenFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: [not, a, string"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("YIELDSNAP_CONFIG", configPath)

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected defaults when file is broken, got port=%s", cfg.Port)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "45s")
	if d := GetEnvAsDuration("TEST_DURATION", time.Minute); d != 45*time.Second {
		t.Fatalf("expected 45s, got %s", d)
	}
	if d := GetEnvAsDuration("TEST_DURATION_MISSING", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback 1m, got %s", d)
	}
}
