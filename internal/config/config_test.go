package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8090" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.ReconcileInterval != time.Minute {
		t.Fatalf("unexpected reconcile interval %v", cfg.ReconcileInterval)
	}
	if cfg.DatabaseDSN == "" {
		t.Fatalf("expected default database path")
	}
	if cfg.UsesPostgres() {
		t.Fatalf("default DSN should select sqlite")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[server]
listen_addr = :9000
reconcile_interval = 5m

[database]
dsn = postgres://app:secret@db/hairstyle
pg_max_open = 20

[providers]
wavespeed_api_key = ws-key
gemini_api_key = gm-key

[blob]
token = blob-token

[auth]
base_url = https://auth.example.com
webhook_secret = hook
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.ReconcileInterval != 5*time.Minute {
		t.Fatalf("unexpected reconcile interval %v", cfg.ReconcileInterval)
	}
	if !cfg.UsesPostgres() {
		t.Fatalf("postgres DSN not detected")
	}
	if cfg.PGMaxOpenConns != 20 {
		t.Fatalf("unexpected pg_max_open %d", cfg.PGMaxOpenConns)
	}
	if cfg.WaveSpeedAPIKey != "ws-key" || cfg.GeminiAPIKey != "gm-key" {
		t.Fatalf("provider keys not loaded: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "[server]\nlisten_addr = :9000\n")
	t.Setenv("HAIRSTYLE_LISTEN_ADDR", ":7777")
	t.Setenv("HAIRSTYLE_WAVESPEED_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Fatalf("env override lost, got %q", cfg.ListenAddr)
	}
	if cfg.WaveSpeedAPIKey != "env-key" {
		t.Fatalf("env provider key lost, got %q", cfg.WaveSpeedAPIKey)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8090" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "[server]\nreconcile_interval = soon\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestValidateRequiresProvider(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error with no providers")
	}
	cfg.WaveSpeedAPIKey = "k"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when wavespeed lacks a blob token")
	}
	cfg.BlobToken = "b"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := (Config{GeminiAPIKey: "g"}).Validate(); err != nil {
		t.Fatalf("gemini-only config should validate: %v", err)
	}
}
