package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.StoreBackend != "memory" {
		t.Fatalf("default store backend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.CooldownSeconds != 60 {
		t.Fatalf("default cooldown = %d, want 60", cfg.CooldownSeconds)
	}
	if cfg.LogLevel != "INFO" {
		t.Fatalf("default log level = %q, want INFO", cfg.LogLevel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CIPHERLEND_OWNER", "alice")
	t.Setenv("CIPHERLEND_COOLDOWN_SECONDS", "5")
	t.Setenv("CIPHERLEND_TELEMETRY", "true")
	t.Setenv("CIPHERLEND_ORACLE_RATE", "2.5")

	cfg := Load()
	if cfg.Owner != "alice" {
		t.Fatalf("owner = %q, want alice", cfg.Owner)
	}
	if cfg.CooldownSeconds != 5 {
		t.Fatalf("cooldown = %d, want 5", cfg.CooldownSeconds)
	}
	if !cfg.TelemetryEnabled {
		t.Fatal("telemetry should be enabled")
	}
	if cfg.OracleRatePerSec != 2.5 {
		t.Fatalf("oracle rate = %v, want 2.5", cfg.OracleRatePerSec)
	}
}

func TestLoadEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CIPHERLEND_COOLDOWN_SECONDS", "not-a-number")
	t.Setenv("CIPHERLEND_ORACLE_RATE", "-1")

	cfg := Load()
	if cfg.CooldownSeconds != 60 {
		t.Fatalf("cooldown = %d, want default 60", cfg.CooldownSeconds)
	}
	if cfg.OracleRatePerSec != 10 {
		t.Fatalf("oracle rate = %v, want default 10", cfg.OracleRatePerSec)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte("owner: bob\nstore_backend: sqlite\nsqlite_path: /tmp/requests.db\ncooldown_seconds: 30\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Owner != "bob" {
		t.Fatalf("owner = %q, want bob", cfg.Owner)
	}
	if cfg.StoreBackend != "sqlite" {
		t.Fatalf("store backend = %q, want sqlite", cfg.StoreBackend)
	}
	if cfg.CooldownSeconds != 30 {
		t.Fatalf("cooldown = %d, want 30", cfg.CooldownSeconds)
	}
	// unset keys keep their defaults
	if cfg.LogLevel != "INFO" {
		t.Fatalf("log level = %q, want INFO", cfg.LogLevel)
	}
}

func TestLoadFileEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("owner: bob\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CIPHERLEND_OWNER", "alice")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Owner != "alice" {
		t.Fatalf("owner = %q, want alice (env should override file)", cfg.Owner)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file should be an error")
	}
}
