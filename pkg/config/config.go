// Package config loads coordinator configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds coordinator configuration.
type Config struct {
	Owner    string `yaml:"owner"`
	Identity string `yaml:"identity"`

	CooldownSeconds uint64 `yaml:"cooldown_seconds"`

	// StoreBackend selects request persistence: memory, sqlite, postgres.
	StoreBackend string `yaml:"store_backend"`
	SQLitePath   string `yaml:"sqlite_path"`
	DatabaseURL  string `yaml:"database_url"`

	// RedisAddr, when set, shares cooldown stamps across instances.
	RedisAddr string `yaml:"redis_addr"`

	LogLevel string `yaml:"log_level"`

	TelemetryEnabled bool   `yaml:"telemetry_enabled"`
	OTLPEndpoint     string `yaml:"otlp_endpoint"`

	// OracleRatePerSec paces local oracle callback delivery.
	OracleRatePerSec float64 `yaml:"oracle_rate_per_sec"`
}

// Load builds configuration from environment variables with defaults.
func Load() *Config {
	cfg := &Config{
		Owner:            "owner",
		Identity:         "cipherlend/coordinator",
		CooldownSeconds:  60,
		StoreBackend:     "memory",
		SQLitePath:       "cipherlend.db",
		LogLevel:         "INFO",
		OTLPEndpoint:     "localhost:4317",
		OracleRatePerSec: 10,
	}
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML config file, then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Owner, "CIPHERLEND_OWNER")
	setString(&c.Identity, "CIPHERLEND_IDENTITY")
	setString(&c.StoreBackend, "CIPHERLEND_STORE_BACKEND")
	setString(&c.SQLitePath, "CIPHERLEND_SQLITE_PATH")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.OTLPEndpoint, "OTLP_ENDPOINT")

	if v := os.Getenv("CIPHERLEND_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.CooldownSeconds = n
		}
	}
	if v := os.Getenv("CIPHERLEND_TELEMETRY"); v != "" {
		c.TelemetryEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CIPHERLEND_ORACLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.OracleRatePerSec = f
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
