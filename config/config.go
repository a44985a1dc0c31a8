// Package config loads service configuration from the environment.
//
// All settings have working defaults; environment variables use the
// SPLIT_ prefix:
//
//	SPLIT_ADDR            listen address        (default :8080)
//	SPLIT_DB_PATH         SQLite database path  (default ./data/split.db)
//	SPLIT_WORKERS         recompute workers     (default 4)
//	SPLIT_RETRY_ATTEMPTS  CAS retry budget      (default 3)
//	SPLIT_LOG_LEVEL       debug|info|warn|error (default info)
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config is the full service configuration.
type Config struct {
	Addr          string `koanf:"addr"`
	DBPath        string `koanf:"db_path"`
	Workers       int    `koanf:"workers"`
	RetryAttempts int    `koanf:"retry_attempts"`
	LogLevel      string `koanf:"log_level"`
}

func defaults() Config {
	return Config{
		Addr:          ":8080",
		DBPath:        "./data/split.db",
		Workers:       4,
		RetryAttempts: 3,
		LogLevel:      "info",
	}
}

// Load builds the configuration from defaults overridden by SPLIT_*
// environment variables (SPLIT_DB_PATH -> db_path, etc.).
func Load() (*Config, error) {
	cfg := defaults()

	k := koanf.New(".")
	if err := k.Load(env.Provider("SPLIT_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "SPLIT_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", cfg.Workers)
	}
	if cfg.RetryAttempts < 1 {
		return nil, fmt.Errorf("retry_attempts must be >= 1, got %d", cfg.RetryAttempts)
	}
	return &cfg, nil
}
