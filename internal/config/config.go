package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Logging LogConfig
	Shmem   ShmemConfig
	Coord   CoordConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	File        string `envconfig:"LOG_FILE" default:""`
}

// ShmemConfig holds shared-memory channel configuration.
type ShmemConfig struct {
	KeyDir      string        `envconfig:"SHM_KEY_DIR" default:""`
	LockTimeout time.Duration `envconfig:"SHM_LOCK_TIMEOUT" default:"5s"`
	LockRetries uint64        `envconfig:"SHM_LOCK_RETRIES" default:"3"`
}

// CoordConfig holds coordinator configuration.
type CoordConfig struct {
	SettleDelay time.Duration `envconfig:"RESTART_SETTLE_DELAY" default:"500ms"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Shmem: ShmemConfig{
			LockTimeout: 5 * time.Second,
			LockRetries: 3,
		},
		Coord: CoordConfig{
			SettleDelay: 500 * time.Millisecond,
		},
	}
}
