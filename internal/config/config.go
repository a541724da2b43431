// Package config provides configuration loading for patternd.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables. Every section carries hardcoded defaults, so an empty
// configuration yields a working single-process daemon with the in-memory
// state store.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/anomaly"
	"github.com/fyrsmithlabs/patternd/internal/graduation"
	"github.com/fyrsmithlabs/patternd/internal/logging"
	"github.com/fyrsmithlabs/patternd/internal/qdrant"
	"github.com/fyrsmithlabs/patternd/internal/quality"
	"github.com/fyrsmithlabs/patternd/internal/ratelimit"
	"github.com/fyrsmithlabs/patternd/internal/statestore"
)

// Config holds the complete patternd configuration.
type Config struct {
	Server     ServerConfig       `koanf:"server"`
	Logging    logging.Config     `koanf:"logging"`
	Store      statestore.Config  `koanf:"store"`
	Qdrant     QdrantConfig       `koanf:"qdrant"`
	Quality    quality.Config     `koanf:"quality"`
	Graduation graduation.Config  `koanf:"graduation"`
	Anomaly    anomaly.Config     `koanf:"anomaly"`
	RateLimit  ratelimit.Config   `koanf:"ratelimit"`
	Scheduler  SchedulerConfig    `koanf:"scheduler"`
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// QdrantConfig holds the anomaly document-store settings.
type QdrantConfig struct {
	// Enabled wires the external document store. When false, anomaly
	// findings live in the in-process index only.
	Enabled bool `koanf:"enabled"`

	Client qdrant.ClientConfig `koanf:"client"`
}

// SchedulerConfig holds the periodic job cadences.
type SchedulerConfig struct {
	// Enabled starts the in-process scheduler under `patternd serve`.
	Enabled bool `koanf:"enabled"`

	// DecayInterval is the cadence of the decay job. Default: 24h.
	DecayInterval time.Duration `koanf:"decay_interval"`

	// SweepInterval is the cadence of the all-tenant anomaly sweep.
	// Default: 1h.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9091,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			DecayInterval: 24 * time.Hour,
			SweepInterval: time.Hour,
		},
	}
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: invalid level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging: invalid format %q", c.Logging.Format)
	}
	if c.Scheduler.DecayInterval < 0 || c.Scheduler.SweepInterval < 0 {
		return fmt.Errorf("scheduler: intervals must be non-negative")
	}
	if c.Store.Remote.URL != "" {
		if err := c.Store.Remote.Validate(); err != nil {
			return err
		}
	}
	return nil
}
