// Package config loads the server configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mcoot/clanadmin/internal/api"
	"github.com/mcoot/clanadmin/internal/notify"
	"github.com/mcoot/clanadmin/internal/scheduler"
	"github.com/mcoot/clanadmin/internal/services/auth"
	"github.com/mcoot/clanadmin/internal/services/clansync"
	"github.com/mcoot/clanadmin/internal/services/inactivity"
	"github.com/mcoot/clanadmin/internal/storage/postgres"
	redisstorage "github.com/mcoot/clanadmin/internal/storage/redis"
	"github.com/mcoot/clanadmin/internal/telemetry"
	"github.com/mcoot/clanadmin/internal/wom"
)

// Storage backend names
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config is the full server configuration
type Config struct {
	LogLevel   string            `yaml:"log_level"`
	Server     api.ServerConfig  `yaml:"server"`
	Storage    StorageConfig     `yaml:"storage"`
	WOM        wom.Config        `yaml:"wom"`
	Sync       clansync.Config   `yaml:"sync"`
	Inactivity inactivity.Config `yaml:"inactivity"`
	Scheduler  scheduler.Config  `yaml:"scheduler"`
	Discord    notify.Config     `yaml:"discord"`
	Auth       auth.Config       `yaml:"auth"`
	Telemetry  telemetry.Config  `yaml:"telemetry"`
}

// StorageConfig selects and configures the store backend
type StorageConfig struct {
	Type     string              `yaml:"type"`
	Redis    redisstorage.Config `yaml:"redis"`
	Postgres postgres.Config     `yaml:"postgres"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server:   api.DefaultServerConfig(),
		Storage: StorageConfig{
			Type:     StorageMemory,
			Redis:    redisstorage.DefaultConfig(),
			Postgres: postgres.DefaultConfig(),
		},
		WOM:        wom.DefaultConfig(),
		Sync:       clansync.DefaultConfig(),
		Inactivity: inactivity.DefaultConfig(),
		Scheduler:  scheduler.DefaultConfig(),
		Discord:    notify.DefaultConfig(),
		Auth:       auth.DefaultConfig(),
		Telemetry:  telemetry.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults, then applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("CLANADMIN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CLANADMIN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CLANADMIN_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("CLANADMIN_STORAGE"); v != "" {
		c.Storage.Type = v
	}

	// Connection strings imply their backend unless one was chosen explicitly
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.Postgres.DSN = v
		if os.Getenv("CLANADMIN_STORAGE") == "" {
			c.Storage.Type = StoragePostgres
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Storage.Redis.URL = v
		if os.Getenv("CLANADMIN_STORAGE") == "" && os.Getenv("DATABASE_URL") == "" {
			c.Storage.Type = StorageRedis
		}
	}

	if v := os.Getenv("WOM_API_KEY"); v != "" {
		c.WOM.APIKey = v
	}
	if v := os.Getenv("WOM_GROUP_ID"); v != "" {
		c.WOM.GroupID = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		c.Discord.WebhookURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	return nil
}

// Validate checks settings that would otherwise fail at first use
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("invalid storage type %q: must be memory, redis or postgres", c.Storage.Type)
	}

	if c.WOM.GroupID == "" {
		return errors.New("wom.group_id is required (env: WOM_GROUP_ID)")
	}
	if c.WOM.RequestsPerWindow <= 0 || c.WOM.Window <= 0 {
		return errors.New("wom rate limit must be positive")
	}
	if c.Sync.MismatchThreshold < 0 {
		return errors.New("sync.mismatch_threshold must not be negative")
	}

	for _, times := range [][]string{c.Scheduler.SyncTimes, c.Scheduler.InactivityTimes} {
		for _, t := range times {
			if _, err := scheduler.ParseTimeOfDay(t); err != nil {
				return err
			}
		}
	}
	return nil
}
