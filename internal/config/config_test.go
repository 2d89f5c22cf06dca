package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clanadmin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
wom:
  group_id: "1234"
  window: 30s
sync:
  mismatch_threshold: 5
  promotions:
    - from: Sapphire
      to: Emerald
      min_days: 28
scheduler:
  enabled: true
  sync_times: ["06:30"]
auth:
  staff_tokens:
    - name: Alice
      rsn: Alice
      hash: "$2a$10$abc"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "1234", cfg.WOM.GroupID)
	assert.Equal(t, 30*time.Second, cfg.WOM.Window)
	assert.Equal(t, 90, cfg.WOM.RequestsPerWindow)
	assert.Equal(t, 5, cfg.Sync.MismatchThreshold)
	require.Len(t, cfg.Sync.Promotions, 1)
	assert.Equal(t, 28, cfg.Sync.Promotions[0].MinDays)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []string{"06:30"}, cfg.Scheduler.SyncTimes)
	assert.Equal(t, []string{"14:00"}, cfg.Scheduler.InactivityTimes)
	require.Len(t, cfg.Auth.StaffTokens, 1)
	assert.Equal(t, "Alice", cfg.Auth.StaffTokens[0].RSN)
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("WOM_GROUP_ID", "42")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "42", cfg.WOM.GroupID)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [\n"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("connection strings select backends", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://cache:6379")

		cfg := Default()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.Equal(t, StorageRedis, cfg.Storage.Type)
		assert.Equal(t, "redis://cache:6379", cfg.Storage.Redis.URL)
	})

	t.Run("DATABASE_URL wins over REDIS_URL", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://cache:6379")
		t.Setenv("DATABASE_URL", "postgres://db/clan")

		cfg := Default()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.Equal(t, StoragePostgres, cfg.Storage.Type)
		assert.Equal(t, "postgres://db/clan", cfg.Storage.Postgres.DSN)
	})

	t.Run("explicit storage type is kept", func(t *testing.T) {
		t.Setenv("CLANADMIN_STORAGE", "memory")
		t.Setenv("DATABASE_URL", "postgres://db/clan")

		cfg := Default()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.Equal(t, StorageMemory, cfg.Storage.Type)
	})

	t.Run("secrets and endpoints", func(t *testing.T) {
		t.Setenv("WOM_API_KEY", "key")
		t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.test/hook")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://otel:4318")
		t.Setenv("CLANADMIN_PORT", "7000")

		cfg := Default()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.Equal(t, "key", cfg.WOM.APIKey)
		assert.Equal(t, "https://discord.test/hook", cfg.Discord.WebhookURL)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "http://otel:4318", cfg.Telemetry.Endpoint)
		assert.Equal(t, 7000, cfg.Server.Port)
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("CLANADMIN_PORT", "eighty")

		cfg := Default()
		assert.Error(t, cfg.applyEnvOverrides())
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.WOM.GroupID = "1"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown storage", func(c *Config) { c.Storage.Type = "mongo" }, "invalid storage type"},
		{"missing group", func(c *Config) { c.WOM.GroupID = "" }, "group_id is required"},
		{"zero quota", func(c *Config) { c.WOM.RequestsPerWindow = 0 }, "rate limit"},
		{"negative threshold", func(c *Config) { c.Sync.MismatchThreshold = -1 }, "mismatch_threshold"},
		{"bad schedule", func(c *Config) { c.Scheduler.SyncTimes = []string{"25:00"} }, "25:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}
