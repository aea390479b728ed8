package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 86400, cfg.Push.TTLSeconds)
	assert.Equal(t, 24, cfg.Scheduler.MaxTimerDelayHours)
	assert.False(t, cfg.Scheduler.CleanupFired)
	assert.Equal(t, 24, cfg.Reminder.LookbackHours)
	assert.True(t, cfg.Validation.Enabled)
	assert.Equal(t, 168, cfg.Validation.IntervalHours)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  addr: ":9090"
storage:
  backend: "memory"
push:
  subscriber: "ops@example.com"
  vapid_public_key: "pub"
scheduler:
  max_timer_delay_hours: 12
  cleanup_fired: true
validation:
  enabled: false
logging:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "ops@example.com", cfg.Push.Subscriber)
	assert.Equal(t, "pub", cfg.Push.VAPIDPublicKey)
	assert.Equal(t, 12, cfg.Scheduler.MaxTimerDelayHours)
	assert.True(t, cfg.Scheduler.CleanupFired)
	assert.False(t, cfg.Validation.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, 86400, cfg.Push.TTLSeconds)
}

func TestLoadConfigFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadConfigFromMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := LoadConfigFromFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BEACON_SERVER_ADDR", ":7070")
	t.Setenv("BEACON_LOG_LEVEL", "warn")
	t.Setenv("BEACON_DATABASE_URL", "postgres://beacon@localhost/tasks")
	t.Setenv("BEACON_VAPID_PUBLIC_KEY", "env-pub")

	cfg, err := LoadConfig("", "", "", "")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "postgres://beacon@localhost/tasks", cfg.Reminder.DatabaseURL)
	assert.Equal(t, "env-pub", cfg.Push.VAPIDPublicKey)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("BEACON_SERVER_ADDR", ":7070")
	t.Setenv("BEACON_DATA_DIR", "/env/data")

	cfg, err := LoadConfig("", "./flag-data", ":6060", "debug")
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, filepath.IsAbs(cfg.Storage.DataDir))
	assert.Contains(t, cfg.Storage.DataDir, "flag-data")
}
