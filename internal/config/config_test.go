package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"AGENTBUS_DB", "SESSION_TIMEOUT", "SWEEP_INTERVAL",
		"MAX_EVENTS", "WEBHOOK_TIMEOUT", "WEBHOOK_MAX_ATTEMPTS",
	} {
		t.Setenv(name, "")
	}
}

func TestParse(t *testing.T) {
	t.Run("defaults when no config file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AGENTBUS_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

		cfg, err := Parse()
		require.NoError(t, err)
		assert.Equal(t, DefaultPort, cfg.Port)
		assert.Equal(t, DefaultSessionTimeoutSecs, cfg.SessionTimeoutSecs)
		assert.Equal(t, DefaultSweepIntervalSecs, cfg.SweepIntervalSecs)
		assert.Equal(t, DefaultMaxEvents, cfg.MaxEvents)
		assert.Equal(t, DefaultWebhookTimeoutSecs, cfg.WebhookTimeoutSecs)
		assert.Equal(t, DefaultWebhookMaxAttempts, cfg.WebhookMaxAttempts)
	})

	t.Run("config file overrides defaults", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "agentbus.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"port": 9000,
			"databasePath": "/tmp/bus.db",
			"sessionTimeoutSecs": 120,
			"maxEvents": 500
		}`), 0o600))
		t.Setenv("AGENTBUS_CONFIG", path)

		cfg, err := Parse()
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, "/tmp/bus.db", cfg.DatabasePath)
		assert.Equal(t, 120, cfg.SessionTimeoutSecs)
		assert.Equal(t, 500, cfg.MaxEvents)
		assert.Equal(t, DefaultSweepIntervalSecs, cfg.SweepIntervalSecs)
	})

	t.Run("env overrides win over file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "agentbus.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"sessionTimeoutSecs": 120}`), 0o600))
		t.Setenv("AGENTBUS_CONFIG", path)
		t.Setenv("SESSION_TIMEOUT", "45")
		t.Setenv("MAX_EVENTS", "99")
		t.Setenv("AGENTBUS_DB", "/tmp/override.db")

		cfg, err := Parse()
		require.NoError(t, err)
		assert.Equal(t, 45, cfg.SessionTimeoutSecs)
		assert.Equal(t, 99, cfg.MaxEvents)
		assert.Equal(t, "/tmp/override.db", cfg.DatabasePath)
	})

	t.Run("invalid env value errors", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AGENTBUS_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
		t.Setenv("SESSION_TIMEOUT", "soon")

		_, err := Parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SESSION_TIMEOUT")
	})

	t.Run("invalid json errors", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "agentbus.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		t.Setenv("AGENTBUS_CONFIG", path)

		_, err := Parse()
		require.Error(t, err)
	})
}

func TestDurations(t *testing.T) {
	cfg := &Config{SessionTimeoutSecs: 600, SweepIntervalSecs: 30, WebhookTimeoutSecs: 10}
	assert.Equal(t, 10*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, 30*time.Second, cfg.SweepInterval())
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout())
}
