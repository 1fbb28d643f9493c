package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "tenancy-billing", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, 8080, cfg.HTTP.Port)
		assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
		assert.Equal(t, "billing.db", cfg.Database.Path)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 3, cfg.Ledger.ApplyAttempts)
		assert.True(t, cfg.Scheduler.Enabled)
		assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
		assert.False(t, cfg.IsProduction())
	})

	t.Run("env vars override defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("TENANCY_HTTP_PORT", "9090")
		t.Setenv("TENANCY_APP_ENV", "production")
		t.Setenv("TENANCY_DATABASE_PATH", ":memory:")
		t.Setenv("TENANCY_LEDGER_APPLY_ATTEMPTS", "5")
		t.Setenv("TENANCY_SCHEDULER_INTERVAL", "10m")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.HTTP.Port)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, ":memory:", cfg.Database.Path)
		assert.Equal(t, 5, cfg.Ledger.ApplyAttempts)
		assert.Equal(t, 10*time.Minute, cfg.Scheduler.Interval)
	})

	t.Run("reads config.toml", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		content := "[http]\nport = 7070\n\n[log]\nformat = \"json\"\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.HTTP.Port)
		assert.Equal(t, "json", cfg.Log.Format)
	})

	t.Run("reads .env without overriding the environment", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		content := "TENANCY_HTTP_PORT=6060\nTENANCY_LOG_LEVEL=debug\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644))

		// Registers cleanup for the value godotenv is about to set.
		t.Setenv("TENANCY_HTTP_PORT", "")
		require.NoError(t, os.Unsetenv("TENANCY_HTTP_PORT"))
		t.Setenv("TENANCY_LOG_LEVEL", "warn")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 6060, cfg.HTTP.Port)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("rejects invalid attempts", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("TENANCY_LEDGER_APPLY_ATTEMPTS", "0")

		_, err := Load()
		assert.Error(t, err)
	})
}
