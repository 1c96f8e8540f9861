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
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("DISPATCH_LOG_LEVEL", "debug")
		t.Setenv("DISPATCH_CHANGE_THROTTLE", "50ms")
		t.Setenv("DISPATCH_METRICS_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 50*time.Millisecond, cfg.Dispatch.ChangeThrottle)
		assert.Equal(t, 200*time.Millisecond, cfg.Dispatch.AutosaveDebounce)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, ":9464", cfg.Metrics.Addr)
	})

	t.Run("malformed environment", func(t *testing.T) {
		t.Setenv("DISPATCH_CHANGE_THROTTLE", "soon")

		_, err := Load()
		assert.Error(t, err)
		assert.Equal(t, Default(), LoadOrDefault())
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.toml")
	err := os.WriteFile(path, []byte(`
[log]
enabled = true
level = "warn"

[dispatch]
autosave_debounce = "1s"

[store]
path = "state.db"
`), 0o644)
	require.NoError(t, err)

	t.Run("file values", func(t *testing.T) {
		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.True(t, cfg.Log.Enabled)
		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Equal(t, time.Second, cfg.Dispatch.AutosaveDebounce)
		assert.Equal(t, 16*time.Millisecond, cfg.Dispatch.ChangeThrottle)
		assert.Equal(t, "state.db", cfg.Store.Path)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("DISPATCH_LOG_LEVEL", "error")

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.Log.Level)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"log level":         func(c *Config) { c.Log.Level = "chatty" },
		"zero throttle":     func(c *Config) { c.Dispatch.ChangeThrottle = 0 },
		"negative debounce": func(c *Config) { c.Dispatch.AutosaveDebounce = -time.Second },
		"metrics address":   func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
