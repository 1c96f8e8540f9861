package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all runtime configuration.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Store    StoreConfig    `toml:"store"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Enabled     bool   `envconfig:"DISPATCH_LOG_ENABLED" toml:"enabled"`
	Level       string `envconfig:"DISPATCH_LOG_LEVEL" toml:"level"`
	Development bool   `envconfig:"DISPATCH_LOG_DEV" toml:"development"`
}

// DispatchConfig holds the timings applied to state changes.
type DispatchConfig struct {
	ChangeThrottle   time.Duration `envconfig:"DISPATCH_CHANGE_THROTTLE" toml:"change_throttle"`
	AutosaveDebounce time.Duration `envconfig:"DISPATCH_AUTOSAVE_DEBOUNCE" toml:"autosave_debounce"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `envconfig:"DISPATCH_METRICS_ENABLED" toml:"enabled"`
	Addr    string `envconfig:"DISPATCH_METRICS_ADDR" toml:"addr"`
}

// StoreConfig holds state persistence configuration. An empty path keeps
// state in memory.
type StoreConfig struct {
	Path string `envconfig:"DISPATCH_STORE_PATH" toml:"path"`
}

// Load loads configuration from environment variables on top of Default.
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile reads a TOML file on top of Default, then applies environment
// overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Enabled:     false,
			Level:       "info",
			Development: false,
		},
		Dispatch: DispatchConfig{
			ChangeThrottle:   16 * time.Millisecond,
			AutosaveDebounce: 200 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
		},
		Store: StoreConfig{
			Path: "",
		},
	}
}

// Validate checks the configuration for values the runtime cannot use.
func (c *Config) Validate() error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.Log.Level)
	}

	if c.Dispatch.ChangeThrottle <= 0 {
		return fmt.Errorf("%w: change throttle must be positive, got %s", ErrInvalid, c.Dispatch.ChangeThrottle)
	}

	if c.Dispatch.AutosaveDebounce < 0 {
		return fmt.Errorf("%w: autosave debounce must not be negative, got %s", ErrInvalid, c.Dispatch.AutosaveDebounce)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics enabled without an address", ErrInvalid)
	}

	return nil
}
