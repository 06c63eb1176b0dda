// Package config loads daemon settings from defaults, an optional TOML or
// YAML file and TOMATO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tomato/pkg/notify"
	"tomato/pkg/protocol"
	"tomato/pkg/scheduler"
	"tomato/pkg/server"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvUnit     = "TOMATO_UNIT"
	EnvBackend  = "TOMATO_BACKEND"
	EnvLogLevel = "TOMATO_LOG_LEVEL"
)

// Duration is a time.Duration written as a Go duration string ("1s", "250ms")
// in config files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the daemon configuration. Phase lengths and intervals are counts
// of Unit.
type Config struct {
	Unit           Duration `toml:"unit" yaml:"unit"`
	Busy           int64    `toml:"busy" yaml:"busy"`
	ShortBreak     int64    `toml:"short_break" yaml:"short_break"`
	LongBreak      int64    `toml:"long_break" yaml:"long_break"`
	RemindInterval int64    `toml:"remind_interval" yaml:"remind_interval"`
	ConnTimeout    int64    `toml:"conn_timeout" yaml:"conn_timeout"`
	NotifyTimeout  int64    `toml:"notify_timeout" yaml:"notify_timeout"` // 0 = RemindInterval
	DrainWindow    Duration `toml:"drain_window" yaml:"drain_window"`
	Backend        string   `toml:"backend" yaml:"backend"`
	LogLevel       string   `toml:"log_level" yaml:"log_level"`
	History        bool     `toml:"history" yaml:"history"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Unit:           Duration{protocol.DefaultUnit},
		Busy:           1500,
		ShortBreak:     300,
		LongBreak:      900,
		RemindInterval: 60,
		ConnTimeout:    1,
		DrainWindow:    Duration{100 * time.Millisecond},
		Backend:        notify.BackendDunstify,
		LogLevel:       "info",
		History:        true,
	}
}

// Load returns defaults overlaid with the file at path (if it exists) and the
// environment. The file format follows the extension: .yaml/.yml or TOML.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(path, data, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config yaml: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config toml: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvUnit); v != "" {
		if err := c.Unit.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvUnit, err)
		}
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// LoadDotEnv loads dir/.env into the process environment. Variables that are
// already set win. A missing file is not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Unit.Duration <= 0 {
		errs = append(errs, fmt.Errorf("unit must be positive, got %s", c.Unit))
	}
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"busy", c.Busy},
		{"short_break", c.ShortBreak},
		{"long_break", c.LongBreak},
		{"remind_interval", c.RemindInterval},
		{"conn_timeout", c.ConnTimeout},
	} {
		if f.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.v))
		}
	}
	if c.NotifyTimeout < 0 {
		errs = append(errs, fmt.Errorf("notify_timeout must not be negative, got %d", c.NotifyTimeout))
	}
	if c.DrainWindow.Duration < 0 {
		errs = append(errs, fmt.Errorf("drain_window must not be negative, got %s", c.DrainWindow))
	}
	if _, err := notify.NewBackend(c.Backend, nil); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}

func (c Config) units(n int64) time.Duration {
	return time.Duration(n) * c.Unit.Duration
}

// Durations returns the phase lengths.
func (c Config) Durations() scheduler.Durations {
	return scheduler.Durations{
		Busy:       c.units(c.Busy),
		ShortBreak: c.units(c.ShortBreak),
		LongBreak:  c.units(c.LongBreak),
	}
}

// Scheduler returns the scheduler configuration.
func (c Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		Durations:      c.Durations(),
		Unit:           c.Unit.Duration,
		RemindInterval: c.units(c.RemindInterval),
		DrainWindow:    c.DrainWindow.Duration,
	}
}

// Server returns the command server configuration for socketPath.
func (c Config) Server(socketPath string) server.Config {
	return server.Config{
		SocketPath:  socketPath,
		ConnTimeout: c.units(c.ConnTimeout),
	}
}

// NotifyTimeoutDuration bounds one backend invocation.
func (c Config) NotifyTimeoutDuration() time.Duration {
	if c.NotifyTimeout == 0 {
		return c.units(c.RemindInterval)
	}
	return c.units(c.NotifyTimeout)
}
