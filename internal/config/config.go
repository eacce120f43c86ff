// Package config loads edb.yaml plus EDB_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved process configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Clock    ClockConfig    `mapstructure:"clock"`
	Commit   CommitConfig   `mapstructure:"commit"`
	Events   EventsConfig   `mapstructure:"events"`
	Models   ModelsConfig   `mapstructure:"models"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	Synchronous string        `mapstructure:"synchronous"` // off | normal | full
	ChainCache  int           `mapstructure:"chain_cache"`
}

type ClockConfig struct {
	Mode string `mapstructure:"mode"` // wall | logical
}

type CommitConfig struct {
	RevisionCheck bool `mapstructure:"revision_check"`
}

type EventsConfig struct {
	ContextLocking bool            `mapstructure:"context_locking"`
	QueueSize      int             `mapstructure:"queue_size"`
	Collision      CollisionConfig `mapstructure:"collision"`
}

type CollisionConfig struct {
	Mode      string  `mapstructure:"mode"` // ignore | warn | reject
	Threshold float64 `mapstructure:"threshold"`
	Limit     int     `mapstructure:"limit"`
}

type ModelsConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // text | json
}

// Default returns the configuration used when no file or env var sets a key.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Path:        "edb.db",
			BusyTimeout: 5 * time.Second,
			Synchronous: "normal",
			ChainCache:  4096,
		},
		Clock:    ClockConfig{Mode: "wall"},
		Events: EventsConfig{
			Collision: CollisionConfig{Mode: "ignore", Threshold: 0.8},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration. path names a config file; when empty, edb.yaml
// is searched in the working directory and a missing file is not an error.
// EDB_DATABASE_PATH style environment variables override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("EDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("edb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// the config file never mentions.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)
	v.SetDefault("database.synchronous", d.Database.Synchronous)
	v.SetDefault("database.chain_cache", d.Database.ChainCache)
	v.SetDefault("clock.mode", d.Clock.Mode)
	v.SetDefault("commit.revision_check", d.Commit.RevisionCheck)
	v.SetDefault("events.context_locking", d.Events.ContextLocking)
	v.SetDefault("events.queue_size", d.Events.QueueSize)
	v.SetDefault("events.collision.mode", d.Events.Collision.Mode)
	v.SetDefault("events.collision.threshold", d.Events.Collision.Threshold)
	v.SetDefault("events.collision.limit", d.Events.Collision.Limit)
	v.SetDefault("models.dir", d.Models.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks enumerated values and ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is empty"))
	}
	switch strings.ToLower(c.Database.Synchronous) {
	case "off", "normal", "full":
	default:
		errs = append(errs, fmt.Errorf("database.synchronous %q: want off, normal or full", c.Database.Synchronous))
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("database.busy_timeout %v: must not be negative", c.Database.BusyTimeout))
	}
	if c.Database.ChainCache <= 0 {
		errs = append(errs, fmt.Errorf("database.chain_cache %d: must be positive", c.Database.ChainCache))
	}
	switch c.Clock.Mode {
	case "wall", "logical":
	default:
		errs = append(errs, fmt.Errorf("clock.mode %q: want wall or logical", c.Clock.Mode))
	}
	switch c.Events.Collision.Mode {
	case "ignore", "warn", "reject":
	default:
		errs = append(errs, fmt.Errorf("events.collision.mode %q: want ignore, warn or reject", c.Events.Collision.Mode))
	}
	if c.Events.Collision.Threshold < 0 || c.Events.Collision.Threshold > 1 {
		errs = append(errs, fmt.Errorf("events.collision.threshold %v: want a value in [0, 1]", c.Events.Collision.Threshold))
	}
	if c.Events.Collision.Limit < 0 {
		errs = append(errs, fmt.Errorf("events.collision.limit %d is negative", c.Events.Collision.Limit))
	}
	if c.Events.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("events.queue_size %d is negative", c.Events.QueueSize))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}
