// Package config loads lmssync settings from defaults, an optional config
// file and LMSSYNC_* environment variables, and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/engine"
)

// EnvPrefix is prepended to every environment override, e.g. LMSSYNC_LOG_LEVEL.
const EnvPrefix = "LMSSYNC"

// Config is the resolved configuration.
type Config struct {
	DB     string       `mapstructure:"db"`
	Addr   string       `mapstructure:"addr"`
	Log    LogConfig    `mapstructure:"log"`
	Engine EngineConfig `mapstructure:"engine"`
}

// LogConfig controls the logger built by NewLogger.
type LogConfig struct {
	Level     string `mapstructure:"level"`  // debug, info, warn, error
	Format    string `mapstructure:"format"` // text or json
	File      string `mapstructure:"file"`   // empty logs to stderr
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

// EngineConfig holds engine limits.
type EngineConfig struct {
	MaxBatchSize int `mapstructure:"max_batch_size"`
	QueueDepth   int `mapstructure:"queue_depth"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db", "lmssync.db")
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("engine.max_batch_size", engine.DefaultMaxBatchSize)
	v.SetDefault("engine.queue_depth", engine.DefaultQueueDepth)
}

// Load resolves the configuration into v. path may be empty, in which case
// only defaults and environment variables apply.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Log.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("log.max_size_mb must be positive, got %d", c.Log.MaxSizeMB))
	}
	if c.Engine.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_batch_size must be positive, got %d", c.Engine.MaxBatchSize))
	}
	if c.Engine.QueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("engine.queue_depth must be positive, got %d", c.Engine.QueueDepth))
	}
	return errors.Join(errs...)
}

// RuntimeOptions translates the configuration into bridge options.
func (c *Config) RuntimeOptions(logger *slog.Logger) []bridge.Option {
	return []bridge.Option{
		bridge.WithDBPath(c.DB),
		bridge.WithQueueDepth(c.Engine.QueueDepth),
		bridge.WithLogger(logger),
		bridge.WithEngineOptions(
			engine.WithMaxBatchSize(c.Engine.MaxBatchSize),
			engine.WithLogger(logger),
		),
	}
}
