// Package config loads the CLI configuration from YAML and the environment.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
)

// EnvPrefix prefixes environment overrides. Nested keys are joined with a
// double underscore: WASMT_RUNTIME__MEMORY_LIMIT_PAGES=256.
const EnvPrefix = "WASMT_"

type LogConfig struct {
	Level       string `koanf:"level"`       // debug|info|warn|error
	Development bool   `koanf:"development"` // console encoder, stack traces on warn
}

type RuntimeConfig struct {
	MemoryLimitPages uint32 `koanf:"memory_limit_pages"` // 0 = wazero default
	Layout           string `koanf:"layout"`             // dim0|dim1; empty uses the plugin's
	PoolSize         int    `koanf:"pool_size"`
}

type PluginsConfig struct {
	Dir       string `koanf:"dir"`
	MaxLength int    `koanf:"max_length"` // capacity of built-in plugins
}

type MetricsConfig struct {
	Addr string `koanf:"addr"` // empty disables the endpoint
}

type Config struct {
	Log     LogConfig     `koanf:"log"`
	Runtime RuntimeConfig `koanf:"runtime"`
	Plugins PluginsConfig `koanf:"plugins"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// Load merges the YAML file at path (if present) with environment variables
// and applies defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!stderrors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Load(fmt.Sprintf("read config %q", path), err)
		}
	}

	if sv := k.String("schema_version"); sv != "" && sv != "v1" {
		return Config{}, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("config schema_version %q not supported (want v1)", sv))
	}

	if err := k.Load(env.Provider(EnvPrefix, "__", envKey), nil); err != nil {
		return Config{}, errors.Load("read environment", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, errors.Load("decode config", err)
	}
	applyDefaults(&cfg)
	return cfg, cfg.Validate()
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Runtime.PoolSize == 0 {
		c.Runtime.PoolSize = 1
	}
	if c.Plugins.MaxLength == 0 {
		c.Plugins.MaxLength = 512
	}
}

// Validate reports the first field that cannot be used as configured.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("log.level: %v", err))
	}
	if _, err := c.SeriesLayout(); err != nil {
		return err
	}
	if c.Runtime.PoolSize < 0 {
		return errors.InvalidInput(errors.PhaseLoad, "runtime.pool_size must not be negative")
	}
	if c.Plugins.MaxLength < 0 {
		return errors.InvalidInput(errors.PhaseLoad, "plugins.max_length must not be negative")
	}
	return nil
}

// SeriesLayout parses Runtime.Layout. It returns nil when unset, leaving
// the layout to what each plugin declares.
func (c Config) SeriesLayout() (*codec.SeriesLayout, error) {
	if c.Runtime.Layout == "" {
		return nil, nil
	}
	l, err := codec.ParseSeriesLayout(c.Runtime.Layout)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Logger builds a zap logger for the Log section.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
