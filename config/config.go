// Package config loads the host process configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/khekrn/gwpool"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	// Workers is clamped to gwpool.MaxWorkerThreads; zero runs work inline.
	Workers      uint32        `yaml:"workers"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Script       string        `yaml:"script"`
	// ExitWhenIdle stops the host once the script has no requests in flight.
	ExitWhenIdle bool `yaml:"exit_when_idle"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	HTTP    HTTPConfig    `yaml:"http"`
	SQL     SQLConfig     `yaml:"sql"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type MetricsConfig struct {
	// Listen is the status server address; empty disables it.
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

type HTTPConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

type SQLConfig struct {
	// Driver is "sqlite" or "mysql"; empty disables SQL.
	Driver  string        `yaml:"driver"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

func Default() Config {
	return Config{
		Workers:      4,
		TickInterval: 50 * time.Millisecond,
		Log:          LogConfig{Level: "info"},
		Metrics:      MetricsConfig{Namespace: "gwpool"},
		HTTP: HTTPConfig{
			Timeout:  10 * time.Second,
			Attempts: 3,
			Backoff:  200 * time.Millisecond,
		},
		SQL: SQLConfig{Timeout: 5 * time.Second},
	}
}

// Load reads path, applies it over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Workers > gwpool.MaxWorkerThreads {
		// Initialize clamps anyway; keep the config honest.
		return fmt.Errorf("%w: workers %d exceeds %d", ErrInvalidConfig, c.Workers, gwpool.MaxWorkerThreads)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick_interval must be positive", ErrInvalidConfig)
	}
	if c.Script == "" {
		return fmt.Errorf("%w: script is required", ErrInvalidConfig)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	if c.HTTP.Attempts < 1 {
		return fmt.Errorf("%w: http.attempts must be at least 1", ErrInvalidConfig)
	}
	switch c.SQL.Driver {
	case "":
	case "sqlite", "mysql":
		if c.SQL.DSN == "" {
			return fmt.Errorf("%w: sql.dsn is required for driver %q", ErrInvalidConfig, c.SQL.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown sql.driver %q", ErrInvalidConfig, c.SQL.Driver)
	}
	return nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
