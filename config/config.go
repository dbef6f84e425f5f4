/*
Package config loads service and batch configuration.

PRECEDENCE (lowest to highest):
  1. Default()
  2. YAML file, when a path is given
  3. Environment variables prefixed BURN_, e.g. BURN_SERVER_PORT=9000,
     BURN_ENGINE_WORKERS=4, BURN_LOGGING_LEVEL=debug

  Environment keys are derived from field names only, so unprefixed variables
  such as PATH or PORT never leak in. Command-line flags in cmd/ override the
  result for the few knobs they expose.

EXAMPLE FILE:
  server:
    port: 8080
    allowed_origins: ["http://localhost:5173"]
  database:
    path: ./data/burn.db
  logging:
    level: info
    format: json
  engine:
    workers: 4
    progress_gate: 5
  scheduler:
    enabled: true
    interval: 1m
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/warp/burn-engine/evm"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BURN"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	AllowedOrigins  []string      `yaml:"allowed_origins" split_words:"true"`
}

type DatabaseConfig struct {
	// Path of the SQLite file; ":memory:" keeps everything in process.
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// EngineConfig carries the pipeline constants and its parallelism.
type EngineConfig struct {
	Workers         int     `yaml:"workers"`
	OvertimePremium float64 `yaml:"overtime_premium" split_words:"true"`
	ProgressGate    float64 `yaml:"progress_gate" split_words:"true"`
	Epsilon         float64 `yaml:"epsilon"`
}

// Params converts the engine section into pipeline parameters.
func (e EngineConfig) Params() evm.Params {
	return evm.Params{
		OvertimePremium: e.OvertimePremium,
		ProgressGate:    e.ProgressGate,
		Epsilon:         e.Epsilon,
	}
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns a configuration that runs locally without any file.
func Default() Config {
	params := evm.DefaultParams()
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Database: DatabaseConfig{Path: "./data/burn.db"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Engine: EngineConfig{
			Workers:         0,
			OvertimePremium: params.OvertimePremium,
			ProgressGate:    params.ProgressGate,
			Epsilon:         params.Epsilon,
		},
		Scheduler: SchedulerConfig{Enabled: false, Interval: time.Minute},
	}
}

// Load applies the YAML file at path (skipped when path is empty) and then
// the environment on top of Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	if c.Engine.Workers < 0 {
		errs = append(errs, errors.New("engine.workers must not be negative"))
	}
	if c.Engine.OvertimePremium < 1 {
		errs = append(errs, errors.New("engine.overtime_premium must be at least 1"))
	}
	if c.Engine.ProgressGate < 0 || c.Engine.ProgressGate > 100 {
		errs = append(errs, errors.New("engine.progress_gate must be within [0, 100]"))
	}
	if c.Engine.Epsilon <= 0 {
		errs = append(errs, errors.New("engine.epsilon must be positive"))
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive when enabled"))
	}
	return errors.Join(errs...)
}
