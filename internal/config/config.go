// Package config loads the optional YAML configuration file shared by the
// solve and serve commands.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/aco"
	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file
type Config struct {
	LogLevel string     `yaml:"log_level"`
	Solver   aco.Config `yaml:"solver"`
	Server   Server     `yaml:"server"`
}

// Server configures the HTTP job server
type Server struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`

	// JobRate is the sustained number of job submissions per second,
	// JobBurst the number accepted at once.
	JobRate  float64 `yaml:"job_rate"`
	JobBurst int     `yaml:"job_burst"`

	// CheckpointInterval is the default checkpoint cadence in iterations
	// for jobs that do not set their own. 0 disables checkpoints.
	CheckpointInterval int `yaml:"checkpoint_interval"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a configuration that works without a file.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Solver:   aco.DefaultConfig(),
		Server: Server{
			Addr:               ":8080",
			DataDir:            "./data",
			JobRate:            2,
			JobBurst:           5,
			CheckpointInterval: 10,
			ShutdownTimeout:    10 * time.Second,
		},
	}
}

// Load reads the YAML file at path on top of the defaults using strict
// parsing: unknown keys are an error. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	return Decode(file)
}

// Decode parses a configuration document from r on top of the defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the solver parameters and the server settings.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("invalid solver config: %w", err)
	}
	if c.Server.JobRate <= 0 {
		return fmt.Errorf("invalid server config: job_rate must be positive")
	}
	if c.Server.JobBurst <= 0 {
		return fmt.Errorf("invalid server config: job_burst must be positive")
	}
	if c.Server.CheckpointInterval < 0 {
		return fmt.Errorf("invalid server config: checkpoint_interval cannot be negative")
	}
	return nil
}
