// Package config loads the YAML configuration shared by every command.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacokyle01/chess-analysis/src/review"
)

// Config is the top-level configuration file.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Review ReviewConfig `yaml:"review"`
	Server ServerConfig `yaml:"server"`
	Worker WorkerConfig `yaml:"worker"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig describes the UCI engine process.
type EngineConfig struct {
	Path             string            `yaml:"path"`
	Args             []string          `yaml:"args"`
	Options          map[string]string `yaml:"options"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	// SearchTimeout of zero waits for the engine indefinitely.
	SearchTimeout time.Duration `yaml:"search_timeout"`
	Depth         int           `yaml:"depth"`
}

// ReviewConfig holds the move classification policy.
type ReviewConfig struct {
	Depth         int `yaml:"depth"`
	review.Config `yaml:",inline"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	QueueSize int    `yaml:"queue_size"`
	// Retention is how long finished results, reviews and idle games are kept.
	Retention time.Duration `yaml:"retention"`
	// LocalWorker runs a worker with the configured engine inside serve.
	LocalWorker bool `yaml:"local_worker"`
}

type WorkerConfig struct {
	ServerURL    string        `yaml:"server_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Path:             "stockfish",
			HandshakeTimeout: 10 * time.Second,
			Depth:            15,
		},
		Review: ReviewConfig{
			Depth:  12,
			Config: review.DefaultConfig(),
		},
		Server: ServerConfig{
			Addr:        ":8080",
			QueueSize:   100,
			Retention:   time.Hour,
			LocalWorker: true,
		},
		Worker: WorkerConfig{
			ServerURL:    "http://localhost:8080",
			PollInterval: 2 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail deep inside a command.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.Path == "" {
		errs = append(errs, errors.New("engine.path is required"))
	}
	if c.Engine.Depth < 1 {
		errs = append(errs, fmt.Errorf("engine.depth must be positive, got %d", c.Engine.Depth))
	}
	if c.Review.Depth < 1 {
		errs = append(errs, fmt.Errorf("review.depth must be positive, got %d", c.Review.Depth))
	}
	if err := c.Review.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("server.queue_size must be positive, got %d", c.Server.QueueSize))
	}
	if c.Server.Retention <= 0 {
		errs = append(errs, errors.New("server.retention must be positive"))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("worker.poll_interval must be positive"))
	}
	return errors.Join(errs...)
}
