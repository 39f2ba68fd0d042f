// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting the arena server reads at startup.
type Config struct {
	Addr         string        `env:"ARENA_ADDR"          envDefault:":8080"`
	DatabasePath string        `env:"ARENA_DATABASE_PATH" envDefault:"arena.db"`
	LogLevel     string        `env:"ARENA_LOG_LEVEL"     envDefault:"info"`
	MatchWorkers int           `env:"ARENA_MATCH_WORKERS" envDefault:"4"`
	PollInterval time.Duration `env:"ARENA_POLL_INTERVAL" envDefault:"500ms"`
	MaxMoves     int           `env:"ARENA_MAX_MOVES"     envDefault:"1000"`
	OtelEndpoint string        `env:"ARENA_OTEL_ENDPOINT"`
}

// Load reads an optional .env file, then parses and validates the
// environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load dotenv: %w", err)
		}
		slog.Debug("No .env file found, using environment variables")
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MatchWorkers < 1 {
		return fmt.Errorf("ARENA_MATCH_WORKERS must be positive, got %d", c.MatchWorkers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("ARENA_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.MaxMoves < 1 {
		return fmt.Errorf("ARENA_MAX_MOVES must be positive, got %d", c.MaxMoves)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level; Validate has already rejected
// unknown names.
func (c Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("ARENA_LOG_LEVEL: %w", err)
	}
	return level, nil
}
