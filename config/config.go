// Package config loads server configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"

	"terminus-realm/zoneserver/gridcache"
)

var ErrInvalidConfig = errors.New("invalid config")

// Storage backends
const (
	DBTypeJSON     = "json"
	DBTypePostgres = "postgres"
	DBTypeSQLite   = "sqlite"
)

// Metrics exporters
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

// Config is the full server configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DBType      string `env:"DB_TYPE" envDefault:"json"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"host=localhost user=terminus password=terminus dbname=terminus_realm sslmode=disable"`
	DBFile      string `env:"DB_FILE" envDefault:"db.json"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"terminus.db"`
	BoardsFile  string `env:"BOARDS_FILE"`

	// WorldSeed makes the world reproducible when set.
	WorldSeed       string  `env:"WORLD_SEED"`
	ConnectionBase  float64 `env:"CONNECTION_BASE" envDefault:"0.95"`
	ConnectionDecay float64 `env:"CONNECTION_DECAY" envDefault:"0.8"`
	ConnectionFloor float64 `env:"CONNECTION_FLOOR" envDefault:"0.15"`
	PersistZones    bool    `env:"PERSIST_ZONES" envDefault:"false"`

	GridCache gridcache.Config

	MetricsExporter string `env:"METRICS_EXPORTER" envDefault:"none"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	switch c.DBType {
	case DBTypeJSON, DBTypePostgres, DBTypeSQLite:
	default:
		return fmt.Errorf("%w: DB_TYPE %q", ErrInvalidConfig, c.DBType)
	}
	switch c.MetricsExporter {
	case ExporterNone, ExporterStdout, ExporterPrometheus:
	default:
		return fmt.Errorf("%w: METRICS_EXPORTER %q", ErrInvalidConfig, c.MetricsExporter)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, _, err := c.seed(); err != nil {
		return err
	}
	if err := c.GridCache.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Seed returns the world seed and whether one was configured.
func (c Config) Seed() (int64, bool) {
	seed, ok, _ := c.seed()
	return seed, ok
}

func (c Config) seed() (int64, bool, error) {
	s := strings.TrimSpace(c.WorldSeed)
	if s == "" {
		return 0, false, nil
	}
	seed, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: WORLD_SEED %q", ErrInvalidConfig, c.WorldSeed)
	}
	return seed, true, nil
}

// Level returns the configured slog level.
func (c Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalidConfig, s)
	}
	return level, nil
}
