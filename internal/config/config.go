package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../frontend/out"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	DBPath       string `env:"DB_PATH" envDefault:"data/stampquest.db"`
	RedisURL     string `env:"REDIS_URL"`
	ArchiveDir   string `env:"ARCHIVE_DIR" envDefault:"data/archive"`

	UnlockRadiusMeters float64 `env:"UNLOCK_RADIUS_METERS" envDefault:"50"`
	Override           bool    `env:"UNLOCK_OVERRIDE" envDefault:"false"`
	DefaultPlayerID    string  `env:"DEFAULT_PLAYER_ID" envDefault:"demo"`
	QuestCount         int     `env:"QUEST_COUNT" envDefault:"4"`
	SearchRadiusMeters float64 `env:"SEARCH_RADIUS_METERS" envDefault:"2000"`
	BadgeRulesPath     string  `env:"BADGE_RULES_PATH"`

	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	GeminiModel   string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiBaseURL string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiTimeout time.Duration `env:"GEMINI_TIMEOUT" envDefault:"20s"`

	PlacesAPIKey  string        `env:"PLACES_API_KEY"`
	PlacesBaseURL string        `env:"PLACES_BASE_URL" envDefault:"https://places.googleapis.com"`
	PlacesTimeout time.Duration `env:"PLACES_TIMEOUT" envDefault:"10s"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of sqlite, redis", c.StoreBackend))
	}
	if c.UnlockRadiusMeters <= 0 {
		errs = append(errs, errors.New("UNLOCK_RADIUS_METERS must be positive"))
	}
	if c.SearchRadiusMeters <= 0 {
		errs = append(errs, errors.New("SEARCH_RADIUS_METERS must be positive"))
	}
	if c.QuestCount < 1 {
		errs = append(errs, errors.New("QUEST_COUNT must be at least 1"))
	}
	if c.DefaultPlayerID == "" {
		errs = append(errs, errors.New("DEFAULT_PLAYER_ID must not be empty"))
	}
	if c.ArchiveDir == "" {
		errs = append(errs, errors.New("ARCHIVE_DIR must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
