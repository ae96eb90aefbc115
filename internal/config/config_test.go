package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.UnlockRadiusMeters != 50 {
		t.Errorf("UnlockRadiusMeters = %v", cfg.UnlockRadiusMeters)
	}
	if cfg.Override {
		t.Error("override must default to false")
	}
	if cfg.GeminiTimeout != 20*time.Second {
		t.Errorf("GeminiTimeout = %v", cfg.GeminiTimeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("UNLOCK_OVERRIDE", "true")
	t.Setenv("UNLOCK_RADIUS_METERS", "75.5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != BackendRedis || cfg.RedisURL == "" {
		t.Errorf("unexpected backend config %q %q", cfg.StoreBackend, cfg.RedisURL)
	}
	if !cfg.Override {
		t.Error("expected override from env")
	}
	if cfg.UnlockRadiusMeters != 75.5 {
		t.Errorf("UnlockRadiusMeters = %v", cfg.UnlockRadiusMeters)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			StoreBackend:       BackendSQLite,
			DBPath:             "x.db",
			ArchiveDir:         "archive",
			UnlockRadiusMeters: 50,
			SearchRadiusMeters: 2000,
			QuestCount:         4,
			DefaultPlayerID:    "demo",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.StoreBackend = "mongo" }, "STORE_BACKEND"},
		{"redis without url", func(c *Config) { c.StoreBackend = BackendRedis }, "REDIS_URL"},
		{"zero radius", func(c *Config) { c.UnlockRadiusMeters = 0 }, "UNLOCK_RADIUS_METERS"},
		{"zero quests", func(c *Config) { c.QuestCount = 0 }, "QUEST_COUNT"},
		{"no player", func(c *Config) { c.DefaultPlayerID = "" }, "DEFAULT_PLAYER_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
