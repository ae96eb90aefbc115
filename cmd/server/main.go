package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/stampquest/internal/archive"
	"github.com/playperu/stampquest/internal/badges"
	"github.com/playperu/stampquest/internal/config"
	"github.com/playperu/stampquest/internal/database"
	"github.com/playperu/stampquest/internal/genai"
	"github.com/playperu/stampquest/internal/handler/health"
	"github.com/playperu/stampquest/internal/migrations"
	"github.com/playperu/stampquest/internal/places"
	"github.com/playperu/stampquest/internal/quest"
	"github.com/playperu/stampquest/internal/server"
	"github.com/playperu/stampquest/internal/stampquest"
	"github.com/playperu/stampquest/internal/store"
	"github.com/playperu/stampquest/internal/telemetry"
)

const serviceName = "stampquest"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())
	if cfg.OTelEndpoint != "" {
		logger.Info("exporting traces", "endpoint", cfg.OTelEndpoint)
	}

	// --- Storage ---
	checks := map[string]health.Checker{}
	repo, closeRepo, err := openRepository(ctx, cfg, logger, checks)
	if err != nil {
		return err
	}
	defer closeRepo()

	arch, err := archive.New(cfg.ArchiveDir)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	checks["archive"] = health.CheckFunc(func(context.Context) error {
		_, err := os.Stat(cfg.ArchiveDir)
		return err
	})

	rules, err := badges.Load(cfg.BadgeRulesPath)
	if err != nil {
		return fmt.Errorf("loading badge rules: %w", err)
	}

	// --- Capabilities ---
	broker := server.NewBroker()
	deps := quest.Deps{Repo: repo, Archive: arch, Events: broker}
	if cfg.GeminiAPIKey != "" {
		ai := genai.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.GeminiTimeout, logger)
		deps.Riddles = ai
		deps.Vision = ai
		logger.Info("gemini enabled", "model", cfg.GeminiModel)
	} else {
		logger.Warn("GEMINI_API_KEY not set, riddles fall back and photos need override")
	}
	if cfg.PlacesAPIKey != "" {
		deps.Places = places.New(cfg.PlacesAPIKey, cfg.PlacesBaseURL, cfg.PlacesTimeout, logger)
	} else {
		logger.Warn("PLACES_API_KEY not set, sessions need explicit landmarks")
	}
	if cfg.Override {
		logger.Warn("unlock override enabled, proximity and photo checks are bypassed")
	}

	svc := quest.New(quest.Config{
		UnlockRadiusMeters: cfg.UnlockRadiusMeters,
		Override:           cfg.Override,
		QuestCount:         cfg.QuestCount,
		SearchRadiusMeters: cfg.SearchRadiusMeters,
		EvaluationTimeout:  cfg.GeminiTimeout,
		BadgeRules:         rules,
	}, deps, logger)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Quest:           svc,
		Broker:          broker,
		Checks:          checks,
		DefaultPlayerID: cfg.DefaultPlayerID,
		SPADir:          cfg.SPADir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// openRepository connects the configured document backend and registers
// its health check.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, checks map[string]health.Checker) (stampquest.Repository, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("connected to redis")
		s := store.NewRedisStore(rdb, logger)
		checks["redis"] = health.CheckFunc(s.Ping)
		return s, func() { rdb.Close() }, nil

	default:
		db, err := database.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to sqlite: %w", err)
		}
		if err := migrations.RunContext(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("connected to sqlite", "path", cfg.DBPath)
		s := store.NewDocStore(db)
		checks["sqlite"] = health.CheckFunc(s.Ping)
		return s, func() { db.Close() }, nil
	}
}
