package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/chart-consensus/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/chart-consensus/internal/adapter/kafka"
	"github.com/couchcryptid/chart-consensus/internal/adapter/postgres"
	"github.com/couchcryptid/chart-consensus/internal/adapter/rereader"
	"github.com/couchcryptid/chart-consensus/internal/config"
	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/couchcryptid/chart-consensus/internal/observability"
	"github.com/couchcryptid/chart-consensus/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconciler := domain.NewReconciler(
		domain.WithTolerances(cfg.Tolerances),
		domain.WithTextMatch(cfg.TextMatch),
		domain.WithWorkers(cfg.ReconcileWorkers),
	)

	// The re-read service is optional; jobs may still carry their own repair series.
	engineOpts := []pipeline.EngineOption{pipeline.WithRepair(cfg.RepairEnabled)}
	if cfg.RereaderURL != "" {
		client := rereader.NewClient(cfg.RereaderURL, cfg.RereaderTimeout, metrics, logger)
		engineOpts = append(engineOpts, pipeline.WithRereader(rereader.NewCachedRereader(client, cfg.RereaderCacheSize, metrics)))
		logger.Info("rereader enabled", "url", cfg.RereaderURL, "cache_size", cfg.RereaderCacheSize, "timeout", cfg.RereaderTimeout)
	} else {
		logger.Info("rereader disabled")
	}
	engine := pipeline.NewEngine(reconciler, logger, metrics, engineOpts...)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(engine)

	var loader pipeline.BatchLoader = writer
	var store *postgres.Store
	if cfg.DatabaseURL != "" {
		store, err = postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := store.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		loader = pipeline.NewFanoutLoader(writer, store)
		logger.Info("postgres store enabled")
	}

	p := pipeline.New(reader, transformer, loader, logger, metrics, cfg.BatchSize)
	checkers := []sharedobs.ReadinessChecker{p}
	if store != nil {
		checkers = append(checkers, store)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, logger, checkers...)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start consensus pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
