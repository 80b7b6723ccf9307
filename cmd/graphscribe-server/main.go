// Package main provides the graphscribe ingestion server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/graphscribe/internal/config"
	"github.com/raphaelgruber/graphscribe/internal/db"
	"github.com/raphaelgruber/graphscribe/internal/llm"
	"github.com/raphaelgruber/graphscribe/internal/metrics"
	"github.com/raphaelgruber/graphscribe/internal/server"
	"github.com/raphaelgruber/graphscribe/internal/service"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all graph data on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("starting graphscribe-server", "addr", cfg.ServerAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("GRAPHSCRIBE_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		logger.Warn("wiped all graph data")
	}
	cancel()
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	model, err := llm.NewModel(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to create LLM model", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	extractor := llm.NewExtractor(model, collector, logger)
	tasks := service.NewTaskManager(logger)
	writer := service.NewGraphWriter(dbClient, collector, logger)
	builder := service.NewGraphBuilder(tasks, extractor, writer, service.BuilderOptions{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Concurrency:  cfg.BuildConcurrency,
		ChunkDelay:   cfg.ChunkDelay,
	}, logger)
	streams := service.NewStreamManager(extractor, writer, collector, service.StreamOptions{
		BatchSize:    cfg.StreamBatchSize,
		SendInterval: cfg.StreamSendInterval,
	}, logger)

	srv := server.New(tasks, builder, streams, dbClient, collector, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // Long for LLM-backed ingestion
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("API available", "addr", cfg.ServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Stop the streams first so buffered events reach the store.
	srv.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
