// slotrace races two slot feeds for a fixed window and reports which one
// delivers slots first and by how much.
// Usage: go run ./cmd/slotrace --config configs/slotrace.example.yaml
//
// Environment variables (used when the config leaves the feed URLs empty):
//
//	GRPC_URL  - Feed A endpoint (Yellowstone Geyser by default)
//	SHRED_URL - Feed B endpoint (Jito ShredStream proxy by default)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/slotrace/internal/config"
	"github.com/rickgao/slotrace/internal/metrics"
	"github.com/rickgao/slotrace/internal/report"
	"github.com/rickgao/slotrace/internal/runner"
	"github.com/rickgao/slotrace/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty uses defaults and environment)")
	envPath := flag.String("env", ".env", "dotenv file loaded before the config")
	duration := flag.Duration("duration", 0, "measurement window (overrides run.duration)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := config.LoadDotEnv(*envPath); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *duration > 0 {
		cfg.Run.Duration = *duration
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})).With("run_id", runID)
	slog.SetDefault(logger)

	logger.Info("starting slotrace", version.LogAttrs()...)
	logger.Info("race configured",
		"feed_a", cfg.Feeds.A.Name,
		"feed_a_kind", cfg.Feeds.A.Kind,
		"feed_b", cfg.Feeds.B.Name,
		"feed_b_kind", cfg.Feeds.B.Kind,
		"duration", cfg.Run.Duration,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	m := metrics.New()
	m.RegisterFeeds(cfg.Feeds.A.Name, cfg.Feeds.B.Name)

	var metricsServer *http.Server
	if cfg.Metrics.Port > 0 {
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: m.Handler(cfg.Metrics.Path),
		}
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	res, err := runner.New(cfg, logger, runner.WithTelemetry(m)).Race(ctx)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if err != nil {
		logger.Error("race failed", "error", err)
		os.Exit(1)
	}

	fmt.Print(report.Summary(res, cfg.Names(), runID))
}
