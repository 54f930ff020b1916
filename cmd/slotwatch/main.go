// slotwatch connects to both feeds and prints the latest slot of each one,
// and which is ahead, every time either moves forward.
// Usage: go run ./cmd/slotwatch --duration 1h
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/slotrace/internal/config"
	"github.com/rickgao/slotrace/internal/runner"
	"github.com/rickgao/slotrace/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty uses defaults and environment)")
	envPath := flag.String("env", ".env", "dotenv file loaded before the config")
	duration := flag.Duration("duration", time.Hour, "how long to watch")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := config.LoadDotEnv(*envPath); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Run.Duration = *duration
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	logger.Info("starting slot watch",
		cfg.Feeds.A.Name, cfg.Feeds.A.URL,
		cfg.Feeds.B.Name, cfg.Feeds.B.URL,
		"duration", cfg.Run.Duration,
	)

	logger.Debug("starting slotwatch", version.LogAttrs()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := runner.New(cfg, logger).Watch(ctx, os.Stdout); err != nil {
		logger.Error("watch failed", "error", err)
		os.Exit(1)
	}
}
