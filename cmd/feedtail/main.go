// feedtail connects to one feed and prints every new slot with the local
// receive time in Unix milliseconds.
// Usage: go run ./cmd/feedtail --feed b --duration 1m
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/slotrace/internal/config"
	"github.com/rickgao/slotrace/internal/race"
	"github.com/rickgao/slotrace/internal/runner"
	"github.com/rickgao/slotrace/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty uses defaults and environment)")
	envPath := flag.String("env", ".env", "dotenv file loaded before the config")
	which := flag.String("feed", "b", "feed to tail: a or b")
	duration := flag.Duration("duration", 0, "how long to tail (overrides run.duration)")
	flag.Parse()

	// Logs go to stderr so stdout carries only slots
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var f race.Feed
	switch *which {
	case "a":
		f = race.FeedA
	case "b":
		f = race.FeedB
	default:
		logger.Error("feed must be a or b", "feed", *which)
		os.Exit(1)
	}

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
	if err := cfg.ValidateFeed(*which); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	logger.Debug("starting feedtail", version.LogAttrs()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := runner.New(cfg, logger).Tail(ctx, f, os.Stdout); err != nil {
		logger.Error("tail failed", "feed", cfg.Names()[f], "error", err)
		os.Exit(1)
	}
}
