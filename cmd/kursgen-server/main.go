// Package main provides the kursgen HTTP job server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/kursgen/internal/app"
	"github.com/raphaelgruber/kursgen/internal/config"
	"github.com/raphaelgruber/kursgen/internal/server"
)

const version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all jobs and chunks on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Dual output: stderr text + file JSON
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("kursgen-server starting",
		"version", version,
		"backend", cfg.Backend,
		"port", cfg.ServerPort,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.Open(openCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("failed to close", "error", err)
		}
		logger.Info("server stopped")
	}()

	if *wipeDB || os.Getenv("KURSGEN_WIPE_DB") == "true" {
		wipeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := a.WipeData(wipeCtx)
		cancel()
		if err != nil {
			logger.Error("failed to wipe database", "error", err)
			return
		}
		logger.Warn("database wiped")
	}

	if err := a.Start(); err != nil {
		logger.Error("failed to start workers", "error", err)
		return
	}

	srv := server.New(version, a.Orchestrator, a.Metrics, logger)
	if err := srv.Run(ctx, ":"+cfg.ServerPort); err != nil {
		logger.Error("server error", "error", err)
	}
}
