package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shelfline/shelfline/internal/app"
	"github.com/shelfline/shelfline/internal/config"
	"github.com/shelfline/shelfline/internal/logger"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)

	app, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		panic(err)
	}
	defer func() {
		closeErr := app.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("goal service started", "env", cfg.AppEnv, "driver", cfg.DBDriver, "sweep_interval", cfg.SweepInterval)

	// The transport layer and the reading tracker call into the services;
	// this process owns the background expiration sweep.
	app.Sweeper.Run(ctx)

	slog.Info("goal service shutting down")
}
