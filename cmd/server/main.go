package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/clanadmin/internal/api"
	"github.com/mcoot/clanadmin/internal/config"
	"github.com/mcoot/clanadmin/internal/factory"
	"github.com/mcoot/clanadmin/internal/telemetry"
)

func main() {
	// Load configuration; a missing file falls back to defaults plus environment
	configPath := os.Getenv("CLANADMIN_CONFIG")
	if configPath == "" {
		configPath = "clanadmin.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("trace shutdown failed", slog.String("error", err.Error()))
		}
	}()

	app, err := factory.New(factory.Config{Settings: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if !app.AuthService.Enabled() {
		logger.Warn("no staff tokens configured; mutating routes will reject every request")
	}
	logger.Info("application ready",
		slog.String("storage", cfg.Storage.Type),
		slog.String("group_id", cfg.WOM.GroupID),
		slog.Bool("scheduler", cfg.Scheduler.Enabled),
		slog.Bool("discord", app.Notify != nil),
	)

	router := api.NewRouter(api.RouterConfig{
		Logger:        logger,
		AuthService:   app.AuthService,
		Runner:        app.Runner,
		RosterService: app.RosterService,
	})
	server := api.NewServer(router, cfg.Server, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		return app.Scheduler.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
