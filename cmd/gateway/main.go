package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/modelroute/gateway/internal/auth"
	"github.com/modelroute/gateway/internal/config"
	"github.com/modelroute/gateway/internal/router"
	"github.com/modelroute/gateway/internal/server"
	"github.com/modelroute/gateway/internal/storage"
	"github.com/modelroute/gateway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := os.Getenv("MR_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init("modelroute-gateway", logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	var routerOpts []router.Option
	if cfg.Storage.Path != "" {
		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("Failed to open usage store: %v", err)
		}
		defer store.Close()
		routerOpts = append(routerOpts, router.WithStore(store))
	}

	rt, err := router.New(cfg, logger, routerOpts...)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	gatekeeper := auth.New(cfg.Auth.Enabled, logger)
	srv := server.New(cfg, logger, rt, gatekeeper)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-reload the service set on config file changes.
	watcher := config.NewWatcher(configPath, logger)
	go watcher.Watch(ctx, func(next *config.Config) {
		if err := rt.Reload(next); err != nil {
			logger.Error("config reload rejected", slog.String("error", err.Error()))
		}
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info("gateway started",
		slog.Int("services", len(cfg.Services)),
		slog.Bool("auth", cfg.Auth.Enabled))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("gateway shutdown complete")
}
