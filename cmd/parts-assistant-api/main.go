// Package main provides the parts assistant API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/machineparts/parts-assistant/internal/app"
	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/observability"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Msg("Starting parts assistant API")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.Open(startCtx, cfg, logger, app.WithMigrations())
	cancelStart()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to release resources")
		}
	}()

	if cfg.Assistant.JanitorInterval > 0 {
		janitorCtx, stopJanitor := context.WithCancel(context.Background())
		janitorDone := make(chan struct{})
		go func() {
			defer close(janitorDone)
			a.Janitor.Run(janitorCtx)
		}()
		// Runs before a.Close.
		defer func() {
			stopJanitor()
			<-janitorDone
		}()
	}

	router := NewRouter(a, RouterConfig{RequestTimeout: cfg.Server.WriteTimeout})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}
