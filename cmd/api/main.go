package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"celebSnap/internal/config"
	"celebSnap/internal/generator"
	"celebSnap/internal/logging"
	"celebSnap/internal/media"
	"celebSnap/internal/server"
	"celebSnap/internal/studio"
	"celebSnap/internal/watermark"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.Env)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	backend, err := generator.NewGenAIBackend(ctx, generator.GenAIConfig{
		APIKey:    cfg.Model.APIKey,
		Model:     cfg.Model.Name,
		UseVertex: cfg.Model.UseVertex,
		Project:   cfg.Model.Project,
		Location:  cfg.Model.Location,
		BaseURL:   cfg.Model.BaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init model backend")
	}
	logger.Info().
		Str("model", backend.Model()).
		Bool("vertex", cfg.Model.UseVertex).
		Msg("model backend ready")

	client := generator.NewClient(backend, generator.Options{
		Timeout:       cfg.Model.CallTimeout,
		MaxRetries:    cfg.Model.MaxRetries,
		Limiter:       generator.NewLimiter(cfg.Model.MinInterval),
		MaxPacingWait: cfg.Model.MaxPacingWait,
		Logger:        logger,
	})

	studioHandler := studio.Handler{
		Studio: studio.NewService(client, watermark.DefaultOptions(), logger),
		Limits: media.Limits{
			MaxFileBytes: cfg.Upload.MaxFileBytes,
			MaxSide:      cfg.Upload.MaxSide,
		},
	}

	srv := server.New(server.Options{
		Port:         cfg.Port,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}, studioHandler, logger)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownChan
		logger.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
