package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/angar2/cola-chat-back/internal/api"
	"github.com/angar2/cola-chat-back/internal/chat"
	"github.com/angar2/cola-chat-back/internal/config"
	"github.com/angar2/cola-chat-back/internal/store"
	"github.com/angar2/cola-chat-back/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	stores, err := store.Open(ctx, cfg.DatabaseURL, cfg.RedisURL, cfg.MessageTTL())
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection failed")
	}
	defer stores.Close()
	logger.Info().
		Str("backend", stores.Backend()).
		Bool("redis", stores.Redis != nil).
		Msg("stores ready")

	hub := ws.NewHub(ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		IOTimeout:      cfg.SessionIOTimeout,
	}, logger)

	svc := chat.NewService(stores.Data, stores.Messages, hub, chat.Config{
		ExpiryDays:       cfg.RoomExpiryDays,
		LeaveGracePeriod: cfg.LeaveGracePeriod,
		PageSize:         cfg.MessagePageSize,
		BcryptCost:       cfg.BcryptCost,
		IOTimeout:        cfg.SessionIOTimeout,
	}, logger)
	defer svc.Close()

	router := api.NewRouter(logger, cfg, svc, stores, hub)

	// No WriteTimeout: websocket writes set their own deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting cola-chat server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()

	logger.Info().Int("open_connections", hub.ConnectionCount()).Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
