package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// StartServer starts the status server in the background.
func StartServer(addr string, handler http.Handler, logger zerolog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Status server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Status server error")
		}
	}()

	return srv
}

// GracefulShutdown stops the daemon's components in reverse start order.
func GracefulShutdown(srv *http.Server, deps *Dependencies, logger zerolog.Logger, timeout time.Duration) {
	logger.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Error shutting down status server")
		}
	}

	if deps.Scheduler != nil {
		deps.Scheduler.Stop(timeout)
	}

	if deps.CacheListener != nil {
		deps.CacheListener.Stop()
	}

	deps.Monitor.Stop()

	if err := deps.Channel.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down realtime channel")
	}

	deps.Close()
	logger.Info().Msg("Stopped")
}
