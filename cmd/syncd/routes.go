package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	httphandlers "finsync/internal/interfaces/http"
	"finsync/internal/shared/config"
	"finsync/internal/shared/middleware"
)

// SetupRoutes builds the status API router with its middleware stack.
func SetupRoutes(deps *Dependencies, cfg *config.Config, logger zerolog.Logger) http.Handler {
	var trigger httphandlers.RefreshTrigger
	if deps.Scheduler != nil {
		trigger = deps.Scheduler
	}

	status := httphandlers.NewStatusHandler(deps.Engine, deps.Channel, deps.Monitor, deps.Store, trigger, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.AllowedHosts(cfg.Status.AllowedHosts))
	r.Use(middleware.Logging(logger))
	if cfg.Telemetry.Enabled {
		r.Use(middleware.Telemetry(cfg.Telemetry.ServiceName))
		r.Use(middleware.Tracing)
	}
	status.Routes(r)

	return r
}
