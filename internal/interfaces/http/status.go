package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"finsync/internal/domain/offline"
	"finsync/internal/domain/realtime"
)

// OutcomeSource reports the last load status per cache key
type OutcomeSource interface {
	Outcomes() []offline.Outcome
}

// ChannelState reports the realtime channel state
type ChannelState interface {
	State() realtime.State
}

// Connectivity reports the last known network state; ok is false before the first probe
type Connectivity interface {
	Last() (online, ok bool)
}

// RefreshTrigger requests an out-of-band refresh of every collection
type RefreshTrigger interface {
	Trigger()
}

// StatusHandler serves the local read-only view of the sync layer
type StatusHandler struct {
	outcomes OutcomeSource
	channel  ChannelState
	network  Connectivity
	store    offline.Store
	refresh  RefreshTrigger
	logger   zerolog.Logger
}

// NewStatusHandler wires the handler. refresh may be nil when no scheduler runs.
func NewStatusHandler(outcomes OutcomeSource, channel ChannelState, network Connectivity, store offline.Store, refresh RefreshTrigger, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		outcomes: outcomes,
		channel:  channel,
		network:  network,
		store:    store,
		refresh:  refresh,
		logger:   logger.With().Str("component", "status_api").Logger(),
	}
}

// Response DTOs

type StatusResponse struct {
	Online      *bool             `json:"online"`
	Realtime    realtime.State    `json:"realtime"`
	Collections []offline.Outcome `json:"collections"`
}

type CollectionResponse struct {
	Key       string    `json:"key"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	Bytes     int       `json:"bytes"`
}

// Routes mounts the handler's endpoints on a chi router
func (h *StatusHandler) Routes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/status", h.HandleStatus)
	r.Get("/collections", h.HandleListCollections)
	r.Get("/collections/{key}", h.HandleGetCollection)
	r.Post("/refresh", h.HandleRefresh)
}

// HandleHealth returns a simple health check response.
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus reports connectivity, channel state and the last load per cache key
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Realtime:    h.channel.State(),
		Collections: h.outcomes.Outcomes(),
	}
	if online, ok := h.network.Last(); ok {
		resp.Online = &online
	}
	if resp.Collections == nil {
		resp.Collections = []offline.Outcome{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListCollections lists cached entries without their values
func (h *StatusHandler) HandleListCollections(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.Keys(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Error listing cache keys")
		http.Error(w, "Failed to list collections", http.StatusInternalServerError)
		return
	}

	response := make([]CollectionResponse, 0, len(keys))
	for _, key := range keys {
		entry, err := h.store.Get(r.Context(), key)
		if errors.Is(err, offline.ErrNotFound) {
			continue
		}
		if err != nil {
			h.logger.Error().Err(err).Str("cache_key", key).Msg("Error reading cache entry")
			http.Error(w, "Failed to read collection", http.StatusInternalServerError)
			return
		}
		response = append(response, CollectionResponse{
			Key:       entry.Key,
			Version:   entry.Version,
			UpdatedAt: entry.UpdatedAt,
			Bytes:     len(entry.Value),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleGetCollection returns the cached JSON value exactly as stored
func (h *StatusHandler) HandleGetCollection(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	entry, err := h.store.Get(r.Context(), key)
	if errors.Is(err, offline.ErrNotFound) {
		http.Error(w, "Collection not cached", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("cache_key", key).Msg("Error reading cache entry")
		http.Error(w, "Failed to read collection", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache-Version", strconv.FormatInt(entry.Version, 10))
	w.Header().Set("Last-Modified", entry.UpdatedAt.UTC().Format(http.TimeFormat))
	w.Write(entry.Value)
}

// HandleRefresh queues a refresh of every collection
func (h *StatusHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.refresh == nil {
		http.Error(w, "Refresh scheduler disabled", http.StatusServiceUnavailable)
		return
	}
	h.refresh.Trigger()
	h.logger.Info().Msg("Manual refresh requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
