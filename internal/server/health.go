package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"parcelmail/internal/workers"
)

// StatsSource exposes the poller's counters to the status endpoint.
type StatsSource interface {
	Snapshot() workers.Stats
}

// Health is the small observability surface: GET /health for liveness,
// GET /status for the cycle counters.
type Health struct {
	server *http.Server
	logger *slog.Logger
}

func NewHealth(addr string, stats StatsSource, logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}

	return &Health{
		server: &http.Server{
			Addr:         addr,
			Handler:      routes(stats),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func routes(stats StatsSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, stats.Snapshot())
	})
	return r
}

// Start runs the listener in the background. Startup failures other than
// a clean shutdown are logged, not fatal: the pipeline works without the
// health surface.
func (h *Health) Start() {
	go func() {
		h.logger.Info("health server listening", "addr", h.server.Addr)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("health server failed", "error", err)
		}
	}()
}

// Shutdown stops the listener, waiting up to the given timeout for
// in-flight requests.
func (h *Health) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Warn("health server shutdown timed out", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
