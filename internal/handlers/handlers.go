// Package handlers serves the bridge's read-only status endpoint.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// StatusHandler exposes a Board over HTTP.
type StatusHandler struct {
	board  *Board
	logger *zap.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(board *Board, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{board: board, logger: logger}
}

// ============================================================================
// Response Helpers
// ============================================================================

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]interface{}{
		"error": message,
		"code":  status,
	})
}

// ============================================================================
// Status Endpoints
// ============================================================================

// Routes builds the router for the status endpoint.
func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Get("/status/media", h.Media)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusNotFound, "not found")
	})

	return r
}

// Health reports liveness.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "cockpit-bridge",
	})
}

// Status returns the full board.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.board.Report())
}

// Media returns the last snapshot sent, or 404 when none has been sent yet.
func (h *StatusHandler) Media(w http.ResponseWriter, r *http.Request) {
	rep := h.board.Report()
	if rep.LastSnapshot == nil {
		errorResponse(w, http.StatusNotFound, "no snapshot sent yet")
		return
	}
	jsonResponse(w, http.StatusOK, rep.LastSnapshot)
}
