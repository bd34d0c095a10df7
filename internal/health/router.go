package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tibber-export/internal/supervisor"
)

// Probe status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "unavailable"
)

// response is the /healthz body.
type response struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	supervisor.Stats
}

// Handler returns the probe router with its middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)

	return r
}

// handleHealth reports 200 while subscribed and 503 in every other state.
//
// This is a readiness signal: every stale reconnect passes briefly through
// tearing_down and connecting. Use it as a liveness probe only with a
// failure threshold longer than a reconnect (see supervisor.retry.delay).
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.source.Stats()

	status, code := StatusOK, http.StatusOK
	if stats.State != supervisor.StateSubscribed {
		status, code = StatusDegraded, http.StatusServiceUnavailable
	}

	writeJSON(w, code, response{
		Status:  status,
		Version: s.version,
		Stats:   stats,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}
