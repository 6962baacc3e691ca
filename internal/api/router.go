package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/universe", s.handleGetUniverse)
		r.Post("/apply", s.handleApply)

		r.Route("/registries/{name}", func(r chi.Router) {
			r.Get("/", s.handleExportRegistry)
			r.Put("/entities", s.handleImportEntity)
			r.Post("/entities/{id}", s.handleCreateEntity)
			r.Delete("/entities/{id}", s.handleDeleteEntity)
		})
		r.Post("/cues/{id}/persist-defaults", s.handlePersistCueDefaults)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.cfg.WebSocket.Path == "" {
		return "/ws"
	}
	return s.cfg.WebSocket.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ctrl.ClientCount(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "stopped",
			"version": s.version,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"clients": clients,
	})
}
