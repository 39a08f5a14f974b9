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

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	// Prometheus exposition
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/processes", func(r chi.Router) {
			r.Get("/", s.handleListProcesses)
			r.Post("/", s.handleCreateProcess)
			r.Get("/types", s.handleListProcessTypes)
			r.Get("/conflicts", s.handleCheckConflicts)
			r.Post("/stop-all", s.handleStopAll)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProcess)
				r.Delete("/", s.handleRemoveProcess)
				r.Get("/status", s.handleProcessStatus)
				r.Get("/progress", s.handleProcessProgress)
				r.Post("/start", s.handleStartProcess)
				r.Post("/stop", s.handleStopProcess)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/channels", s.handleListChannels)
			r.Get("/history", s.handleEventHistory)
			r.Get("/archive", s.handleEventArchive)
		})

		r.Get("/equipment", s.handleEquipment)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
