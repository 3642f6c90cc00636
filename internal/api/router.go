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

		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", s.handleListPlaylists)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPlaylist)
				r.Get("/parts", s.handleListParts)
				r.Put("/parts", s.handleIngestParts)
				r.Get("/timeline", s.handleGetTimeline)

				r.Post("/activate", s.handleActivate)
				r.Post("/deactivate", s.handleDeactivate)
				r.Post("/next", s.handleSetNext)
				r.Post("/take", s.handleTake)
				r.Post("/hold", s.handleToggleHold)
				r.Post("/adlibs", s.handleInsertAdLib)
				r.Post("/stop", s.handleStopLayers)
				r.Post("/playback", s.handlePlayback)
				r.Post("/regenerate", s.handleRegenerate)
			})
		})

		r.Get("/audit", s.handleListAuditLogs)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"studio":  s.studioID,
	})
}
