package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	// Prometheus scrape endpoint
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Read-only device state
		r.Get("/device", s.handleGetDevice)
		r.Get("/status", s.handleGetStatus)
		r.Route("/observations", func(r chi.Router) {
			r.Get("/", s.handleListObservations)
			r.Get("/{key}", s.handleGetObservation)
		})

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/snapshot", s.handleSnapshotImage)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/commands/{action}", s.handleCommand)

			r.Route("/history", func(r chi.Router) {
				r.Get("/snapshots", s.handleSnapshotHistory)
				r.Get("/alarms", s.handleAlarmHistory)
				r.Get("/unlocks", s.handleUnlockHistory)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
//
// The status is "ok" while the device is set up and its last refresh
// succeeded, otherwise "degraded". The response is always 200 so the
// process is not restarted for a cloud outage.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := "ok"
	if !s.device.Healthy() {
		state = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  state,
		"ready":   s.device.Ready(),
		"version": s.version,
	})
}
