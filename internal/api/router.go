package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-tpuart/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", metrics.Handler())

	// Bus monitor page
	r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.cfg.PanelDir)))
	r.Handle("/panel", http.RedirectHandler("/panel/", http.StatusMovedPermanently))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/listen", func(r chi.Router) {
			r.Get("/", s.handleGetListen)
			r.Post("/", s.handleAddListen)
			r.Put("/broadcast", s.handleSetBroadcast)
		})

		r.Get("/datapoints", s.handleListDatapoints)

		r.Route("/groups/{main}/{middle}/{sub}", func(r chi.Router) {
			r.Get("/", s.handleGetGroup)
			r.Post("/", s.handleSendGroup)
			r.Get("/read", s.handleReadGroup)
			r.Get("/history", s.handleGroupHistory)
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/groups", s.handleListGroupAddresses)
			r.Get("/devices", s.handleListDevices)
		})
		r.Get("/sent", s.handleListSent)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the gateway health status.
//
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.gateway.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"gateway": health,
	})
}
