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
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", s.handleHealth)

		// Event endpoints (ingest + inspection)
		r.Route("/events", func(r chi.Router) {
			r.Post("/", s.handleIngestEvent)
			r.Get("/", s.handleListEvents)
			r.Get("/{id}", s.handleGetEvent)
		})

		// Order endpoints (read-only; orders mutate through reconciliation)
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.handleListOrders)
			r.Get("/{orderNo}", s.handleGetOrder)
		})

		// Inventory endpoints
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", s.handleListInventory)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetInventoryItem)
				r.Get("/ledger", s.handleListLedger)
				r.Post("/adjust", s.handleAdjustInventory)
			})
		})

		// Alert endpoints
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/{id}/acknowledge", s.handleAcknowledgeAlert)
			r.Post("/{id}/resolve", s.handleResolveAlert)
		})

		// Operator action log
		r.Get("/audit", s.handleListAudit)

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Put("/status", s.handleSetDeviceStatus)
			})
		})
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
