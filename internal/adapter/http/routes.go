package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vanguard-ai/vanguard/internal/adapter/ws"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub) {
	r.Get("/health", h.Health)
	r.Get("/ws", hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Scheduler
		r.Post("/heartbeat", h.RunHeartbeat)
		r.Get("/runs", h.ListRuns)

		// Missions
		r.Post("/missions/run", h.RunMission)

		// Budget ledger
		r.Get("/cost/stats", h.CostStats)
		r.Get("/cost/thresholds", h.GetThresholds)
		r.Put("/cost/thresholds", h.UpdateThresholds)
		r.Get("/cost/{agentID}/summary", h.CostSummary)
		r.Get("/cost/{agentID}/slowdown", h.Slowdown)
	})
}
