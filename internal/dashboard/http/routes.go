package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the public dashboard endpoints. CSV export is
// rate limited per client IP since building the report bypasses
// conditional requests.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/", h.handleDashboard)
		r.Get("/leaderboard", h.handleLeaderboard)
		r.Get("/overall", h.handleOverall)
		r.Get("/classes", h.handleClasses)

		exportLimiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
		r.With(exportLimiter).Get("/export.csv", h.handleExportCSV)
	})
}

// MountAdminRoutes registers the endpoints that mutate dashboard
// state. Callers mount these behind the admin token guard.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/dashboard/refresh", h.handleRefresh)
}
