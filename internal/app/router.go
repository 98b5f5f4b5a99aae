package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tarihci20/renewals/internal/auth"
	dashboardhttp "github.com/tarihci20/renewals/internal/dashboard/http"
	"github.com/tarihci20/renewals/internal/observability"
	"github.com/tarihci20/renewals/internal/roster"
	"github.com/tarihci20/renewals/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Guard            *auth.TokenGuard
	RosterHandler    *roster.Handler
	DashboardHandler *dashboardhttp.Handler
	JobsHandler      *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi router serving the renewal dashboard.
// Dashboard reads stay public; everything that mutates the roster or
// the cache sits behind the admin token guard.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		params.DashboardHandler.MountRoutes(api)
		if params.JobsHandler != nil {
			api.Route("/jobs", params.JobsHandler.MountRoutes)
		}

		api.Group(func(priv chi.Router) {
			priv.Use(params.Guard.Require)
			priv.Route("/roster", params.RosterHandler.MountRoutes)
			priv.Route("/admin", params.DashboardHandler.MountAdminRoutes)
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
