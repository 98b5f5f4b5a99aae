package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tarihci20/renewals/internal/dashboard"
	"github.com/tarihci20/renewals/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// Service exposes the dashboard operations required by the handler.
type Service interface {
	Dashboard(ctx context.Context) (dashboard.View, error)
	Refresh(ctx context.Context) (dashboard.View, error)
}

// RefreshEnqueuer schedules an asynchronous dashboard rebuild.
type RefreshEnqueuer interface {
	EnqueueDashboardWarmup(ctx context.Context, reason string) error
}

// Handler serves the public dashboard endpoints plus the admin
// refresh hook.
type Handler struct {
	logger   *slog.Logger
	service  Service
	enqueuer RefreshEnqueuer
	now      func() time.Time
}

// NewHandler constructs a dashboard handler. enqueuer may be nil, in
// which case refresh requests rebuild synchronously.
func NewHandler(logger *slog.Logger, service Service, enqueuer RefreshEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		enqueuer: enqueuer,
		now:      time.Now,
	}
}

func (h *Handler) loadView(w http.ResponseWriter, r *http.Request) (dashboard.View, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := h.service.Dashboard(ctx)
	if err != nil {
		h.logger.Error("load dashboard failed", "error", err)
		httpx.RespondError(w, err)
		return dashboard.View{}, false
	}
	return view, true
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadView(w, r)
	if !ok {
		return
	}

	if view.Version > 0 {
		etag := fmt.Sprintf("%q", fmt.Sprintf("renewals-dash-v%d", view.Version))
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadView(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":       view.Leaderboard,
		"generatedAt": view.GeneratedAt,
	})
}

func (h *Handler) handleOverall(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadView(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, view.Overall)
}

func (h *Handler) handleClasses(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadView(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":       view.Classes,
		"generatedAt": view.GeneratedAt,
	})
}

// handleRefresh schedules a rebuild through the job queue, falling
// back to a synchronous rebuild when no queue is wired.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueDashboardWarmup(r.Context(), "manual refresh"); err != nil {
			h.logger.Error("enqueue dashboard refresh failed", "error", err)
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	view, err := h.service.Refresh(ctx)
	if err != nil {
		h.logger.Error("refresh dashboard failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}
