package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tarihci20/renewals/internal/dashboard"
	"github.com/tarihci20/renewals/internal/stats"
)

type stubService struct {
	view         dashboard.View
	err          error
	refreshed    dashboard.View
	refreshErr   error
	refreshCalls int
}

func (s *stubService) Dashboard(ctx context.Context) (dashboard.View, error) {
	if s.err != nil {
		return dashboard.View{}, s.err
	}
	return s.view, nil
}

func (s *stubService) Refresh(ctx context.Context) (dashboard.View, error) {
	s.refreshCalls++
	if s.refreshErr != nil {
		return dashboard.View{}, s.refreshErr
	}
	return s.refreshed, nil
}

type stubEnqueuer struct {
	reasons []string
	err     error
}

func (e *stubEnqueuer) EnqueueDashboardWarmup(ctx context.Context, reason string) error {
	if e.err != nil {
		return e.err
	}
	e.reasons = append(e.reasons, reason)
	return nil
}

func demoView() dashboard.View {
	return dashboard.View{
		Leaderboard: []stats.TeacherStat{
			{TeacherID: 1, TeacherName: "Ayşe Yılmaz", Branch: "Matematik", StudentCount: 2, RenewedCount: 1, RenewalPercentage: 50},
			{TeacherID: 2, TeacherName: "Mehmet Demir", Branch: "Fen Bilimleri", StudentCount: 1, RenewedCount: 0, RenewalPercentage: 0},
		},
		Overall: stats.OverallStats{TotalStudents: 3, RenewedStudents: 1, NotRenewedStudents: 2, Percentage: 33},
		Classes: []stats.ClassStat{
			{Name: "5. Sınıflar", Renewed: 1, NotRenewed: 1},
			{Name: stats.UnspecifiedClass, Renewed: 0, NotRenewed: 1},
		},
		GeneratedAt: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Version:     3,
	}
}

func newTestHandler(svc Service, enqueuer RefreshEnqueuer) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, enqueuer)
	h.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return h
}

func chiRouterWithDashboard(h *Handler) chi.Router {
	router := chi.NewRouter()
	h.MountRoutes(router)
	h.MountAdminRoutes(router)
	return router
}

func serveDashboard(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	chiRouterWithDashboard(h).ServeHTTP(rr, req)
	return rr
}

func TestDashboardReturnsViewWithETag(t *testing.T) {
	svc := &stubService{view: demoView()}
	h := newTestHandler(svc, nil)

	rr := serveDashboard(h, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if got := rr.Header().Get("ETag"); got != `"renewals-dash-v3"` {
		t.Fatalf("unexpected etag %q", got)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("unexpected cache-control %q", got)
	}

	var view dashboard.View
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(view.Leaderboard) != 2 || view.Leaderboard[0].TeacherName != "Ayşe Yılmaz" {
		t.Fatalf("unexpected leaderboard %+v", view.Leaderboard)
	}
	if view.Version != 3 {
		t.Fatalf("expected version 3, got %d", view.Version)
	}
}

func TestDashboardNotModified(t *testing.T) {
	svc := &stubService{view: demoView()}
	h := newTestHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("If-None-Match", `"renewals-dash-v3"`)
	rr := serveDashboard(h, req)
	if rr.Code != http.StatusNotModified {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rr.Body.String())
	}
}

func TestDashboardSkipsETagWhenUncached(t *testing.T) {
	view := demoView()
	view.Version = 0
	h := newTestHandler(&stubService{view: view}, nil)

	rr := serveDashboard(h, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if got := rr.Header().Get("ETag"); got != "" {
		t.Fatalf("expected no etag, got %q", got)
	}
}

func TestDashboardErrorBecomesProblem(t *testing.T) {
	h := newTestHandler(&stubService{err: errors.New("boom")}, nil)

	rr := serveDashboard(h, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", rr.Code)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	h := newTestHandler(&stubService{view: demoView()}, nil)

	rr := serveDashboard(h, httptest.NewRequest(http.MethodGet, "/dashboard/leaderboard", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	var body struct {
		Items []stats.TeacherStat `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Items) != 2 || body.Items[1].TeacherName != "Mehmet Demir" {
		t.Fatalf("unexpected items %+v", body.Items)
	}
}

func TestOverallEndpoint(t *testing.T) {
	h := newTestHandler(&stubService{view: demoView()}, nil)

	rr := serveDashboard(h, httptest.NewRequest(http.MethodGet, "/dashboard/overall", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	var overall stats.OverallStats
	if err := json.Unmarshal(rr.Body.Bytes(), &overall); err != nil {
		t.Fatalf("decode overall: %v", err)
	}
	if overall != demoView().Overall {
		t.Fatalf("unexpected overall %+v", overall)
	}
}

func TestClassesEndpoint(t *testing.T) {
	h := newTestHandler(&stubService{view: demoView()}, nil)

	rr := serveDashboard(h, httptest.NewRequest(http.MethodGet, "/dashboard/classes", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	var body struct {
		Items []stats.ClassStat `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Items) != 2 || body.Items[1].Name != stats.UnspecifiedClass {
		t.Fatalf("unexpected items %+v", body.Items)
	}
}

func TestRefreshEnqueues(t *testing.T) {
	enq := &stubEnqueuer{}
	h := newTestHandler(&stubService{view: demoView()}, enq)

	rr := serveDashboard(h, httptest.NewRequest(http.MethodPost, "/dashboard/refresh", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if len(enq.reasons) != 1 || enq.reasons[0] != "manual refresh" {
		t.Fatalf("unexpected enqueue reasons %v", enq.reasons)
	}
}

func TestRefreshFallsBackWhenNoQueue(t *testing.T) {
	refreshed := demoView()
	refreshed.Version = 9
	svc := &stubService{view: demoView(), refreshed: refreshed}
	h := newTestHandler(svc, nil)

	rr := serveDashboard(h, httptest.NewRequest(http.MethodPost, "/dashboard/refresh", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if svc.refreshCalls != 1 {
		t.Fatalf("expected one refresh call, got %d", svc.refreshCalls)
	}
	var view dashboard.View
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Version != 9 {
		t.Fatalf("expected refreshed version 9, got %d", view.Version)
	}
}

func TestRefreshEnqueueErrorFails(t *testing.T) {
	enq := &stubEnqueuer{err: errors.New("redis down")}
	h := newTestHandler(&stubService{view: demoView()}, enq)

	rr := serveDashboard(h, httptest.NewRequest(http.MethodPost, "/dashboard/refresh", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", rr.Code)
	}
}
