package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tarihci20/renewals/internal/roster"
)

type stubSource struct {
	snap  roster.Snapshot
	err   error
	calls int
}

func (s *stubSource) Snapshot(ctx context.Context) (roster.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return roster.Snapshot{}, s.err
	}
	return s.snap, nil
}

func demoSnapshot() roster.Snapshot {
	return roster.Snapshot{
		Students: []roster.Student{
			{ID: 1, Name: "Elif Su Aydın", ClassName: "5", TeacherName: "Ayşe Yılmaz", Renewed: true},
			{ID: 2, Name: "Mert Kaya", ClassName: "5", TeacherName: "Ayşe Yılmaz"},
			{ID: 3, Name: "Zeynep Çelik", ClassName: "7", TeacherName: "Mehmet Demir", Renewed: true},
		},
		Teachers: []roster.Teacher{
			{ID: 1, Name: "Ayşe Yılmaz", Branch: "Matematik"},
			{ID: 2, Name: "Mehmet Demir", Branch: "Fen Bilimleri"},
		},
	}
}

func newTestService(t *testing.T, src SnapshotSource) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(src, cache, nil)
	return svc, func() {
		_ = client.Close()
	}
}

func TestDashboardBuildsAndCaches(t *testing.T) {
	src := &stubSource{snap: demoSnapshot()}
	svc, cleanup := newTestService(t, src)
	defer cleanup()
	ctx := context.Background()

	view, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected one snapshot read, got %d", src.calls)
	}
	if view.Version != 1 {
		t.Fatalf("expected version 1, got %d", view.Version)
	}
	if len(view.Leaderboard) != 2 {
		t.Fatalf("expected 2 leaderboard rows, got %d", len(view.Leaderboard))
	}
	if view.Leaderboard[0].TeacherName != "Mehmet Demir" || view.Leaderboard[0].RenewalPercentage != 100 {
		t.Fatalf("unexpected leader: %+v", view.Leaderboard[0])
	}
	if view.Overall.TotalStudents != 3 || view.Overall.RenewedStudents != 2 || view.Overall.Percentage != 67 {
		t.Fatalf("unexpected overall: %+v", view.Overall)
	}
	if len(view.Classes) != 2 || view.Classes[0].Name != "5. Sınıflar" {
		t.Fatalf("unexpected classes: %+v", view.Classes)
	}

	again, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard (cached): %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("second read should hit the cache, snapshot reads = %d", src.calls)
	}
	if again.Version != view.Version {
		t.Fatalf("cached view changed version: %d vs %d", again.Version, view.Version)
	}
}

func TestDashboardRebuildsAfterInvalidate(t *testing.T) {
	src := &stubSource{snap: demoSnapshot()}
	svc, cleanup := newTestService(t, src)
	defer cleanup()
	ctx := context.Background()

	if _, err := svc.Dashboard(ctx); err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	src.snap.Students[1].Renewed = true
	if err := svc.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	view, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard after invalidate: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected rebuild after invalidate, snapshot reads = %d", src.calls)
	}
	if view.Version != 2 {
		t.Fatalf("expected version 2, got %d", view.Version)
	}
	if view.Overall.RenewedStudents != 3 {
		t.Fatalf("expected refreshed counts, got %+v", view.Overall)
	}
}

func TestDashboardWithoutCacheRebuildsEveryTime(t *testing.T) {
	src := &stubSource{snap: demoSnapshot()}
	svc := NewService(src, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		view, err := svc.Dashboard(ctx)
		if err != nil {
			t.Fatalf("dashboard: %v", err)
		}
		if view.Version != 0 {
			t.Fatalf("cacheless views carry version 0, got %d", view.Version)
		}
	}
	if src.calls != 2 {
		t.Fatalf("expected a build per read without cache, got %d", src.calls)
	}
}

func TestRefreshOverwritesCachedView(t *testing.T) {
	src := &stubSource{snap: demoSnapshot()}
	svc, cleanup := newTestService(t, src)
	defer cleanup()
	ctx := context.Background()

	if _, err := svc.Dashboard(ctx); err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	src.snap.Students[1].Renewed = true
	refreshed, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Overall.RenewedStudents != 3 {
		t.Fatalf("refresh should rebuild, got %+v", refreshed.Overall)
	}

	view, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard after refresh: %v", err)
	}
	if view.Overall.RenewedStudents != 3 {
		t.Fatalf("refresh did not overwrite the cached view: %+v", view.Overall)
	}
	if src.calls != 2 {
		t.Fatalf("read after refresh should hit cache, snapshot reads = %d", src.calls)
	}
}

func TestDashboardEmptyRoster(t *testing.T) {
	src := &stubSource{}
	svc, cleanup := newTestService(t, src)
	defer cleanup()

	view, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if view.Overall.TotalStudents != 0 || view.Overall.Percentage != 0 {
		t.Fatalf("empty roster should produce zeroes, got %+v", view.Overall)
	}
	if view.Leaderboard == nil || view.Classes == nil {
		t.Fatalf("aggregate slices should be empty, not nil")
	}
}

func TestDashboardPropagatesSnapshotError(t *testing.T) {
	src := &stubSource{err: errors.New("store down")}
	svc, cleanup := newTestService(t, src)
	defer cleanup()

	if _, err := svc.Dashboard(context.Background()); err == nil {
		t.Fatal("expected snapshot error to surface")
	}
}

func TestBumpPublishesNewVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	if _, err := cache.Version(ctx); err != nil {
		t.Fatalf("version: %v", err)
	}

	pubsub := client.Subscribe(ctx, bumpChannel)
	defer func() { _ = pubsub.Close() }()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := cache.Bump(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := pubsub.ReceiveMessage(recvCtx)
	if err != nil {
		t.Fatalf("receive bump: %v", err)
	}
	if msg.Payload != "2" {
		t.Fatalf("expected version payload 2, got %q", msg.Payload)
	}

	ver, err := cache.Version(ctx)
	if err != nil {
		t.Fatalf("version after bump: %v", err)
	}
	if ver != 2 {
		t.Fatalf("expected version 2, got %d", ver)
	}
}
