package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tarihci20/renewals/internal/roster"
	"github.com/tarihci20/renewals/internal/stats"
)

// SnapshotSource supplies the roster data the dashboard aggregates.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (roster.Snapshot, error)
}

// View is the complete dashboard payload: the teacher leaderboard,
// the school-wide totals and the per-class breakdown, all derived
// from one roster snapshot.
type View struct {
	Leaderboard []stats.TeacherStat `json:"leaderboard"`
	Overall     stats.OverallStats  `json:"overall"`
	Classes     []stats.ClassStat   `json:"classes"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Version     int64               `json:"version"`
}

// Service builds dashboard views and keeps them cached. Concurrent
// requests for the same version collapse into a single build.
type Service struct {
	source SnapshotSource
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

func NewService(source SnapshotSource, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source: source,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Dashboard returns the current view, from cache when the roster has
// not changed since the last build.
func (s *Service) Dashboard(ctx context.Context) (View, error) {
	key, ver, err := s.cache.ViewKey(ctx)
	if err != nil {
		return View{}, fmt.Errorf("dashboard: cache key: %w", err)
	}

	built := false
	start := s.now()
	result, err, _ := s.flight(ctx, key, func(ctx context.Context) (interface{}, error) {
		var view View
		err := s.cache.FetchJSON(ctx, key, &view, func(ctx context.Context) (interface{}, error) {
			built = true
			return s.build(ctx, ver)
		})
		return view, err
	})
	if err != nil {
		return View{}, err
	}
	if built {
		recordCacheMiss()
		observeBuildDuration(s.now().Sub(start))
		markBuildTimestamp()
	} else {
		recordCacheHit()
	}
	return result.(View), nil
}

// Refresh rebuilds the view for the current version and overwrites
// the cached copy. The warmup job calls this so the first reader
// after a roster change never waits on a cold build.
func (s *Service) Refresh(ctx context.Context) (View, error) {
	key, ver, err := s.cache.ViewKey(ctx)
	if err != nil {
		return View{}, fmt.Errorf("dashboard: cache key: %w", err)
	}
	start := s.now()
	view, err := s.build(ctx, ver)
	if err != nil {
		return View{}, err
	}
	observeBuildDuration(s.now().Sub(start))
	markBuildTimestamp()
	if err := s.cache.StoreJSON(ctx, key, view); err != nil {
		return View{}, fmt.Errorf("dashboard: store view: %w", err)
	}
	return view, nil
}

// Invalidate bumps the cache version so every instance rebuilds on
// its next read. Wire it to the roster change notifications.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// StartInvalidationListener subscribes to version bumps published by
// other instances. It returns immediately; the subscription lives
// until ctx is cancelled.
func (s *Service) StartInvalidationListener(ctx context.Context) error {
	return s.cache.ListenForInvalidation(ctx, "")
}

func (s *Service) flight(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error, bool) {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}

func (s *Service) build(ctx context.Context, ver int64) (View, error) {
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return View{}, fmt.Errorf("dashboard: snapshot: %w", err)
	}
	return View{
		Leaderboard: stats.TeacherLeaderboard(snap.Students, snap.Teachers),
		Overall:     stats.Overall(snap.Students),
		Classes:     stats.ClassBreakdown(snap.Students),
		GeneratedAt: s.now().UTC(),
		Version:     ver,
	}, nil
}
