package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tarihci20/renewals/internal/dashboard"
	jobmetrics "github.com/tarihci20/renewals/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const warmupTimeout = 30 * time.Second

// DashboardWarmupJob rebuilds the cached dashboard view so the first
// reader after a roster change never waits on a cold build.
type DashboardWarmupJob struct {
	Dashboard *dashboard.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(dashboardSvc *dashboard.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{
		Dashboard: dashboardSvc,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Reason == "" {
		payload.Reason = "scheduled"
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	logger.Info("starting dashboard warmup")

	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	start := j.now()
	view, err := j.Dashboard.Refresh(warmCtx)
	if err != nil {
		resultErr = err
		logger.Error("rebuild dashboard view", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed dashboard warmup",
		slog.Int("students", view.Overall.TotalStudents),
		slog.Int("teachers", len(view.Leaderboard)),
		slog.Int64("version", view.Version),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DashboardWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
