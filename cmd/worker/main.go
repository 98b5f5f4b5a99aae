package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarihci20/renewals/internal/app"
	"github.com/tarihci20/renewals/internal/dashboard"
	"github.com/tarihci20/renewals/internal/platform/cache"
	"github.com/tarihci20/renewals/internal/platform/db"
	"github.com/tarihci20/renewals/internal/roster"
	"github.com/tarihci20/renewals/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var store roster.Store
	switch cfg.StoreDriver {
	case app.StoreMongo:
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			logger.Error("connect mongo", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect", slog.Any("error", err))
			}
		}()
		store = roster.NewMongoStore(mongoClient.Database(cfg.MongoDatabase))
	default:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		store = roster.NewPostgresStore(pool)
	}

	var cacheClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, warmup rebuilds run uncached", slog.Any("error", err))
	} else {
		cacheClient = client
		defer func() {
			if err := cacheClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	dashCache := dashboard.NewCache(cacheClient, cfg.DashboardCacheTTL)
	dashboardService := dashboard.NewService(store, dashCache, logger)
	if err := dashboardService.StartInvalidationListener(ctx); err != nil {
		logger.Warn("start invalidation listener", slog.Any("error", err))
	}

	warmupJob := jobs.NewDashboardWarmupJob(dashboardService, logger, nil)

	warmupTask, err := jobs.NewDashboardWarmupTask(jobs.DashboardWarmupPayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDashboardWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
