package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarihci20/renewals/internal/app"
	"github.com/tarihci20/renewals/internal/auth"
	"github.com/tarihci20/renewals/internal/dashboard"
	dashboardhttp "github.com/tarihci20/renewals/internal/dashboard/http"
	"github.com/tarihci20/renewals/internal/observability"
	"github.com/tarihci20/renewals/internal/platform/cache"
	"github.com/tarihci20/renewals/internal/platform/db"
	"github.com/tarihci20/renewals/internal/roster"
	"github.com/tarihci20/renewals/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		mongoStore := roster.NewMongoStore(mongoClient.Database(cfg.MongoDatabase))
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			logger.Error("ensure mongo indexes", slog.Any("error", err))
			os.Exit(1)
		}
		store = mongoStore
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
		logger.Warn("redis unavailable, dashboard serves uncached", slog.Any("error", err))
	} else {
		cacheClient = client
		defer func() {
			if err := cacheClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	if err := dashboard.SetupCacheMetrics(metrics.Registerer()); err != nil {
		logger.Warn("setup cache metrics", slog.Any("error", err))
	}

	dashCache := dashboard.NewCache(cacheClient, cfg.DashboardCacheTTL)
	dashboardService := dashboard.NewService(store, dashCache, logger)
	if err := dashboardService.StartInvalidationListener(ctx); err != nil {
		logger.Warn("start invalidation listener", slog.Any("error", err))
	}

	rosterService := roster.NewService(store, logger)
	rosterService.OnChange(func(ctx context.Context) {
		if err := dashboardService.Invalidate(ctx); err != nil {
			logger.Warn("invalidate dashboard cache", slog.Any("error", err))
		}
	})

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	guard, err := auth.NewTokenGuard(cfg.AdminTokenHash, logger)
	if err != nil {
		logger.Error("init admin guard", slog.Any("error", err))
		os.Exit(1)
	}

	rosterHandler := roster.NewHandler(logger, rosterService, jobsClient, cfg.ImportMaxBytes)
	dashboardHandler := dashboardhttp.NewHandler(logger, dashboardService, jobsClient)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Guard:            guard,
		RosterHandler:    rosterHandler,
		DashboardHandler: dashboardHandler,
		JobsHandler:      jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
