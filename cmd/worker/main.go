package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sproutly/sproutly/internal/app"
	"github.com/sproutly/sproutly/internal/assignment"
	"github.com/sproutly/sproutly/internal/catalog"
	"github.com/sproutly/sproutly/internal/platform/cache"
	"github.com/sproutly/sproutly/internal/platform/db"
	"github.com/sproutly/sproutly/internal/snapshot"
	"github.com/sproutly/sproutly/internal/tenant"
	"github.com/sproutly/sproutly/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tenantRegistry := tenant.NewRegistry(pool)
	catalogRepo := catalog.NewRepository(pool)
	assignmentRepo := assignment.NewRepository(pool)

	snapshotStore := snapshot.NewStore(catalogRepo, snapshot.Options{
		TTL:        cfg.SnapshotTTL,
		StaleGrace: cfg.SnapshotStaleGrace,
		Redis:      redisClient,
		Logger:     logger,
	})

	jobMetrics := jobs.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{
				Type:    jobs.TaskSnapshotWarmup,
				Handler: jobMetrics.Instrument("snapshot_warmup", jobs.NewSnapshotWarmupHandler(tenantRegistry, snapshotStore, logger)),
			},
			{
				Type:    jobs.TaskAssignmentSweep,
				Handler: jobMetrics.Instrument("assignment_sweep", jobs.NewAssignmentSweepHandler(tenantRegistry, assignmentRepo, snapshotStore, logger)),
			},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: jobs.NewSnapshotWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "45 2 * * *", Task: jobs.NewAssignmentSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
