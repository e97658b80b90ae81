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
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/truckdispatch/internal/app"
	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/platform/cache"
	"github.com/odyssey-erp/truckdispatch/internal/platform/db"
	"github.com/odyssey-erp/truckdispatch/internal/schedule"
	"github.com/odyssey-erp/truckdispatch/internal/schedule/optimizer"
	"github.com/odyssey-erp/truckdispatch/internal/shared"
	"github.com/odyssey-erp/truckdispatch/jobs"
)

const idempotencyCleanupCron = "0 * * * *"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	if err := godotenv.Load(); err != nil {
		slog.Default().Info("no .env file found, using environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	deliveryService := delivery.NewService(
		delivery.NewRepository(pool),
		delivery.NewChecker(cfg.Location(), time.Now),
		delivery.NewMetrics(nil),
		logger,
	)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	planner := schedule.NewPlanner(
		schedule.NewRepository(pool),
		schedule.NewCache(redisClient, cfg.ScheduleCacheTTL),
		deliveryService,
		idempotencyStore,
		schedule.NewMetrics(nil),
		logger,
		schedule.Config{
			DailyLimit: cfg.DailyProductionLimit,
			Optimizer: optimizer.Options{
				TimeBudget: cfg.OptimizerTimeBudget,
				MaxNodes:   cfg.OptimizerMaxNodes,
			},
			Location: cfg.Location(),
		},
	)

	optimizeJob := jobs.NewScheduleOptimizeJob(planner, logger, nil)
	delayJob := jobs.NewDelayScanJob(deliveryService, logger, nil)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, nil)

	// An empty date makes the job plan the next day at run time.
	optimizeTask, err := jobs.NewScheduleOptimizeTask("")
	if err != nil {
		logger.Error("build optimize task", slog.Any("error", err))
		os.Exit(1)
	}
	delayTask, err := jobs.NewDelayScanTask()
	if err != nil {
		logger.Error("build delay scan task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyTTL)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskScheduleOptimize, Handler: optimizeJob.Handle},
			{Type: jobs.TaskDeliveriesDelayScan, Handler: delayJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OptimizeCron, Task: optimizeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.DelayScanCron, Task: delayTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: idempotencyCleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:        cfg.WorkerMetricsAddr,
		Handler:     promhttp.Handler(),
		ReadTimeout: cfg.AppReadTimeout,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker started", slog.String("timezone", cfg.Timezone), slog.String("metrics_addr", cfg.WorkerMetricsAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
