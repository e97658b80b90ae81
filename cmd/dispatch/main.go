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

	"github.com/odyssey-erp/truckdispatch/internal/app"
	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/fleet"
	"github.com/odyssey-erp/truckdispatch/internal/observability"
	"github.com/odyssey-erp/truckdispatch/internal/order"
	"github.com/odyssey-erp/truckdispatch/internal/platform/cache"
	"github.com/odyssey-erp/truckdispatch/internal/platform/db"
	"github.com/odyssey-erp/truckdispatch/internal/schedule"
	"github.com/odyssey-erp/truckdispatch/internal/schedule/optimizer"
	"github.com/odyssey-erp/truckdispatch/internal/shared"
	"github.com/odyssey-erp/truckdispatch/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The proposal cache is optional; without redis proposals are computed per request.
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, schedule cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	idempotencyStore := shared.NewIdempotencyStore(pool)

	deliveryService := delivery.NewService(
		delivery.NewRepository(pool),
		delivery.NewChecker(cfg.Location(), time.Now),
		delivery.NewMetrics(metrics.Registerer()),
		logger,
	)
	deliveryHandler := delivery.NewHandler(logger, deliveryService)

	scheduleCache := schedule.NewCache(redisClient, cfg.ScheduleCacheTTL)
	orderHandler := order.NewHandler(logger, order.NewService(order.NewRepository(pool), scheduleCache, logger))
	fleetHandler := fleet.NewHandler(logger, fleet.NewService(fleet.NewRepository(pool), scheduleCache, logger))

	planner := schedule.NewPlanner(
		schedule.NewRepository(pool),
		scheduleCache,
		deliveryService,
		idempotencyStore,
		schedule.NewMetrics(metrics.Registerer()),
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
	scheduleHandler := schedule.NewHandler(logger, planner)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		DeliveryHandler: deliveryHandler,
		OrderHandler:    orderHandler,
		FleetHandler:    fleetHandler,
		ScheduleHandler: scheduleHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", cfg.Timezone))
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
