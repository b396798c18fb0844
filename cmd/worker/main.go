package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cascade/internal/app"
	jobmetrics "github.com/odyssey-erp/cascade/internal/jobs"
	"github.com/odyssey-erp/cascade/internal/observability"
	"github.com/odyssey-erp/cascade/internal/platform/cache"
	"github.com/odyssey-erp/cascade/internal/platform/db"
	"github.com/odyssey-erp/cascade/internal/shared"
	"github.com/odyssey-erp/cascade/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var receipts *cache.Versioned
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	} else {
		receipts = cache.NewVersioned(redisClient, "joborders", cfg.ReceiptCacheTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	stores := app.PostgresStores(pool)
	services, err := app.NewServices(cfg, app.ServiceDeps{Stores: stores, Receipts: receipts, Logger: logger})
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics listener", slog.Any("error", err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	processor := jobs.NewProcessor(jobs.ProcessorConfig{
		Quotations:    services.Quotations,
		Exports:       services.Exporter,
		ExportDir:     cfg.ExportDir,
		Receipts:      services.Delivery,
		Audit:         stores.Audit,
		Idempotency:   shared.NewIdempotencyStore(pool),
		IdemRetention: cfg.IdemRetention,
		Metrics:       jobmetrics.NewMetrics(metrics.Registerer()),
		Logger:        logger.With(slog.String("component", "worker")),
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers:    processor.Handlers(),
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpiryCron, Task: jobs.NewExpireQuotationsTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CleanupCron, Task: jobs.NewCleanupIdempotencyTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
