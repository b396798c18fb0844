package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cascade/cmd/odyssey/cli"
	"github.com/odyssey-erp/cascade/internal/app"
	"github.com/odyssey-erp/cascade/internal/auth"
	"github.com/odyssey-erp/cascade/internal/observability"
	"github.com/odyssey-erp/cascade/internal/platform/cache"
	"github.com/odyssey-erp/cascade/internal/platform/db"
	"github.com/odyssey-erp/cascade/jobs"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var receipts *cache.Versioned
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis unavailable, receipt cache disabled", slog.Any("error", err))
	} else {
		receipts = cache.NewVersioned(redisClient, "joborders", cfg.ReceiptCacheTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	stores := app.PostgresStores(dbpool)
	services, err := app.NewServices(cfg, app.ServiceDeps{
		Stores:   stores,
		Receipts: receipts,
		Metrics:  metrics,
		Notifier: jobClient,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}

	var tokens *auth.Tokens
	var authService *auth.Service
	if cfg.JWTSecret != "" {
		tokens = auth.NewTokens(cfg.JWTSecret, "odyssey-cascade", cfg.JWTTTL)
		authService = auth.NewService(auth.NewRepository(dbpool), tokens, stores.Audit, logger)
	}
	if cfg.AuthDisabled {
		logger.Warn("bearer authentication disabled")
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(services.HandlerParams(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Tokens:     tokens,
		Metrics:    metrics,
		JobHandler: jobs.NewHandler(inspector, logger),
	}, authService, jobClient))

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

// runJobs handles `odyssey jobs trigger <task> [args]` and `odyssey jobs stats`.
func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: odyssey jobs trigger <task> [args] | odyssey jobs stats")
	}
	c, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("usage: odyssey jobs trigger <task> [args], tasks: %v", cli.TaskNames())
		}
		info, err := c.Trigger(ctx, args[1], args[2:]...)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d paused=%t\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived, stats.Paused)
		scheduled, err := c.ListScheduled(ctx, 10)
		if err != nil {
			return err
		}
		for _, t := range scheduled {
			fmt.Printf("  scheduled %s id=%s next=%s\n", t.Type, t.ID, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
