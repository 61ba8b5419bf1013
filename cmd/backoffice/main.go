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

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/close"
	closehttp "github.com/odyssey-erp/backoffice/internal/close/http"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	ledgerhttp "github.com/odyssey-erp/backoffice/internal/ledger/http"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/records"
	"github.com/odyssey-erp/backoffice/jobs"
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
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("load timezone", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.MigrationsAuto {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithApplicationName("backoffice-api"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cache.Options{PoolSize: cfg.RedisPoolSize, ClientName: "backoffice-api"})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	schedule := cfg.Closing.Schedule(loc)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo)
	ledgerService.WithLocation(loc)
	ledgerService.WithLogger(logger)

	closer := close.NewService(ledgerRepo)
	closer.WithLocation(loc)
	closer.WithPolicy(cfg.Closing.Policy())
	closer.WithLogger(logger)
	closer.WithMetrics(metrics.Jobs())

	recordsService := records.NewService(records.NewRepository(dbpool))

	var scheduler *close.Scheduler
	if app.SchedulerEnabled(cfg) {
		scheduler = close.NewScheduler(ledgerService, closer, close.SchedulerConfig{
			Schedule:   schedule,
			RunTimeout: cfg.Closing.RunTimeout,
		})
		lock := close.NewRedisLock(redisClient, cfg.Closing.LockTTL)
		lock.WithLogger(logger)
		scheduler.WithLocker(lock)
		scheduler.WithLogger(logger)
		scheduler.WithMetrics(metrics.Jobs())
		scheduler.Start(ctx)
	} else {
		logger.Warn("closing scheduler disabled; ledger rows must be provisioned by the worker")
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	routerParams := app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Pool:           dbpool,
		LedgerHandler:  ledgerhttp.NewHandler(logger, ledgerService),
		RecordsHandler: records.NewHandler(logger, recordsService),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	}
	if scheduler != nil {
		routerParams.CloseHandler = closehttp.NewHandler(logger, scheduler, closer, schedule)
	} else {
		routerParams.CloseHandler = closehttp.NewHandler(logger, nil, closer, schedule)
	}
	router := app.NewRouter(routerParams)

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if scheduler != nil {
		// A cycle in flight keeps running on its own timeout; wait for its commit.
		stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.Closing.RunTimeout)
		defer cancelStop()
		if err := scheduler.Stop(stopCtx); err != nil {
			logger.Error("stop closing scheduler", slog.Any("error", err))
		}
	}
}
