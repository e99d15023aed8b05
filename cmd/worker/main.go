package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sellerledger/sellerledger/internal/app"
	"github.com/sellerledger/sellerledger/internal/applyrun"
	"github.com/sellerledger/sellerledger/internal/catalog"
	"github.com/sellerledger/sellerledger/internal/costing"
	"github.com/sellerledger/sellerledger/internal/platform/db"
	"github.com/sellerledger/sellerledger/internal/shared"
	"github.com/sellerledger/sellerledger/internal/snapshot"
	"github.com/sellerledger/sellerledger/jobs"
)

type bundleExploder struct {
	catalog *catalog.Service
}

func (e bundleExploder) Explode(ctx context.Context, accountID int64, sku string, qty int64) ([]costing.ComponentDemand, error) {
	components, err := e.catalog.Explode(ctx, accountID, sku, qty)
	if err != nil {
		if errors.Is(err, catalog.ErrBundleEmpty) {
			return nil, costing.ErrBundleEmpty
		}
		return nil, err
	}
	demands := make([]costing.ComponentDemand, 0, len(components))
	for _, comp := range components {
		demands = append(demands, costing.ComponentDemand{SKU: comp.SKU, Qty: comp.Qty})
	}
	return demands, nil
}

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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	audit := shared.NewAuditLogger(pool)
	runLock := shared.NewRunLock(redisClient, cfg.ApplyLockTTL)

	snapshotRepo := snapshot.NewRepository(pool)
	rebuilder := snapshot.NewRebuilder(logger, snapshotRepo, cfg.SnapshotWorkers)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, audit)

	costingRepo := costing.NewRepository(pool)
	engine := costing.NewEngine(logger, costingRepo, bundleExploder{catalog: catalogService})

	applyRepo := applyrun.NewRepository(pool)
	applyService := applyrun.NewService(logger, applyRepo, engine, runLock, audit)

	nightlyTask, err := jobs.NewNightlyApplyTask(time.Now().UTC())
	if err != nil {
		logger.Error("build nightly apply task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSnapshotRebuild, Handler: jobs.NewSnapshotRebuildHandler(logger, rebuilder)},
			{Type: jobs.TaskNightlyApply, Handler: jobs.NewNightlyApplyHandler(logger, applyService, cfg.NightlyApplyAccounts, costing.Method(cfg.NightlyApplyMethod))},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.NightlyApplyCron, Task: nightlyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
