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
	"github.com/redis/go-redis/v9"

	"github.com/sellerledger/sellerledger/internal/app"
	"github.com/sellerledger/sellerledger/internal/applyrun"
	"github.com/sellerledger/sellerledger/internal/catalog"
	"github.com/sellerledger/sellerledger/internal/costing"
	"github.com/sellerledger/sellerledger/internal/ledger"
	"github.com/sellerledger/sellerledger/internal/platform/db"
	"github.com/sellerledger/sellerledger/internal/shared"
	"github.com/sellerledger/sellerledger/internal/snapshot"
	"github.com/sellerledger/sellerledger/jobs"
)

// bundleExploder adapts the catalog service to the allocation engine's
// component-demand port.
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	audit := shared.NewAuditLogger(pool)
	runLock := shared.NewRunLock(redisClient, cfg.ApplyLockTTL)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, audit)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, audit, jobClient)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	snapshotRepo := snapshot.NewRepository(pool)
	snapshotHandler := snapshot.NewHandler(logger, snapshotRepo)

	costingRepo := costing.NewRepository(pool)
	reverser := costing.NewReverser(costingRepo, audit, jobClient)
	costingHandler := costing.NewHandler(logger, costingRepo, reverser)

	engine := costing.NewEngine(logger, costingRepo, bundleExploder{catalog: catalogService})
	applyRepo := applyrun.NewRepository(pool)
	applyService := applyrun.NewService(logger, applyRepo, engine, runLock, audit)
	applyHandler := applyrun.NewHandler(logger, applyService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CatalogHandler:  catalogHandler,
		LedgerHandler:   ledgerHandler,
		CostingHandler:  costingHandler,
		SnapshotHandler: snapshotHandler,
		ApplyRunHandler: applyHandler,
		JobsHandler:     jobHandler,
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
