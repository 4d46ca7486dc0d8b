package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"

	"github.com/odyssey-erp/stockledger/cmd/stockledger/cli"
	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/audit"
	audithttp "github.com/odyssey-erp/stockledger/internal/audit/http"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/orders"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/jobs"
	"github.com/odyssey-erp/stockledger/migrations"
)

func main() {
	if app.SkipStartup("stockledger") {
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

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "verify":
		err = verify(ctx, cfg, logger, args)
	case "jobs":
		err = jobsCommand(ctx, cfg, args)
	default:
		err = fmt.Errorf("unknown command %q (want serve, migrate, verify or jobs)", command)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func openPool(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, error) {
	return db.New(ctx, cfg.PGDSN, cfg.Pool())
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := migrations.Apply(ctx, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("migrations applied")
	}

	var snapshotCache *inventory.SnapshotCache
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, snapshot cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		snapshotCache = inventory.NewSnapshotCache(redisClient, cfg.SnapshotCacheTTL)
	}

	redisOpts := cfg.Queue()
	jobClient := jobs.NewClient(redisOpts, logger)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())

	auditLogger := shared.NewAuditLogger(pool)
	inventoryService := inventory.NewService(inventory.NewRepository(pool, cfg.LedgerLockTimeout), auditLogger, snapshotCache, jobClient, logger)
	inventoryService.SetMetrics(ledgerMetrics)

	orderService := orders.NewService(
		orders.NewRepository(pool, cfg.LedgerLockTimeout),
		auditLogger,
		shared.NewApprovalRecorder(pool, logger),
		shared.NewIdempotencyStore(pool),
		inventoryService,
		logger,
	)
	orderService.SetMetrics(ledgerMetrics)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Database:       pool,
		ProductHandler: inventory.NewHandler(logger, inventoryService),
		OrderHandler:   orders.NewHandler(logger, orderService),
		AuditHandler:   audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := migrations.Apply(ctx, pool); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func verify(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	productIDs := fs.Int64Slice("product", nil, "product ids to verify (default: all)")
	parallelism := fs.Int("parallelism", cfg.IntegrityCheckParallelism, "products verified concurrently")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	service := inventory.NewService(inventory.NewRepository(pool, cfg.LedgerLockTimeout), nil, nil, nil, logger)
	return cli.NewLedgerCLI(service, *parallelism, logger).Verify(ctx, os.Stdout, *productIDs)
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	fs := pflag.NewFlagSet("jobs", pflag.ContinueOnError)
	trigger := fs.String("trigger", "", "enqueue a job by task type, e.g. "+jobs.TaskLedgerIntegrity)
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := cli.NewJobsCLI(cfg.Queue())
	defer c.Close()

	if *trigger != "" {
		info, err := c.Trigger(ctx, *trigger)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	}
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	return nil
}
