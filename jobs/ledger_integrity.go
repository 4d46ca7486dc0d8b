package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const defaultIntegrityParallelism = 4

// ConsistencyChecker compares stored stock with the ledger replay.
type ConsistencyChecker interface {
	ProductIDs(ctx context.Context) ([]int64, error)
	VerifyConsistency(ctx context.Context, productID int64) (inventory.ConsistencyReport, error)
}

// IntegritySummary reports one integrity run.
type IntegritySummary struct {
	Checked    int
	Skipped    int
	Mismatches []inventory.ConsistencyReport
	Duration   time.Duration
}

// LedgerIntegrityJob verifies current_stock against the ledger for every
// product.
type LedgerIntegrityJob struct {
	Checker     ConsistencyChecker
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Parallelism int
	clock       func() time.Time
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(checker ConsistencyChecker, parallelism int, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	if parallelism <= 0 {
		parallelism = defaultIntegrityParallelism
	}
	return &LedgerIntegrityJob{
		Checker:     checker,
		Logger:      logger,
		Metrics:     metrics,
		Parallelism: parallelism,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity check.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Checker == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() {
		err = tracker.End(err)
	}()
	_, err = j.Run(ctx, payload.ProductIDs)
	return err
}

// Run checks productIDs, or every product when the list is empty. Products
// whose row lock cannot be taken in time are skipped and picked up on the
// next run.
func (j *LedgerIntegrityJob) Run(ctx context.Context, productIDs []int64) (IntegritySummary, error) {
	start := j.now()
	logger := j.logger().With(slog.String("job", TaskLedgerIntegrity))
	if len(productIDs) == 0 {
		ids, err := j.Checker.ProductIDs(ctx)
		if err != nil {
			logger.Error("list products", slog.Any("error", err))
			return IntegritySummary{}, err
		}
		productIDs = ids
	}
	logger.Info("starting ledger integrity check", slog.Int("products", len(productIDs)))

	var (
		mu      sync.Mutex
		summary IntegritySummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.parallelism())
	for _, id := range productIDs {
		g.Go(func() error {
			report, err := j.Checker.VerifyConsistency(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
			case shared.IsTransient(err), errors.Is(err, shared.ErrNotFound):
				summary.Skipped++
				logger.Warn("product skipped", slog.Int64("product_id", id), slog.Any("error", err))
				return nil
			default:
				return err
			}
			summary.Checked++
			if !report.Consistent {
				summary.Mismatches = append(summary.Mismatches, report)
				logger.Error("ledger mismatch",
					slog.Int64("product_id", report.ProductID),
					slog.String("code", report.Code),
					slog.Int64("stored", report.Stored),
					slog.Int64("reconstructed", report.Reconstructed))
			}
			return nil
		})
	}
	err := g.Wait()
	summary.Duration = j.now().Sub(start)
	j.Metrics.AddChecked(summary.Checked)
	j.Metrics.AddMismatches(len(summary.Mismatches))
	if err != nil {
		logger.Error("ledger integrity check failed", slog.Any("error", err))
		return summary, err
	}
	logger.Info("completed ledger integrity check",
		slog.Int("checked", summary.Checked),
		slog.Int("skipped", summary.Skipped),
		slog.Int("mismatches", len(summary.Mismatches)),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (j *LedgerIntegrityJob) parallelism() int {
	if j.Parallelism <= 0 {
		return defaultIntegrityParallelism
	}
	return j.Parallelism
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
