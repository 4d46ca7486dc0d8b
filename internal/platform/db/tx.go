package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxOptions controls how WithTx opens its transaction.
type TxOptions struct {
	IsoLevel pgx.TxIsoLevel
	// LockTimeout bounds every lock wait inside the transaction. Zero keeps
	// the server default.
	LockTimeout time.Duration
}

// LedgerTxOptions returns the options used by stock-mutating transactions.
// Row locks taken with SELECT ... FOR UPDATE must observe the committed state
// of a concurrent winner, so these run at READ COMMITTED.
func LedgerTxOptions(lockTimeout time.Duration) TxOptions {
	return TxOptions{IsoLevel: pgx.ReadCommitted, LockTimeout: lockTimeout}
}

// WithTx executes fn within a transaction. Lock and deadlock failures are
// classified into shared.ErrLockTimeout.
func WithTx(ctx context.Context, pool *pgxpool.Pool, opts TxOptions, fn func(pgx.Tx) error) error {
	iso := opts.IsoLevel
	if iso == "" {
		iso = pgx.RepeatableRead
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", Classify(err))
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if opts.LockTimeout > 0 {
		// SET LOCAL does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return Classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", Classify(err))
	}

	return nil
}
