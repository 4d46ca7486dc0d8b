package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Repository persists products and ledger entries in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds row lock waits.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LedgerTx
	InsertProduct(ctx context.Context, p Product) (Product, error)
	SumEntries(ctx context.Context, productID int64, asOf time.Time) (int64, error)
}

// WithTx executes fn inside a READ COMMITTED transaction with a bounded lock wait.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions(r.lockTimeout), func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// NewTxLedger exposes the ledger write surface on a transaction owned by
// another repository.
func NewTxLedger(tx pgx.Tx) LedgerTx {
	return &txRepo{tx: tx}
}

type txRepo struct {
	tx pgx.Tx
}

const productColumns = `id, code, name, unit, unit_price, baseline_stock, current_stock, alert_threshold, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.UnitPrice, &p.BaselineStock, &p.CurrentStock, &p.AlertThreshold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepo) LockProduct(ctx context.Context, productID int64) (Product, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, productID)
	p, err := scanProduct(row)
	if err != nil {
		return Product{}, db.Classify(err)
	}
	return p, nil
}

func (r *txRepo) RecordMovement(ctx context.Context, productID, newStock int64, entry LedgerEntry) (LedgerEntry, error) {
	if _, err := r.tx.Exec(ctx, `UPDATE products SET current_stock=$2, updated_at=$3 WHERE id=$1`, productID, newStock, entry.CreatedAt); err != nil {
		return LedgerEntry{}, db.Classify(err)
	}
	var refKind, refNumber any
	var refOrderID any
	if entry.Ref != nil {
		refKind = string(entry.Ref.Kind)
		refOrderID = entry.Ref.OrderID
		refNumber = entry.Ref.Number
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_entries (product_id, kind, quantity, balance_after, ref_kind, ref_order_id, ref_number, operator, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		productID, string(entry.Kind), entry.Quantity, entry.BalanceAfter, refKind, refOrderID, refNumber, entry.Operator, entry.Note, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return LedgerEntry{}, db.Classify(err)
	}
	return entry, nil
}

func (r *txRepo) InsertProduct(ctx context.Context, p Product) (Product, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO products (code, name, unit, unit_price, baseline_stock, current_stock, alert_threshold, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		p.Code, p.Name, p.Unit, p.UnitPrice, p.BaselineStock, p.CurrentStock, p.AlertThreshold, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, fmt.Errorf("%w: product code %s already registered", shared.ErrConflict, p.Code)
		}
		return Product{}, err
	}
	p.UpdatedAt = p.CreatedAt
	return p, nil
}

func (r *txRepo) SumEntries(ctx context.Context, productID int64, asOf time.Time) (int64, error) {
	return sumEntries(ctx, r.tx, productID, asOf)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sumEntries(ctx context.Context, q querier, productID int64, asOf time.Time) (int64, error) {
	var total int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)::BIGINT FROM ledger_entries
WHERE product_id=$1 AND created_at <= COALESCE($2::timestamptz, 'infinity'::timestamptz)`, productID, nullTime(asOf)).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// GetProduct loads a product without locking it.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

// ListProducts returns products ordered by code.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE ($1::boolean = false OR (current_stock > 0 AND current_stock < alert_threshold))
  AND ($2::boolean = false OR current_stock = 0)
ORDER BY code ASC LIMIT $3 OFFSET $4`, filter.LowStock, filter.OutOfStock, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListProductIDs returns every product ID in ascending order.
func (r *Repository) ListProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListEntries returns the entries of one product in append order.
func (r *Repository) ListEntries(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, kind, quantity, balance_after, ref_kind, ref_order_id, ref_number, operator, note, created_at
FROM ledger_entries
WHERE product_id=$1 AND created_at >= COALESCE($2::timestamptz, '-infinity'::timestamptz)
ORDER BY id ASC LIMIT $3`, filter.ProductID, nullTime(filter.Since), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		var (
			e          LedgerEntry
			kind       string
			refKind    *string
			refOrderID *int64
			refNumber  *string
		)
		if err := rows.Scan(&e.ID, &e.ProductID, &kind, &e.Quantity, &e.BalanceAfter, &refKind, &refOrderID, &refNumber, &e.Operator, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = EntryKind(kind)
		if refKind != nil && refOrderID != nil {
			e.Ref = &OrderRef{Kind: RefKind(*refKind), OrderID: *refOrderID}
			if refNumber != nil {
				e.Ref.Number = *refNumber
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumEntries totals entry quantities created at or before asOf.
func (r *Repository) SumEntries(ctx context.Context, productID int64, asOf time.Time) (int64, error) {
	return sumEntries(ctx, r.pool, productID, asOf)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
