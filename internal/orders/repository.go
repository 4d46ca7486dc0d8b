package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds row lock waits.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// TxRepository exposes the order and ledger operations available inside one
// transaction.
type TxRepository interface {
	inventory.LedgerTx
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, order Order) error
	DeleteOrder(ctx context.Context, id int64) error
	CountLedgerEntries(ctx context.Context, orderID int64) (int64, error)
}

type txRepo struct {
	inventory.LedgerTx
	tx pgx.Tx
}

// WithTx executes fn inside a READ COMMITTED transaction with a bounded lock wait.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions(r.lockTimeout), func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{LedgerTx: inventory.NewTxLedger(tx), tx: tx})
	})
}

const orderColumns = `id, number, direction, product_id, quantity, unit_price, discount, total_amount, status, operator,
counterparty, expected_date, shipping_address, approved_by, approved_at, closed_by, closed_at, rejection_reason, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o         Order
		direction string
		status    string
	)
	err := row.Scan(&o.ID, &o.Number, &direction, &o.ProductID, &o.Quantity, &o.UnitPrice, &o.Discount, &o.TotalAmount, &status, &o.Operator,
		&o.Counterparty, &o.ExpectedDate, &o.ShippingAddress, &o.ApprovedBy, &o.ApprovedAt, &o.ClosedBy, &o.ClosedAt, &o.RejectionReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	o.Direction = Direction(direction)
	o.Status = Status(status)
	return o, nil
}

func (r *txRepo) InsertOrder(ctx context.Context, o Order) (Order, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (number, direction, product_id, quantity, unit_price, discount, total_amount, status, operator,
counterparty, expected_date, shipping_address, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13) RETURNING id`,
		o.Number, string(o.Direction), o.ProductID, o.Quantity, o.UnitPrice, o.Discount, o.TotalAmount, string(o.Status), o.Operator,
		o.Counterparty, o.ExpectedDate, o.ShippingAddress, o.CreatedAt).Scan(&o.ID)
	if err != nil {
		switch {
		case db.IsForeignKeyViolation(err):
			return Order{}, shared.Invalid("product_id", fmt.Sprintf("product %d does not exist", o.ProductID))
		case db.IsUniqueViolation(err):
			return Order{}, fmt.Errorf("%w: order number %s already exists", shared.ErrConflict, o.Number)
		}
		return Order{}, err
	}
	o.UpdatedAt = o.CreatedAt
	return o, nil
}

func (r *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Order{}, db.Classify(err)
	}
	return o, nil
}

func (r *txRepo) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET quantity=$2, unit_price=$3, discount=$4, total_amount=$5, status=$6,
approved_by=$7, approved_at=$8, closed_by=$9, closed_at=$10, rejection_reason=$11, updated_at=$12
WHERE id=$1`, o.ID, o.Quantity, o.UnitPrice, o.Discount, o.TotalAmount, string(o.Status),
		o.ApprovedBy, o.ApprovedAt, o.ClosedBy, o.ClosedAt, o.RejectionReason, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil && db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: order %d is referenced by ledger entries", shared.ErrConflict, id)
	}
	return err
}

func (r *txRepo) CountLedgerEntries(ctx context.Context, orderID int64) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE ref_order_id=$1`, orderID).Scan(&n)
	return n, err
}

// GetOrder loads an order without locking it.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

// ListOrders returns one page of orders, newest first, and the total count.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	const where = `WHERE ($1 = '' OR status = $1) AND ($2 = '' OR direction = $2) AND ($3::bigint = 0 OR product_id = $3)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders `+where, string(filter.Status), string(filter.Direction), filter.ProductID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders `+where+` ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5`,
		string(filter.Status), string(filter.Direction), filter.ProductID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, o)
	}
	return list, total, rows.Err()
}
