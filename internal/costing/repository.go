package costing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// OpenLayer is the slice of a receipt layer the allocator needs.
type OpenLayer struct {
	ID           int64
	ReceivedAt   time.Time
	QtyRemaining int64
	UnitCost     decimal.Decimal
}

// StockSummary is the snapshot view used for moving-average costing.
type StockSummary struct {
	AsOfDate    time.Time
	OnHandQty   int64
	AvgUnitCost decimal.Decimal
}

// RepositoryPort abstracts allocation persistence for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAllocations(ctx context.Context, accountID int64, orderRef string) ([]Allocation, error)
}

// TxRepository exposes the transactional operations of one allocation or
// reversal.
type TxRepository interface {
	OpenLayersForUpdate(ctx context.Context, accountID int64, sku string) ([]OpenLayer, error)
	DecrementLayer(ctx context.Context, accountID, layerID, qty int64) error
	RestoreLayer(ctx context.Context, accountID, layerID, qty int64) error
	LatestSnapshot(ctx context.Context, accountID int64, sku string, onOrBefore time.Time) (StockSummary, bool, error)
	InsertAllocation(ctx context.Context, alloc Allocation) (int64, error)
	InsertGuard(ctx context.Context, accountID int64, orderRef, sku string) error
	DeleteGuard(ctx context.Context, accountID int64, orderRef, sku string) error
	LiveAllocationsForUpdate(ctx context.Context, accountID int64, orderRef, sku string) ([]Allocation, error)
	ReversedQtyFor(ctx context.Context, accountID, allocationID int64) (int64, error)
	MarkAllocationReversed(ctx context.Context, accountID, allocationID int64, reason, actor string, at time.Time) error
}

// Repository is the PostgreSQL allocation store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("costing repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const allocationColumns = `id, account_id, order_ref, sku, shipped_at, method, qty, unit_cost, amount,
layer_id, is_reversal, reverses_id, reversed_at, COALESCE(reversed_by,''), COALESCE(reverse_reason,''), created_at`

// ListAllocations returns every allocation row for an order, oldest first.
func (r *Repository) ListAllocations(ctx context.Context, accountID int64, orderRef string) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+allocationColumns+`
FROM cogs_allocations WHERE account_id=$1 AND order_ref=$2 ORDER BY id`, accountID, orderRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAllocations(rows)
}

// OpenLayersForUpdate locks a SKU's consumable layers in FIFO order. The
// row locks serialize concurrent allocators of the same SKU.
func (r *txRepository) OpenLayersForUpdate(ctx context.Context, accountID int64, sku string) ([]OpenLayer, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, received_at, qty_remaining, unit_cost
FROM receipt_layers
WHERE account_id=$1 AND sku=$2 AND NOT voided AND qty_remaining > 0
ORDER BY received_at ASC, id ASC
FOR UPDATE`, accountID, sku)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	layers := []OpenLayer{}
	for rows.Next() {
		var layer OpenLayer
		if err := rows.Scan(&layer.ID, &layer.ReceivedAt, &layer.QtyRemaining, &layer.UnitCost); err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}

func (r *txRepository) DecrementLayer(ctx context.Context, accountID, layerID, qty int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE receipt_layers SET qty_remaining = qty_remaining - $3
WHERE account_id=$1 AND id=$2 AND qty_remaining >= $3`, accountID, layerID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// RestoreLayer returns quantity to a layer, never above what was received.
func (r *txRepository) RestoreLayer(ctx context.Context, accountID, layerID, qty int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE receipt_layers
SET qty_remaining = LEAST(qty_remaining + $3, qty_received)
WHERE account_id=$1 AND id=$2`, accountID, layerID, qty)
	return err
}

func (r *txRepository) LatestSnapshot(ctx context.Context, accountID int64, sku string, onOrBefore time.Time) (StockSummary, bool, error) {
	var summary StockSummary
	err := r.tx.QueryRow(ctx, `SELECT as_of_date, on_hand_qty, avg_unit_cost
FROM cost_snapshots WHERE account_id=$1 AND sku=$2 AND as_of_date <= $3
ORDER BY as_of_date DESC LIMIT 1`, accountID, sku, onOrBefore).
		Scan(&summary.AsOfDate, &summary.OnHandQty, &summary.AvgUnitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockSummary{}, false, nil
		}
		return StockSummary{}, false, err
	}
	return summary, true, nil
}

func (r *txRepository) InsertAllocation(ctx context.Context, alloc Allocation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO cogs_allocations
(account_id, order_ref, sku, shipped_at, method, qty, unit_cost, amount, layer_id, is_reversal, reverses_id, reverse_reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),now())
RETURNING id`,
		alloc.AccountID, alloc.OrderRef, alloc.SKU, alloc.ShippedAt, alloc.Method,
		alloc.Qty, alloc.UnitCost, alloc.Amount, alloc.LayerID, alloc.IsReversal,
		alloc.ReversesID, alloc.ReverseReason).Scan(&id)
	return id, err
}

// InsertGuard claims the (order_ref, sku) idempotency slot.
func (r *txRepository) InsertGuard(ctx context.Context, accountID int64, orderRef, sku string) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO allocation_guards (account_id, order_ref, sku, created_at)
VALUES ($1,$2,$3,now())`, accountID, orderRef, sku)
	if isUniqueViolation(err) {
		return ErrDuplicateAllocation
	}
	return err
}

func (r *txRepository) DeleteGuard(ctx context.Context, accountID int64, orderRef, sku string) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM allocation_guards WHERE account_id=$1 AND order_ref=$2 AND sku=$3`,
		accountID, orderRef, sku)
	return err
}

// LiveAllocationsForUpdate locks the non-reversed, non-reversal rows of one
// order line in creation order.
func (r *txRepository) LiveAllocationsForUpdate(ctx context.Context, accountID int64, orderRef, sku string) ([]Allocation, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+allocationColumns+`
FROM cogs_allocations
WHERE account_id=$1 AND order_ref=$2 AND sku=$3 AND NOT is_reversal AND reversed_at IS NULL
ORDER BY id
FOR UPDATE`, accountID, orderRef, sku)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAllocations(rows)
}

// ReversedQtyFor sums the compensating rows already posted against one
// allocation.
func (r *txRepository) ReversedQtyFor(ctx context.Context, accountID, allocationID int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(qty),0) FROM cogs_allocations
WHERE account_id=$1 AND reverses_id=$2 AND is_reversal`, accountID, allocationID).Scan(&qty)
	return qty, err
}

// MarkAllocationReversed flags the allocation and every compensating row
// posted against it. Reversal rows must close together with their target:
// a dangling live reversal row would keep subtracting from the daily AVG
// consumption after the original is already excluded.
func (r *txRepository) MarkAllocationReversed(ctx context.Context, accountID, allocationID int64, reason, actor string, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE cogs_allocations
SET reversed_at=$3, reversed_by=$4, reverse_reason=$5
WHERE account_id=$1 AND id=$2 AND reversed_at IS NULL`, accountID, allocationID, at, actor, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAllocationNotFound
	}
	_, err = r.tx.Exec(ctx, `UPDATE cogs_allocations
SET reversed_at=$3, reversed_by=$4, reverse_reason=$5
WHERE account_id=$1 AND reverses_id=$2 AND is_reversal AND reversed_at IS NULL`,
		accountID, allocationID, at, actor, reason)
	return err
}

func scanAllocations(rows pgx.Rows) ([]Allocation, error) {
	allocs := []Allocation{}
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.AccountID, &a.OrderRef, &a.SKU, &a.ShippedAt, &a.Method,
			&a.Qty, &a.UnitCost, &a.Amount, &a.LayerID, &a.IsReversal, &a.ReversesID,
			&a.ReversedAt, &a.ReversedBy, &a.ReverseReason, &a.CreatedAt); err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
