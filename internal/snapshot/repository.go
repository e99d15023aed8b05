package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for the rebuilder.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Latest(ctx context.Context, accountID int64, sku string, onOrBefore time.Time) (CostSnapshot, bool, error)
	ListSKUsWithActivity(ctx context.Context, accountID int64) ([]string, error)
}

// TxRepository exposes transactional operations used by the rebuilder.
type TxRepository interface {
	DeleteRange(ctx context.Context, accountID int64, sku string, from, to time.Time) error
	LastBefore(ctx context.Context, accountID int64, sku string, before time.Time) (CostSnapshot, bool, error)
	ReceiptsByDay(ctx context.Context, accountID int64, sku string, from, to time.Time) (map[time.Time]DayMovement, error)
	AvgCOGSByDay(ctx context.Context, accountID int64, sku string, from, to time.Time) (map[time.Time]DayMovement, error)
	InsertSnapshot(ctx context.Context, snap CostSnapshot) error
}

// Repository persists cost snapshots in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("snapshot repository not initialised")
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

// Latest returns the most recent snapshot at or before the given date.
func (r *Repository) Latest(ctx context.Context, accountID int64, sku string, onOrBefore time.Time) (CostSnapshot, bool, error) {
	var snap CostSnapshot
	err := r.pool.QueryRow(ctx, `SELECT account_id, sku, as_of_date, on_hand_qty, on_hand_value, avg_unit_cost
FROM cost_snapshots WHERE account_id=$1 AND sku=$2 AND as_of_date <= $3
ORDER BY as_of_date DESC LIMIT 1`, accountID, sku, DateOf(onOrBefore)).
		Scan(&snap.AccountID, &snap.SKU, &snap.AsOfDate, &snap.OnHandQty, &snap.OnHandValue, &snap.AvgUnitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CostSnapshot{}, false, nil
		}
		return CostSnapshot{}, false, err
	}
	return snap, true, nil
}

// ListSKUsWithActivity lists SKUs holding at least one receipt layer.
func (r *Repository) ListSKUsWithActivity(ctx context.Context, accountID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT sku FROM receipt_layers WHERE account_id=$1 ORDER BY sku`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	skus := []string{}
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, err
		}
		skus = append(skus, sku)
	}
	return skus, rows.Err()
}

func (r *txRepository) DeleteRange(ctx context.Context, accountID int64, sku string, from, to time.Time) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM cost_snapshots WHERE account_id=$1 AND sku=$2 AND as_of_date BETWEEN $3 AND $4`,
		accountID, sku, from, to)
	return err
}

func (r *txRepository) LastBefore(ctx context.Context, accountID int64, sku string, before time.Time) (CostSnapshot, bool, error) {
	var snap CostSnapshot
	err := r.tx.QueryRow(ctx, `SELECT account_id, sku, as_of_date, on_hand_qty, on_hand_value, avg_unit_cost
FROM cost_snapshots WHERE account_id=$1 AND sku=$2 AND as_of_date < $3
ORDER BY as_of_date DESC LIMIT 1`, accountID, sku, before).
		Scan(&snap.AccountID, &snap.SKU, &snap.AsOfDate, &snap.OnHandQty, &snap.OnHandValue, &snap.AvgUnitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CostSnapshot{}, false, nil
		}
		return CostSnapshot{}, false, err
	}
	return snap, true, nil
}

func (r *txRepository) ReceiptsByDay(ctx context.Context, accountID int64, sku string, from, to time.Time) (map[time.Time]DayMovement, error) {
	rows, err := r.tx.Query(ctx, `SELECT date_trunc('day', received_at AT TIME ZONE 'UTC')::date AS day,
COALESCE(SUM(qty_received),0), COALESCE(SUM(qty_received * unit_cost),0)
FROM receipt_layers
WHERE account_id=$1 AND sku=$2 AND NOT voided
AND received_at >= $3 AND received_at < $4 + INTERVAL '1 day'
GROUP BY day`, accountID, sku, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (r *txRepository) AvgCOGSByDay(ctx context.Context, accountID int64, sku string, from, to time.Time) (map[time.Time]DayMovement, error) {
	// Reversed originals are excluded; live reversal rows subtract their
	// covered quantity from the day's consumption.
	rows, err := r.tx.Query(ctx, `SELECT date_trunc('day', shipped_at AT TIME ZONE 'UTC')::date AS day,
COALESCE(SUM(CASE WHEN is_reversal THEN -qty ELSE qty END),0),
COALESCE(SUM(CASE WHEN is_reversal THEN -amount ELSE amount END),0)
FROM cogs_allocations
WHERE account_id=$1 AND sku=$2 AND method='AVG' AND reversed_at IS NULL
AND shipped_at >= $3 AND shipped_at < $4 + INTERVAL '1 day'
GROUP BY day`, accountID, sku, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (r *txRepository) InsertSnapshot(ctx context.Context, snap CostSnapshot) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO cost_snapshots (account_id, sku, as_of_date, on_hand_qty, on_hand_value, avg_unit_cost)
VALUES ($1,$2,$3,$4,$5,$6)`,
		snap.AccountID, snap.SKU, snap.AsOfDate, snap.OnHandQty, snap.OnHandValue, snap.AvgUnitCost)
	return err
}

func scanMovements(rows pgx.Rows) (map[time.Time]DayMovement, error) {
	movements := map[time.Time]DayMovement{}
	for rows.Next() {
		var day time.Time
		var qty int64
		var value decimal.Decimal
		if err := rows.Scan(&day, &qty, &value); err != nil {
			return nil, err
		}
		movements[DateOf(day)] = DayMovement{Qty: qty, Value: value}
	}
	return movements, rows.Err()
}
