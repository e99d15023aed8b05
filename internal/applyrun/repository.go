package applyrun

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts run persistence for the service.
type RepositoryPort interface {
	ListShipmentLines(ctx context.Context, accountID int64, from, to time.Time) ([]ShipmentLine, error)
	InsertRun(ctx context.Context, run ApplyRun, items []ApplyRunItem) error
	GetRun(ctx context.Context, accountID int64, runID uuid.UUID) (ApplyRun, error)
	ListRunItems(ctx context.Context, accountID int64, runID uuid.UUID) ([]ApplyRunItem, error)
}

// Repository is the PostgreSQL run store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListShipmentLines returns the window's shipped lines ordered by order
// then line id, so lines of one order are adjacent.
func (r *Repository) ListShipmentLines(ctx context.Context, accountID int64, from, to time.Time) ([]ShipmentLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, account_id, order_ref, sku, qty, shipped_at, status
FROM shipment_lines
WHERE account_id=$1 AND shipped_at >= $2 AND shipped_at < $3 + INTERVAL '1 day'
ORDER BY order_ref, id`, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []ShipmentLine{}
	for rows.Next() {
		var line ShipmentLine
		if err := rows.Scan(&line.ID, &line.AccountID, &line.OrderRef, &line.SKU, &line.Qty, &line.ShippedAt, &line.Status); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// InsertRun persists the run header and its items in one transaction.
func (r *Repository) InsertRun(ctx context.Context, run ApplyRun, items []ApplyRunItem) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO apply_runs
(id, account_id, from_date, to_date, method, total, eligible, successful, partial, skipped, failed, started_at, completed_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULLIF($14,''))`,
		run.ID, run.AccountID, run.FromDate, run.ToDate, run.Method,
		run.Total, run.Eligible, run.Successful, run.Partial, run.Skipped, run.Failed,
		run.StartedAt, run.CompletedAt, run.CreatedBy)
	if err != nil {
		return err
	}
	for _, item := range items {
		_, err = tx.Exec(ctx, `INSERT INTO apply_run_items
(run_id, account_id, order_ref, sku, qty, status, reason, allocated_skus, missing_skus)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)`,
			run.ID, item.AccountID, item.OrderRef, item.SKU, item.Qty,
			item.Status, item.Reason, item.AllocatedSKUs, item.MissingSKUs)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetRun fetches a run header.
func (r *Repository) GetRun(ctx context.Context, accountID int64, runID uuid.UUID) (ApplyRun, error) {
	var run ApplyRun
	err := r.pool.QueryRow(ctx, `SELECT id, account_id, from_date, to_date, method, total, eligible,
successful, partial, skipped, failed, started_at, completed_at, COALESCE(created_by,'')
FROM apply_runs WHERE account_id=$1 AND id=$2`, accountID, runID).
		Scan(&run.ID, &run.AccountID, &run.FromDate, &run.ToDate, &run.Method, &run.Total, &run.Eligible,
			&run.Successful, &run.Partial, &run.Skipped, &run.Failed, &run.StartedAt, &run.CompletedAt, &run.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApplyRun{}, ErrRunNotFound
		}
		return ApplyRun{}, err
	}
	return run, nil
}

// ListRunItems returns a run's items ordered by insertion.
func (r *Repository) ListRunItems(ctx context.Context, accountID int64, runID uuid.UUID) ([]ApplyRunItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, run_id, account_id, order_ref, sku, qty, status,
COALESCE(reason,''), COALESCE(allocated_skus,'{}'), COALESCE(missing_skus,'{}')
FROM apply_run_items WHERE account_id=$1 AND run_id=$2 ORDER BY id`, accountID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ApplyRunItem{}
	for rows.Next() {
		var item ApplyRunItem
		if err := rows.Scan(&item.ID, &item.RunID, &item.AccountID, &item.OrderRef, &item.SKU, &item.Qty,
			&item.Status, &item.Reason, &item.AllocatedSKUs, &item.MissingSKUs); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
