package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLayer(ctx context.Context, accountID, layerID int64) (ReceiptLayer, error)
	ListLayers(ctx context.Context, accountID int64, sku string, includeVoided bool) ([]ReceiptLayer, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertReceivingDoc(ctx context.Context, doc ReceivingDoc) (int64, error)
	InsertLayer(ctx context.Context, layer ReceiptLayer) (int64, error)
	GetLayerForUpdate(ctx context.Context, accountID, layerID int64) (ReceiptLayer, error)
	CountLiveAllocationsForLayer(ctx context.Context, accountID, layerID int64) (int64, error)
	MarkLayerVoided(ctx context.Context, accountID, layerID int64, reason, actor string, at time.Time) error
}

// Repository persists receipt ledger data in PostgreSQL.
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
		return errors.New("ledger repository not initialised")
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

const layerColumns = `id, account_id, doc_id, sku, received_at, qty_received, qty_remaining, unit_cost, source_kind, COALESCE(source_ref::text, ''), voided, COALESCE(void_reason, ''), COALESCE(voided_by, ''), voided_at`

func scanLayer(row pgx.Row) (ReceiptLayer, error) {
	var layer ReceiptLayer
	err := row.Scan(&layer.ID, &layer.AccountID, &layer.DocID, &layer.SKU, &layer.ReceivedAt,
		&layer.QtyReceived, &layer.QtyRemaining, &layer.UnitCost, &layer.SourceKind,
		&layer.SourceRef, &layer.Voided, &layer.VoidReason, &layer.VoidedBy, &layer.VoidedAt)
	return layer, err
}

func (r *Repository) GetLayer(ctx context.Context, accountID, layerID int64) (ReceiptLayer, error) {
	layer, err := scanLayer(r.pool.QueryRow(ctx, `SELECT `+layerColumns+` FROM receipt_layers WHERE account_id=$1 AND id=$2`, accountID, layerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReceiptLayer{}, ErrLayerNotFound
		}
		return ReceiptLayer{}, err
	}
	return layer, nil
}

func (r *Repository) ListLayers(ctx context.Context, accountID int64, sku string, includeVoided bool) ([]ReceiptLayer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+layerColumns+` FROM receipt_layers
WHERE account_id=$1 AND sku=$2 AND ($3 OR NOT voided)
ORDER BY received_at ASC, id ASC`, accountID, sku, includeVoided)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	layers := []ReceiptLayer{}
	for rows.Next() {
		layer, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}

func (r *txRepository) InsertReceivingDoc(ctx context.Context, doc ReceivingDoc) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receiving_docs (account_id, reference, supplier, received_at, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		doc.AccountID, doc.Reference, doc.Supplier, doc.ReceivedAt, doc.Note, doc.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLayer(ctx context.Context, layer ReceiptLayer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receipt_layers (account_id, doc_id, sku, received_at, qty_received, qty_remaining, unit_cost, source_kind, source_ref, voided)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE) RETURNING id`,
		layer.AccountID, nullInt(layer.DocID), layer.SKU, layer.ReceivedAt, layer.QtyReceived, layer.QtyRemaining,
		layer.UnitCost, string(layer.SourceKind), nullString(layer.SourceRef)).Scan(&id)
	return id, err
}

func (r *txRepository) GetLayerForUpdate(ctx context.Context, accountID, layerID int64) (ReceiptLayer, error) {
	layer, err := scanLayer(r.tx.QueryRow(ctx, `SELECT `+layerColumns+` FROM receipt_layers WHERE account_id=$1 AND id=$2 FOR UPDATE`, accountID, layerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReceiptLayer{}, ErrLayerNotFound
		}
		return ReceiptLayer{}, err
	}
	return layer, nil
}

func (r *txRepository) CountLiveAllocationsForLayer(ctx context.Context, accountID, layerID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM cogs_allocations
WHERE account_id=$1 AND layer_id=$2 AND NOT is_reversal AND reversed_at IS NULL`, accountID, layerID).Scan(&count)
	return count, err
}

func (r *txRepository) MarkLayerVoided(ctx context.Context, accountID, layerID int64, reason, actor string, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE receipt_layers SET voided=TRUE, void_reason=$3, voided_by=$4, voided_at=$5
WHERE account_id=$1 AND id=$2 AND NOT voided`, accountID, layerID, reason, actor, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyVoided
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
