package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sellerledger/sellerledger/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	GetItem(ctx context.Context, accountID int64, sku string) (Item, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
	ListItems(ctx context.Context, accountID int64) ([]Item, error)
	ListComponents(ctx context.Context, accountID int64, bundleSKU string) ([]BundleComponent, error)
	UpsertComponent(ctx context.Context, comp BundleComponent) error
	DeleteComponent(ctx context.Context, accountID int64, bundleSKU, componentSKU string) error
	RenameSKU(ctx context.Context, accountID int64, oldSKU, newSKU string) error
}

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetItem(ctx context.Context, accountID int64, sku string) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT id, account_id, sku, name, base_unit_cost, is_bundle, is_active, created_at, updated_at
FROM items WHERE account_id=$1 AND sku=$2`, accountID, sku).
		Scan(&item.ID, &item.AccountID, &item.SKU, &item.Name, &item.BaseUnitCost, &item.IsBundle, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO items (account_id, sku, name, base_unit_cost, is_bundle, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,TRUE,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		item.AccountID, item.SKU, item.Name, item.BaseUnitCost, item.IsBundle).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Item{}, ErrDuplicateSKU
		}
		return Item{}, err
	}
	item.IsActive = true
	return item, nil
}

func (r *Repository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET name=$3, base_unit_cost=$4, is_bundle=$5, is_active=$6, updated_at=NOW()
WHERE account_id=$1 AND sku=$2`, item.AccountID, item.SKU, item.Name, item.BaseUnitCost, item.IsBundle, item.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repository) ListItems(ctx context.Context, accountID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, account_id, sku, name, base_unit_cost, is_bundle, is_active, created_at, updated_at
FROM items WHERE account_id=$1 ORDER BY sku ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.AccountID, &item.SKU, &item.Name, &item.BaseUnitCost, &item.IsBundle, &item.IsActive, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) ListComponents(ctx context.Context, accountID int64, bundleSKU string) ([]BundleComponent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, account_id, bundle_sku, component_sku, qty_per_bundle
FROM bundle_components WHERE account_id=$1 AND bundle_sku=$2 ORDER BY component_sku ASC`, accountID, bundleSKU)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	comps := []BundleComponent{}
	for rows.Next() {
		var comp BundleComponent
		if err := rows.Scan(&comp.ID, &comp.AccountID, &comp.BundleSKU, &comp.ComponentSKU, &comp.QtyPerBundle); err != nil {
			return nil, err
		}
		comps = append(comps, comp)
	}
	return comps, rows.Err()
}

func (r *Repository) UpsertComponent(ctx context.Context, comp BundleComponent) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO bundle_components (account_id, bundle_sku, component_sku, qty_per_bundle)
VALUES ($1,$2,$3,$4)
ON CONFLICT (account_id, bundle_sku, component_sku) DO UPDATE SET qty_per_bundle=EXCLUDED.qty_per_bundle`,
		comp.AccountID, comp.BundleSKU, comp.ComponentSKU, comp.QtyPerBundle)
	return err
}

func (r *Repository) DeleteComponent(ctx context.Context, accountID int64, bundleSKU, componentSKU string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM bundle_components WHERE account_id=$1 AND bundle_sku=$2 AND component_sku=$3`,
		accountID, bundleSKU, componentSKU)
	return err
}

// RenameSKU rewrites the item row and every referencing row in one
// transaction. A rename is never performed as independently committed
// statements.
func (r *Repository) RenameSKU(ctx context.Context, accountID int64, oldSKU, newSKU string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE items SET sku=$3, updated_at=NOW() WHERE account_id=$1 AND sku=$2`, accountID, oldSKU, newSKU)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateSKU
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrItemNotFound
		}
		statements := []string{
			`UPDATE bundle_components SET bundle_sku=$3 WHERE account_id=$1 AND bundle_sku=$2`,
			`UPDATE bundle_components SET component_sku=$3 WHERE account_id=$1 AND component_sku=$2`,
			`UPDATE receipt_layers SET sku=$3 WHERE account_id=$1 AND sku=$2`,
			`UPDATE cost_snapshots SET sku=$3 WHERE account_id=$1 AND sku=$2`,
			`UPDATE cogs_allocations SET sku=$3 WHERE account_id=$1 AND sku=$2`,
			`UPDATE allocation_guards SET sku=$3 WHERE account_id=$1 AND sku=$2`,
			`UPDATE apply_run_items SET sku=$3 WHERE account_id=$1 AND sku=$2`,
			`UPDATE shipment_lines SET sku=$3 WHERE account_id=$1 AND sku=$2`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, accountID, oldSKU, newSKU); err != nil {
				return err
			}
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
