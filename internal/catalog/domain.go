package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Item is the canonical SKU registry entry. BaseUnitCost is the costing
// fallback when no receipt layer or snapshot is available.
type Item struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	BaseUnitCost decimal.Decimal `json:"base_unit_cost"`
	IsBundle     bool            `json:"is_bundle"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BundleComponent defines one component of a bundle SKU.
type BundleComponent struct {
	ID           int64  `json:"id"`
	AccountID    int64  `json:"account_id"`
	BundleSKU    string `json:"bundle_sku"`
	ComponentSKU string `json:"component_sku"`
	QtyPerBundle int64  `json:"qty_per_bundle"`
}

// Component is one exploded demand line: SKU plus required quantity.
type Component struct {
	SKU string
	Qty int64
}

// ErrItemNotFound indicates an unknown SKU for the account.
var ErrItemNotFound = errors.New("catalog: item not found")

// ErrBundleEmpty indicates a bundle SKU with zero defined components.
var ErrBundleEmpty = errors.New("catalog: bundle has no components")

// ErrDuplicateSKU indicates the SKU already exists for the account.
var ErrDuplicateSKU = errors.New("catalog: sku already exists")

// ErrSelfReference indicates a bundle listing itself as a component.
var ErrSelfReference = errors.New("catalog: bundle cannot contain itself")

// ErrInvalidQuantity indicates a non-positive component quantity.
var ErrInvalidQuantity = errors.New("catalog: quantity per bundle must be positive")
