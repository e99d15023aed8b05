package costing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Method selects the costing strategy for a run.
type Method string

const (
	MethodFIFO Method = "FIFO"
	MethodAVG  Method = "AVG"
)

// Valid reports whether the method is supported.
func (m Method) Valid() bool {
	return m == MethodFIFO || m == MethodAVG
}

// Allocation is one COGS posting. Rows are append-only: reversals flag the
// original or add a compensating row, they never delete.
type Allocation struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	OrderRef      string          `json:"order_ref"`
	SKU           string          `json:"sku"`
	ShippedAt     time.Time       `json:"shipped_at"`
	Method        Method          `json:"method"`
	Qty           int64           `json:"qty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Amount        decimal.Decimal `json:"amount"`
	LayerID       *int64          `json:"layer_id,omitempty"`
	IsReversal    bool            `json:"is_reversal"`
	ReversesID    *int64          `json:"reverses_id,omitempty"`
	ReversedAt    *time.Time      `json:"reversed_at,omitempty"`
	ReversedBy    string          `json:"reversed_by,omitempty"`
	ReverseReason string          `json:"reverse_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ComponentDemand is exploded demand for one physical SKU.
type ComponentDemand struct {
	SKU string `json:"sku"`
	Qty int64  `json:"qty"`
}

// CatalogPort explodes a sellable SKU into physical component demand.
type CatalogPort interface {
	Explode(ctx context.Context, accountID int64, sku string, qty int64) ([]ComponentDemand, error)
}

// LineStatus classifies the outcome of allocating one order line.
type LineStatus string

const (
	StatusSuccessful LineStatus = "successful"
	StatusPartial    LineStatus = "partial"
	StatusFailed     LineStatus = "failed"
	StatusSkipped    LineStatus = "skipped"
)

// Reason codes attached to non-successful line results.
const (
	ReasonNoStockLayers    = "NO_STOCK_LAYERS"
	ReasonNoSnapshot       = "NO_SNAPSHOT"
	ReasonInsufficient     = "INSUFFICIENT_ON_HAND"
	ReasonBundleEmpty      = "BUNDLE_EMPTY"
	ReasonAlreadyAllocated = "ALREADY_ALLOCATED"
	ReasonOrderIneligible  = "ORDER_INELIGIBLE"
)

// ReasonMissingComponent tags a bundle component that could not be covered.
func ReasonMissingComponent(sku string) string {
	return fmt.Sprintf("MISSING_COMPONENT:%s", sku)
}

// OrderLine is one shipped line to allocate.
type OrderLine struct {
	OrderRef  string    `json:"order_ref"`
	SKU       string    `json:"sku"`
	Qty       int64     `json:"qty"`
	ShippedAt time.Time `json:"shipped_at"`
}

// LineResult is the allocation outcome for one order line.
type LineResult struct {
	OrderRef      string       `json:"order_ref"`
	SKU           string       `json:"sku"`
	Qty           int64        `json:"qty"`
	Status        LineStatus   `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	AllocatedSKUs []string     `json:"allocated_skus,omitempty"`
	MissingSKUs   []string     `json:"missing_skus,omitempty"`
	Allocations   []Allocation `json:"allocations,omitempty"`
}

var (
	ErrBundleEmpty         = errors.New("costing: bundle has no components")
	ErrInsufficientStock   = errors.New("costing: insufficient stock")
	ErrDuplicateAllocation = errors.New("costing: order line already allocated")
	ErrAllocationNotFound  = errors.New("costing: no live allocation for order line")
	ErrInvalidQuantity     = errors.New("costing: invalid quantity")
	ErrUnknownMethod       = errors.New("costing: unknown costing method")
)
