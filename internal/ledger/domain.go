package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind enumerates supported receipt layer origins.
type SourceKind string

const (
	// SourceOpeningBalance seeds stock carried in from before tracking began.
	SourceOpeningBalance SourceKind = "opening_balance"
	// SourcePurchase represents a supplier purchase receipt.
	SourcePurchase SourceKind = "purchase"
	// SourceAdjustment represents a manual stock correction.
	SourceAdjustment SourceKind = "adjustment"
	// SourceReturn represents stock restored by a processed customer return.
	SourceReturn SourceKind = "return"
)

// Valid reports whether the source kind is one of the known values.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceOpeningBalance, SourcePurchase, SourceAdjustment, SourceReturn:
		return true
	}
	return false
}

// ReceivingDoc is the parent document of one stock-in posting. Layers and
// their document commit together or not at all.
type ReceivingDoc struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	Reference  string    `json:"reference"`
	Supplier   string    `json:"supplier"`
	ReceivedAt time.Time `json:"received_at"`
	Note       string    `json:"note"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReceiptLayer is one inbound cost layer. QtyRemaining shrinks as FIFO
// allocations consume it and grows back on reversal, within
// 0 <= QtyRemaining <= QtyReceived. Layers are voided, never deleted.
type ReceiptLayer struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"`
	DocID        int64           `json:"doc_id"`
	SKU          string          `json:"sku"`
	ReceivedAt   time.Time       `json:"received_at"`
	QtyReceived  int64           `json:"qty_received"`
	QtyRemaining int64           `json:"qty_remaining"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	SourceKind   SourceKind      `json:"source_kind"`
	SourceRef    string          `json:"source_ref,omitempty"`
	Voided       bool            `json:"voided"`
	VoidReason   string          `json:"void_reason,omitempty"`
	VoidedBy     string          `json:"voided_by,omitempty"`
	VoidedAt     *time.Time      `json:"voided_at,omitempty"`
}

// StockInLine describes one layer to create.
type StockInLine struct {
	SKU        string
	Qty        int64
	UnitCost   decimal.Decimal
	SourceKind SourceKind
	SourceRef  string
}

// StockInInput describes a receiving document plus its layers.
type StockInInput struct {
	AccountID  int64
	Reference  string
	Supplier   string
	ReceivedAt time.Time
	Note       string
	Actor      string
	Lines      []StockInLine
}

// StockInResult reports the created document and layers.
type StockInResult struct {
	Doc    ReceivingDoc   `json:"doc"`
	Layers []ReceiptLayer `json:"layers"`
}

// VoidResult reports a successful layer void.
type VoidResult struct {
	LayerID     int64     `json:"layer_id"`
	SKU         string    `json:"sku"`
	RebuildFrom time.Time `json:"rebuild_from"`
}

// ErrLayerNotFound indicates an unknown layer for the account.
var ErrLayerNotFound = errors.New("ledger: receipt layer not found")

// ErrAlreadyVoided indicates the layer is already voided.
var ErrAlreadyVoided = errors.New("ledger: receipt layer already voided")

// ErrVoidGuard indicates the layer has been consumed by live allocations;
// those must be reversed before the layer can be voided.
var ErrVoidGuard = errors.New("ledger: layer consumed by non-reversed allocations")

// ErrInvalidQuantity indicates a non-positive receipt quantity.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// ErrInvalidUnitCost indicates a negative unit cost.
var ErrInvalidUnitCost = errors.New("ledger: unit cost must be >= 0")
