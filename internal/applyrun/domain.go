package applyrun

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sellerledger/sellerledger/internal/costing"
)

// ShipmentLine is one shipped order line from the external import. Lines in
// cancelled or refunded orders are ineligible for costing.
type ShipmentLine struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	OrderRef  string    `json:"order_ref"`
	SKU       string    `json:"sku"`
	Qty       int64     `json:"qty"`
	ShippedAt time.Time `json:"shipped_at"`
	Status    string    `json:"status"`
}

const (
	lineStatusCancelled = "cancelled"
	lineStatusRefunded  = "refunded"
)

// Eligible reports whether the line may be costed.
func (l ShipmentLine) Eligible() bool {
	return l.Status != lineStatusCancelled && l.Status != lineStatusRefunded && l.Qty > 0
}

// ApplyRun is one batch costing pass. Runs and their items are append-only.
type ApplyRun struct {
	ID          uuid.UUID      `json:"id"`
	AccountID   int64          `json:"account_id"`
	FromDate    time.Time      `json:"from_date"`
	ToDate      time.Time      `json:"to_date"`
	Method      costing.Method `json:"method"`
	Total       int            `json:"total"`
	Eligible    int            `json:"eligible"`
	Successful  int            `json:"successful"`
	Partial     int            `json:"partial"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

// ApplyRunItem records the outcome of one line within a run.
type ApplyRunItem struct {
	ID            int64              `json:"id"`
	RunID         uuid.UUID          `json:"run_id"`
	AccountID     int64              `json:"account_id"`
	OrderRef      string             `json:"order_ref"`
	SKU           string             `json:"sku"`
	Qty           int64              `json:"qty"`
	Status        costing.LineStatus `json:"status"`
	Reason        string             `json:"reason,omitempty"`
	AllocatedSKUs []string           `json:"allocated_skus,omitempty"`
	MissingSKUs   []string           `json:"missing_skus,omitempty"`
}

// ApplyInput parameterises one run.
type ApplyInput struct {
	AccountID int64
	FromDate  time.Time
	ToDate    time.Time
	Method    costing.Method
}

var (
	ErrRunNotFound  = errors.New("applyrun: run not found")
	ErrInvalidRange = errors.New("applyrun: invalid date range")
)
