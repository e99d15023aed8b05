package snapshot

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CostSnapshot is a per-SKU per-day on-hand checkpoint. Rows are fully
// derived from the receipt ledger and allocation log; they are rebuilt by
// replay, never edited by hand.
type CostSnapshot struct {
	AccountID   int64           `json:"account_id"`
	SKU         string          `json:"sku"`
	AsOfDate    time.Time       `json:"as_of_date"`
	OnHandQty   int64           `json:"on_hand_qty"`
	OnHandValue decimal.Decimal `json:"on_hand_value"`
	AvgUnitCost decimal.Decimal `json:"avg_unit_cost"`
}

// DayMovement aggregates quantity and value moved on one day.
type DayMovement struct {
	Qty   int64
	Value decimal.Decimal
}

// avgCostScale is the number of decimal places kept on derived average
// unit costs.
const avgCostScale = 6

// ErrInvalidRange indicates from is after to.
var ErrInvalidRange = errors.New("snapshot: invalid date range")

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AvgCost derives the average unit cost of a qty/value pair, 0 when empty.
func AvgCost(qty int64, value decimal.Decimal) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return value.DivRound(decimal.NewFromInt(qty), avgCostScale)
}
