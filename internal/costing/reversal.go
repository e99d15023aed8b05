package costing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sellerledger/sellerledger/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RebuildScheduler triggers cost snapshot rebuilds after reversals.
type RebuildScheduler interface {
	ScheduleRebuild(ctx context.Context, accountID int64, sku string, from time.Time) error
}

// ReverseInput describes one reversal request. Qty 0 reverses the full live
// quantity of the order line.
type ReverseInput struct {
	AccountID int64
	OrderRef  string
	SKU       string
	Qty       int64
	Reason    string
}

// ReverseResult summarises what a reversal changed.
type ReverseResult struct {
	OrderRef      string       `json:"order_ref"`
	SKU           string       `json:"sku"`
	ReversedQty   int64        `json:"reversed_qty"`
	FullyReversed bool         `json:"fully_reversed"`
	Reversals     []Allocation `json:"reversals,omitempty"`
}

// Reverser undoes COGS allocations. FIFO reversals restore quantity onto
// the originating layers; AVG reversals only flag rows and rely on snapshot
// replay to correct on-hand value.
type Reverser struct {
	repo     RepositoryPort
	audit    AuditPort
	rebuilds RebuildScheduler
}

// NewReverser constructs Reverser.
func NewReverser(repo RepositoryPort, audit AuditPort, rebuilds RebuildScheduler) *Reverser {
	return &Reverser{repo: repo, audit: audit, rebuilds: rebuilds}
}

// Reverse walks the order line's live allocations oldest first. Rows whose
// remaining quantity is fully covered are flagged reversed; a partially
// covered row stays live and a compensating reversal row is inserted.
func (s *Reverser) Reverse(ctx context.Context, input ReverseInput) (ReverseResult, error) {
	if input.AccountID == 0 || input.OrderRef == "" || input.SKU == "" {
		return ReverseResult{}, errors.New("costing: account, order ref and sku required")
	}
	if input.Qty < 0 {
		return ReverseResult{}, ErrInvalidQuantity
	}
	if input.Reason == "" {
		return ReverseResult{}, errors.New("costing: reversal reason required")
	}
	actor := shared.ActorFromContext(ctx)
	now := time.Now().UTC()

	result := ReverseResult{OrderRef: input.OrderRef, SKU: input.SKU}
	var method Method
	var earliestShipped time.Time

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.LiveAllocationsForUpdate(ctx, input.AccountID, input.OrderRef, input.SKU)
		if err != nil {
			return err
		}

		nets := make([]int64, len(rows))
		totalNet := int64(0)
		for i, row := range rows {
			reversed, err := tx.ReversedQtyFor(ctx, input.AccountID, row.ID)
			if err != nil {
				return err
			}
			nets[i] = row.Qty - reversed
			if nets[i] > 0 {
				totalNet += nets[i]
			}
		}
		if totalNet == 0 {
			return ErrAllocationNotFound
		}
		target := input.Qty
		if target == 0 {
			target = totalNet
		}
		if target > totalNet {
			return fmt.Errorf("%w: %d live, %d requested", ErrInvalidQuantity, totalNet, target)
		}

		remaining := target
		for i, row := range rows {
			if remaining == 0 {
				break
			}
			net := nets[i]
			if net <= 0 {
				continue
			}
			cover := net
			if cover > remaining {
				cover = remaining
			}
			if cover == net {
				if err := tx.MarkAllocationReversed(ctx, input.AccountID, row.ID, input.Reason, actor, now); err != nil {
					return err
				}
			} else {
				rowID := row.ID
				reversal := Allocation{
					AccountID:     input.AccountID,
					OrderRef:      input.OrderRef,
					SKU:           input.SKU,
					ShippedAt:     row.ShippedAt,
					Method:        row.Method,
					Qty:           cover,
					UnitCost:      row.UnitCost,
					Amount:        row.UnitCost.Mul(decimal.NewFromInt(cover)),
					LayerID:       row.LayerID,
					IsReversal:    true,
					ReversesID:    &rowID,
					ReverseReason: input.Reason,
				}
				id, err := tx.InsertAllocation(ctx, reversal)
				if err != nil {
					return err
				}
				reversal.ID = id
				result.Reversals = append(result.Reversals, reversal)
			}
			if row.Method == MethodFIFO && row.LayerID != nil {
				if err := tx.RestoreLayer(ctx, input.AccountID, *row.LayerID, cover); err != nil {
					return err
				}
			}
			method = row.Method
			if earliestShipped.IsZero() || row.ShippedAt.Before(earliestShipped) {
				earliestShipped = row.ShippedAt
			}
			remaining -= cover
			result.ReversedQty += cover
		}

		result.FullyReversed = target == totalNet
		if result.FullyReversed {
			// Re-open the idempotency slot so the line can be allocated again.
			if err := tx.DeleteGuard(ctx, input.AccountID, input.OrderRef, input.SKU); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ReverseResult{}, err
	}

	if method == MethodAVG && s.rebuilds != nil {
		from := time.Date(earliestShipped.UTC().Year(), earliestShipped.UTC().Month(), earliestShipped.UTC().Day(), 0, 0, 0, 0, time.UTC)
		if err := s.rebuilds.ScheduleRebuild(ctx, input.AccountID, input.SKU, from); err != nil {
			return ReverseResult{}, fmt.Errorf("costing: schedule snapshot rebuild: %w", err)
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			AccountID: input.AccountID,
			Actor:     actor,
			Action:    "cogs:reverse",
			Entity:    "cogs_allocation",
			EntityID:  fmt.Sprintf("%s/%s", input.OrderRef, input.SKU),
			Meta: map[string]any{
				"qty":    result.ReversedQty,
				"full":   result.FullyReversed,
				"reason": input.Reason,
			},
		})
	}
	return result, nil
}
