package costing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy prices one component demand. Implementations run inside the
// caller's transaction and must not commit or roll back themselves.
type Strategy interface {
	Method() Method
	// Allocate consumes stock for the demand and returns the allocation
	// rows to insert, the uncovered shortfall, and a reason code when the
	// shortfall is non-zero.
	Allocate(ctx context.Context, tx TxRepository, accountID int64, orderRef string, demand ComponentDemand, shippedAt time.Time) ([]Allocation, int64, string, error)
}

// StrategyFor maps a method to its strategy.
func StrategyFor(method Method) (Strategy, error) {
	switch method {
	case MethodFIFO:
		return fifoStrategy{}, nil
	case MethodAVG:
		return avgStrategy{}, nil
	default:
		return nil, ErrUnknownMethod
	}
}

type fifoStrategy struct{}

func (fifoStrategy) Method() Method { return MethodFIFO }

// Allocate walks the SKU's open layers oldest first, consuming each at its
// own unit cost. Layers are locked up front so concurrent allocators of the
// same SKU serialize.
func (fifoStrategy) Allocate(ctx context.Context, tx TxRepository, accountID int64, orderRef string, demand ComponentDemand, shippedAt time.Time) ([]Allocation, int64, string, error) {
	layers, err := tx.OpenLayersForUpdate(ctx, accountID, demand.SKU)
	if err != nil {
		return nil, 0, "", err
	}
	if len(layers) == 0 {
		return nil, demand.Qty, ReasonNoStockLayers, nil
	}

	remaining := demand.Qty
	allocs := []Allocation{}
	for _, layer := range layers {
		if remaining == 0 {
			break
		}
		take := layer.QtyRemaining
		if take > remaining {
			take = remaining
		}
		if err := tx.DecrementLayer(ctx, accountID, layer.ID, take); err != nil {
			return nil, 0, "", err
		}
		layerID := layer.ID
		alloc := Allocation{
			AccountID: accountID,
			OrderRef:  orderRef,
			SKU:       demand.SKU,
			ShippedAt: shippedAt,
			Method:    MethodFIFO,
			Qty:       take,
			UnitCost:  layer.UnitCost,
			Amount:    layer.UnitCost.Mul(decimal.NewFromInt(take)),
			LayerID:   &layerID,
		}
		id, err := tx.InsertAllocation(ctx, alloc)
		if err != nil {
			return nil, 0, "", err
		}
		alloc.ID = id
		allocs = append(allocs, alloc)
		remaining -= take
	}
	if remaining > 0 {
		return allocs, remaining, ReasonInsufficient, nil
	}
	return allocs, 0, "", nil
}

type avgStrategy struct{}

func (avgStrategy) Method() Method { return MethodAVG }

// Allocate prices the demand at the moving-average cost from the latest
// snapshot on or before the ship date. At most one allocation row is
// written; on-hand shortage yields a partial quantity.
func (avgStrategy) Allocate(ctx context.Context, tx TxRepository, accountID int64, orderRef string, demand ComponentDemand, shippedAt time.Time) ([]Allocation, int64, string, error) {
	summary, ok, err := tx.LatestSnapshot(ctx, accountID, demand.SKU, shippedAt)
	if err != nil {
		return nil, 0, "", err
	}
	if !ok {
		return nil, demand.Qty, ReasonNoSnapshot, nil
	}

	take := demand.Qty
	if summary.OnHandQty < take {
		take = summary.OnHandQty
	}
	if take <= 0 {
		return nil, demand.Qty, ReasonInsufficient, nil
	}

	alloc := Allocation{
		AccountID: accountID,
		OrderRef:  orderRef,
		SKU:       demand.SKU,
		ShippedAt: shippedAt,
		Method:    MethodAVG,
		Qty:       take,
		UnitCost:  summary.AvgUnitCost,
		Amount:    summary.AvgUnitCost.Mul(decimal.NewFromInt(take)),
	}
	id, err := tx.InsertAllocation(ctx, alloc)
	if err != nil {
		return nil, 0, "", err
	}
	alloc.ID = id

	shortfall := demand.Qty - take
	reason := ""
	if shortfall > 0 {
		reason = ReasonInsufficient
	}
	return []Allocation{alloc}, shortfall, reason, nil
}
