package costing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type fakeLayer struct {
	id           int64
	sku          string
	receivedAt   time.Time
	qtyReceived  int64
	qtyRemaining int64
	unitCost     decimal.Decimal
}

type memoryRepo struct {
	layers      []*fakeLayer
	snapshots   map[string]StockSummary
	allocations []*Allocation
	guards      map[string]bool
	nextAllocID int64
	nextLayerID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{snapshots: map[string]StockSummary{}, guards: map[string]bool{}}
}

func (r *memoryRepo) addLayer(sku string, receivedAt time.Time, qty int64, unitCost decimal.Decimal) *fakeLayer {
	r.nextLayerID++
	layer := &fakeLayer{
		id: r.nextLayerID, sku: sku, receivedAt: receivedAt,
		qtyReceived: qty, qtyRemaining: qty, unitCost: unitCost,
	}
	r.layers = append(r.layers, layer)
	return layer
}

func (r *memoryRepo) layerByID(id int64) *fakeLayer {
	for _, layer := range r.layers {
		if layer.id == id {
			return layer
		}
	}
	return nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListAllocations(ctx context.Context, accountID int64, orderRef string) ([]Allocation, error) {
	out := []Allocation{}
	for _, a := range r.allocations {
		if a.AccountID == accountID && a.OrderRef == orderRef {
			out = append(out, *a)
		}
	}
	return out, nil
}

func guardKey(orderRef, sku string) string { return orderRef + "|" + sku }

func (tx *memoryTx) OpenLayersForUpdate(ctx context.Context, accountID int64, sku string) ([]OpenLayer, error) {
	open := []OpenLayer{}
	for _, layer := range tx.repo.layers {
		if layer.sku == sku && layer.qtyRemaining > 0 {
			open = append(open, OpenLayer{
				ID: layer.id, ReceivedAt: layer.receivedAt,
				QtyRemaining: layer.qtyRemaining, UnitCost: layer.unitCost,
			})
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if !open[i].ReceivedAt.Equal(open[j].ReceivedAt) {
			return open[i].ReceivedAt.Before(open[j].ReceivedAt)
		}
		return open[i].ID < open[j].ID
	})
	return open, nil
}

func (tx *memoryTx) DecrementLayer(ctx context.Context, accountID, layerID, qty int64) error {
	layer := tx.repo.layerByID(layerID)
	if layer == nil || layer.qtyRemaining < qty {
		return ErrInsufficientStock
	}
	layer.qtyRemaining -= qty
	return nil
}

func (tx *memoryTx) RestoreLayer(ctx context.Context, accountID, layerID, qty int64) error {
	layer := tx.repo.layerByID(layerID)
	if layer == nil {
		return fmt.Errorf("layer %d not found", layerID)
	}
	layer.qtyRemaining += qty
	if layer.qtyRemaining > layer.qtyReceived {
		layer.qtyRemaining = layer.qtyReceived
	}
	return nil
}

func (tx *memoryTx) LatestSnapshot(ctx context.Context, accountID int64, sku string, onOrBefore time.Time) (StockSummary, bool, error) {
	summary, ok := tx.repo.snapshots[sku]
	if !ok || summary.AsOfDate.After(onOrBefore) {
		return StockSummary{}, false, nil
	}
	return summary, true, nil
}

func (tx *memoryTx) InsertAllocation(ctx context.Context, alloc Allocation) (int64, error) {
	tx.repo.nextAllocID++
	alloc.ID = tx.repo.nextAllocID
	alloc.CreatedAt = time.Now().UTC()
	tx.repo.allocations = append(tx.repo.allocations, &alloc)
	return alloc.ID, nil
}

func (tx *memoryTx) InsertGuard(ctx context.Context, accountID int64, orderRef, sku string) error {
	key := guardKey(orderRef, sku)
	if tx.repo.guards[key] {
		return ErrDuplicateAllocation
	}
	tx.repo.guards[key] = true
	return nil
}

func (tx *memoryTx) DeleteGuard(ctx context.Context, accountID int64, orderRef, sku string) error {
	delete(tx.repo.guards, guardKey(orderRef, sku))
	return nil
}

func (tx *memoryTx) LiveAllocationsForUpdate(ctx context.Context, accountID int64, orderRef, sku string) ([]Allocation, error) {
	out := []Allocation{}
	for _, a := range tx.repo.allocations {
		if a.AccountID == accountID && a.OrderRef == orderRef && a.SKU == sku &&
			!a.IsReversal && a.ReversedAt == nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (tx *memoryTx) ReversedQtyFor(ctx context.Context, accountID, allocationID int64) (int64, error) {
	var sum int64
	for _, a := range tx.repo.allocations {
		if a.IsReversal && a.ReversesID != nil && *a.ReversesID == allocationID {
			sum += a.Qty
		}
	}
	return sum, nil
}

func (tx *memoryTx) MarkAllocationReversed(ctx context.Context, accountID, allocationID int64, reason, actor string, at time.Time) error {
	found := false
	for _, a := range tx.repo.allocations {
		if a.ID == allocationID && a.ReversedAt == nil {
			ts := at
			a.ReversedAt = &ts
			a.ReversedBy = actor
			a.ReverseReason = reason
			found = true
		}
	}
	if !found {
		return ErrAllocationNotFound
	}
	// Compensating rows close with the row they reverse.
	for _, a := range tx.repo.allocations {
		if a.IsReversal && a.ReversesID != nil && *a.ReversesID == allocationID && a.ReversedAt == nil {
			ts := at
			a.ReversedAt = &ts
			a.ReversedBy = actor
			a.ReverseReason = reason
		}
	}
	return nil
}

// fakeCatalog explodes bundles from a static per-unit recipe; unknown SKUs
// resolve to themselves.
type fakeCatalog struct {
	bundles map[string][]ComponentDemand
	empty   map[string]bool
}

func (c *fakeCatalog) Explode(ctx context.Context, accountID int64, sku string, qty int64) ([]ComponentDemand, error) {
	if c.empty[sku] {
		return nil, ErrBundleEmpty
	}
	recipe, ok := c.bundles[sku]
	if !ok {
		return []ComponentDemand{{SKU: sku, Qty: qty}}, nil
	}
	out := make([]ComponentDemand, 0, len(recipe))
	for _, comp := range recipe {
		out = append(out, ComponentDemand{SKU: comp.SKU, Qty: comp.Qty * qty})
	}
	return out, nil
}

func plainCatalog() *fakeCatalog {
	return &fakeCatalog{bundles: map[string][]ComponentDemand{}, empty: map[string]bool{}}
}
