package snapshot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu          sync.Mutex
	snapshots   []CostSnapshot
	receipts    map[string]map[time.Time]DayMovement
	consumption map[string]map[time.Time]DayMovement
	skus        []string
}

type memoryTx struct {
	repo *memoryRepo
	sku  string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		receipts:    map[string]map[time.Time]DayMovement{},
		consumption: map[string]map[time.Time]DayMovement{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Latest(ctx context.Context, accountID int64, sku string, onOrBefore time.Time) (CostSnapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best CostSnapshot
	found := false
	for _, snap := range r.snapshots {
		if snap.AccountID != accountID || snap.SKU != sku || snap.AsOfDate.After(onOrBefore) {
			continue
		}
		if !found || snap.AsOfDate.After(best.AsOfDate) {
			best = snap
			found = true
		}
	}
	return best, found, nil
}

func (r *memoryRepo) ListSKUsWithActivity(ctx context.Context, accountID int64) ([]string, error) {
	return r.skus, nil
}

func (r *memoryRepo) addReceipt(sku string, day time.Time, qty int64, unitCost decimal.Decimal) {
	byDay, ok := r.receipts[sku]
	if !ok {
		byDay = map[time.Time]DayMovement{}
		r.receipts[sku] = byDay
	}
	m := byDay[day]
	m.Qty += qty
	m.Value = m.Value.Add(unitCost.Mul(decimal.NewFromInt(qty)))
	byDay[day] = m
}

func (r *memoryRepo) addConsumption(sku string, day time.Time, qty int64, amount decimal.Decimal) {
	byDay, ok := r.consumption[sku]
	if !ok {
		byDay = map[time.Time]DayMovement{}
		r.consumption[sku] = byDay
	}
	m := byDay[day]
	m.Qty += qty
	m.Value = m.Value.Add(amount)
	byDay[day] = m
}

func (tx *memoryTx) DeleteRange(ctx context.Context, accountID int64, sku string, from, to time.Time) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	kept := tx.repo.snapshots[:0]
	for _, snap := range tx.repo.snapshots {
		inRange := snap.AccountID == accountID && snap.SKU == sku &&
			!snap.AsOfDate.Before(from) && !snap.AsOfDate.After(to)
		if !inRange {
			kept = append(kept, snap)
		}
	}
	tx.repo.snapshots = kept
	return nil
}

func (tx *memoryTx) LastBefore(ctx context.Context, accountID int64, sku string, before time.Time) (CostSnapshot, bool, error) {
	return tx.repo.Latest(ctx, accountID, sku, before.AddDate(0, 0, -1))
}

func (tx *memoryTx) ReceiptsByDay(ctx context.Context, accountID int64, sku string, from, to time.Time) (map[time.Time]DayMovement, error) {
	return filterRange(tx.repo.receipts[sku], from, to), nil
}

func (tx *memoryTx) AvgCOGSByDay(ctx context.Context, accountID int64, sku string, from, to time.Time) (map[time.Time]DayMovement, error) {
	return filterRange(tx.repo.consumption[sku], from, to), nil
}

func (tx *memoryTx) InsertSnapshot(ctx context.Context, snap CostSnapshot) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.snapshots = append(tx.repo.snapshots, snap)
	return nil
}

func filterRange(byDay map[time.Time]DayMovement, from, to time.Time) map[time.Time]DayMovement {
	out := map[time.Time]DayMovement{}
	for day, m := range byDay {
		if !day.Before(from) && !day.After(to) {
			out[day] = m
		}
	}
	return out
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func findSnapshot(t *testing.T, snaps []CostSnapshot, sku string, asOf time.Time) CostSnapshot {
	t.Helper()
	for _, snap := range snaps {
		if snap.SKU == sku && snap.AsOfDate.Equal(asOf) {
			return snap
		}
	}
	t.Fatalf("no snapshot for %s at %s", sku, asOf)
	return CostSnapshot{}
}

func TestRebuildBlendsReceiptsIntoMovingAverage(t *testing.T) {
	repo := newMemoryRepo()
	repo.addReceipt("A", day(2026, 3, 1), 10, decimal.NewFromInt(5))
	repo.addReceipt("A", day(2026, 3, 2), 10, decimal.NewFromInt(7))

	rb := NewRebuilder(nil, repo, 1)
	require.NoError(t, rb.Rebuild(context.Background(), 1, "A", day(2026, 3, 1), day(2026, 3, 3)))

	first := findSnapshot(t, repo.snapshots, "A", day(2026, 3, 1))
	require.Equal(t, int64(10), first.OnHandQty)
	require.True(t, first.AvgUnitCost.Equal(decimal.NewFromInt(5)), "got %s", first.AvgUnitCost)

	second := findSnapshot(t, repo.snapshots, "A", day(2026, 3, 2))
	require.Equal(t, int64(20), second.OnHandQty)
	require.True(t, second.OnHandValue.Equal(decimal.NewFromInt(120)))
	require.True(t, second.AvgUnitCost.Equal(decimal.NewFromInt(6)), "got %s", second.AvgUnitCost)

	// Quiet days carry the prior state forward.
	third := findSnapshot(t, repo.snapshots, "A", day(2026, 3, 3))
	require.Equal(t, second.OnHandQty, third.OnHandQty)
	require.True(t, second.AvgUnitCost.Equal(third.AvgUnitCost))
}

func TestRebuildSubtractsNetConsumption(t *testing.T) {
	repo := newMemoryRepo()
	repo.addReceipt("A", day(2026, 3, 1), 10, decimal.NewFromInt(4))
	repo.addConsumption("A", day(2026, 3, 2), 6, decimal.NewFromInt(24))
	// A reversal shows up as a negative net movement.
	repo.addConsumption("A", day(2026, 3, 3), -2, decimal.NewFromInt(-8))

	rb := NewRebuilder(nil, repo, 1)
	require.NoError(t, rb.Rebuild(context.Background(), 1, "A", day(2026, 3, 1), day(2026, 3, 3)))

	second := findSnapshot(t, repo.snapshots, "A", day(2026, 3, 2))
	require.Equal(t, int64(4), second.OnHandQty)
	require.True(t, second.OnHandValue.Equal(decimal.NewFromInt(16)))

	third := findSnapshot(t, repo.snapshots, "A", day(2026, 3, 3))
	require.Equal(t, int64(6), third.OnHandQty)
	require.True(t, third.OnHandValue.Equal(decimal.NewFromInt(24)))
	require.True(t, third.AvgUnitCost.Equal(decimal.NewFromInt(4)))
}

func TestRebuildIsDeterministic(t *testing.T) {
	repo := newMemoryRepo()
	repo.addReceipt("A", day(2026, 3, 1), 7, decimal.RequireFromString("3.33"))
	repo.addConsumption("A", day(2026, 3, 2), 3, decimal.RequireFromString("9.99"))

	rb := NewRebuilder(nil, repo, 1)
	require.NoError(t, rb.Rebuild(context.Background(), 1, "A", day(2026, 3, 1), day(2026, 3, 2)))
	firstPass := append([]CostSnapshot(nil), repo.snapshots...)

	require.NoError(t, rb.Rebuild(context.Background(), 1, "A", day(2026, 3, 1), day(2026, 3, 2)))
	require.Equal(t, len(firstPass), len(repo.snapshots))
	for i := range firstPass {
		require.True(t, firstPass[i].OnHandValue.Equal(repo.snapshots[i].OnHandValue))
		require.Equal(t, firstPass[i].OnHandQty, repo.snapshots[i].OnHandQty)
	}
}

func TestRebuildBaselinesFromPriorSnapshot(t *testing.T) {
	repo := newMemoryRepo()
	repo.snapshots = append(repo.snapshots, CostSnapshot{
		AccountID: 1, SKU: "A", AsOfDate: day(2026, 2, 28),
		OnHandQty: 5, OnHandValue: decimal.NewFromInt(25), AvgUnitCost: decimal.NewFromInt(5),
	})
	repo.addReceipt("A", day(2026, 3, 1), 5, decimal.NewFromInt(9))

	rb := NewRebuilder(nil, repo, 1)
	require.NoError(t, rb.Rebuild(context.Background(), 1, "A", day(2026, 3, 1), day(2026, 3, 1)))

	snap := findSnapshot(t, repo.snapshots, "A", day(2026, 3, 1))
	require.Equal(t, int64(10), snap.OnHandQty)
	require.True(t, snap.OnHandValue.Equal(decimal.NewFromInt(70)))
	require.True(t, snap.AvgUnitCost.Equal(decimal.NewFromInt(7)))
}

func TestRebuildManyCoversEverySKU(t *testing.T) {
	repo := newMemoryRepo()
	repo.addReceipt("A", day(2026, 3, 1), 1, decimal.NewFromInt(2))
	repo.addReceipt("B", day(2026, 3, 1), 2, decimal.NewFromInt(3))
	repo.addReceipt("C", day(2026, 3, 1), 3, decimal.NewFromInt(4))

	rb := NewRebuilder(nil, repo, 2)
	require.NoError(t, rb.RebuildMany(context.Background(), 1, []string{"A", "B", "C"}, day(2026, 3, 1), day(2026, 3, 1)))

	require.Len(t, repo.snapshots, 3)
	findSnapshot(t, repo.snapshots, "A", day(2026, 3, 1))
	findSnapshot(t, repo.snapshots, "B", day(2026, 3, 1))
	findSnapshot(t, repo.snapshots, "C", day(2026, 3, 1))
}

func TestRebuildRejectsInvertedRange(t *testing.T) {
	rb := NewRebuilder(nil, newMemoryRepo(), 1)
	err := rb.Rebuild(context.Background(), 1, "A", day(2026, 3, 2), day(2026, 3, 1))
	require.ErrorIs(t, err, ErrInvalidRange)
}
