package applyrun

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sellerledger/sellerledger/internal/costing"
	"github.com/sellerledger/sellerledger/internal/shared"
)

type memoryRepo struct {
	lines []ShipmentLine
	runs  map[uuid.UUID]ApplyRun
	items map[uuid.UUID][]ApplyRunItem
}

func newMemoryRepo(lines ...ShipmentLine) *memoryRepo {
	return &memoryRepo{
		lines: lines,
		runs:  map[uuid.UUID]ApplyRun{},
		items: map[uuid.UUID][]ApplyRunItem{},
	}
}

func (r *memoryRepo) ListShipmentLines(ctx context.Context, accountID int64, from, to time.Time) ([]ShipmentLine, error) {
	out := []ShipmentLine{}
	for _, line := range r.lines {
		if line.AccountID != accountID {
			continue
		}
		if line.ShippedAt.Before(from) || !line.ShippedAt.Before(to.AddDate(0, 0, 1)) {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

func (r *memoryRepo) InsertRun(ctx context.Context, run ApplyRun, items []ApplyRunItem) error {
	r.runs[run.ID] = run
	r.items[run.ID] = items
	return nil
}

func (r *memoryRepo) GetRun(ctx context.Context, accountID int64, runID uuid.UUID) (ApplyRun, error) {
	run, ok := r.runs[runID]
	if !ok || run.AccountID != accountID {
		return ApplyRun{}, ErrRunNotFound
	}
	return run, nil
}

func (r *memoryRepo) ListRunItems(ctx context.Context, accountID int64, runID uuid.UUID) ([]ApplyRunItem, error) {
	return r.items[runID], nil
}

// fakeEngine allocates every line once and reports repeats as skipped,
// mimicking the allocation guard.
type fakeEngine struct {
	allocated  map[string]bool
	failOrders map[string]error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{allocated: map[string]bool{}, failOrders: map[string]error{}}
}

func (e *fakeEngine) AllocateOrder(ctx context.Context, accountID int64, method costing.Method, lines []costing.OrderLine) ([]costing.LineResult, error) {
	if err := e.failOrders[lines[0].OrderRef]; err != nil {
		return nil, err
	}
	results := make([]costing.LineResult, 0, len(lines))
	for _, line := range lines {
		key := line.OrderRef + "|" + line.SKU
		result := costing.LineResult{OrderRef: line.OrderRef, SKU: line.SKU, Qty: line.Qty}
		if e.allocated[key] {
			result.Status = costing.StatusSkipped
			result.Reason = costing.ReasonAlreadyAllocated
		} else {
			e.allocated[key] = true
			result.Status = costing.StatusSuccessful
		}
		results = append(results, result)
	}
	return results, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInput() ApplyInput {
	return ApplyInput{
		AccountID: 1,
		FromDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ToDate:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Method:    costing.MethodFIFO,
	}
}

func shipped(account int64, orderRef, sku string, qty int64, status string) ShipmentLine {
	return ShipmentLine{
		AccountID: account, OrderRef: orderRef, SKU: sku, Qty: qty,
		ShippedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), Status: status,
	}
}

func TestApplyCOGSCountsOutcomes(t *testing.T) {
	repo := newMemoryRepo(
		shipped(1, "SO-1", "A", 2, "shipped"),
		shipped(1, "SO-1", "B", 1, "shipped"),
		shipped(1, "SO-2", "A", 3, "cancelled"),
		shipped(1, "SO-3", "C", 1, "shipped"),
	)
	engine := newFakeEngine()
	engine.failOrders["SO-3"] = errors.New("deadlock detected")

	svc := NewService(testLogger(), repo, engine, nil, nil)
	run, items, err := svc.ApplyCOGS(context.Background(), testInput())
	require.NoError(t, err)

	require.Equal(t, 4, run.Total)
	require.Equal(t, 3, run.Eligible)
	require.Equal(t, 2, run.Successful)
	require.Equal(t, 1, run.Skipped)
	require.Equal(t, 1, run.Failed)
	require.Len(t, items, 4)

	// The failing order never aborts the run and is recorded on its line.
	stored := repo.items[run.ID]
	require.Len(t, stored, 4)
	var failedItem *ApplyRunItem
	for i := range stored {
		if stored[i].OrderRef == "SO-3" {
			failedItem = &stored[i]
		}
	}
	require.NotNil(t, failedItem)
	require.Equal(t, costing.StatusFailed, failedItem.Status)
	require.Contains(t, failedItem.Reason, "deadlock")
}

func TestApplyCOGSSecondRunSkipsEverything(t *testing.T) {
	repo := newMemoryRepo(
		shipped(1, "SO-1", "A", 2, "shipped"),
		shipped(1, "SO-2", "B", 1, "shipped"),
	)
	engine := newFakeEngine()
	svc := NewService(testLogger(), repo, engine, nil, nil)

	first, _, err := svc.ApplyCOGS(context.Background(), testInput())
	require.NoError(t, err)
	require.Equal(t, 2, first.Successful)

	second, _, err := svc.ApplyCOGS(context.Background(), testInput())
	require.NoError(t, err)
	require.Zero(t, second.Successful)
	require.Equal(t, second.Total, second.Skipped)
}

func TestApplyCOGSHoldsAccountLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lock := shared.NewRunLock(client, time.Minute)

	release, err := lock.Acquire(context.Background(), 1)
	require.NoError(t, err)

	svc := NewService(testLogger(), newMemoryRepo(), newFakeEngine(), lock, nil)
	_, _, err = svc.ApplyCOGS(context.Background(), testInput())
	require.ErrorIs(t, err, shared.ErrRunInProgress)

	release()
	_, _, err = svc.ApplyCOGS(context.Background(), testInput())
	require.NoError(t, err)
}

func TestApplyCOGSValidation(t *testing.T) {
	svc := NewService(testLogger(), newMemoryRepo(), newFakeEngine(), nil, nil)

	input := testInput()
	input.Method = "LIFO"
	_, _, err := svc.ApplyCOGS(context.Background(), input)
	require.ErrorIs(t, err, costing.ErrUnknownMethod)

	input = testInput()
	input.FromDate, input.ToDate = input.ToDate, input.FromDate
	_, _, err = svc.ApplyCOGS(context.Background(), input)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestApplyCOGSStopsBetweenOrdersOnCancel(t *testing.T) {
	repo := newMemoryRepo(shipped(1, "SO-1", "A", 2, "shipped"))
	svc := NewService(testLogger(), repo, newFakeEngine(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := svc.ApplyCOGS(ctx, testInput())
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, repo.runs)
}
