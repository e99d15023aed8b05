package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopspring/decimal"
)

// Rebuilder replays ledger activity into daily cost snapshots. One SKU is
// always replayed sequentially inside a single transaction; parallelism is
// only applied across SKUs.
type Rebuilder struct {
	logger  *slog.Logger
	repo    RepositoryPort
	workers int
}

// NewRebuilder constructs Rebuilder. workers bounds cross-SKU parallelism.
func NewRebuilder(logger *slog.Logger, repo RepositoryPort, workers int) *Rebuilder {
	if workers < 1 {
		workers = 1
	}
	return &Rebuilder{logger: logger, repo: repo, workers: workers}
}

// Rebuild recomputes one SKU's snapshots for [from, to]. Existing rows in
// the range are dropped, the baseline is taken from the last snapshot
// strictly before the range, and each day folds in non-voided receipts and
// nets out moving-average consumption.
func (r *Rebuilder) Rebuild(ctx context.Context, accountID int64, sku string, from, to time.Time) error {
	from = DateOf(from)
	to = DateOf(to)
	if from.After(to) {
		return ErrInvalidRange
	}

	return r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteRange(ctx, accountID, sku, from, to); err != nil {
			return err
		}
		qty := int64(0)
		value := decimal.Zero
		if base, ok, err := tx.LastBefore(ctx, accountID, sku, from); err != nil {
			return err
		} else if ok {
			qty = base.OnHandQty
			value = base.OnHandValue
		}
		receipts, err := tx.ReceiptsByDay(ctx, accountID, sku, from, to)
		if err != nil {
			return err
		}
		consumption, err := tx.AvgCOGSByDay(ctx, accountID, sku, from, to)
		if err != nil {
			return err
		}
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if in, ok := receipts[day]; ok {
				qty += in.Qty
				value = value.Add(in.Value)
			}
			if out, ok := consumption[day]; ok {
				qty -= out.Qty
				value = value.Sub(out.Value)
			}
			if qty <= 0 {
				// Oversold or emptied; carry no negative value forward.
				qty = 0
				value = decimal.Zero
			}
			snap := CostSnapshot{
				AccountID:   accountID,
				SKU:         sku,
				AsOfDate:    day,
				OnHandQty:   qty,
				OnHandValue: value,
				AvgUnitCost: AvgCost(qty, value),
			}
			if err := tx.InsertSnapshot(ctx, snap); err != nil {
				return err
			}
		}
		return nil
	})
}

// RebuildMany rebuilds several SKUs concurrently, each in its own
// transaction. The first failure cancels the remaining work.
func (r *Rebuilder) RebuildMany(ctx context.Context, accountID int64, skus []string, from, to time.Time) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, sku := range skus {
		sku := sku
		g.Go(func() error {
			if err := r.Rebuild(ctx, accountID, sku, from, to); err != nil {
				return fmt.Errorf("rebuild %s: %w", sku, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if r.logger != nil {
		r.logger.Info("snapshot rebuild finished",
			slog.Int64("account_id", accountID),
			slog.Int("skus", len(skus)),
			slog.Time("from", from),
			slog.Time("to", to))
	}
	return nil
}

// RebuildAll rebuilds every SKU with ledger activity for the account.
func (r *Rebuilder) RebuildAll(ctx context.Context, accountID int64, from, to time.Time) error {
	skus, err := r.repo.ListSKUsWithActivity(ctx, accountID)
	if err != nil {
		return err
	}
	return r.RebuildMany(ctx, accountID, skus, from, to)
}
