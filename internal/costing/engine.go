package costing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Engine allocates COGS for shipped order lines. All lines of one order are
// allocated inside a single transaction; distinct orders are independent.
type Engine struct {
	logger  *slog.Logger
	repo    RepositoryPort
	catalog CatalogPort
}

// NewEngine constructs Engine.
func NewEngine(logger *slog.Logger, repo RepositoryPort, catalog CatalogPort) *Engine {
	return &Engine{logger: logger, repo: repo, catalog: catalog}
}

// AllocateOrder allocates every line of one order with the given method.
// Per-line outcomes (skipped, partial, failed) are reported in the results;
// only infrastructure failures return an error, and then the whole order's
// transaction is rolled back.
func (e *Engine) AllocateOrder(ctx context.Context, accountID int64, method Method, lines []OrderLine) ([]LineResult, error) {
	if accountID == 0 {
		return nil, errors.New("costing: account required")
	}
	if len(lines) == 0 {
		return nil, errors.New("costing: no lines to allocate")
	}
	strategy, err := StrategyFor(method)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	results := make([]LineResult, 0, len(lines))
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range lines {
			result, err := e.allocateLine(ctx, tx, strategy, accountID, line)
			if err != nil {
				return err
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) allocateLine(ctx context.Context, tx TxRepository, strategy Strategy, accountID int64, line OrderLine) (LineResult, error) {
	result := LineResult{OrderRef: line.OrderRef, SKU: line.SKU, Qty: line.Qty}

	if err := tx.InsertGuard(ctx, accountID, line.OrderRef, line.SKU); err != nil {
		if errors.Is(err, ErrDuplicateAllocation) {
			result.Status = StatusSkipped
			result.Reason = ReasonAlreadyAllocated
			return result, nil
		}
		return LineResult{}, err
	}

	demands, err := e.catalog.Explode(ctx, accountID, line.SKU, line.Qty)
	if err != nil {
		if errors.Is(err, ErrBundleEmpty) {
			if err := tx.DeleteGuard(ctx, accountID, line.OrderRef, line.SKU); err != nil {
				return LineResult{}, err
			}
			result.Status = StatusFailed
			result.Reason = ReasonBundleEmpty
			return result, nil
		}
		return LineResult{}, err
	}
	isBundle := len(demands) != 1 || demands[0].SKU != line.SKU

	reasons := []string{}
	for _, demand := range demands {
		allocs, shortfall, reason, err := strategy.Allocate(ctx, tx, accountID, line.OrderRef, demand, line.ShippedAt)
		if err != nil {
			return LineResult{}, err
		}
		result.Allocations = append(result.Allocations, allocs...)
		if shortfall == 0 {
			result.AllocatedSKUs = append(result.AllocatedSKUs, demand.SKU)
			continue
		}
		result.MissingSKUs = append(result.MissingSKUs, demand.SKU)
		if isBundle {
			reasons = append(reasons, ReasonMissingComponent(demand.SKU))
		} else {
			reasons = append(reasons, reason)
		}
	}

	switch {
	case len(result.MissingSKUs) == 0:
		result.Status = StatusSuccessful
	case len(result.Allocations) == 0:
		// Nothing was written; release the guard so a later run can retry
		// once stock arrives.
		if err := tx.DeleteGuard(ctx, accountID, line.OrderRef, line.SKU); err != nil {
			return LineResult{}, err
		}
		result.Status = StatusFailed
		result.Reason = strings.Join(reasons, ",")
	default:
		result.Status = StatusPartial
		result.Reason = strings.Join(reasons, ",")
	}

	if e.logger != nil && result.Status != StatusSuccessful {
		e.logger.Debug("order line not fully allocated",
			slog.String("order_ref", line.OrderRef),
			slog.String("sku", line.SKU),
			slog.String("status", string(result.Status)),
			slog.String("reason", result.Reason))
	}
	return result, nil
}
