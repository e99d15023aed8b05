package applyrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sellerledger/sellerledger/internal/costing"
	"github.com/sellerledger/sellerledger/internal/shared"
)

// EnginePort abstracts the allocation engine.
type EnginePort interface {
	AllocateOrder(ctx context.Context, accountID int64, method costing.Method, lines []costing.OrderLine) ([]costing.LineResult, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates batch COGS application over shipped lines.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	engine EnginePort
	lock   *shared.RunLock
	audit  AuditPort
}

// NewService constructs Service.
func NewService(logger *slog.Logger, repo RepositoryPort, engine EnginePort, lock *shared.RunLock, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, engine: engine, lock: lock, audit: audit}
}

// ApplyCOGS costs every shipped line in the window. At most one run per
// account executes at a time. Each order is allocated in its own
// transaction; an order's failure is recorded on its lines and never aborts
// the run. The ctx is checked between orders so cancellation takes effect
// at an order boundary.
func (s *Service) ApplyCOGS(ctx context.Context, input ApplyInput) (ApplyRun, []ApplyRunItem, error) {
	if input.AccountID == 0 {
		return ApplyRun{}, nil, errors.New("applyrun: account required")
	}
	if !input.Method.Valid() {
		return ApplyRun{}, nil, costing.ErrUnknownMethod
	}
	if input.FromDate.After(input.ToDate) {
		return ApplyRun{}, nil, ErrInvalidRange
	}

	release, err := s.lock.Acquire(ctx, input.AccountID)
	if err != nil {
		return ApplyRun{}, nil, err
	}
	defer release()

	startedAt := time.Now().UTC()
	lines, err := s.repo.ListShipmentLines(ctx, input.AccountID, input.FromDate, input.ToDate)
	if err != nil {
		return ApplyRun{}, nil, err
	}

	run := ApplyRun{
		ID:        uuid.New(),
		AccountID: input.AccountID,
		FromDate:  input.FromDate,
		ToDate:    input.ToDate,
		Method:    input.Method,
		Total:     len(lines),
		StartedAt: startedAt,
		CreatedBy: shared.ActorFromContext(ctx),
	}
	items := make([]ApplyRunItem, 0, len(lines))

	for _, batch := range groupByOrder(lines) {
		select {
		case <-ctx.Done():
			return ApplyRun{}, nil, ctx.Err()
		default:
		}

		eligible := make([]costing.OrderLine, 0, len(batch))
		for _, line := range batch {
			if !line.Eligible() {
				items = append(items, ApplyRunItem{
					RunID: run.ID, AccountID: input.AccountID,
					OrderRef: line.OrderRef, SKU: line.SKU, Qty: line.Qty,
					Status: costing.StatusSkipped, Reason: costing.ReasonOrderIneligible,
				})
				run.Skipped++
				continue
			}
			run.Eligible++
			eligible = append(eligible, costing.OrderLine{
				OrderRef: line.OrderRef, SKU: line.SKU, Qty: line.Qty, ShippedAt: line.ShippedAt,
			})
		}
		if len(eligible) == 0 {
			continue
		}

		results, err := s.engine.AllocateOrder(ctx, input.AccountID, input.Method, eligible)
		if err != nil {
			// The order's transaction rolled back; record its lines as
			// failed and keep going.
			s.logger.Error("order allocation failed",
				slog.String("order_ref", eligible[0].OrderRef),
				slog.Any("error", err))
			for _, line := range eligible {
				items = append(items, ApplyRunItem{
					RunID: run.ID, AccountID: input.AccountID,
					OrderRef: line.OrderRef, SKU: line.SKU, Qty: line.Qty,
					Status: costing.StatusFailed, Reason: fmt.Sprintf("ERROR:%v", err),
				})
				run.Failed++
			}
			continue
		}
		for _, result := range results {
			items = append(items, ApplyRunItem{
				RunID: run.ID, AccountID: input.AccountID,
				OrderRef: result.OrderRef, SKU: result.SKU, Qty: result.Qty,
				Status: result.Status, Reason: result.Reason,
				AllocatedSKUs: result.AllocatedSKUs, MissingSKUs: result.MissingSKUs,
			})
			switch result.Status {
			case costing.StatusSuccessful:
				run.Successful++
			case costing.StatusPartial:
				run.Partial++
			case costing.StatusSkipped:
				run.Skipped++
			case costing.StatusFailed:
				run.Failed++
			}
		}
	}

	run.CompletedAt = time.Now().UTC()
	if err := s.repo.InsertRun(ctx, run, items); err != nil {
		return ApplyRun{}, nil, fmt.Errorf("applyrun: persist run: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			AccountID: input.AccountID,
			Actor:     run.CreatedBy,
			Action:    "cogs:apply",
			Entity:    "apply_run",
			EntityID:  run.ID.String(),
			Meta: map[string]any{
				"method":     string(input.Method),
				"total":      run.Total,
				"successful": run.Successful,
				"partial":    run.Partial,
				"skipped":    run.Skipped,
				"failed":     run.Failed,
			},
		})
	}
	s.logger.Info("apply run completed",
		slog.String("run_id", run.ID.String()),
		slog.Int64("account_id", input.AccountID),
		slog.Int("total", run.Total),
		slog.Int("successful", run.Successful),
		slog.Int("failed", run.Failed))
	return run, items, nil
}

// GetRun fetches one run header.
func (s *Service) GetRun(ctx context.Context, accountID int64, runID uuid.UUID) (ApplyRun, error) {
	return s.repo.GetRun(ctx, accountID, runID)
}

// ListRunItems fetches a run's items.
func (s *Service) ListRunItems(ctx context.Context, accountID int64, runID uuid.UUID) ([]ApplyRunItem, error) {
	if _, err := s.repo.GetRun(ctx, accountID, runID); err != nil {
		return nil, err
	}
	return s.repo.ListRunItems(ctx, accountID, runID)
}

// groupByOrder splits lines into per-order batches preserving input order.
func groupByOrder(lines []ShipmentLine) [][]ShipmentLine {
	batches := [][]ShipmentLine{}
	index := map[string]int{}
	for _, line := range lines {
		i, ok := index[line.OrderRef]
		if !ok {
			i = len(batches)
			index[line.OrderRef] = i
			batches = append(batches, nil)
		}
		batches[i] = append(batches[i], line)
	}
	return batches
}
