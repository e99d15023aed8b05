package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sellerledger/sellerledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RebuildScheduler triggers cost snapshot rebuilds after ledger mutations.
type RebuildScheduler interface {
	ScheduleRebuild(ctx context.Context, accountID int64, sku string, from time.Time) error
}

// Service coordinates receipt ledger operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	rebuilds RebuildScheduler
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, rebuilds RebuildScheduler) *Service {
	return &Service{repo: repo, audit: audit, rebuilds: rebuilds}
}

// StockIn posts a receiving document and its cost layers atomically.
func (s *Service) StockIn(ctx context.Context, input StockInInput) (StockInResult, error) {
	if input.AccountID == 0 {
		return StockInResult{}, errors.New("ledger: account required")
	}
	if len(input.Lines) == 0 {
		return StockInResult{}, errors.New("ledger: at least one line required")
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	for _, line := range input.Lines {
		if line.SKU == "" {
			return StockInResult{}, errors.New("ledger: sku required")
		}
		if line.Qty <= 0 {
			return StockInResult{}, ErrInvalidQuantity
		}
		if line.UnitCost.IsNegative() {
			return StockInResult{}, ErrInvalidUnitCost
		}
		if !line.SourceKind.Valid() {
			return StockInResult{}, fmt.Errorf("ledger: invalid source kind %q", line.SourceKind)
		}
		if line.SourceRef != "" {
			if _, err := uuid.Parse(line.SourceRef); err != nil {
				return StockInResult{}, fmt.Errorf("ledger: invalid source ref: %w", err)
			}
		}
	}

	result := StockInResult{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc := ReceivingDoc{
			AccountID:  input.AccountID,
			Reference:  input.Reference,
			Supplier:   input.Supplier,
			ReceivedAt: receivedAt,
			Note:       input.Note,
			CreatedBy:  input.Actor,
		}
		docID, err := tx.InsertReceivingDoc(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = docID
		result.Doc = doc
		for _, line := range input.Lines {
			layer := ReceiptLayer{
				AccountID:    input.AccountID,
				DocID:        docID,
				SKU:          line.SKU,
				ReceivedAt:   receivedAt,
				QtyReceived:  line.Qty,
				QtyRemaining: line.Qty,
				UnitCost:     line.UnitCost,
				SourceKind:   line.SourceKind,
				SourceRef:    line.SourceRef,
			}
			layerID, err := tx.InsertLayer(ctx, layer)
			if err != nil {
				return err
			}
			layer.ID = layerID
			result.Layers = append(result.Layers, layer)
		}
		return nil
	})
	if err != nil {
		return StockInResult{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			AccountID: input.AccountID,
			Actor:     input.Actor,
			Action:    "ledger:stock_in",
			Entity:    "receiving_doc",
			EntityID:  fmt.Sprintf("%d", result.Doc.ID),
			Meta: map[string]any{
				"reference": input.Reference,
				"lines":     len(input.Lines),
			},
		})
	}
	return result, nil
}

// VoidLayer marks a layer voided. A layer consumed by live allocations is
// rejected; the caller must reverse those first. On success the SKU's cost
// snapshots from the layer's receipt date forward are rebuilt.
func (s *Service) VoidLayer(ctx context.Context, accountID, layerID int64, reason string) (VoidResult, error) {
	if accountID == 0 || layerID == 0 {
		return VoidResult{}, errors.New("ledger: account and layer required")
	}
	if reason == "" {
		return VoidResult{}, errors.New("ledger: void reason required")
	}
	actor := shared.ActorFromContext(ctx)
	now := time.Now().UTC()

	var voided ReceiptLayer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		layer, err := tx.GetLayerForUpdate(ctx, accountID, layerID)
		if err != nil {
			return err
		}
		if layer.Voided {
			return ErrAlreadyVoided
		}
		if layer.QtyRemaining < layer.QtyReceived {
			live, err := tx.CountLiveAllocationsForLayer(ctx, accountID, layerID)
			if err != nil {
				return err
			}
			if live > 0 {
				return ErrVoidGuard
			}
		}
		if err := tx.MarkLayerVoided(ctx, accountID, layerID, reason, actor, now); err != nil {
			return err
		}
		voided = layer
		return nil
	})
	if err != nil {
		return VoidResult{}, err
	}

	rebuildFrom := dateOf(voided.ReceivedAt)
	if s.rebuilds != nil {
		if err := s.rebuilds.ScheduleRebuild(ctx, accountID, voided.SKU, rebuildFrom); err != nil {
			return VoidResult{}, fmt.Errorf("ledger: schedule snapshot rebuild: %w", err)
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			AccountID: accountID,
			Actor:     actor,
			Action:    "ledger:void_layer",
			Entity:    "receipt_layer",
			EntityID:  fmt.Sprintf("%d", layerID),
			Meta: map[string]any{
				"sku":    voided.SKU,
				"reason": reason,
			},
		})
	}
	return VoidResult{LayerID: layerID, SKU: voided.SKU, RebuildFrom: rebuildFrom}, nil
}

// GetLayer fetches one layer.
func (s *Service) GetLayer(ctx context.Context, accountID, layerID int64) (ReceiptLayer, error) {
	return s.repo.GetLayer(ctx, accountID, layerID)
}

// ListLayers lists a SKU's layers in FIFO order.
func (s *Service) ListLayers(ctx context.Context, accountID int64, sku string, includeVoided bool) ([]ReceiptLayer, error) {
	if sku == "" {
		return nil, errors.New("ledger: sku required")
	}
	return s.repo.ListLayers(ctx, accountID, sku, includeVoided)
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
