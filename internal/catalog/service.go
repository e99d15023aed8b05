package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sellerledger/sellerledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates catalog operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateItem registers a new SKU.
func (s *Service) CreateItem(ctx context.Context, item Item) (Item, error) {
	item.SKU = strings.TrimSpace(item.SKU)
	if item.AccountID == 0 {
		return Item{}, errors.New("catalog: account required")
	}
	if item.SKU == "" {
		return Item{}, errors.New("catalog: sku required")
	}
	if item.BaseUnitCost.IsNegative() {
		return Item{}, errors.New("catalog: base unit cost must be >= 0")
	}
	return s.repo.CreateItem(ctx, item)
}

// UpdateItem mutates name, cost and flags. Items are never hard-deleted;
// deactivate instead.
func (s *Service) UpdateItem(ctx context.Context, item Item) error {
	if item.AccountID == 0 || item.SKU == "" {
		return errors.New("catalog: account and sku required")
	}
	if item.BaseUnitCost.IsNegative() {
		return errors.New("catalog: base unit cost must be >= 0")
	}
	return s.repo.UpdateItem(ctx, item)
}

// GetItem fetches one item.
func (s *Service) GetItem(ctx context.Context, accountID int64, sku string) (Item, error) {
	return s.repo.GetItem(ctx, accountID, sku)
}

// ListItems lists the account's items.
func (s *Service) ListItems(ctx context.Context, accountID int64) ([]Item, error) {
	return s.repo.ListItems(ctx, accountID)
}

// SetComponent adds or updates one bundle component row.
func (s *Service) SetComponent(ctx context.Context, comp BundleComponent) error {
	if comp.AccountID == 0 || comp.BundleSKU == "" || comp.ComponentSKU == "" {
		return errors.New("catalog: account, bundle and component required")
	}
	if comp.BundleSKU == comp.ComponentSKU {
		return ErrSelfReference
	}
	if comp.QtyPerBundle <= 0 {
		return ErrInvalidQuantity
	}
	bundle, err := s.repo.GetItem(ctx, comp.AccountID, comp.BundleSKU)
	if err != nil {
		return err
	}
	if !bundle.IsBundle {
		return fmt.Errorf("catalog: %s is not a bundle", comp.BundleSKU)
	}
	if _, err := s.repo.GetItem(ctx, comp.AccountID, comp.ComponentSKU); err != nil {
		return err
	}
	return s.repo.UpsertComponent(ctx, comp)
}

// RemoveComponent deletes one bundle component row.
func (s *Service) RemoveComponent(ctx context.Context, accountID int64, bundleSKU, componentSKU string) error {
	if accountID == 0 || bundleSKU == "" || componentSKU == "" {
		return errors.New("catalog: account, bundle and component required")
	}
	return s.repo.DeleteComponent(ctx, accountID, bundleSKU, componentSKU)
}

// ListComponents returns the component rows of a bundle.
func (s *Service) ListComponents(ctx context.Context, accountID int64, bundleSKU string) ([]BundleComponent, error) {
	return s.repo.ListComponents(ctx, accountID, bundleSKU)
}

// RenameSKU rewrites the SKU and all referencing rows atomically.
func (s *Service) RenameSKU(ctx context.Context, accountID int64, oldSKU, newSKU string) error {
	newSKU = strings.TrimSpace(newSKU)
	if accountID == 0 || oldSKU == "" || newSKU == "" {
		return errors.New("catalog: account, old and new sku required")
	}
	if oldSKU == newSKU {
		return nil
	}
	if err := s.repo.RenameSKU(ctx, accountID, oldSKU, newSKU); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			AccountID: accountID,
			Actor:     shared.ActorFromContext(ctx),
			Action:    "catalog:rename",
			Entity:    "item",
			EntityID:  newSKU,
			Meta:      map[string]any{"old_sku": oldSKU, "new_sku": newSKU},
		})
	}
	return nil
}
