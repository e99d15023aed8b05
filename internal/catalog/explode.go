package catalog

import (
	"context"
	"errors"
)

// Explode resolves a SKU plus ordered quantity into component demands.
// Non-bundles explode to themselves; bundles expand each component row by
// qty_per_bundle * qty. A bundle without components is a configuration error.
func (s *Service) Explode(ctx context.Context, accountID int64, sku string, qty int64) ([]Component, error) {
	if qty <= 0 {
		return nil, errors.New("catalog: explode quantity must be positive")
	}
	item, err := s.repo.GetItem(ctx, accountID, sku)
	if err != nil {
		return nil, err
	}
	if !item.IsBundle {
		return []Component{{SKU: sku, Qty: qty}}, nil
	}
	comps, err := s.repo.ListComponents(ctx, accountID, sku)
	if err != nil {
		return nil, err
	}
	if len(comps) == 0 {
		return nil, ErrBundleEmpty
	}
	demands := make([]Component, 0, len(comps))
	for _, comp := range comps {
		demands = append(demands, Component{SKU: comp.ComponentSKU, Qty: comp.QtyPerBundle * qty})
	}
	return demands, nil
}
