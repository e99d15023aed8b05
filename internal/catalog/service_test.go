package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	items      map[string]Item
	components map[string][]BundleComponent
	renames    int
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[string]Item{}, components: map[string][]BundleComponent{}}
}

func itemKey(accountID int64, sku string) string {
	return fmt.Sprintf("%d:%s", accountID, sku)
}

func (r *memoryRepo) GetItem(ctx context.Context, accountID int64, sku string) (Item, error) {
	item, ok := r.items[itemKey(accountID, sku)]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) CreateItem(ctx context.Context, item Item) (Item, error) {
	key := itemKey(item.AccountID, item.SKU)
	if _, ok := r.items[key]; ok {
		return Item{}, ErrDuplicateSKU
	}
	r.nextID++
	item.ID = r.nextID
	item.IsActive = true
	r.items[key] = item
	return item, nil
}

func (r *memoryRepo) UpdateItem(ctx context.Context, item Item) error {
	key := itemKey(item.AccountID, item.SKU)
	if _, ok := r.items[key]; !ok {
		return ErrItemNotFound
	}
	r.items[key] = item
	return nil
}

func (r *memoryRepo) ListItems(ctx context.Context, accountID int64) ([]Item, error) {
	items := []Item{}
	for _, item := range r.items {
		if item.AccountID == accountID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (r *memoryRepo) ListComponents(ctx context.Context, accountID int64, bundleSKU string) ([]BundleComponent, error) {
	return r.components[itemKey(accountID, bundleSKU)], nil
}

func (r *memoryRepo) UpsertComponent(ctx context.Context, comp BundleComponent) error {
	key := itemKey(comp.AccountID, comp.BundleSKU)
	for i, existing := range r.components[key] {
		if existing.ComponentSKU == comp.ComponentSKU {
			r.components[key][i] = comp
			return nil
		}
	}
	r.components[key] = append(r.components[key], comp)
	return nil
}

func (r *memoryRepo) DeleteComponent(ctx context.Context, accountID int64, bundleSKU, componentSKU string) error {
	key := itemKey(accountID, bundleSKU)
	comps := r.components[key]
	for i, comp := range comps {
		if comp.ComponentSKU == componentSKU {
			r.components[key] = append(comps[:i], comps[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *memoryRepo) RenameSKU(ctx context.Context, accountID int64, oldSKU, newSKU string) error {
	oldKey := itemKey(accountID, oldSKU)
	item, ok := r.items[oldKey]
	if !ok {
		return ErrItemNotFound
	}
	if _, exists := r.items[itemKey(accountID, newSKU)]; exists {
		return ErrDuplicateSKU
	}
	delete(r.items, oldKey)
	item.SKU = newSKU
	r.items[itemKey(accountID, newSKU)] = item
	r.renames++
	return nil
}

func seedItem(t *testing.T, svc *Service, sku string, isBundle bool) {
	t.Helper()
	_, err := svc.CreateItem(context.Background(), Item{AccountID: 1, SKU: sku, Name: sku, BaseUnitCost: decimal.NewFromInt(10), IsBundle: isBundle})
	require.NoError(t, err)
}

func TestSetComponentValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	seedItem(t, svc, "BUN", true)
	seedItem(t, svc, "A", false)

	err := svc.SetComponent(ctx, BundleComponent{AccountID: 1, BundleSKU: "BUN", ComponentSKU: "BUN", QtyPerBundle: 1})
	require.ErrorIs(t, err, ErrSelfReference)

	err = svc.SetComponent(ctx, BundleComponent{AccountID: 1, BundleSKU: "BUN", ComponentSKU: "A", QtyPerBundle: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	err = svc.SetComponent(ctx, BundleComponent{AccountID: 1, BundleSKU: "BUN", ComponentSKU: "MISSING", QtyPerBundle: 1})
	require.ErrorIs(t, err, ErrItemNotFound)

	err = svc.SetComponent(ctx, BundleComponent{AccountID: 1, BundleSKU: "A", ComponentSKU: "BUN", QtyPerBundle: 1})
	require.Error(t, err)

	err = svc.SetComponent(ctx, BundleComponent{AccountID: 1, BundleSKU: "BUN", ComponentSKU: "A", QtyPerBundle: 2})
	require.NoError(t, err)
}

func TestRenameSKUIsSingleRepositoryCall(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	seedItem(t, svc, "OLD", false)

	require.NoError(t, svc.RenameSKU(ctx, 1, "OLD", "NEW"))
	require.Equal(t, 1, repo.renames)

	_, err := svc.GetItem(ctx, 1, "OLD")
	require.ErrorIs(t, err, ErrItemNotFound)
	item, err := svc.GetItem(ctx, 1, "NEW")
	require.NoError(t, err)
	require.Equal(t, "NEW", item.SKU)

	// Renaming to the same SKU is a no-op, not a second rewrite.
	require.NoError(t, svc.RenameSKU(ctx, 1, "NEW", "NEW"))
	require.Equal(t, 1, repo.renames)
}
