package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExplodeIdentityForPlainSKU(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	seedItem(t, svc, "A", false)

	demands, err := svc.Explode(context.Background(), 1, "A", 3)
	require.NoError(t, err)
	require.Equal(t, []Component{{SKU: "A", Qty: 3}}, demands)
}

func TestExplodeBundleMultipliesQuantities(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	seedItem(t, svc, "BUN", true)
	seedItem(t, svc, "A", false)
	seedItem(t, svc, "B", false)
	require.NoError(t, svc.SetComponent(ctx, BundleComponent{AccountID: 1, BundleSKU: "BUN", ComponentSKU: "A", QtyPerBundle: 2}))
	require.NoError(t, svc.SetComponent(ctx, BundleComponent{AccountID: 1, BundleSKU: "BUN", ComponentSKU: "B", QtyPerBundle: 1}))

	demands, err := svc.Explode(ctx, 1, "BUN", 4)
	require.NoError(t, err)
	require.ElementsMatch(t, []Component{{SKU: "A", Qty: 8}, {SKU: "B", Qty: 4}}, demands)
}

func TestExplodeEmptyBundleFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	seedItem(t, svc, "BUN", true)

	_, err := svc.Explode(context.Background(), 1, "BUN", 1)
	require.ErrorIs(t, err, ErrBundleEmpty)
}

func TestExplodeRejectsNonPositiveQty(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	seedItem(t, svc, "A", false)

	_, err := svc.Explode(context.Background(), 1, "A", 0)
	require.Error(t, err)
}
