package module

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

func TestInventoryCreateCloudSuccess(t *testing.T) {
	deps, stub := newTestDeps(t)
	rec := &recorder{}
	rec.listen(deps.Bus, "inventory:created")
	m := NewInventory(deps)

	purchase, sell := 12.0, 25.0
	item, err := m.Create(context.Background(), InventoryInput{
		Brand:            "Apple",
		PurchasePriceEUR: &purchase,
		SellPriceEUR:     &sell,
	})
	require.NoError(t, err)
	assert.Equal(t, "box_1", item.ID)
	assert.Equal(t, int64(1), item.DBID)
	assert.Equal(t, model.InventoryTypeStandard, item.Type)
	assert.InDelta(t, 12*model.BGNPerEUR, item.PurchasePriceBGN, 0.01)

	// The optimistic placeholder must be gone from state.
	inv := deps.State.Inventory()
	require.Len(t, inv, 1)
	_, ok := inv["box_1"]
	assert.True(t, ok)

	p, found := rec.last("inventory:created")
	require.True(t, found)
	assert.Equal(t, SourceCloud, p["source"])
	assert.Equal(t, 1, stub.callCount("inventory.create"))
}

func TestInventoryCreateFallsBackToLocal(t *testing.T) {
	deps, stub := newTestDeps(t)
	stub.failTransient = true
	m := NewInventory(deps)

	item, err := m.Create(context.Background(), InventoryInput{Brand: "Samsung"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(item.ID, model.InventoryIDPrefix))
	assert.Zero(t, item.DBID)

	inv := deps.State.Inventory()
	require.Len(t, inv, 1)
	for id := range inv {
		assert.False(t, strings.HasPrefix(id, "temp_"), "no optimistic leftovers")
	}
	assert.Equal(t, 1, m.Stats().FallbackOperations)
}

func TestInventoryCreateTerminalRollsBackOptimistic(t *testing.T) {
	deps, stub := newTestDeps(t)
	stub.failTerminal = true
	rec := &recorder{}
	rec.listen(deps.Bus, "inventory:create-failed")
	m := NewInventory(deps)

	_, err := m.Create(context.Background(), InventoryInput{Brand: "Xiaomi"})
	require.ErrorIs(t, err, cdperr.ErrTerminalRemote)
	assert.Empty(t, deps.State.Inventory())
	_, ok := rec.last("inventory:create-failed")
	assert.True(t, ok)
}

func TestInventoryCreateDerivesEURFromBGNPrices(t *testing.T) {
	deps, _ := newTestDeps(t)
	m := NewInventory(deps)

	purchaseBGN := 195.58
	item, err := m.Create(context.Background(), InventoryInput{
		Brand:            "Huawei",
		PurchasePriceBGN: &purchaseBGN,
	})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, item.PurchasePriceEUR, 0.01)
}

func TestInventoryCreateRejectsBadType(t *testing.T) {
	deps, _ := newTestDeps(t)
	m := NewInventory(deps)

	_, err := m.Create(context.Background(), InventoryInput{Brand: "Apple", Type: "deluxe"})
	assert.ErrorIs(t, err, cdperr.ErrValidation)
}

func TestInventoryUpdate(t *testing.T) {
	deps, stub := newTestDeps(t)
	m := NewInventory(deps)

	item, err := m.Create(context.Background(), InventoryInput{Brand: "Apple"})
	require.NoError(t, err)

	stock := 7
	updated, err := m.Update(context.Background(), item.ID, InventoryInput{
		Type:  model.InventoryTypePremium,
		Stock: &stock,
	})
	require.NoError(t, err)
	assert.Equal(t, model.InventoryTypePremium, updated.Type)
	assert.Equal(t, 7, updated.Stock)
	assert.Equal(t, 1, stub.callCount("inventory.update"))
}

func TestInventoryAdjustStockClampsAtZero(t *testing.T) {
	deps, _ := newTestDeps(t)
	m := NewInventory(deps)

	stock := 2
	item, err := m.Create(context.Background(), InventoryInput{Brand: "Apple", Stock: &stock})
	require.NoError(t, err)

	adjusted, err := m.AdjustStock(context.Background(), item.ID, -5, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, adjusted.Stock)
	assert.Equal(t, 3, adjusted.Ordered)
}

func TestInventoryDelete(t *testing.T) {
	deps, stub := newTestDeps(t)
	rec := &recorder{}
	rec.listen(deps.Bus, "inventory:deleted")
	m := NewInventory(deps)

	item, err := m.Create(context.Background(), InventoryInput{Brand: "Apple"})
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), item.ID))
	assert.Empty(t, deps.State.Inventory())
	assert.Equal(t, 1, stub.callCount("inventory.delete"))
	_, ok := rec.last("inventory:deleted")
	assert.True(t, ok)
}

func TestInventoryGetSortedByBrand(t *testing.T) {
	deps, _ := newTestDeps(t)
	m := NewInventory(deps)

	for _, brand := range []string{"Samsung", "Apple", "Nokia"} {
		_, err := m.Create(context.Background(), InventoryInput{Brand: brand})
		require.NoError(t, err)
	}

	items, err := m.GetInventory(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Apple", items[0].Brand)
	assert.Equal(t, "Nokia", items[1].Brand)
	assert.Equal(t, "Samsung", items[2].Brand)
}

func TestInventoryReloadKeepsLocalOnlyItems(t *testing.T) {
	deps, stub := newTestDeps(t)
	m := NewInventory(deps)

	_, err := m.Create(context.Background(), InventoryInput{Brand: "Apple"})
	require.NoError(t, err)

	stub.failTransient = true
	local, err := m.Create(context.Background(), InventoryInput{Brand: "Samsung"})
	require.NoError(t, err)
	stub.failTransient = false

	m.InvalidateCache()
	items, err := m.GetInventory(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	_, ok := deps.State.Inventory()[local.ID]
	assert.True(t, ok, "local-only item must survive a cloud reload")
}
