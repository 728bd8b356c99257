package module

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/currency"
	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
)

const inventoryCacheTTL = 10 * time.Minute

// InventoryInput is the write payload for inventory creation and update.
type InventoryInput struct {
	Brand            string   `json:"brand"`
	Type             string   `json:"type"`
	PurchasePriceEUR *float64 `json:"purchasePriceEUR"`
	SellPriceEUR     *float64 `json:"sellPriceEUR"`
	PurchasePriceBGN *float64 `json:"purchasePriceBGN"`
	SellPriceBGN     *float64 `json:"sellPriceBGN"`
	Stock            *int     `json:"stock"`
	Ordered          *int     `json:"ordered"`
}

// Inventory is the stock module.
type Inventory struct {
	d   Deps
	log *zap.Logger

	mu       sync.Mutex
	loadedAt time.Time
	stats    Statistics
}

// NewInventory builds the inventory module.
func NewInventory(d Deps) *Inventory {
	return &Inventory{d: d, log: d.Log.Named("inventory")}
}

// Create runs the optimistic write protocol for a new inventory item.
func (m *Inventory) Create(ctx context.Context, in InventoryInput) (*model.InventoryItem, error) {
	item := &model.InventoryItem{
		Brand: strings.TrimSpace(in.Brand),
		Type:  in.Type,
	}
	if item.Type == "" {
		item.Type = model.InventoryTypeStandard
	}
	applyInventoryInput(item, in)
	currency.NormalizeInventory(item, m.log)
	if err := item.Validate(); err != nil {
		return nil, err
	}

	m.d.Bus.Emit("inventory:before-created", eventbus.Payload{
		"action": "inventory:created",
		"prior":  nil,
	})

	temp := item.Clone()
	temp.ID = TempID()
	temp.IsOptimistic = true
	m.applyToState(temp, "")
	m.d.Bus.Emit("inventory:created", eventbus.Payload{
		"item":         temp.Clone(),
		"isOptimistic": true,
	})

	created, err := m.d.Cloud.CreateInventoryItem(ctx, item)
	if err == nil {
		m.mu.Lock()
		m.stats.CloudOperations++
		m.mu.Unlock()
		m.applyToState(created, temp.ID)
		m.d.Bus.Emit("inventory:created", eventbus.Payload{
			"item":   created.Clone(),
			"source": SourceCloud,
		})
		return created, nil
	}

	if cdperr.IsFatal(err) {
		m.removeFromState(temp.ID)
		m.d.Bus.Emit("inventory:create-failed", eventbus.Payload{"error": err.Error()})
		return nil, err
	}

	m.log.Warn("cloud create failed, falling back to local tier", zap.Error(err))
	local := item.Clone()
	local.ID = model.InventoryIDPrefix + LocalID()
	m.mu.Lock()
	m.stats.FallbackOperations++
	m.mu.Unlock()
	m.applyToState(local, temp.ID)
	m.d.Bus.Emit("inventory:created", eventbus.Payload{
		"item":   local.Clone(),
		"source": SourceLocal,
	})
	return local, nil
}

// Update applies input to an existing item.
func (m *Inventory) Update(ctx context.Context, id string, in InventoryInput) (*model.InventoryItem, error) {
	prior, err := m.FindItemByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := prior.Clone()
	if in.Brand != "" {
		updated.Brand = strings.TrimSpace(in.Brand)
	}
	if in.Type != "" {
		updated.Type = in.Type
	}
	applyInventoryInput(updated, in)
	currency.NormalizeInventory(updated, m.log)
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	m.d.Bus.Emit("inventory:before-updated", eventbus.Payload{
		"action": "inventory:updated",
		"prior":  prior.Clone(),
	})

	source := SourceLocal
	if updated.DBID > 0 {
		if _, err := m.d.Cloud.UpdateInventoryItem(ctx, updated); err == nil {
			source = SourceCloud
			m.mu.Lock()
			m.stats.CloudOperations++
			m.mu.Unlock()
		} else if cdperr.IsFatal(err) {
			m.d.Bus.Emit("inventory:update-failed", eventbus.Payload{"error": err.Error(), "id": id})
			return nil, err
		} else {
			m.log.Warn("cloud update failed, falling back to local tier", zap.Error(err))
			m.mu.Lock()
			m.stats.FallbackOperations++
			m.mu.Unlock()
		}
	} else {
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
	}

	m.applyToState(updated, "")
	m.d.Bus.Emit("inventory:updated", eventbus.Payload{
		"item":   updated.Clone(),
		"source": source,
	})
	return updated, nil
}

// AdjustStock moves stock and ordered counts by deltas, clamping at zero.
func (m *Inventory) AdjustStock(ctx context.Context, id string, stockDelta, orderedDelta int) (*model.InventoryItem, error) {
	prior, err := m.FindItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stock := prior.Stock + stockDelta
	ordered := prior.Ordered + orderedDelta
	if stock < 0 {
		stock = 0
	}
	if ordered < 0 {
		ordered = 0
	}
	return m.Update(ctx, id, InventoryInput{Stock: &stock, Ordered: &ordered})
}

// Delete removes an item from every tier.
func (m *Inventory) Delete(ctx context.Context, id string) error {
	prior, err := m.FindItemByID(ctx, id)
	if err != nil {
		return err
	}

	m.d.Bus.Emit("inventory:before-deleted", eventbus.Payload{
		"action": "inventory:deleted",
		"prior":  prior.Clone(),
	})

	source := SourceLocal
	if prior.DBID > 0 {
		if err := m.d.Cloud.DeleteInventoryItem(ctx, id); err == nil {
			source = SourceCloud
			m.mu.Lock()
			m.stats.CloudOperations++
			m.mu.Unlock()
		} else if cdperr.IsFatal(err) {
			m.d.Bus.Emit("inventory:delete-failed", eventbus.Payload{"error": err.Error(), "id": id})
			return err
		} else {
			m.log.Warn("cloud delete failed, removing locally only", zap.Error(err))
			m.mu.Lock()
			m.stats.FallbackOperations++
			m.mu.Unlock()
		}
	} else {
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
	}

	m.removeFromState(id)
	m.d.Bus.Emit("inventory:deleted", eventbus.Payload{
		"id":     id,
		"item":   prior.Clone(),
		"source": source,
	})
	return nil
}

// GetInventory serves the full collection, brand-sorted. A stale collection
// triggers a cloud reload with local fallback.
func (m *Inventory) GetInventory(ctx context.Context) ([]*model.InventoryItem, error) {
	m.mu.Lock()
	m.stats.TotalLoads++
	fresh := time.Since(m.loadedAt) < inventoryCacheTTL && !m.loadedAt.IsZero()
	if fresh {
		m.stats.CacheHits++
	} else {
		m.stats.CacheMisses++
	}
	m.mu.Unlock()

	if !fresh {
		m.reload(ctx)
	}

	inv := m.d.State.Inventory()
	out := make([]*model.InventoryItem, 0, len(inv))
	for _, item := range inv {
		out = append(out, item.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Brand != out[j].Brand {
			return out[i].Brand < out[j].Brand
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindItemByID resolves an item from state, reloading once on a miss.
func (m *Inventory) FindItemByID(ctx context.Context, id string) (*model.InventoryItem, error) {
	if item, ok := m.d.State.Inventory()[id]; ok {
		return item.Clone(), nil
	}
	m.reload(ctx)
	if item, ok := m.d.State.Inventory()[id]; ok {
		return item.Clone(), nil
	}
	return nil, cdperr.NotFound("inventory item %s", id)
}

// Stats returns a snapshot of the module counters.
func (m *Inventory) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// InvalidateCache forces the next read to reload.
func (m *Inventory) InvalidateCache() {
	m.mu.Lock()
	m.loadedAt = time.Time{}
	m.mu.Unlock()
}

// reload merges a cloud load into state, keeping local-only items.
func (m *Inventory) reload(ctx context.Context) {
	items, err := m.d.Cloud.GetInventory(ctx)
	if err != nil {
		m.log.Warn("cloud load failed, serving local tier", zap.Error(err))
		m.mu.Lock()
		m.stats.FallbackOperations++
		m.mu.Unlock()
		if len(m.d.State.Inventory()) == 0 {
			stored, lerr := m.d.Local.LoadInventory()
			if lerr != nil {
				m.log.Error("local tier read failed", zap.Error(lerr))
				return
			}
			if err := m.d.State.Set(state.KeyInventory, stored); err != nil {
				m.log.Error("state write failed", zap.Error(err))
			}
		}
		return
	}
	m.mu.Lock()
	m.stats.CloudOperations++
	m.loadedAt = time.Now()
	m.mu.Unlock()

	// State may have gained local writes while the request ran, so merge
	// into a fresh read instead of replacing wholesale.
	inv := model.CloneInventory(m.d.State.Inventory())
	for _, item := range items {
		inv[item.ID] = item.Clone()
	}
	if err := m.d.State.Set(state.KeyInventory, inv); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	if err := m.d.Local.SaveInventory(inv); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}
}

// applyToState upserts the item, optionally dropping a superseded entry
// (the optimistic placeholder it replaces).
func (m *Inventory) applyToState(item *model.InventoryItem, supersedes string) {
	inv := model.CloneInventory(m.d.State.Inventory())
	if supersedes != "" {
		delete(inv, supersedes)
	}
	inv[item.ID] = item.Clone()
	if err := m.d.State.Set(state.KeyInventory, inv); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	if err := m.d.Local.SaveInventory(inv); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}
}

func (m *Inventory) removeFromState(id string) {
	inv := model.CloneInventory(m.d.State.Inventory())
	delete(inv, id)
	if err := m.d.State.Set(state.KeyInventory, inv); err != nil {
		m.log.Error("state write failed", zap.Error(err))
	}
	if err := m.d.Local.SaveInventory(inv); err != nil {
		m.log.Error("local backup failed", zap.Error(err))
	}
}

func applyInventoryInput(item *model.InventoryItem, in InventoryInput) {
	if in.PurchasePriceEUR != nil {
		item.PurchasePriceEUR = *in.PurchasePriceEUR
		item.PurchasePriceBGN = 0
	} else if in.PurchasePriceBGN != nil {
		item.PurchasePriceEUR = 0
		item.PurchasePriceBGN = *in.PurchasePriceBGN
	}
	if in.SellPriceEUR != nil {
		item.SellPriceEUR = *in.SellPriceEUR
		item.SellPriceBGN = 0
	} else if in.SellPriceBGN != nil {
		item.SellPriceEUR = 0
		item.SellPriceBGN = *in.SellPriceBGN
	}
	if in.Stock != nil {
		item.Stock = *in.Stock
	}
	if in.Ordered != nil {
		item.Ordered = *in.Ordered
	}
}
