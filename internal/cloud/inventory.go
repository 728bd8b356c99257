package cloud

import (
	"context"
	"fmt"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// CreateInventoryItem inserts the item and returns it with the composite
// box_<dbid> identity.
func (g *Gateway) CreateInventoryItem(ctx context.Context, i *model.InventoryItem) (*model.InventoryItem, error) {
	row := inventoryToRow(i)
	row.ID = 0
	err := g.executeRequest(ctx, "inventory.create", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Create(row).Error
	})
	if err != nil {
		return nil, err
	}
	return rowToInventory(row), nil
}

// GetInventory returns every inventory item, brand-ascending.
func (g *Gateway) GetInventory(ctx context.Context) ([]*model.InventoryItem, error) {
	var rows []model.InventoryRow
	err := g.executeRequest(ctx, "inventory.list", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Order("brand asc, id asc").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.InventoryItem, 0, len(rows))
	for i := range rows {
		out = append(out, rowToInventory(&rows[i]))
	}
	return out, nil
}

// UpdateInventoryItem persists the full item row.
func (g *Gateway) UpdateInventoryItem(ctx context.Context, i *model.InventoryItem) (*model.InventoryItem, error) {
	row := inventoryToRow(i)
	if row.ID == 0 {
		if dbID, ok := parseInventoryID(i.ID); ok {
			row.ID = dbID
		}
	}
	if row.ID == 0 {
		return nil, cdperr.NotFound("inventory item %s has no cloud id", i.ID)
	}
	err := g.executeRequest(ctx, "inventory.update", func(ctx context.Context) error {
		res := g.db.WithContext(ctx).Model(&model.InventoryRow{}).Where("id = ?", row.ID).
			Select("*").Omit("id", "created_at").Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: inventory item %d", cdperr.ErrNotFound, row.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rowToInventory(row), nil
}

// DeleteInventoryItem removes the item row.
func (g *Gateway) DeleteInventoryItem(ctx context.Context, id string) error {
	dbID, ok := parseInventoryID(id)
	if !ok || dbID == 0 {
		return cdperr.NotFound("inventory item %s has no cloud id", id)
	}
	return g.executeRequest(ctx, "inventory.delete", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Delete(&model.InventoryRow{}, dbID).Error
	})
}
