package cloud

import (
	"context"
	"fmt"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// CreateOrder inserts the order and returns it with the cloud-assigned id.
func (g *Gateway) CreateOrder(ctx context.Context, o *model.Order) (*model.Order, error) {
	row := orderToRow(o)
	row.ID = 0 // cloud assigns identity
	err := g.executeRequest(ctx, "orders.create", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Create(row).Error
	})
	if err != nil {
		return nil, err
	}
	created := rowToOrder(row)
	created.ImagePath = o.ImagePath
	return created, nil
}

// GetOrders returns all orders of a month, or every order when monthKey is
// empty. Results are date-descending.
func (g *Gateway) GetOrders(ctx context.Context, monthKey string) ([]*model.Order, error) {
	var rows []model.OrderRow
	err := g.executeRequest(ctx, "orders.list", func(ctx context.Context) error {
		q := g.db.WithContext(ctx).Order("date desc, id desc")
		if monthKey != "" {
			q = q.Where("month_key = ?", monthKey)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Order, 0, len(rows))
	for i := range rows {
		out = append(out, rowToOrder(&rows[i]))
	}
	return out, nil
}

// UpdateOrder persists the full order row.
func (g *Gateway) UpdateOrder(ctx context.Context, o *model.Order) (*model.Order, error) {
	row := orderToRow(o)
	if row.ID == 0 {
		return nil, cdperr.NotFound("order %s has no cloud id", o.ID)
	}
	err := g.executeRequest(ctx, "orders.update", func(ctx context.Context) error {
		res := g.db.WithContext(ctx).Model(&model.OrderRow{}).Where("id = ?", row.ID).
			Select("*").Omit("id", "created_at").Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: order %d", cdperr.ErrNotFound, row.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rowToOrder(row), nil
}

// DeleteOrder removes the order row.
func (g *Gateway) DeleteOrder(ctx context.Context, id string) error {
	row := orderToRow(&model.Order{ID: id})
	if row.ID == 0 {
		return cdperr.NotFound("order %s has no cloud id", id)
	}
	return g.executeRequest(ctx, "orders.delete", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Delete(&model.OrderRow{}, row.ID).Error
	})
}
