package cloud

import (
	"context"
	"fmt"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// CreateClient inserts the client and returns it with the cloud-assigned
// client_<dbid> identity.
func (g *Gateway) CreateClient(ctx context.Context, c *model.Client) (*model.Client, error) {
	row := clientToRow(c)
	row.ID = 0
	err := g.executeRequest(ctx, "clients.create", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Create(row).Error
	})
	if err != nil {
		return nil, err
	}
	return rowToClient(row), nil
}

// GetClients returns every client, name-ascending.
func (g *Gateway) GetClients(ctx context.Context) ([]*model.Client, error) {
	var rows []model.ClientRow
	err := g.executeRequest(ctx, "clients.list", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Order("name asc").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Client, 0, len(rows))
	for i := range rows {
		out = append(out, rowToClient(&rows[i]))
	}
	return out, nil
}

// UpdateClient persists the full client row.
func (g *Gateway) UpdateClient(ctx context.Context, c *model.Client) (*model.Client, error) {
	row := clientToRow(c)
	if row.ID == 0 {
		return nil, cdperr.NotFound("client %s has no cloud id", c.ID)
	}
	err := g.executeRequest(ctx, "clients.update", func(ctx context.Context) error {
		res := g.db.WithContext(ctx).Model(&model.ClientRow{}).Where("id = ?", row.ID).
			Select("*").Omit("id", "created_at").Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: client %d", cdperr.ErrNotFound, row.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rowToClient(row), nil
}

// DeleteClient removes the client row.
func (g *Gateway) DeleteClient(ctx context.Context, id string) error {
	dbID, ok := parseClientID(id)
	if !ok || dbID == 0 {
		return cdperr.NotFound("client %s has no cloud id", id)
	}
	return g.executeRequest(ctx, "clients.delete", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Delete(&model.ClientRow{}, dbID).Error
	})
}
