package cloud

import (
	"context"
	"errors"

	"gorm.io/gorm/clause"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// GetSettings loads the singleton settings row. A missing row is reported
// as NotFound so callers can fall back to the local default.
func (g *Gateway) GetSettings(ctx context.Context) (*model.Settings, error) {
	var row model.SettingsRow
	err := g.executeRequest(ctx, "settings.get", func(ctx context.Context) error {
		return g.db.WithContext(ctx).First(&row, 1).Error
	})
	if err != nil {
		if errors.Is(err, cdperr.ErrNotFound) {
			return nil, cdperr.NotFound("settings row missing")
		}
		return nil, err
	}
	return rowToSettings(&row)
}

// SaveSettings upserts the singleton settings row (id = 1).
func (g *Gateway) SaveSettings(ctx context.Context, s *model.Settings) error {
	row, err := settingsToRow(s)
	if err != nil {
		return cdperr.Validation("settings not serializable: %s", err.Error())
	}
	return g.executeRequest(ctx, "settings.save", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(row).Error
	})
}
