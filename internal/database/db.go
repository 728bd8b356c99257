package database

import (
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate core models
	err = db.AutoMigrate(
		&model.OrderRow{},
		&model.ClientRow{},
		&model.ExpenseRow{},
		&model.InventoryRow{},
		&model.SettingsRow{},
		&model.ImageRow{},
	)
	if err != nil {
		log.Warn("auto-migrate failed", zap.Error(err))
	}

	return db, nil
}
