package cloud

import (
	"context"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// API is the surface the entity modules program against. The production
// implementation is *Gateway; tests substitute a stub to exercise the
// fallback paths without a backend.
type API interface {
	CreateOrder(ctx context.Context, o *model.Order) (*model.Order, error)
	GetOrders(ctx context.Context, monthKey string) ([]*model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order) (*model.Order, error)
	DeleteOrder(ctx context.Context, id string) error

	CreateClient(ctx context.Context, c *model.Client) (*model.Client, error)
	GetClients(ctx context.Context) ([]*model.Client, error)
	UpdateClient(ctx context.Context, c *model.Client) (*model.Client, error)
	DeleteClient(ctx context.Context, id string) error

	CreateExpense(ctx context.Context, e *model.Expense) (*model.Expense, error)
	GetExpenses(ctx context.Context, monthKey string) ([]*model.Expense, error)
	UpdateExpense(ctx context.Context, e *model.Expense) (*model.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error

	CreateInventoryItem(ctx context.Context, i *model.InventoryItem) (*model.InventoryItem, error)
	GetInventory(ctx context.Context) ([]*model.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, i *model.InventoryItem) (*model.InventoryItem, error)
	DeleteInventoryItem(ctx context.Context, id string) error

	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s *model.Settings) error

	UploadImage(ctx context.Context, base64Data, name string) (string, error)
	SignedImageURL(path string) (string, error)
	DeleteImage(ctx context.Context, urlOrPath string) error

	TestConnection(ctx context.Context) bool
}

var _ API = (*Gateway)(nil)
