package model

import "time"

// Cloud-tier row types. Column names are fixed by the existing backend
// schema, so every money column carries an explicit tag.

// OrderRow is the relational shape of an order.
type OrderRow struct {
	ID          int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	MonthKey    string  `gorm:"column:month_key;type:varchar(7);index;not null" json:"month_key"`
	Date        string  `gorm:"type:varchar(10);not null" json:"date"`
	Client      string  `gorm:"type:varchar(100);not null" json:"client"`
	Phone       string  `gorm:"type:varchar(30)" json:"phone"`
	Origin      string  `gorm:"type:varchar(50)" json:"origin"`
	Vendor      string  `gorm:"type:varchar(50)" json:"vendor"`
	Model       string  `gorm:"type:varchar(100)" json:"model"`
	CostUSD     float64 `gorm:"column:cost_usd;type:decimal(12,2)" json:"cost_usd"`
	ShippingUSD float64 `gorm:"column:shipping_usd;type:decimal(12,2)" json:"shipping_usd"`
	Rate        float64 `gorm:"type:decimal(12,6)" json:"rate"`
	Status      string  `gorm:"type:varchar(20);default:'Pending'" json:"status"`
	FullSet     bool    `gorm:"column:full_set;default:false" json:"full_set"`
	Notes       string  `gorm:"type:text" json:"notes"`
	ImagePath   string  `gorm:"column:image_path;type:text" json:"image_path"`

	ExtrasEUR  float64 `gorm:"column:extras_eur;type:decimal(12,2)" json:"extras_eur"`
	SellEUR    float64 `gorm:"column:sell_eur;type:decimal(12,2)" json:"sell_eur"`
	TotalEUR   float64 `gorm:"column:total_eur;type:decimal(12,2)" json:"total_eur"`
	BalanceEUR float64 `gorm:"column:balance_eur;type:decimal(12,2)" json:"balance_eur"`

	ExtrasBGN  float64 `gorm:"column:extras_bgn;type:decimal(12,2)" json:"extras_bgn"`
	SellBGN    float64 `gorm:"column:sell_bgn;type:decimal(12,2)" json:"sell_bgn"`
	TotalBGN   float64 `gorm:"column:total_bgn;type:decimal(12,2)" json:"total_bgn"`
	BalanceBGN float64 `gorm:"column:balance_bgn;type:decimal(12,2)" json:"balance_bgn"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OrderRow) TableName() string { return "orders" }

// ClientRow is the relational shape of a client.
type ClientRow struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Phone           string    `gorm:"type:varchar(30)" json:"phone"`
	Email           string    `gorm:"type:varchar(100)" json:"email"`
	Address         string    `gorm:"type:text" json:"address"`
	PreferredSource string    `gorm:"column:preferred_source;type:varchar(50)" json:"preferred_source"`
	Notes           string    `gorm:"type:text" json:"notes"`
	CreatedDate     string    `gorm:"column:created_date;type:varchar(10)" json:"created_date"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ClientRow) TableName() string { return "clients" }

// ExpenseRow is the relational shape of an expense. The legacy `amount`
// column holds BGN; `amount_eur` is canonical.
type ExpenseRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MonthKey  string    `gorm:"column:month_key;type:varchar(7);index;not null" json:"month_key"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Amount    float64   `gorm:"type:decimal(12,2)" json:"amount"`
	AmountEUR float64   `gorm:"column:amount_eur;type:decimal(12,2)" json:"amount_eur"`
	Note      string    `gorm:"type:text" json:"note"`
	Currency  string    `gorm:"type:varchar(10);default:'EUR'" json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExpenseRow) TableName() string { return "expenses" }

// InventoryRow is the relational shape of an inventory item. Legacy
// `purchase_price`/`sell_price` columns hold BGN; the `*_eur` columns are
// canonical.
type InventoryRow struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Brand            string    `gorm:"type:varchar(100);not null" json:"brand"`
	Type             string    `gorm:"type:varchar(20);default:'standard'" json:"type"`
	PurchasePrice    float64   `gorm:"column:purchase_price;type:decimal(12,2)" json:"purchase_price"`
	SellPrice        float64   `gorm:"column:sell_price;type:decimal(12,2)" json:"sell_price"`
	PurchasePriceEUR float64   `gorm:"column:purchase_price_eur;type:decimal(12,2)" json:"purchase_price_eur"`
	SellPriceEUR     float64   `gorm:"column:sell_price_eur;type:decimal(12,2)" json:"sell_price_eur"`
	Stock            int       `gorm:"default:0" json:"stock"`
	Ordered          int       `gorm:"default:0" json:"ordered"`
	Currency         string    `gorm:"type:varchar(10);default:'EUR'" json:"currency"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (InventoryRow) TableName() string { return "inventory" }

// SettingsRow is the singleton settings record (id = 1) with the settings
// JSON in its data column.
type SettingsRow struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Data      string    `gorm:"type:jsonb" json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SettingsRow) TableName() string { return "settings" }

// ImageRow backs the order-images blob bucket.
type ImageRow struct {
	Path      string    `gorm:"primaryKey;type:varchar(200)" json:"path"`
	Name      string    `gorm:"type:varchar(200)" json:"name"`
	Content   []byte    `gorm:"type:bytea" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (ImageRow) TableName() string { return "order_images" }
