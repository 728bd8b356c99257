package model

import "strings"

// Order status constants
const (
	OrderStatusPending   = "Pending"
	OrderStatusDelivered = "Delivered"
	OrderStatusFree      = "Free"
	OrderStatusOther     = "Other"
)

// Order is a purchase for a client. The id is a string across tiers: cloud
// rows carry their numeric id as text, optimistic entries use temp_ ids and
// local-only entries use millisecond timestamps.
//
// EUR money fields are canonical; the BGN fields are mirrors recomputed on
// every write. Rate above the historical threshold means a legacy USD→BGN
// rate.
type Order struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"` // YYYY-MM-DD
	Client      string  `json:"client"`
	Phone       string  `json:"phone"`
	Origin      string  `json:"origin"`
	Vendor      string  `json:"vendor"`
	Model       string  `json:"model"`
	CostUSD     float64 `json:"costUSD"`
	ShippingUSD float64 `json:"shippingUSD"`
	Rate        float64 `json:"rate"`
	Status      string  `json:"status"`
	FullSet     bool    `json:"fullSet"`
	Notes       string  `json:"notes"`
	ImagePath   string  `json:"imagePath"`

	ExtrasEUR  float64 `json:"extrasEUR"`
	SellEUR    float64 `json:"sellEUR"`
	TotalEUR   float64 `json:"totalEUR"`
	BalanceEUR float64 `json:"balanceEUR"`

	ExtrasBGN  float64 `json:"extrasBGN"`
	SellBGN    float64 `json:"sellBGN"`
	TotalBGN   float64 `json:"totalBGN"`
	BalanceBGN float64 `json:"balanceBGN"`

	IsOptimistic bool `json:"_isOptimistic,omitempty"`
}

// MonthKey returns the YYYY-MM bucket the order belongs to.
func (o *Order) MonthKey() string {
	if len(o.Date) >= 7 {
		return o.Date[:7]
	}
	return o.Date
}

// Validate checks required fields and formats.
func (o *Order) Validate() error {
	if !ValidDate(o.Date) {
		return errValidation("order date must be YYYY-MM-DD, got %q", o.Date)
	}
	if strings.TrimSpace(o.Client) == "" {
		return errValidation("order client is required")
	}
	if strings.TrimSpace(o.Model) == "" {
		return errValidation("order model is required")
	}
	if o.CostUSD < 0 || o.ShippingUSD < 0 {
		return errValidation("order costs must not be negative")
	}
	if o.Rate <= 0 {
		return errValidation("order rate must be positive")
	}
	switch o.Status {
	case OrderStatusPending, OrderStatusDelivered, OrderStatusFree, OrderStatusOther:
	default:
		return errValidation("unknown order status %q", o.Status)
	}
	return nil
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}
