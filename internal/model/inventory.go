package model

import (
	"fmt"
	"strings"
)

// Inventory item type constants
const (
	InventoryTypeStandard = "standard"
	InventoryTypePremium  = "premium"
)

// InventoryIDPrefix is prepended to the cloud row id to form the composite
// item id, e.g. box_17.
const InventoryIDPrefix = "box_"

// InventoryItem is a stocked product. EUR prices are canonical; BGN mirrors
// are derived. DBID keeps the raw cloud row id when cloud backed.
type InventoryItem struct {
	ID    string `json:"id"` // box_<dbId>
	DBID  int64  `json:"dbId,omitempty"`
	Brand string `json:"brand"`
	Type  string `json:"type"` // standard, premium

	PurchasePriceEUR float64 `json:"purchasePriceEUR"`
	SellPriceEUR     float64 `json:"sellPriceEUR"`
	PurchasePriceBGN float64 `json:"purchasePriceBGN"`
	SellPriceBGN     float64 `json:"sellPriceBGN"`

	Stock   int `json:"stock"`
	Ordered int `json:"ordered"`

	IsOptimistic bool `json:"_isOptimistic,omitempty"`
}

// CompositeInventoryID builds the module-facing id from a cloud row id.
func CompositeInventoryID(dbID int64) string {
	return fmt.Sprintf("%s%d", InventoryIDPrefix, dbID)
}

// Validate checks required fields and ranges.
func (i *InventoryItem) Validate() error {
	if strings.TrimSpace(i.Brand) == "" {
		return errValidation("inventory brand is required")
	}
	switch i.Type {
	case InventoryTypeStandard, InventoryTypePremium:
	default:
		return errValidation("inventory type must be standard or premium, got %q", i.Type)
	}
	if i.PurchasePriceEUR < 0 || i.SellPriceEUR < 0 {
		return errValidation("inventory prices must not be negative")
	}
	if i.Stock < 0 {
		return errValidation("inventory stock must not be negative")
	}
	if i.Ordered < 0 {
		return errValidation("inventory ordered count must not be negative")
	}
	return nil
}

// Clone returns a deep copy.
func (i *InventoryItem) Clone() *InventoryItem {
	cp := *i
	return &cp
}
