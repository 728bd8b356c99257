package cloud

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// clientIDPrefix matches the module-facing client id shape client_<dbid>.
const clientIDPrefix = "client_"

func orderToRow(o *model.Order) *model.OrderRow {
	row := &model.OrderRow{
		MonthKey:    o.MonthKey(),
		Date:        o.Date,
		Client:      o.Client,
		Phone:       o.Phone,
		Origin:      o.Origin,
		Vendor:      o.Vendor,
		Model:       o.Model,
		CostUSD:     o.CostUSD,
		ShippingUSD: o.ShippingUSD,
		Rate:        o.Rate,
		Status:      o.Status,
		FullSet:     o.FullSet,
		Notes:       o.Notes,
		ImagePath:   o.ImagePath,
		ExtrasEUR:   o.ExtrasEUR,
		SellEUR:     o.SellEUR,
		TotalEUR:    o.TotalEUR,
		BalanceEUR:  o.BalanceEUR,
		ExtrasBGN:   o.ExtrasBGN,
		SellBGN:     o.SellBGN,
		TotalBGN:    o.TotalBGN,
		BalanceBGN:  o.BalanceBGN,
	}
	if id, err := strconv.ParseInt(o.ID, 10, 64); err == nil {
		row.ID = id
	}
	return row
}

func rowToOrder(r *model.OrderRow) *model.Order {
	return &model.Order{
		ID:          strconv.FormatInt(r.ID, 10),
		Date:        r.Date,
		Client:      r.Client,
		Phone:       r.Phone,
		Origin:      r.Origin,
		Vendor:      r.Vendor,
		Model:       r.Model,
		CostUSD:     r.CostUSD,
		ShippingUSD: r.ShippingUSD,
		Rate:        r.Rate,
		Status:      r.Status,
		FullSet:     r.FullSet,
		Notes:       r.Notes,
		ImagePath:   r.ImagePath,
		ExtrasEUR:   r.ExtrasEUR,
		SellEUR:     r.SellEUR,
		TotalEUR:    r.TotalEUR,
		BalanceEUR:  r.BalanceEUR,
		ExtrasBGN:   r.ExtrasBGN,
		SellBGN:     r.SellBGN,
		TotalBGN:    r.TotalBGN,
		BalanceBGN:  r.BalanceBGN,
	}
}

func clientToRow(c *model.Client) *model.ClientRow {
	row := &model.ClientRow{
		Name:            c.Name,
		Phone:           c.Phone,
		Email:           c.Email,
		Address:         c.Address,
		PreferredSource: c.PreferredSource,
		Notes:           c.Notes,
		CreatedDate:     c.CreatedDate,
	}
	if id, err := strconv.ParseInt(strings.TrimPrefix(c.ID, clientIDPrefix), 10, 64); err == nil {
		row.ID = id
	}
	return row
}

func rowToClient(r *model.ClientRow) *model.Client {
	return &model.Client{
		ID:              clientIDPrefix + strconv.FormatInt(r.ID, 10),
		Name:            r.Name,
		Phone:           r.Phone,
		Email:           r.Email,
		Address:         r.Address,
		PreferredSource: r.PreferredSource,
		Notes:           r.Notes,
		CreatedDate:     r.CreatedDate,
	}
}

func expenseToRow(e *model.Expense) *model.ExpenseRow {
	return &model.ExpenseRow{
		ID:        e.ID,
		MonthKey:  e.Month,
		Name:      e.Name,
		Amount:    e.AmountBGN,
		AmountEUR: e.AmountEUR,
		Note:      e.Note,
		Currency:  "EUR",
	}
}

func rowToExpense(r *model.ExpenseRow) *model.Expense {
	return &model.Expense{
		ID:        r.ID,
		Month:     r.MonthKey,
		Name:      r.Name,
		AmountEUR: r.AmountEUR,
		AmountBGN: r.Amount,
		Note:      r.Note,
	}
}

func inventoryToRow(i *model.InventoryItem) *model.InventoryRow {
	return &model.InventoryRow{
		ID:               i.DBID,
		Brand:            i.Brand,
		Type:             i.Type,
		PurchasePrice:    i.PurchasePriceBGN,
		SellPrice:        i.SellPriceBGN,
		PurchasePriceEUR: i.PurchasePriceEUR,
		SellPriceEUR:     i.SellPriceEUR,
		Stock:            i.Stock,
		Ordered:          i.Ordered,
		Currency:         "EUR",
	}
}

func rowToInventory(r *model.InventoryRow) *model.InventoryItem {
	return &model.InventoryItem{
		ID:               model.CompositeInventoryID(r.ID),
		DBID:             r.ID,
		Brand:            r.Brand,
		Type:             r.Type,
		PurchasePriceEUR: r.PurchasePriceEUR,
		SellPriceEUR:     r.SellPriceEUR,
		PurchasePriceBGN: r.PurchasePrice,
		SellPriceBGN:     r.SellPrice,
		Stock:            r.Stock,
		Ordered:          r.Ordered,
	}
}

func settingsToRow(s *model.Settings) (*model.SettingsRow, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return &model.SettingsRow{ID: 1, Data: string(raw)}, nil
}

func rowToSettings(r *model.SettingsRow) (*model.Settings, error) {
	var s model.Settings
	if err := json.Unmarshal([]byte(r.Data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func parseInventoryID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimPrefix(id, model.InventoryIDPrefix), 10, 64)
	return n, err == nil
}

func parseClientID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimPrefix(id, clientIDPrefix), 10, 64)
	return n, err == nil
}
