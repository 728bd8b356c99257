package currency

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

func TestConversionRoundTrip(t *testing.T) {
	assert.InDelta(t, 51.13, EURFromBGN(100), 0.001)
	assert.InDelta(t, 195.58, BGNFromEUR(100), 0.001)
	assert.InDelta(t, 0, EURFromBGN(0), 0.001)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.2345))
	assert.Equal(t, 1.24, Round2(1.235))
	assert.Equal(t, -1.24, Round2(-1.235))
}

func TestNormalizeToEUR(t *testing.T) {
	log := zap.NewNop()

	t.Run("missing EUR derives from BGN", func(t *testing.T) {
		assert.InDelta(t, 51.13, NormalizeToEUR(0, 100, log), 0.001)
	})

	t.Run("mislabeled BGN in the EUR field", func(t *testing.T) {
		// Both fields ~195: the EUR field was stored in BGN.
		got := NormalizeToEUR(195.58, 195.58, log)
		assert.InDelta(t, 100, got, 0.01)
	})

	t.Run("stored EUR is authoritative on mismatch", func(t *testing.T) {
		// 120 EUR vs derived 100 EUR: >2% apart but stored value wins.
		got := NormalizeToEUR(120, 195.58, log)
		assert.Equal(t, 120.0, got)
	})

	t.Run("consistent pair passes through", func(t *testing.T) {
		got := NormalizeToEUR(100, 195.58, log)
		assert.Equal(t, 100.0, got)
	})
}

func TestRecomputeOrderTotalsCurrentMode(t *testing.T) {
	o := &model.Order{
		Date:        "2026-03-15",
		Client:      "A",
		CostUSD:     100,
		ShippingUSD: 1.5,
		Rate:        0.92,
		ExtrasEUR:   5,
		SellEUR:     120,
	}
	RecomputeOrderTotals(o)

	assert.InDelta(t, (100+1.5)*0.92+5, o.TotalEUR, 0.01)
	assert.InDelta(t, o.SellEUR-o.TotalEUR, o.BalanceEUR, 0.01)
	// BGN mirrors follow EUR at the fixed rate.
	assert.InDelta(t, o.TotalEUR*model.BGNPerEUR, o.TotalBGN, 0.01)
	assert.InDelta(t, o.BalanceEUR*model.BGNPerEUR, o.BalanceBGN, 0.01)
	assert.InDelta(t, o.SellEUR*model.BGNPerEUR, o.SellBGN, 0.01)
	assert.InDelta(t, o.ExtrasEUR*model.BGNPerEUR, o.ExtrasBGN, 0.01)
}

func TestRecomputeOrderTotalsHistoricalMode(t *testing.T) {
	o := &model.Order{
		Date:        "2023-06-01",
		Client:      "B",
		CostUSD:     100,
		ShippingUSD: 1.5,
		Rate:        1.8,
		ExtrasBGN:   10,
		SellBGN:     200,
	}
	RecomputeOrderTotals(o)

	assert.InDelta(t, 192.70, o.TotalBGN, 0.01)
	assert.InDelta(t, 98.53, o.TotalEUR, 0.01)
	assert.InDelta(t, 102.26, o.SellEUR, 0.01)
	assert.InDelta(t, 3.73, o.BalanceEUR, 0.01)
	// balanceEUR is always sellEUR − totalEUR, even for historical rates.
	assert.InDelta(t, o.SellEUR-o.TotalEUR, o.BalanceEUR, 0.001)
}

func TestEURCanonicityInvariant(t *testing.T) {
	orders := []*model.Order{
		{CostUSD: 250, ShippingUSD: 3, Rate: 0.88, ExtrasEUR: 12.5, SellEUR: 300},
		{CostUSD: 75, ShippingUSD: 1.5, Rate: 1.75, ExtrasBGN: 4, SellBGN: 180},
		{CostUSD: 0, ShippingUSD: 0, Rate: 0.92, SellEUR: 40},
	}
	for _, o := range orders {
		RecomputeOrderTotals(o)
		assert.LessOrEqual(t, math.Abs(o.TotalBGN-o.TotalEUR*model.BGNPerEUR), 0.01)
		assert.LessOrEqual(t, math.Abs(o.SellBGN-o.SellEUR*model.BGNPerEUR), 0.01)
		assert.LessOrEqual(t, math.Abs(o.BalanceBGN-o.BalanceEUR*model.BGNPerEUR), 0.01)
	}
}

func TestNormalizeExpense(t *testing.T) {
	e := &model.Expense{Month: "2026-03", Name: "Наем", AmountBGN: 100}
	NormalizeExpense(e, zap.NewNop())
	assert.InDelta(t, 51.13, e.AmountEUR, 0.001)
	assert.InDelta(t, e.AmountEUR*model.BGNPerEUR, e.AmountBGN, 0.01)
}

func TestNormalizeInventory(t *testing.T) {
	i := &model.InventoryItem{Brand: "X", Type: model.InventoryTypeStandard, PurchasePriceEUR: 10, SellPriceEUR: 25}
	NormalizeInventory(i, zap.NewNop())
	assert.InDelta(t, 19.56, i.PurchasePriceBGN, 0.01)
	assert.InDelta(t, 48.9, i.SellPriceBGN, 0.01)
}
