// Package currency holds the EUR/BGN normalization rules. EUR is canonical
// everywhere; BGN values are derived mirrors recomputed on every write.
package currency

import (
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// HistoricalRateThreshold separates the two meanings of an order's rate
// field: values above it are legacy USD→BGN rates, values at or below it
// are current USD→EUR rates.
const HistoricalRateThreshold = 1.5

var bgnPerEUR = decimal.NewFromFloat(model.BGNPerEUR)

// Round2 rounds to two decimals at a storage or display boundary.
func Round2(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}

// EURFromBGN converts a BGN amount to EUR, rounded to two decimals.
func EURFromBGN(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).DivRound(bgnPerEUR, 2).Float64()
	return f
}

// BGNFromEUR converts an EUR amount to BGN, rounded to two decimals.
func BGNFromEUR(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Mul(bgnPerEUR).Round(2).Float64()
	return f
}

// NormalizeToEUR resolves the canonical EUR amount from a record carrying
// both an EUR and a legacy BGN field.
//
// Rules, in order:
//  1. Missing/zero EUR: derive from BGN.
//  2. EUR ≈ BGN while BGN is clearly a BGN-sized amount: the EUR field was
//     mislabeled during migration, derive from BGN and warn.
//  3. Otherwise the stored EUR value is authoritative; a >2% disagreement
//     with the derived value is logged but not corrected.
func NormalizeToEUR(eurCandidate, bgnCandidate float64, log *zap.Logger) float64 {
	if eurCandidate == 0 {
		return EURFromBGN(bgnCandidate)
	}

	if math.Abs(eurCandidate-bgnCandidate) < 1 && bgnCandidate > 100 {
		if log != nil {
			log.Warn("EUR field holds a BGN-sized amount, treating as mislabeled",
				zap.Float64("eur", eurCandidate),
				zap.Float64("bgn", bgnCandidate))
		}
		return EURFromBGN(bgnCandidate)
	}

	expected := EURFromBGN(bgnCandidate)
	if expected > 0 {
		if diff := math.Abs(eurCandidate-expected) / expected; diff > 0.02 && log != nil {
			log.Warn("EUR/BGN mismatch beyond tolerance, keeping stored EUR",
				zap.Float64("eur", eurCandidate),
				zap.Float64("expectedEUR", expected),
				zap.Float64("deviation", diff))
		}
	}
	return eurCandidate
}

// RecomputeOrderTotals fills the derived money fields of an order in place.
//
// Historical orders (rate > 1.5, USD→BGN) compute the BGN total first and
// derive EUR from it; current orders (USD→EUR) compute EUR first. In both
// modes balanceEUR = sellEUR − totalEUR and every BGN field mirrors its EUR
// counterpart at the fixed rate.
func RecomputeOrderTotals(o *model.Order) {
	usd := decimal.NewFromFloat(o.CostUSD).Add(decimal.NewFromFloat(o.ShippingUSD))
	rate := decimal.NewFromFloat(o.Rate)

	if o.Rate > HistoricalRateThreshold {
		// Historical: rate converts USD to BGN, extras were entered in BGN.
		totalBGN := usd.Mul(rate).Add(decimal.NewFromFloat(o.ExtrasBGN)).Round(2)
		o.TotalBGN, _ = totalBGN.Float64()
		o.TotalEUR, _ = totalBGN.DivRound(bgnPerEUR, 2).Float64()
		o.ExtrasEUR = EURFromBGN(o.ExtrasBGN)
		if o.SellEUR == 0 && o.SellBGN != 0 {
			o.SellEUR = EURFromBGN(o.SellBGN)
		}
	} else {
		totalEUR := usd.Mul(rate).Add(decimal.NewFromFloat(o.ExtrasEUR)).Round(2)
		o.TotalEUR, _ = totalEUR.Float64()
		o.TotalBGN = BGNFromEUR(o.TotalEUR)
		o.ExtrasBGN = BGNFromEUR(o.ExtrasEUR)
	}

	o.SellEUR = Round2(o.SellEUR)
	o.BalanceEUR = Round2(o.SellEUR - o.TotalEUR)

	o.SellBGN = BGNFromEUR(o.SellEUR)
	o.BalanceBGN = BGNFromEUR(o.BalanceEUR)
}

// NormalizeExpense resolves the canonical EUR amount and rebuilds the BGN
// mirror.
func NormalizeExpense(e *model.Expense, log *zap.Logger) {
	e.AmountEUR = Round2(NormalizeToEUR(e.AmountEUR, e.AmountBGN, log))
	e.AmountBGN = BGNFromEUR(e.AmountEUR)
}

// NormalizeInventory resolves canonical EUR prices and rebuilds the BGN
// mirrors.
func NormalizeInventory(i *model.InventoryItem, log *zap.Logger) {
	i.PurchasePriceEUR = Round2(NormalizeToEUR(i.PurchasePriceEUR, i.PurchasePriceBGN, log))
	i.SellPriceEUR = Round2(NormalizeToEUR(i.SellPriceEUR, i.SellPriceBGN, log))
	i.PurchasePriceBGN = BGNFromEUR(i.PurchasePriceEUR)
	i.SellPriceBGN = BGNFromEUR(i.SellPriceEUR)
}
