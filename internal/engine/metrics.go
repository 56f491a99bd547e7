package engine

import (
	"github.com/shopspring/decimal"

	"papertrader/internal/models"
)

var hundred = decimal.NewFromInt(100)

// percentOf returns part/whole*100, or zero when whole is zero.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// derivePortfolio computes the metrics view. A holding without a live price
// is valued at its average cost.
func derivePortfolio(cash decimal.Decimal, holdings []models.Holding, prices map[string]float64, names map[string]models.Instrument) models.PortfolioMetrics {
	m := models.PortfolioMetrics{
		CashBalance: cash,
		Holdings:    make([]models.HoldingMetrics, 0, len(holdings)),
	}
	totalValue := decimal.Zero
	totalCost := decimal.Zero

	for _, h := range holdings {
		qty := decimal.NewFromInt(int64(h.Quantity))
		current := h.AverageCost
		if p, ok := prices[h.Symbol]; ok && p > 0 {
			current = decimal.NewFromFloat(p)
		}
		value := current.Mul(qty)
		cost := h.AverageCost.Mul(qty)
		pnl := value.Sub(cost)

		m.Holdings = append(m.Holdings, models.HoldingMetrics{
			Symbol:               h.Symbol,
			Name:                 names[h.Symbol].DisplayName,
			Quantity:             h.Quantity,
			AverageCost:          h.AverageCost,
			CurrentPrice:         current,
			CurrentValue:         value,
			CostBasis:            cost,
			UnrealizedPnL:        pnl,
			UnrealizedPnLPercent: percentOf(pnl, cost),
		})
		totalValue = totalValue.Add(value)
		totalCost = totalCost.Add(cost)
	}

	m.TotalValue = totalValue
	m.TotalCostBasis = totalCost
	m.TotalUnrealizedPnL = totalValue.Sub(totalCost)
	m.TotalUnrealizedPnLPercent = percentOf(m.TotalUnrealizedPnL, totalCost)
	m.AccountValue = cash.Add(totalValue)
	return m
}

// dayChange measures current against the reference price. A zero reference
// yields a 0% change.
func dayChange(current, initial float64) models.PriceChange {
	abs := current - initial
	pct := 0.0
	if initial != 0 {
		pct = abs / initial * 100
	}
	return models.PriceChange{Absolute: abs, Percent: pct, IsUp: abs >= 0}
}
