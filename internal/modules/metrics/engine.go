// Package metrics derives value and profit/loss figures from raw
// prices. Everything here is pure: no state, no I/O, no clocks.
package metrics

import (
	"math"

	"github.com/ashwinm/foliotrack/internal/domain"
)

// Apply recomputes every derived field of a position from a resolved
// quote and returns the updated copy.
//
// An absent current price zeroes all derived fields - always reset to
// zero rather than reusing last known values, so staleness is visible
// to the user instead of silently rendering old numbers.
func Apply(pos domain.Position, quote domain.Quote) domain.Position {
	pos.InvestmentValue = round2(float64(pos.Quantity) * pos.PurchasePrice)

	if quote.Current == nil {
		pos.CurrentPrice = 0
		pos.CurrentValue = 0
		pos.ProfitLoss = 0
		pos.ProfitLossPct = 0
		pos.DailyPL = 0
		pos.DailyReturnPct = 0
		return pos
	}

	current := *quote.Current
	pos.CurrentPrice = current
	pos.CurrentValue = round2(float64(pos.Quantity) * current)
	pos.ProfitLoss = round2(pos.CurrentValue - pos.InvestmentValue)

	// Division-by-zero guard, not an error: a zero investment yields a
	// zero percentage.
	if pos.InvestmentValue != 0 {
		pos.ProfitLossPct = round2(pos.ProfitLoss / pos.InvestmentValue * 100)
	} else {
		pos.ProfitLossPct = 0
	}

	if quote.Previous != nil && *quote.Previous != 0 {
		previous := *quote.Previous
		pos.DailyReturnPct = round2((current - previous) / previous * 100)
		pos.DailyPL = round2(float64(pos.Quantity) * (current - previous))
	} else {
		pos.DailyReturnPct = 0
		pos.DailyPL = 0
	}

	return pos
}

// Totals aggregates portfolio-level figures over active positions.
// A portfolio whose every position has quantity zero is treated as
// empty for reporting purposes even though the rows still exist.
func Totals(p domain.Portfolio) domain.PortfolioMetrics {
	var totals domain.PortfolioMetrics

	for _, pos := range p.Positions {
		if !pos.Active() {
			continue
		}
		totals.Positions++
		totals.InvestmentValue += pos.InvestmentValue
		totals.CurrentValue += pos.CurrentValue
		totals.ProfitLoss += pos.ProfitLoss
		totals.DailyPL += pos.DailyPL
	}

	totals.InvestmentValue = round2(totals.InvestmentValue)
	totals.CurrentValue = round2(totals.CurrentValue)
	totals.ProfitLoss = round2(totals.ProfitLoss)
	totals.DailyPL = round2(totals.DailyPL)

	if totals.InvestmentValue != 0 {
		totals.ProfitLossPct = round2(totals.ProfitLoss / totals.InvestmentValue * 100)
	}

	return totals
}

// round2 rounds to 2 decimal places.
func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
