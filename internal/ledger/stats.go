package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculateStats is a pure function of a closed-trade list (spec.md §8:
// "CalculateStats is a pure function of the closed-trade list").
func CalculateStats(trades []ClosedTrade) Stats {
	stats := Stats{UpdatedAt: time.Now()}
	if len(trades) == 0 {
		return stats
	}

	var grossProfit, grossLoss decimal.Decimal
	best := trades[0].Profit
	worst := trades[0].Profit

	for _, t := range trades {
		stats.TotalTrades++
		stats.TotalProfit = stats.TotalProfit.Add(t.Profit)

		if t.Profit.GreaterThan(decimal.Zero) {
			stats.Wins++
			grossProfit = grossProfit.Add(t.Profit)
		} else {
			stats.Losses++
			grossLoss = grossLoss.Add(t.Profit.Abs())
		}

		if t.Profit.GreaterThan(best) {
			best = t.Profit
		}
		if t.Profit.LessThan(worst) {
			worst = t.Profit
		}
	}

	stats.Best = best
	stats.Worst = worst

	if stats.TotalTrades > 0 {
		stats.WinRate = 100 * float64(stats.Wins) / float64(stats.TotalTrades)
	}
	if stats.Wins > 0 {
		stats.AvgWin = grossProfit.Div(decimal.NewFromInt(int64(stats.Wins)))
	}
	if stats.Losses > 0 {
		stats.AvgLoss = grossLoss.Div(decimal.NewFromInt(int64(stats.Losses))).Neg()
	}
	if grossLoss.IsZero() {
		if grossProfit.IsZero() {
			stats.ProfitFactor = 0
		} else {
			stats.ProfitFactor = 100 // uncapped upside, matches teacher's capped-at-100 convention
		}
	} else {
		stats.ProfitFactor, _ = grossProfit.Div(grossLoss).Round(4).Float64()
	}

	return stats
}

// Expectancy is WR × avg_win − (1−WR) × |avg_loss| in account currency per
// trade (spec.md GLOSSARY).
func Expectancy(stats Stats) decimal.Decimal {
	wr := decimal.NewFromFloat(stats.WinRate / 100)
	return wr.Mul(stats.AvgWin).Sub(decimal.NewFromInt(1).Sub(wr).Mul(stats.AvgLoss.Abs()))
}

// RequiredWinRateToBreakEven is |avg_loss| / (avg_win + |avg_loss|).
func RequiredWinRateToBreakEven(stats Stats) float64 {
	denom := stats.AvgWin.Add(stats.AvgLoss.Abs())
	if denom.IsZero() {
		return 0
	}
	wr, _ := stats.AvgLoss.Abs().Div(denom).Float64()
	return wr
}
