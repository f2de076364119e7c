package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateStatsPureFunction(t *testing.T) {
	trades := []ClosedTrade{
		{PositionID: 1, Profit: decimal.NewFromFloat(20)},
		{PositionID: 2, Profit: decimal.NewFromFloat(-10)},
		{PositionID: 3, Profit: decimal.NewFromFloat(30)},
	}

	stats := CalculateStats(trades)
	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 2, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.InDelta(t, 66.666, stats.WinRate, 0.01)
	assert.True(t, stats.TotalProfit.Equal(decimal.NewFromFloat(40)))
	assert.True(t, stats.Best.Equal(decimal.NewFromFloat(30)))
	assert.True(t, stats.Worst.Equal(decimal.NewFromFloat(-10)))

	// Calling it again with the same input produces byte-identical output
	// modulo the UpdatedAt stamp.
	again := CalculateStats(trades)
	stats.UpdatedAt = again.UpdatedAt
	assert.Equal(t, stats, again)
}

func TestCalculateStatsEmpty(t *testing.T) {
	stats := CalculateStats(nil)
	assert.Equal(t, 0, stats.TotalTrades)
	assert.Equal(t, float64(0), stats.WinRate)
}

func TestExpectancy(t *testing.T) {
	stats := Stats{WinRate: 60, AvgWin: decimal.NewFromFloat(10), AvgLoss: decimal.NewFromFloat(-5)}
	// 0.6*10 - 0.4*5 = 6 - 2 = 4
	assert.True(t, Expectancy(stats).Equal(decimal.NewFromFloat(4)))
}
