package riskguard

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func cfg() Config {
	return Config{MaxDrawdownPct: 10, MaxDailyLossPct: 5, EmergencyClosePct: 15}
}

func TestEmergencyCloseScenario(t *testing.T) {
	g := NewGuard(zap.NewNop())
	now := time.Now()

	verdict := g.Check("fibo1", decimal.NewFromInt(10000), cfg(), now)
	assert.Equal(t, VerdictOk, verdict)

	// Equity drops to 8400: (10000-8400)/10000 = 16% >= 15% emergency threshold.
	verdict = g.Check("fibo1", decimal.NewFromInt(8400), cfg(), now)
	assert.Equal(t, VerdictEmergencyClose, verdict)
	assert.True(t, g.Blocked("fibo1"))
}

func TestBlockAndUnblock(t *testing.T) {
	g := NewGuard(zap.NewNop())
	now := time.Now()

	g.Check("fibo1", decimal.NewFromInt(10000), cfg(), now)
	// 11% drawdown triggers Block (>= 10%) but not emergency (< 15%).
	verdict := g.Check("fibo1", decimal.NewFromInt(8900), cfg(), now)
	assert.Equal(t, VerdictBlock, verdict)
	assert.True(t, g.Blocked("fibo1"))

	// Equity recovers: unblocked and logged.
	verdict = g.Check("fibo1", decimal.NewFromInt(9900), cfg(), now)
	assert.Equal(t, VerdictOk, verdict)
	assert.False(t, g.Blocked("fibo1"))
}

func TestDayRolloverClearsBlockAndDayStart(t *testing.T) {
	g := NewGuard(zap.NewNop())
	day1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 1, 0, 0, time.UTC)

	g.Check("fibo1", decimal.NewFromInt(10000), cfg(), day1)
	// Daily loss of 6% >= 5%: blocked.
	verdict := g.Check("fibo1", decimal.NewFromInt(9400), cfg(), day1)
	assert.Equal(t, VerdictBlock, verdict)

	// New day: day-start reference resets to current equity and the block clears.
	verdict = g.Check("fibo1", decimal.NewFromInt(9400), cfg(), day2)
	assert.Equal(t, VerdictOk, verdict)
	assert.False(t, g.Blocked("fibo1"))
}
