package strategist

import (
	"testing"
	"time"

	"github.com/atlas-desktop/g13trader/internal/agent"
	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(profit float64) ledger.ClosedTrade {
	return ledger.ClosedTrade{Profit: decimal.NewFromFloat(profit)}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	a := Analyze([]ledger.ClosedTrade{trade(1), trade(2)})
	assert.Equal(t, EvalInsufficientData, a.Evaluation)
	assert.Empty(t, a.Suggestions)
}

func TestAnalyzeCriticalWinRateSuggestsReduceTolerance(t *testing.T) {
	trades := []ledger.ClosedTrade{trade(-1), trade(-1), trade(-1), trade(-1), trade(1)} // 20% WR
	a := Analyze(trades)
	assert.Equal(t, EvalCritical, a.Evaluation)
	require.NotEmpty(t, a.Suggestions)
	assert.Equal(t, ReduceTolerance, a.Suggestions[0].Type)
}

func TestAnalyzeExcellentSuggestsIncreaseRisk(t *testing.T) {
	var trades []ledger.ClosedTrade
	for i := 0; i < 16; i++ {
		trades = append(trades, trade(10))
	}
	for i := 0; i < 4; i++ {
		trades = append(trades, trade(-2))
	}
	a := Analyze(trades) // 80% WR, 20 trades
	assert.Equal(t, EvalExcellent, a.Evaluation)
	found := false
	for _, s := range a.Suggestions {
		if s.Type == IncreaseRisk {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTranslateSuggestionStepsAndClamps(t *testing.T) {
	cfg := agent.Config{FiboTolerancePct: 0.6}
	c := TranslateSuggestion(cfg, Suggestion{Type: ReduceTolerance})
	require.NotNil(t, c)
	assert.InDelta(t, 0.5, c.NewValue, 1e-9) // clamped at TOLERANCE_MIN

	cfg2 := agent.Config{FiboTolerancePct: 0.5}
	c2 := TranslateSuggestion(cfg2, Suggestion{Type: ReduceTolerance})
	assert.Nil(t, c2) // already at floor, no-op suppressed
}

func TestRatioGuardClampsSLToOneAndHalfTimesTP(t *testing.T) {
	cfg := agent.Config{TPSL: agent.TPSLConfig{TPPct: 0.2, SLPct: 0.2}}
	changes := []Change{
		{Field: "tpsl_config.sl_pct", OldValue: 0.2, NewValue: 0.5}, // requests 2.5x tp
	}
	out := applyRatioGuard(cfg, changes)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.3, out[0].NewValue, 1e-9) // 1.5 * 0.2
}

func TestAmplitudeGuardCapsAt50Percent(t *testing.T) {
	changes := []Change{
		{Field: "cooldown_seconds", OldValue: 100, NewValue: 180}, // 80% increase requested
	}
	out := applyAmplitudeGuard(changes)
	require.Len(t, out, 1)
	assert.InDelta(t, 150, out[0].NewValue, 1e-9) // capped to +50%
}

func TestAmplitudeGuardReClampsToBoundsAfterCapping(t *testing.T) {
	changes := []Change{
		// 80% increase requested, capped to +50% (0.9 -> 1.35), then
		// re-clamped into tp_pct's [0.1, 1.0] bound.
		{Field: "tpsl_config.tp_pct", OldValue: 0.9, NewValue: 1.62},
	}
	out := applyAmplitudeGuard(changes)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.0, out[0].NewValue, 1e-9)
}

func TestDirectionLockDropsOppositeMoveWithinWindow(t *testing.T) {
	now := time.Now()
	recent := []ledger.AdjustmentLogEntry{
		{AgentID: "fibo1", Field: "cooldown_seconds", OldValue: 100, NewValue: 70, Timestamp: now.Add(-time.Hour)},
	}
	changes := []Change{
		{Field: "cooldown_seconds", OldValue: 70, NewValue: 100},
	}
	out := applyDirectionLock("fibo1", changes, recent, now)
	assert.Empty(t, out)
}

func TestDirectionLockAllowsAfterWindowExpires(t *testing.T) {
	now := time.Now()
	recent := []ledger.AdjustmentLogEntry{
		{AgentID: "fibo1", Field: "cooldown_seconds", OldValue: 100, NewValue: 70, Timestamp: now.Add(-5 * time.Hour)},
	}
	changes := []Change{
		{Field: "cooldown_seconds", OldValue: 70, NewValue: 100},
	}
	out := applyDirectionLock("fibo1", changes, recent, now)
	assert.Len(t, out, 1)
}

func TestRateLimitBlocksWithinMinInterval(t *testing.T) {
	g := NewGate()
	now := time.Now()
	g.record("fibo1", now)
	assert.False(t, g.withinRateLimit("fibo1", now.Add(5*time.Minute)))
	assert.True(t, g.withinRateLimit("fibo1", now.Add(20*time.Minute)))
}

func TestRateLimitBlocksAtFourPerHour(t *testing.T) {
	g := NewGate()
	now := time.Now()
	// Records at 0/5/10/15 min; at 35 min the last one is 20 min old (past
	// the 15-min interval) and all four are still inside the rolling hour.
	for i := 0; i < 4; i++ {
		g.record("fibo1", now.Add(time.Duration(i)*5*time.Minute))
	}
	assert.False(t, g.withinRateLimit("fibo1", now.Add(35*time.Minute)))
}

func TestGateApplyDropsWholeBatchOnRateLimit(t *testing.T) {
	g := NewGate()
	now := time.Now()
	g.record("fibo1", now)
	cfg := agent.Config{TPSL: agent.TPSLConfig{TPPct: 0.3, SLPct: 0.3}}
	changes := []Change{{Field: "tpsl_config.tp_pct", OldValue: 0.3, NewValue: 0.35}}
	out := g.Apply("fibo1", cfg, changes, nil, now.Add(time.Minute))
	assert.Empty(t, out)
}
