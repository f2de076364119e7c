package agent

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/g13trader/internal/decider"
	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDecider struct {
	text string
}

func (f fakeDecider) Decide(ctx context.Context, agentID, prompt, systemPrompt string, maxTokens int) (string, error) {
	return f.text, nil
}

func newTestAgent(t *testing.T, cfg Config, deciderText string) (*StrategyAgent, *ledger.Store) {
	t.Helper()
	store, err := ledger.NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	client := decider.NewClient(fakeDecider{text: deciderText})
	return New(zap.NewNop(), "fibo1", cfg, client, store), store
}

func baseConfig() Config {
	return Config{
		Enabled:         true,
		Symbol:          "EURUSD",
		MaxPositions:    2,
		CooldownSeconds: 300,
		TPSL:            TPSLConfig{TPPct: 0.3, SLPct: 0.2},
	}
}

func TestCanTradeAtMaxPositionsRejectsEvenAfterCooldown(t *testing.T) {
	a, _ := newTestAgent(t, baseConfig(), "HOLD")
	a.SetOpenPositionCount(2) // == MaxPositions
	a.lastTradeTime = time.Now().Add(-time.Hour)

	assert.False(t, a.CanTrade(time.Now()))
}

func TestCanTradeRespectsCooldown(t *testing.T) {
	a, _ := newTestAgent(t, baseConfig(), "HOLD")
	a.SetOpenPositionCount(0)
	now := time.Now()
	a.lastTradeTime = now.Add(-30 * time.Second)

	assert.False(t, a.CanTrade(now))
	assert.True(t, a.CanTrade(now.Add(5*time.Minute)))
}

func TestCanTradeDisabledAgentNeverTrades(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	a, _ := newTestAgent(t, cfg, "HOLD")
	assert.False(t, a.CanTrade(time.Now()))
}

func TestShouldOpenTradeLogsHoldDecision(t *testing.T) {
	a, store := newTestAgent(t, baseConfig(), "HOLD: spread too wide")
	snap := decider.MarketSnapshot{Symbol: "EURUSD", Price: decimal.NewFromFloat(1.1)}

	signal, err := a.ShouldOpenTrade(context.Background(), snap, nil, nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, signal)

	decisions := store.RecentDecisions(10)
	require.Len(t, decisions, 1)
	assert.Equal(t, "HOLD", decisions[0].Action)
	assert.False(t, decisions[0].Executed)
}

func TestShouldOpenTradeShortCircuitsOnWideSpreadWithoutCallingDecider(t *testing.T) {
	cfg := baseConfig()
	cfg.TPSL.SpreadCheckEnabled = true
	cfg.TPSL.MaxSpreadPoints = 20
	a, store := newTestAgent(t, cfg, "BUY: should never be reached")
	snap := decider.MarketSnapshot{Symbol: "EURUSD", Price: decimal.NewFromFloat(1.1), SpreadPoints: decimal.NewFromFloat(35)}

	signal, err := a.ShouldOpenTrade(context.Background(), snap, nil, nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, signal)
	assert.Empty(t, store.RecentDecisions(10)) // no decider call means no decision logged
}

func TestShouldOpenTradeComputesSLTPOnBuy(t *testing.T) {
	a, store := newTestAgent(t, baseConfig(), "BUY: bullish structure break")
	snap := decider.MarketSnapshot{Symbol: "EURUSD", Price: decimal.NewFromFloat(1.1000)}

	signal, err := a.ShouldOpenTrade(context.Background(), snap, nil, nil, time.Now())
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, decider.Buy, signal.Direction)
	assert.True(t, signal.SL.LessThan(signal.Entry))
	assert.True(t, signal.TP.GreaterThan(signal.Entry))

	decisions := store.RecentDecisions(10)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Executed)
}

func TestMarkExecutedStartsCooldown(t *testing.T) {
	a, _ := newTestAgent(t, baseConfig(), "HOLD")
	now := time.Now()
	a.MarkExecuted(now)
	a.SetOpenPositionCount(0)
	assert.False(t, a.CanTrade(now.Add(time.Second)))
}
