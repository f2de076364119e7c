package tradingloop

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/g13trader/internal/agent"
	"github.com/atlas-desktop/g13trader/internal/broker"
	"github.com/atlas-desktop/g13trader/internal/decider"
	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/atlas-desktop/g13trader/internal/position"
	"github.com/atlas-desktop/g13trader/internal/riskguard"
	"github.com/atlas-desktop/g13trader/internal/strategist"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDecider struct {
	text string
}

func (s stubDecider) Decide(ctx context.Context, agentID, prompt, systemPrompt string, maxTokens int) (string, error) {
	return s.text, nil
}

func seededFake() *broker.Fake {
	f := broker.NewFake(broker.AccountInfo{Login: 1001, Balance: decimal.NewFromInt(10000), Equity: decimal.NewFromInt(10000)})
	f.SetSymbol("EURUSD", broker.SymbolInfo{
		Symbol: "EURUSD", VolumeMin: decimal.NewFromFloat(0.01), VolumeMax: decimal.NewFromFloat(10),
		VolumeStep: decimal.NewFromFloat(0.01), Point: decimal.NewFromFloat(0.0001),
	})
	f.SetTick("EURUSD", broker.Tick{Bid: decimal.NewFromFloat(1.1000), Ask: decimal.NewFromFloat(1.1001), Time: time.Now()})
	var rates []broker.Rate
	for i := 0; i < 60; i++ {
		rates = append(rates, broker.Rate{
			Time: time.Now().Add(time.Duration(i) * time.Minute),
			Open: decimal.NewFromFloat(1.1), High: decimal.NewFromFloat(1.101),
			Low: decimal.NewFromFloat(1.099), Close: decimal.NewFromFloat(1.1005),
		})
	}
	f.SetRates("EURUSD", rates)
	return f
}

func testAgentConfig() agent.Config {
	return agent.Config{
		Enabled: true, Symbol: "EURUSD", Timeframe: "M15", MaxPositions: 3,
		CooldownSeconds: 60, PositionSizePct: 0.01,
		TPSL: agent.TPSLConfig{TPPct: 0.3, SLPct: 0.2},
	}
}

func newTestLoop(t *testing.T, deciderText string) (*Loop, *broker.Fake, *ledger.Store) {
	t.Helper()
	store, err := ledger.NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveSession(ledger.Session{ID: "s1", Status: ledger.SessionActive, StartTime: time.Now()}))

	fake := seededFake()
	gate := broker.NewGate(zap.NewNop(), fake)
	guard := riskguard.NewGuard(zap.NewNop())
	posManager := position.NewManager(zap.NewNop())

	client := decider.NewClient(stubDecider{text: deciderText})
	a := agent.New(zap.NewNop(), "fibo1", testAgentConfig(), client, store)

	rt := &Runtime{
		ID: "fibo1", Agent: a, Config: testAgentConfig(),
		Credentials:   broker.Credentials{Login: 1001},
		ExpectedLogin: 1001,
		RiskConfig:    riskguard.Config{MaxDrawdownPct: 10, MaxDailyLossPct: 5, EmergencyClosePct: 15},
	}

	loop := New(zap.NewNop(), store, gate, guard, posManager, nil, []*Runtime{rt})
	return loop, fake, store
}

func TestRunAgentCycleOpensTradeOnBuySignal(t *testing.T) {
	loop, fake, store := newTestLoop(t, "BUY: strong breakout")
	now := time.Now()

	loop.runAgentCycle(context.Background(), loop.runtimes[0], now)

	positions, err := fake.PositionsGet("EURUSD")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, broker.PositionBuy, positions[0].Type)

	tickets := store.LoadTickets()
	require.Len(t, tickets, 1)
	assert.Equal(t, "fibo1", tickets[0].AgentID)

	decisions := store.RecentDecisions(0)
	require.Len(t, decisions, 1)
	assert.Equal(t, "BUY", decisions[0].Action)
}

func TestRunAgentCycleHoldOpensNoTrade(t *testing.T) {
	loop, fake, store := newTestLoop(t, "HOLD: waiting for confirmation")
	now := time.Now()

	loop.runAgentCycle(context.Background(), loop.runtimes[0], now)

	positions, err := fake.PositionsGet("EURUSD")
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Empty(t, store.LoadTickets())
}

func TestRunAgentCycleSkipsWhenGateAcquireFails(t *testing.T) {
	loop, _, _ := newTestLoop(t, "BUY: x")
	loop.runtimes[0].ExpectedLogin = 9999 // forces login mismatch

	assert.NotPanics(t, func() {
		loop.runAgentCycle(context.Background(), loop.runtimes[0], time.Now())
	})
}

func TestTickSkipsWhenNoActiveSession(t *testing.T) {
	loop, fake, store := newTestLoop(t, "BUY: x")
	require.NoError(t, store.SaveSession(ledger.Session{ID: "s1", Status: ledger.SessionStopped}))

	loop.tick(context.Background(), time.Now())

	positions, _ := fake.PositionsGet("EURUSD")
	assert.Empty(t, positions)
}

func TestRunStrategistCycleHoldsGateThenReleasesIt(t *testing.T) {
	loop, _, store := newTestLoop(t, "HOLD: x")
	loop.strategist = strategist.NewRunner(zap.NewNop(), store, position.NewManager(zap.NewNop()), nil)

	loop.runStrategistCycle(context.Background(), time.Now())

	// If runStrategistCycle left the gate held, this Acquire would time out.
	result, err := loop.gate.Acquire("fibo1", broker.Credentials{Login: 1001}, 1001)
	require.NoError(t, err)
	loop.gate.Release()
	assert.Equal(t, int64(1001), result.Account.Login)
}

func TestMagicForIsStableAndBounded(t *testing.T) {
	m1 := magicFor("fibo1")
	m2 := magicFor("fibo1")
	m3 := magicFor("fibo2")
	assert.Equal(t, m1, m2)
	assert.NotEqual(t, m1, m3)
	assert.Less(t, m1, int64(1_000_000))
}
