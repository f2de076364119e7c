package position

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestTrailingBeatsBreakEvenPriority(t *testing.T) {
	tpsl := TPSLConfig{
		TrailingEnabled: true, TrailingStartPct: 0.2, TrailingDistancePct: 0.1,
		BreakEvenEnabled: true, BreakEvenPct: 0.1,
	}
	// gain = 0.3%, satisfies both triggers; trailing must win.
	cand, ok := Evaluate(d(100000), d(100300), decimal.Zero, Buy, tpsl, false)
	require.True(t, ok)
	assert.Equal(t, "trailing", cand.Rule)
}

func TestSLMonotonicityScenario(t *testing.T) {
	// Open BUY at 100000, SL 99500. Trailing sees price=100300 -> new SL 100200.
	tpsl := TPSLConfig{TrailingEnabled: true, TrailingStartPct: 0.1, TrailingDistancePct: 0.1}
	cand, ok := Evaluate(d(100000), d(100300), d(99500), Buy, tpsl, false)
	require.True(t, ok)
	assert.True(t, cand.SL.Equal(d(100200)))

	// Strategist then lowers sl_pct 0.5 -> 0.3, yielding 99700. 99700 < 100200: must not rewrite.
	newSL, _ := computeTPSL(d(100000), Buy, 0.4, 0.3)
	assert.False(t, Favorable(d(100200), newSL, Buy))
}

func TestMonotonicityRejectsRetreatForSell(t *testing.T) {
	assert.False(t, Favorable(d(100), d(101), Sell))
	assert.True(t, Favorable(d(100), d(99), Sell))
	assert.True(t, Favorable(decimal.Zero, d(99), Sell))
}

func TestDeadBandSuppressesNoOpEdit(t *testing.T) {
	tpsl := TPSLConfig{BreakEvenEnabled: true, BreakEvenPct: 0.01}
	// Candidate is 100020 (entry + 0.02% buffer); currentSL sits 0.004 below
	// it, so the move is favorable but under the 0.01 dead band.
	_, ok := Evaluate(d(100000), d(100020), d(100019.996), Buy, tpsl, false)
	assert.False(t, ok)
}

func TestNoRuleFires(t *testing.T) {
	tpsl := TPSLConfig{TrailingEnabled: true, TrailingStartPct: 5, BreakEvenEnabled: true, BreakEvenPct: 5}
	_, ok := Evaluate(d(100000), d(100010), decimal.Zero, Buy, tpsl, false)
	assert.False(t, ok)
}

func TestGainPctSellDirection(t *testing.T) {
	gain := GainPct(d(100), d(95), Sell)
	assert.True(t, gain.Equal(d(5)))
}
