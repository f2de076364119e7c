package decider

import (
	"context"
	"testing"

	"github.com/atlas-desktop/g13trader/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecider struct {
	text string
	err  error
}

func (f fakeDecider) Decide(ctx context.Context, agentID, prompt, systemPrompt string, maxTokens int) (string, error) {
	return f.text, f.err
}

func TestParseActionVariants(t *testing.T) {
	action, reason, err := ParseAction("BUY: strong bullish momentum")
	require.NoError(t, err)
	assert.Equal(t, Buy, action)
	assert.Equal(t, "strong bullish momentum", reason)

	action, _, _ = ParseAction("hold - spread too wide")
	assert.Equal(t, Hold, action)

	action, _, _ = ParseAction("garbage response")
	assert.Equal(t, Hold, action)
}

func TestClientDecideDelegates(t *testing.T) {
	c := NewClient(fakeDecider{text: "SELL: resistance rejection"})
	action, reason, err := c.Decide(context.Background(), "fibo1", "prompt", "system", 100)
	require.NoError(t, err)
	assert.Equal(t, Sell, action)
	assert.Equal(t, "resistance rejection", reason)
}

func TestClientDecideOnErrorIsHold(t *testing.T) {
	c := NewClient(fakeDecider{err: assertError{}})
	action, _, err := c.Decide(context.Background(), "fibo1", "prompt", "system", 100)
	require.NoError(t, err)
	assert.Equal(t, Hold, action)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestBuildPromptGatesInstitutionalAnalysis(t *testing.T) {
	snap := MarketSnapshot{
		Symbol: "EURUSD",
		Price:  decimal.NewFromFloat(1.1),
		MaxPositions: 3,
	}
	for i := 0; i < 15; i++ {
		snap.MainCandles = append(snap.MainCandles, types.Candle{
			High: decimal.NewFromFloat(1.1), Low: decimal.NewFromFloat(1.09), Close: decimal.NewFromFloat(1.095),
		})
	}
	prompt := BuildPrompt(context.Background(), snap, countingDetector{}, nil)
	assert.NotContains(t, prompt, "Market structure")
}

type countingDetector struct{}

func (countingDetector) Analyze(ctx context.Context, highs, lows, closes []float64) (InstitutionalAnalysis, error) {
	return InstitutionalAnalysis{MarketStructure: "bullish BOS"}, nil
}
