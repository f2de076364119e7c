package decider

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlas-desktop/g13trader/internal/market"
	"github.com/atlas-desktop/g13trader/pkg/types"
	"github.com/shopspring/decimal"
)

// institutionalAnalysisMinCandles gates the optional ICT/SMC call path
// (SPEC_FULL.md §C, from the original's prompt_builder.get_institutional_analysis).
const institutionalAnalysisMinCandles = 20

// MarketSnapshot is the input to BuildPrompt: everything Strategy Agent
// gathered in the "read market" phase.
type MarketSnapshot struct {
	Symbol            string
	Price             decimal.Decimal
	SpreadPoints      decimal.Decimal
	M1Candles         []types.Candle
	M5Candles         []types.Candle
	MainCandles       []types.Candle // the agent's configured timeframe, for fibonacci
	OpenPositionCount int
	MaxPositions      int
}

// BuildPrompt assembles the decider prompt from market data, optionally
// enriched with an institutional-structure analysis and best-effort
// sentiment/futures context (spec.md §4.5 step 2, §6).
func BuildPrompt(ctx context.Context, snap MarketSnapshot, detector InstitutionalDetector, enrichers []Enricher) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Symbol: %s\nPrice: %s\nSpread (points): %s\n", snap.Symbol, snap.Price, snap.SpreadPoints)

	trend := market.EMATrend(closesOf(snap.M5Candles))
	fmt.Fprintf(&b, "M5 trend (EMA20 vs EMA50): %s\n", trend)

	m1Momentum := momentum(snap.M1Candles)
	m5Momentum := momentum(snap.M5Candles)
	fmt.Fprintf(&b, "M1 momentum: %s\nM5 momentum: %s\n", m1Momentum, m5Momentum)

	if swing, ok := market.LastSwing(snap.MainCandles); ok {
		fmt.Fprintf(&b, "Last swing high: %s, low: %s\n", swing.High, swing.Low)
		for _, lvl := range []market.FiboLevel{market.Level236, market.Level382, market.Level500, market.Level618, market.Level786} {
			fmt.Fprintf(&b, "Fibonacci %s: %s\n", lvl, market.RetracementLevel(swing, lvl))
		}
	}

	if detector != nil && len(snap.MainCandles) >= institutionalAnalysisMinCandles {
		highs, lows, closes := splitOHLC(snap.MainCandles)
		if analysis, err := detector.Analyze(ctx, highs, lows, closes); err == nil {
			fmt.Fprintf(&b, "Market structure: %s\nPatterns: %v\nRecommendation: %s\n",
				analysis.MarketStructure, analysis.PatternsDetected, analysis.Recommendation)
		}
		// A detector failure is swallowed: institutional analysis is
		// optional context, never a blocking dependency (spec.md §6).
	}

	for _, e := range enrichers {
		if text, err := e.Enrich(ctx, snap.Symbol); err == nil && text != "" {
			fmt.Fprintf(&b, "%s\n", text)
		}
		// Enricher failures are best-effort and silently ignored (spec.md §6).
	}

	fmt.Fprintf(&b, "Open positions: %d/%d\n", snap.OpenPositionCount, snap.MaxPositions)
	b.WriteString("Respond with BUY, SELL, or HOLD followed by a one-line reason.\n")

	return b.String()
}

func closesOf(candles []types.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func splitOHLC(candles []types.Candle) (highs, lows, closes []float64) {
	highs = make([]float64, len(candles))
	lows = make([]float64, len(candles))
	closes = make([]float64, len(candles))
	for i, c := range candles {
		highs[i], _ = c.High.Float64()
		lows[i], _ = c.Low.Float64()
		closes[i], _ = c.Close.Float64()
	}
	return
}

// momentum is a simple first-to-last close delta, described qualitatively.
func momentum(candles []types.Candle) string {
	if len(candles) < 2 {
		return "unknown"
	}
	delta := candles[len(candles)-1].Close.Sub(candles[0].Close)
	switch {
	case delta.IsPositive():
		return "bullish"
	case delta.IsNegative():
		return "bearish"
	default:
		return "flat"
	}
}
