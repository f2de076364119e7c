// Package market implements swing-based Fibonacci retracement levels, the
// EMA(20)/EMA(50) trend classifier, and the killzone window check
// (spec.md §4.5, GLOSSARY).
package market

import (
	"github.com/atlas-desktop/g13trader/pkg/types"
	"github.com/atlas-desktop/g13trader/pkg/utils"
	"github.com/shopspring/decimal"
)

// FiboLevel is one of the five retracement ratios the original system
// exposes per agent config.
type FiboLevel string

const (
	Level236 FiboLevel = "0.236"
	Level382 FiboLevel = "0.382"
	Level500 FiboLevel = "0.5"
	Level618 FiboLevel = "0.618"
	Level786 FiboLevel = "0.786"
)

var ratios = map[FiboLevel]float64{
	Level236: 0.236,
	Level382: 0.382,
	Level500: 0.5,
	Level618: 0.618,
	Level786: 0.786,
}

// swingLookback is the neighbor count on each side a bar must strictly
// exceed to qualify as a swing extremum (GLOSSARY: "Swing high/low").
const swingLookback = 5

// swingWindow is the number of most-recent candles considered (spec.md
// §4.5: "over last 100 candles").
const swingWindow = 100

// Swing is the most recent swing high/low pair found in the window.
type Swing struct {
	High decimal.Decimal
	Low  decimal.Decimal
}

// LastSwing scans the last swingWindow candles and returns the most recent
// swing high and swing low, each independently the latest bar whose
// high/low is strictly more extreme than swingLookback neighbors on both
// sides.
func LastSwing(candles []types.Candle) (Swing, bool) {
	window := candles
	if len(window) > swingWindow {
		window = window[len(window)-swingWindow:]
	}
	if len(window) < 2*swingLookback+1 {
		return Swing{}, false
	}

	var swing Swing
	foundHigh, foundLow := false, false

	for i := len(window) - 1 - swingLookback; i >= swingLookback; i-- {
		if !foundHigh && isSwingHigh(window, i) {
			swing.High = window[i].High
			foundHigh = true
		}
		if !foundLow && isSwingLow(window, i) {
			swing.Low = window[i].Low
			foundLow = true
		}
		if foundHigh && foundLow {
			break
		}
	}

	return swing, foundHigh && foundLow
}

func isSwingHigh(candles []types.Candle, i int) bool {
	for j := i - swingLookback; j <= i+swingLookback; j++ {
		if j == i {
			continue
		}
		if !candles[i].High.GreaterThan(candles[j].High) {
			return false
		}
	}
	return true
}

func isSwingLow(candles []types.Candle, i int) bool {
	for j := i - swingLookback; j <= i+swingLookback; j++ {
		if j == i {
			continue
		}
		if !candles[i].Low.LessThan(candles[j].Low) {
			return false
		}
	}
	return true
}

// RetracementLevel returns high - (high-low)*ratio (GLOSSARY).
func RetracementLevel(swing Swing, level FiboLevel) decimal.Decimal {
	ratio := ratios[level]
	return swing.High.Sub(swing.High.Sub(swing.Low).Mul(decimal.NewFromFloat(ratio)))
}

// Trend is the EMA(20)/EMA(50) crossover classification.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendFlat   Trend = "flat"
)

// trendDeadZonePct is the 0.05% dead-zone around equal EMAs before a trend
// is called flat (spec.md §4.5).
const trendDeadZonePct = 0.05

// EMATrend classifies trend from a closing-price series using EMA(20) vs
// EMA(50).
func EMATrend(closes []decimal.Decimal) Trend {
	if len(closes) == 0 {
		return TrendFlat
	}
	ema20 := utils.NewEMA(20)
	ema50 := utils.NewEMA(50)
	for _, c := range closes {
		ema20.Add(c)
		ema50.Add(c)
	}
	fast, slow := ema20.Current(), ema50.Current()
	if slow.IsZero() {
		return TrendFlat
	}
	diffPct := fast.Sub(slow).Div(slow).Abs().Mul(decimal.NewFromInt(100))
	if diffPct.LessThan(decimal.NewFromFloat(trendDeadZonePct)) {
		return TrendFlat
	}
	if fast.GreaterThan(slow) {
		return TrendUp
	}
	return TrendDown
}
