// Package position implements trailing-stop / break-even /
// winner-never-loser stop-loss management under a strict monotonicity
// invariant (spec.md §4.4).
package position

import (
	"github.com/shopspring/decimal"
)

// Direction is the side of a position.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// TPSLConfig is the subset of AgentConfig.tpsl_config the position
// manager consumes.
type TPSLConfig struct {
	TrailingEnabled       bool
	TrailingStartPct      float64
	TrailingDistancePct   float64
	BreakEvenEnabled      bool
	BreakEvenPct          float64
}

// breakEvenBufferPct is the 0.02% buffer scaled to price used by both the
// break-even rule and winner-never-loser (spec.md §4.4).
const breakEvenBufferPct = 0.0002

// winnerNeverLoserTriggerPct is the minimum gain% before winner-never-loser
// fires, per spec.md §4.4.
const winnerNeverLoserTriggerPct = 0.05

// deadBandDelta is the minimum SL change worth sending to the broker,
// grounded on original_source/backend/actions/mt5/modify_trade.py's
// <0.01 no-op guard.
const deadBandDelta = 0.01

// GainPct returns the percentage gain for the position's direction.
func GainPct(entry, current decimal.Decimal, dir Direction) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	if dir == Buy {
		return current.Sub(entry).Div(entry).Mul(hundred)
	}
	return entry.Sub(current).Div(entry).Mul(hundred)
}

// Candidate is a proposed new SL plus which rule produced it, for logging.
type Candidate struct {
	SL   decimal.Decimal
	Rule string
}

// computeCandidate runs the three rules in priority order (trailing,
// break-even, winner-never-loser) and returns the first one that fires.
func computeCandidate(entry, current decimal.Decimal, dir Direction, tpsl TPSLConfig, winnerNeverLoser bool) (Candidate, bool) {
	gain := GainPct(entry, current, dir)

	if tpsl.TrailingEnabled && gain.GreaterThanOrEqual(decimal.NewFromFloat(tpsl.TrailingStartPct)) {
		k := entry.Mul(decimal.NewFromFloat(tpsl.TrailingDistancePct / 100))
		if dir == Buy {
			return Candidate{SL: current.Sub(k), Rule: "trailing"}, true
		}
		return Candidate{SL: current.Add(k), Rule: "trailing"}, true
	}

	if tpsl.BreakEvenEnabled && gain.GreaterThanOrEqual(decimal.NewFromFloat(tpsl.BreakEvenPct)) {
		buf := entry.Mul(decimal.NewFromFloat(breakEvenBufferPct))
		if dir == Buy {
			return Candidate{SL: entry.Add(buf), Rule: "break_even"}, true
		}
		return Candidate{SL: entry.Sub(buf), Rule: "break_even"}, true
	}

	if winnerNeverLoser && gain.GreaterThanOrEqual(decimal.NewFromFloat(winnerNeverLoserTriggerPct)) {
		buf := entry.Mul(decimal.NewFromFloat(breakEvenBufferPct))
		if dir == Buy {
			return Candidate{SL: entry.Add(buf), Rule: "winner_never_loser"}, true
		}
		return Candidate{SL: entry.Sub(buf), Rule: "winner_never_loser"}, true
	}

	return Candidate{}, false
}

// Favorable reports whether newSL is strictly favorable relative to
// currentSL for the given direction — the monotonicity invariant from
// spec.md §4.4/§8. An unset (zero) current SL is always improved upon.
func Favorable(currentSL, newSL decimal.Decimal, dir Direction) bool {
	if currentSL.IsZero() {
		return true
	}
	if dir == Buy {
		return newSL.GreaterThan(currentSL)
	}
	return newSL.LessThan(currentSL)
}

// Evaluate computes the next SL for a position, applying the monotonicity
// gate. It returns ok=false when no rule fired or the computed SL would
// retreat — callers must not write anything in that case.
func Evaluate(entry, current, currentSL decimal.Decimal, dir Direction, tpsl TPSLConfig, winnerNeverLoser bool) (Candidate, bool) {
	cand, fired := computeCandidate(entry, current, dir, tpsl, winnerNeverLoser)
	if !fired {
		return Candidate{}, false
	}
	if !Favorable(currentSL, cand.SL, dir) {
		return Candidate{}, false
	}
	if currentSL.Sub(cand.SL).Abs().LessThan(decimal.NewFromFloat(deadBandDelta)) && !currentSL.IsZero() {
		return Candidate{}, false
	}
	return cand, true
}
