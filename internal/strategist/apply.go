package strategist

import (
	"time"

	"github.com/atlas-desktop/g13trader/internal/agent"
	"github.com/atlas-desktop/g13trader/internal/ledger"
)

// Fixed-step translation for the rule-based fallback (ia_adjust.py).
const (
	toleranceStep     = 0.5
	cooldownStep      = 30.0
	tpStep            = 0.05
	slStep            = 0.05
	positionSizeStep  = 0.005
)

// Four sequential Auto-Adjust guard-rails (spec.md §4.7).
const (
	ratioGuardMaxSLOverTP = 1.5
	amplitudeGuardMaxPct  = 0.5
	directionLockWindow   = 4 * time.Hour
	rateLimitMinInterval  = 15 * time.Minute
	rateLimitMaxPerHour   = 4
)

// Change is a proposed single-field mutation, before or after guard-rails.
type Change struct {
	Field    string
	OldValue float64
	NewValue float64
	Reason   string
}

// TranslateSuggestion converts a rule-based symbolic suggestion into a
// fixed-step Change against the agent's current config (ia_adjust.py's
// per-type step application).
func TranslateSuggestion(cfg agent.Config, s Suggestion) *Change {
	switch s.Type {
	case ReduceTolerance:
		return stepped("fibo_tolerance_pct", cfg.FiboTolerancePct, -toleranceStep,
			agent.BoundsFiboTolerancePct, s.Message)
	case IncreaseTolerance:
		return stepped("fibo_tolerance_pct", cfg.FiboTolerancePct, toleranceStep,
			agent.BoundsFiboTolerancePct, s.Message)
	case IncreaseCooldown:
		return stepped("cooldown_seconds", float64(cfg.CooldownSeconds), cooldownStep,
			agent.BoundsCooldownSeconds, s.Message)
	case ReduceCooldown:
		return stepped("cooldown_seconds", float64(cfg.CooldownSeconds), -cooldownStep,
			agent.BoundsCooldownSeconds, s.Message)
	case AdjustTPSL:
		return stepped("tpsl_config.tp_pct", cfg.TPSL.TPPct, tpStep,
			agent.BoundsTPPct, s.Message)
	case RiskManagement:
		return stepped("tpsl_config.sl_pct", cfg.TPSL.SLPct, -slStep,
			agent.BoundsSLPct, s.Message)
	case IncreaseRisk:
		return stepped("position_size_pct", cfg.PositionSizePct, positionSizeStep,
			agent.BoundsPositionSizePct, s.Message)
	}
	return nil
}

func stepped(field string, current, delta float64, bounds [2]float64, reason string) *Change {
	next := clamp(current+delta, bounds[0], bounds[1])
	if next == current {
		return nil
	}
	return &Change{Field: field, OldValue: current, NewValue: next, Reason: reason}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Gate applies the four guard-rails and the resulting rate-limit-aware
// commit log, owning the per-agent last-adjustment bookkeeping that must
// survive across calls (spec.md §5: "touched by the loop worker" only).
type Gate struct {
	lastAdjustment map[string]time.Time
	recentPerHour  map[string][]time.Time
}

// NewGate creates an Auto-Adjust Gate.
func NewGate() *Gate {
	return &Gate{
		lastAdjustment: make(map[string]time.Time),
		recentPerHour:  make(map[string][]time.Time),
	}
}

// Apply runs a batch of proposed changes for one agent through the four
// guard-rails and returns the survivors, in order. The whole batch is
// dropped if the per-agent rate limit is violated.
func (g *Gate) Apply(agentID string, cfg agent.Config, changes []Change, recent []ledger.AdjustmentLogEntry, now time.Time) []Change {
	if len(changes) == 0 {
		return nil
	}

	if !g.withinRateLimit(agentID, now) {
		return nil
	}

	survivors := applyRatioGuard(cfg, changes)
	survivors = applyAmplitudeGuard(survivors)
	survivors = applyDirectionLock(agentID, survivors, recent, now)

	if len(survivors) > 0 {
		g.record(agentID, now)
	}
	return survivors
}

// applyRatioGuard recomputes sl_pct/tp_pct after the proposed batch and
// clamps sl_pct so it never exceeds 1.5x tp_pct (spec.md §4.7 rule 1).
func applyRatioGuard(cfg agent.Config, changes []Change) []Change {
	tp := cfg.TPSL.TPPct
	sl := cfg.TPSL.SLPct
	slIdx := -1
	for i, c := range changes {
		switch c.Field {
		case "tpsl_config.tp_pct":
			tp = c.NewValue
		case "tpsl_config.sl_pct":
			sl = c.NewValue
			slIdx = i
		}
	}
	maxSL := tp * ratioGuardMaxSLOverTP
	if sl > maxSL {
		clamped := clamp(maxSL, agent.BoundsSLPct[0], agent.BoundsSLPct[1])
		if slIdx >= 0 {
			changes[slIdx].NewValue = clamped
			if changes[slIdx].NewValue == changes[slIdx].OldValue {
				changes = append(changes[:slIdx], changes[slIdx+1:]...)
			}
		} else if clamped != sl {
			changes = append(changes, Change{Field: "tpsl_config.sl_pct", OldValue: sl, NewValue: clamped, Reason: "ratio guard-rail"})
		}
	}
	return changes
}

// boundsForField returns the field's configured range, matching the field
// names used throughout this package and internal/strategist/run.go.
func boundsForField(field string) ([2]float64, bool) {
	switch field {
	case "fibo_tolerance_pct":
		return agent.BoundsFiboTolerancePct, true
	case "cooldown_seconds":
		return agent.BoundsCooldownSeconds, true
	case "position_size_pct":
		return agent.BoundsPositionSizePct, true
	case "tpsl_config.tp_pct":
		return agent.BoundsTPPct, true
	case "tpsl_config.sl_pct":
		return agent.BoundsSLPct, true
	}
	return [2]float64{}, false
}

// applyAmplitudeGuard caps each change to 50% of its old value, re-clamping
// to the field's bounds afterward so a capped value can never land outside
// them (spec.md §4.7 rule 2 boundary case).
func applyAmplitudeGuard(changes []Change) []Change {
	out := changes[:0]
	for _, c := range changes {
		maxDelta := c.OldValue * amplitudeGuardMaxPct
		delta := c.NewValue - c.OldValue
		if delta > maxDelta {
			c.NewValue = c.OldValue + maxDelta
		} else if delta < -maxDelta {
			c.NewValue = c.OldValue - maxDelta
		}
		if bounds, ok := boundsForField(c.Field); ok {
			c.NewValue = clamp(c.NewValue, bounds[0], bounds[1])
		}
		if c.NewValue != c.OldValue {
			out = append(out, c)
		}
	}
	return out
}

// applyDirectionLock drops any change whose field moved in the opposite
// direction within the lock window (spec.md §4.7 rule 3).
func applyDirectionLock(agentID string, changes []Change, recent []ledger.AdjustmentLogEntry, now time.Time) []Change {
	out := changes[:0]
	for _, c := range changes {
		wantDir := sign(c.NewValue - c.OldValue)
		locked := false
		for _, r := range recent {
			if r.AgentID != agentID || r.Field != c.Field {
				continue
			}
			if now.Sub(r.Timestamp) > directionLockWindow {
				continue
			}
			if sign(r.NewValue-r.OldValue) == -wantDir && wantDir != 0 {
				locked = true
				break
			}
		}
		if !locked {
			out = append(out, c)
		}
	}
	return out
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// withinRateLimit enforces the 15-minute-since-last AND 4-per-rolling-hour
// limits (spec.md §4.7 rule 4).
func (g *Gate) withinRateLimit(agentID string, now time.Time) bool {
	if last, ok := g.lastAdjustment[agentID]; ok && now.Sub(last) < rateLimitMinInterval {
		return false
	}

	window := g.recentPerHour[agentID]
	cutoff := now.Add(-time.Hour)
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.recentPerHour[agentID] = kept

	return len(kept) < rateLimitMaxPerHour
}

func (g *Gate) record(agentID string, now time.Time) {
	g.lastAdjustment[agentID] = now
	g.recentPerHour[agentID] = append(g.recentPerHour[agentID], now)
}
