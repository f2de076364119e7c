package strategist

import (
	"context"
	"time"

	"github.com/atlas-desktop/g13trader/internal/agent"
	"github.com/atlas-desktop/g13trader/internal/broker"
	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/atlas-desktop/g13trader/internal/opsapi"
	"github.com/atlas-desktop/g13trader/internal/position"
	"go.uber.org/zap"
)

// recentAdjustmentsLookback is how many of the most recent adjustment-log
// entries (across all agents) the direction-lock check scans; entries older
// than the 4h lock window are skipped by the check itself.
const recentAdjustmentsLookback = 50

// Runner ties analysis, the exact-value decider (optional), the
// rule-based fallback, and the Auto-Adjust guard-rail pipeline together
// for one tick of the 300s strategist cadence.
type Runner struct {
	logger  *zap.Logger
	store   *ledger.Store
	manager *position.Manager
	gate    *Gate
	decider Decider // optional; nil means rule-based-only
	metrics *opsapi.Metrics
}

// SetMetrics wires Prometheus instrumentation into the runner. Optional.
func (r *Runner) SetMetrics(m *opsapi.Metrics) {
	r.metrics = m
}

// NewRunner builds a Strategist Runner.
func NewRunner(logger *zap.Logger, store *ledger.Store, manager *position.Manager, decider Decider) *Runner {
	return &Runner{
		logger:  logger.Named("strategist"),
		store:   store,
		manager: manager,
		gate:    NewGate(),
		decider: decider,
	}
}

// RunAgent analyzes one agent's performance, produces a change batch
// (exact-value if a Decider is wired and willing to answer, rule-based
// fallback otherwise), runs it through the Auto-Adjust guard-rails,
// persists survivors, logs them, and rewrites any open positions whose
// tp_pct/sl_pct actually changed.
func (r *Runner) RunAgent(ctx context.Context, adapter broker.Adapter, agentID string, cfg agent.Config, positions []broker.Position, now time.Time) {
	if !cfg.IAAdjustEnabled {
		return
	}

	trades := r.store.LoadClosedTrades(agentID)
	analysis := Analyze(trades)
	if analysis.Evaluation == EvalInsufficientData {
		return
	}

	changes := r.proposeChanges(ctx, agentID, cfg, analysis)
	if len(changes) == 0 {
		return
	}

	recent := r.store.RecentAdjustments(recentAdjustmentsLookback)
	survivors := r.gate.Apply(agentID, cfg, changes, recent, now)
	if len(survivors) == 0 {
		return
	}

	newCfg := applyChangesToConfig(cfg, survivors)
	if err := r.store.SaveAgentConfig(agentID, newCfg); err != nil {
		r.logger.Warn("failed to save adjusted config", zap.String("agent", agentID), zap.Error(err))
		return
	}

	if r.metrics != nil {
		r.metrics.Adjustments.WithLabelValues(agentID).Add(float64(len(survivors)))
	}
	for _, c := range survivors {
		if err := r.store.AppendAdjustment(ledger.AdjustmentLogEntry{
			Timestamp: now,
			AgentID:   agentID,
			Type:      "AUTO_ADJUST",
			Field:     c.Field,
			OldValue:  c.OldValue,
			NewValue:  c.NewValue,
			Reason:    c.Reason,
		}); err != nil {
			r.logger.Warn("failed to log adjustment", zap.Error(err))
		}
		r.logger.Info("auto-adjust applied",
			zap.String("agent", agentID), zap.String("field", c.Field),
			zap.Float64("old", c.OldValue), zap.Float64("new", c.NewValue))
	}

	if tpslChanged(survivors) {
		if err := r.manager.RewriteLiveTPSL(adapter, agentID, positions, newCfg.TPSL.TPPct, newCfg.TPSL.SLPct); err != nil {
			r.logger.Warn("live tpsl rewrite failed", zap.String("agent", agentID), zap.Error(err))
		}
	}
}

// proposeChanges tries the exact-value decider first; if it is absent or
// declines to answer, falls back to translating rule-based suggestions.
func (r *Runner) proposeChanges(ctx context.Context, agentID string, cfg agent.Config, analysis Analysis) []Change {
	if r.decider != nil {
		targets, err := r.decider.Suggest(ctx, agentID, analysis)
		if err == nil && len(targets) > 0 {
			return exactValueChanges(cfg, targets)
		}
	}

	var changes []Change
	for _, s := range analysis.Suggestions {
		if c := TranslateSuggestion(cfg, s); c != nil {
			changes = append(changes, *c)
		}
	}
	return changes
}

// exactValueChanges validates a decider's target map against known fields
// and their bounds (spec.md §4.7: "unknown params rejected").
func exactValueChanges(cfg agent.Config, targets map[string]float64) []Change {
	var changes []Change
	for field, target := range targets {
		var old float64
		switch field {
		case "fibo_tolerance_pct":
			old = cfg.FiboTolerancePct
		case "cooldown_seconds":
			old = float64(cfg.CooldownSeconds)
		case "position_size_pct":
			old = cfg.PositionSizePct
		case "tpsl_config.tp_pct":
			old = cfg.TPSL.TPPct
		case "tpsl_config.sl_pct":
			old = cfg.TPSL.SLPct
		default:
			continue // unknown param, rejected
		}
		bounds, _ := boundsForField(field)
		clamped := clamp(target, bounds[0], bounds[1])
		if clamped == old {
			continue
		}
		changes = append(changes, Change{Field: field, OldValue: old, NewValue: clamped, Reason: "decider target"})
	}
	return changes
}

func applyChangesToConfig(cfg agent.Config, changes []Change) agent.Config {
	for _, c := range changes {
		switch c.Field {
		case "fibo_tolerance_pct":
			cfg.FiboTolerancePct = c.NewValue
		case "cooldown_seconds":
			cfg.CooldownSeconds = int(c.NewValue)
		case "position_size_pct":
			cfg.PositionSizePct = c.NewValue
		case "tpsl_config.tp_pct":
			cfg.TPSL.TPPct = c.NewValue
		case "tpsl_config.sl_pct":
			cfg.TPSL.SLPct = c.NewValue
		}
	}
	return cfg
}

func tpslChanged(changes []Change) bool {
	for _, c := range changes {
		if c.Field == "tpsl_config.tp_pct" || c.Field == "tpsl_config.sl_pct" {
			return true
		}
	}
	return false
}
