package agent

import (
	"context"
	"time"

	"github.com/atlas-desktop/g13trader/internal/decider"
	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Signal is a non-HOLD decision ready for execution.
type Signal struct {
	Direction decider.Action
	Reason    string
	Entry     decimal.Decimal
	SL        decimal.Decimal
	TP        decimal.Decimal
}

// StrategyAgent is the spec.md §4.5 Strategy Agent: one concrete type
// parameterized by Config, since every Fibo agent runs the identical
// decision loop over different symbols/timeframes/risk parameters.
type StrategyAgent struct {
	ID     string
	Config Config

	logger  *zap.Logger
	client  *decider.Client
	store   *ledger.Store

	lastTradeTime     time.Time
	openPositionCount int
}

// New constructs a Strategy Agent.
func New(logger *zap.Logger, id string, cfg Config, client *decider.Client, store *ledger.Store) *StrategyAgent {
	return &StrategyAgent{
		ID:     id,
		Config: cfg,
		logger: logger.Named("agent").With(zap.String("agent", id)),
		client: client,
		store:  store,
	}
}

// SetOpenPositionCount is called by the trading loop after each sync phase.
func (a *StrategyAgent) SetOpenPositionCount(n int) {
	a.openPositionCount = n
}

// CanTrade implements spec.md §4.5: enabled AND under the position cap AND
// the cooldown has elapsed since the last execution.
func (a *StrategyAgent) CanTrade(now time.Time) bool {
	if !a.Config.Enabled {
		return false
	}
	if a.openPositionCount >= a.Config.MaxPositions {
		return false
	}
	if a.lastTradeTime.IsZero() {
		return true
	}
	return now.Sub(a.lastTradeTime) >= time.Duration(a.Config.CooldownSeconds)*time.Second
}

// ShouldOpenTrade runs the decision step (spec.md §4.5 step 2-4): build the
// prompt, call the decider, log the decision unconditionally (including
// HOLD), and on a non-HOLD verdict compute SL/TP from the agent's
// configured percentages.
func (a *StrategyAgent) ShouldOpenTrade(ctx context.Context, snap decider.MarketSnapshot, detector decider.InstitutionalDetector, enrichers []decider.Enricher, now time.Time) (*Signal, error) {
	if a.Config.TPSL.SpreadCheckEnabled {
		maxSpread := decimal.NewFromFloat(a.Config.TPSL.MaxSpreadPoints)
		if snap.SpreadPoints.GreaterThan(maxSpread) {
			a.logger.Info("spread too wide, skipping decider call",
				zap.String("spread", snap.SpreadPoints.String()), zap.String("max", maxSpread.String()))
			return nil, nil
		}
	}

	prompt := decider.BuildPrompt(ctx, snap, detector, enrichers)
	action, reason, err := a.client.Decide(ctx, a.ID, prompt, systemPrompt, maxDeciderTokens)
	if err != nil {
		return nil, err
	}

	if logErr := a.store.LogDecision(ledger.Decision{
		Timestamp: now,
		AgentID:   a.ID,
		Action:    string(action),
		Reason:    reason,
		Price:     snap.Price,
		Executed:  action != decider.Hold,
	}); logErr != nil {
		a.logger.Warn("failed to log decision", zap.Error(logErr))
	}

	if action == decider.Hold {
		return nil, nil
	}

	sl, tp := slTPFor(action, snap.Price, a.Config.TPSL.SLPct, a.Config.TPSL.TPPct)
	a.logger.Info("signal generated", zap.String("action", string(action)), zap.String("reason", reason))

	return &Signal{
		Direction: action,
		Reason:    reason,
		Entry:     snap.Price,
		SL:        sl,
		TP:        tp,
	}, nil
}

// MarkExecuted records that a trade was just opened, starting the cooldown.
func (a *StrategyAgent) MarkExecuted(now time.Time) {
	a.lastTradeTime = now
}

const systemPrompt = "You are a disciplined intraday trading decision engine. Respond with BUY, SELL, or HOLD."
const maxDeciderTokens = 200

func slTPFor(action decider.Action, entry decimal.Decimal, slPct, tpPct float64) (sl, tp decimal.Decimal) {
	slFrac := decimal.NewFromFloat(slPct / 100)
	tpFrac := decimal.NewFromFloat(tpPct / 100)
	if action == decider.Buy {
		sl = entry.Mul(decimal.NewFromInt(1).Sub(slFrac))
		tp = entry.Mul(decimal.NewFromInt(1).Add(tpFrac))
		return
	}
	sl = entry.Mul(decimal.NewFromInt(1).Add(slFrac))
	tp = entry.Mul(decimal.NewFromInt(1).Sub(tpFrac))
	return
}
