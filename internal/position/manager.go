package position

import (
	"fmt"
	"strings"

	"github.com/atlas-desktop/g13trader/internal/broker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Manager applies the SL rules to every open position an agent owns. It
// must be invoked with the Broker Gate already held; it emits SL edits
// through the broker adapter and logs each transition.
type Manager struct {
	logger *zap.Logger
}

// NewManager creates a position Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger.Named("position_manager")}
}

// OwnerTag is the comment prefix stamped on every order this system opens
// (spec.md §4.6: comment "G13_<agent>"), used to recognize ownership.
func OwnerTag(agentID string) string {
	return "G13_" + agentID
}

// Owns reports whether a broker position's comment marks it as belonging
// to agentID.
func Owns(comment, agentID string) bool {
	return strings.HasPrefix(comment, OwnerTag(agentID))
}

func dirOf(t broker.PositionType) Direction {
	if t == broker.PositionSell {
		return Sell
	}
	return Buy
}

// Run evaluates every position owned by agentID and, where the computed
// SL is favorable, sends an SLTP edit.
func (m *Manager) Run(adapter broker.Adapter, agentID string, positions []broker.Position, tpsl TPSLConfig, winnerNeverLoser bool) error {
	for _, p := range positions {
		if !Owns(p.Comment, agentID) {
			continue
		}
		dir := dirOf(p.Type)
		cand, ok := Evaluate(p.PriceOpen, p.PriceCurrent, p.SL, dir, tpsl, winnerNeverLoser)
		if !ok {
			continue
		}

		result, err := adapter.OrderSend(broker.OrderRequest{
			Action:     broker.ActionSLTP,
			Symbol:     p.Symbol,
			Position:   p.Ticket,
			SL:         cand.SL,
			TP:         p.TP,
			TypeTime:   broker.TypeTimeGTC,
			TypeFillin: broker.TypeFillingIOC,
		})
		if err != nil {
			m.logger.Warn("sl edit failed", zap.Int64("ticket", p.Ticket), zap.Error(err))
			continue
		}
		if result.RetCode != broker.RetCodeDone {
			m.logger.Warn("sl edit rejected", zap.Int64("ticket", p.Ticket), zap.Int("retcode", result.RetCode))
			continue
		}

		m.logger.Info("sl adjusted",
			zap.String("agent", agentID),
			zap.Int64("ticket", p.Ticket),
			zap.String("rule", cand.Rule),
			zap.String("old_sl", p.SL.String()),
			zap.String("new_sl", cand.SL.String()))
	}
	return nil
}

// RewriteLiveTPSL is the Strategist's live-position rewrite (spec.md
// §4.7): recompute SL/TP from new percentages and the stored entry price,
// but never let the new SL retreat from whichever the position manager
// already advanced it to — in that case only TP is rewritten.
func (m *Manager) RewriteLiveTPSL(adapter broker.Adapter, agentID string, positions []broker.Position, tpPct, slPct float64) error {
	for _, p := range positions {
		if !Owns(p.Comment, agentID) {
			continue
		}
		dir := dirOf(p.Type)
		newSL, newTP := computeTPSL(p.PriceOpen, dir, tpPct, slPct)

		sl := p.SL
		if Favorable(p.SL, newSL, dir) {
			sl = newSL
		}

		if sl.Equal(p.SL) && newTP.Equal(p.TP) {
			continue
		}

		result, err := adapter.OrderSend(broker.OrderRequest{
			Action:     broker.ActionSLTP,
			Symbol:     p.Symbol,
			Position:   p.Ticket,
			SL:         sl,
			TP:         newTP,
			TypeTime:   broker.TypeTimeGTC,
			TypeFillin: broker.TypeFillingIOC,
		})
		if err != nil {
			return fmt.Errorf("rewrite tpsl for ticket %d: %w", p.Ticket, err)
		}
		if result.RetCode != broker.RetCodeDone {
			m.logger.Warn("live tpsl rewrite rejected", zap.Int64("ticket", p.Ticket), zap.Int("retcode", result.RetCode))
			continue
		}
		m.logger.Info("live tpsl rewritten",
			zap.String("agent", agentID), zap.Int64("ticket", p.Ticket),
			zap.String("sl", sl.String()), zap.String("tp", newTP.String()))
	}
	return nil
}

// computeTPSL mirrors Strategy Agent's ShouldOpenTrade SL/TP formula
// (spec.md §4.5): sl = entry*(1 ∓ sl_pct/100), tp = entry*(1 ± tp_pct/100).
func computeTPSL(entry decimal.Decimal, dir Direction, tpPct, slPct float64) (sl, tp decimal.Decimal) {
	slFrac := decimal.NewFromFloat(slPct / 100)
	tpFrac := decimal.NewFromFloat(tpPct / 100)
	one := decimal.NewFromInt(1)
	if dir == Buy {
		return entry.Mul(one.Sub(slFrac)), entry.Mul(one.Add(tpFrac))
	}
	return entry.Mul(one.Add(slFrac)), entry.Mul(one.Sub(tpFrac))
}
