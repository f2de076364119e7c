package tradingloop

import (
	"time"

	"github.com/atlas-desktop/g13trader/internal/broker"
	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/atlas-desktop/g13trader/internal/position"
	"go.uber.org/zap"
)

// syncPositions rewrites the agent's open-position ledger wholesale from
// the broker's current snapshot (spec.md §4.6 step 3, §5: idempotent).
func syncPositions(logger *zap.Logger, store *ledger.Store, agentID string, positions []broker.Position) []broker.Position {
	owned := ownedBy(agentID, positions)

	records := make([]ledger.OpenPosition, 0, len(owned))
	for _, p := range owned {
		records = append(records, ledger.OpenPosition{
			Ticket:       p.Ticket,
			Symbol:       p.Symbol,
			Type:         directionOf(p.Type),
			Volume:       p.Volume,
			PriceOpen:    p.PriceOpen,
			PriceCurrent: p.PriceCurrent,
			SL:           p.SL,
			TP:           p.TP,
			Profit:       p.Profit,
			Comment:      p.Comment,
		})
	}
	if err := store.RewriteOpenPositions(agentID, records); err != nil {
		logger.Warn("failed to sync open positions", zap.String("agent", agentID), zap.Error(err))
	}
	return owned
}

func ownedBy(agentID string, positions []broker.Position) []broker.Position {
	var out []broker.Position
	for _, p := range positions {
		if position.Owns(p.Comment, agentID) {
			out = append(out, p)
		}
	}
	return out
}

func directionOf(t broker.PositionType) string {
	if t == broker.PositionSell {
		return "SELL"
	}
	return "BUY"
}

// syncClosedTrades is ticket-based, never date-range (spec.md §4.6): for
// every ticket recorded this session, ask the broker for the deals tied
// to that position id and consider it closed iff an OUT-entry deal
// exists.
func syncClosedTrades(logger *zap.Logger, store *ledger.Store, adapter broker.Adapter, agentID string) {
	for _, t := range store.LoadTickets() {
		if t.AgentID != agentID || t.Status == ledger.TicketClosed {
			continue
		}

		deals, err := adapter.HistoryDealsGet(t.Ticket)
		if err != nil {
			continue
		}

		var closing *broker.Deal
		var opening *broker.Deal
		for i := range deals {
			d := &deals[i]
			if d.Entry == broker.EntryOut {
				closing = d
			}
			if d.Entry == broker.EntryIn {
				opening = d
			}
		}
		if closing == nil {
			continue
		}

		trade := ledger.ClosedTrade{
			PositionID: t.Ticket,
			AgentID:    agentID,
			Symbol:     t.Symbol,
			Direction:  t.Direction,
			ClosePrice: closing.Price,
			CloseTime:  closing.Time,
			Profit:     closing.Profit,
			Swap:       closing.Swap,
			Commission: closing.Commission,
			SyncedAt:   time.Now(),
		}
		if opening != nil {
			trade.OpenPrice = opening.Price
			openTime := opening.Time
			trade.OpenTime = &openTime
		}

		if err := store.AppendClosedTrade(agentID, trade); err != nil {
			logger.Warn("failed to append closed trade", zap.Int64("ticket", t.Ticket), zap.Error(err))
			continue
		}
		if err := store.MarkClosed(t.Ticket); err != nil {
			logger.Warn("failed to mark ticket closed", zap.Int64("ticket", t.Ticket), zap.Error(err))
		}
	}
}
