// Package ledger implements the whole-file JSON ledger described in
// spec.md §4.2: per-file locked, read-modify-write, callers assume no
// concurrent writers outside this process.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of the session record.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionStopped SessionStatus = "stopped"
)

// Session is the single active session record.
type Session struct {
	ID            string        `json:"id"`
	StartTime     time.Time     `json:"start_time"`
	BalanceStart  decimal.Decimal `json:"balance_start"`
	Status        SessionStatus `json:"status"`
}

// TicketStatus is the lifecycle state of a Ticket.
type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// Ticket links an opened order to its eventual closing deal.
type Ticket struct {
	Ticket   int64        `json:"ticket"`
	AgentID  string       `json:"agent_id"`
	Symbol   string       `json:"symbol"`
	Direction string      `json:"direction"`
	OpenedAt time.Time    `json:"opened_at"`
	Status   TicketStatus `json:"status"`
}

// ClosedTrade is the broker's closing deal record, enriched with the
// owning agent and, if observable, the opening deal's details.
type ClosedTrade struct {
	PositionID int64           `json:"position_id"`
	AgentID    string          `json:"agent_id"`
	Symbol     string          `json:"symbol"`
	Direction  string          `json:"direction"`
	OpenPrice  decimal.Decimal `json:"open_price,omitempty"`
	OpenTime   *time.Time      `json:"open_time,omitempty"`
	ClosePrice decimal.Decimal `json:"close_price"`
	CloseTime  time.Time       `json:"close_time"`
	Profit     decimal.Decimal `json:"profit"`
	Swap       decimal.Decimal `json:"swap"`
	Commission decimal.Decimal `json:"commission"`
	SyncedAt   time.Time       `json:"synced_at"`
}

// OpenPosition is the broker's open-position snapshot, rewritten wholesale
// on every sync.
type OpenPosition struct {
	Ticket       int64           `json:"ticket"`
	Symbol       string          `json:"symbol"`
	Type         string          `json:"type"` // BUY or SELL
	Volume       decimal.Decimal `json:"volume"`
	PriceOpen    decimal.Decimal `json:"price_open"`
	PriceCurrent decimal.Decimal `json:"price_current"`
	SL           decimal.Decimal `json:"sl"`
	TP           decimal.Decimal `json:"tp"`
	Profit       decimal.Decimal `json:"profit"`
	Comment      string          `json:"comment"`
}

// Stats is rederived from an agent's ClosedTrade list on the stats
// cadence.
type Stats struct {
	TotalTrades  int             `json:"total_trades"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      float64         `json:"winrate"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	AvgWin       decimal.Decimal `json:"avg_win"`
	AvgLoss      decimal.Decimal `json:"avg_loss"`
	ProfitFactor float64         `json:"profit_factor"`
	Best         decimal.Decimal `json:"best"`
	Worst        decimal.Decimal `json:"worst"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PerformanceSample is a point-in-time closed/floating P&L snapshot for an
// agent (or "master" for the aggregate), appended on the stats cadence.
type PerformanceSample struct {
	Timestamp  time.Time       `json:"timestamp"`
	ClosedPnL  decimal.Decimal `json:"closed_pnl"`
	FloatingPnL decimal.Decimal `json:"floating_pnl"`
}

// PerformanceRingLimit bounds performance_history.json per key.
const PerformanceRingLimit = 2000

// AdjustmentLogEntry records a single Strategist mutation.
type AdjustmentLogEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agent_id"`
	Type      string          `json:"type"`
	Field     string          `json:"field"`
	OldValue  float64         `json:"old_value"`
	NewValue  float64         `json:"new_value"`
	Reason    string          `json:"reason,omitempty"`
}

// AdjustmentRingLimit bounds adjustments_log.json.
const AdjustmentRingLimit = 100

// Decision is a logged Strategy Agent outcome, including HOLD.
type Decision struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	Action    string    `json:"action"` // BUY, SELL, HOLD
	Reason    string    `json:"reason"`
	Price     decimal.Decimal `json:"price"`
	Executed  bool      `json:"executed"`
}

// DecisionRingLimit bounds decisions/decisions.json.
const DecisionRingLimit = 100
