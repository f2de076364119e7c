// Package broker serializes access to the single-session broker terminal
// and defines the abstract gateway contract every strategy agent talks to.
package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reason is a typed, non-fatal Acquire failure.
type Reason string

const (
	ReasonLockTimeout   Reason = "lock_timeout"
	ReasonAgentDisabled Reason = "agent_disabled"
	ReasonAgentUnknown  Reason = "agent_unknown"
	ReasonInitFailed    Reason = "init_failed"
	ReasonLoginMismatch Reason = "login_mismatch"
	ReasonNoAccountInfo Reason = "no_account_info"
)

// Failure is returned by Acquire when the gate could not be obtained on
// behalf of an agent. It is never fatal: the caller skips the agent this
// tick and retries next tick.
type Failure struct {
	Reason  Reason
	Agent   string
	Message string
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return string(f.Reason) + ": " + f.Message
	}
	return string(f.Reason)
}

// AccountInfo mirrors the broker's account snapshot.
type AccountInfo struct {
	Login      int64
	Balance    decimal.Decimal
	Equity     decimal.Decimal
	Margin     decimal.Decimal
	MarginFree decimal.Decimal
}

// SymbolInfo mirrors the broker's per-symbol trading specification.
type SymbolInfo struct {
	Symbol            string
	TickSize          decimal.Decimal
	TickValue         decimal.Decimal
	VolumeMin         decimal.Decimal
	VolumeMax         decimal.Decimal
	VolumeStep        decimal.Decimal
	Digits            int32
	ContractSize      decimal.Decimal
	Point             decimal.Decimal
	TradeContractSize decimal.Decimal
	TradeTickValue    decimal.Decimal
	Visible           bool
}

// Tick is a single bid/ask quote.
type Tick struct {
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Time time.Time
}

// Timeframe is a broker candle timeframe.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// Rate is one OHLC bar returned by CopyRatesFromPos.
type Rate struct {
	Time       time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	TickVolume int64
}

// PositionType mirrors the broker's BUY=0/SELL=1 position type.
type PositionType int

const (
	PositionBuy  PositionType = 0
	PositionSell PositionType = 1
)

// Position is an open position snapshot.
type Position struct {
	Ticket       int64
	Symbol       string
	Type         PositionType
	Volume       decimal.Decimal
	PriceOpen    decimal.Decimal
	PriceCurrent decimal.Decimal
	SL           decimal.Decimal
	TP           decimal.Decimal
	Profit       decimal.Decimal
	Comment      string
	Magic        int64
	OpenTime     time.Time
}

// DealEntry is the entry semantics of a historical deal.
type DealEntry int

const (
	EntryIn  DealEntry = 0
	EntryOut DealEntry = 1
)

// Deal is a single historical deal tied to a position id.
type Deal struct {
	Ticket     int64
	PositionID int64
	Symbol     string
	Entry      DealEntry
	Type       PositionType
	Volume     decimal.Decimal
	Price      decimal.Decimal
	Profit     decimal.Decimal
	Swap       decimal.Decimal
	Commission decimal.Decimal
	Time       time.Time
}

// OrderAction distinguishes a new-position request from an SL/TP edit.
type OrderAction int

const (
	ActionDeal OrderAction = iota
	ActionSLTP
)

// TimeType and FillType mirror the broker's GTC/IOC order flags.
const (
	TypeTimeGTC    = "GTC"
	TypeFillingIOC = "IOC"
)

// OrderRequest is the parameters for OrderSend.
type OrderRequest struct {
	Action     OrderAction
	Symbol     string
	Volume     decimal.Decimal
	Type       PositionType
	Position   int64 // set for SLTP edits and closes
	Price      decimal.Decimal
	SL         decimal.Decimal
	TP         decimal.Decimal
	Deviation  int
	Magic      int64
	Comment    string
	TypeTime   string
	TypeFillin string
}

// OrderResult is the broker's response to OrderSend.
type OrderResult struct {
	RetCode int
	Order   int64
	Price   decimal.Decimal
	Volume  decimal.Decimal
	Comment string
}

// RetCodeDone is the broker's success code for a trade request.
const RetCodeDone = 10009

// Credentials are the per-agent login parameters for Initialize.
type Credentials struct {
	Path     string
	Login    int64
	Password string
	Server   string
	Timeout  time.Duration
}

// Adapter is the abstract broker terminal contract (spec.md §6). Every
// method assumes the caller already holds the Gate; none of them acquire
// or release it.
type Adapter interface {
	Initialize(creds Credentials) error
	Shutdown()
	AccountInfo() (AccountInfo, error)
	SymbolInfo(symbol string) (SymbolInfo, error)
	SymbolSelect(symbol string, visible bool) error
	LastTick(symbol string) (Tick, error)
	CopyRatesFromPos(symbol string, tf Timeframe, start, count int) ([]Rate, error)
	PositionsGet(symbol string) ([]Position, error)
	PositionByTicket(ticket int64) (Position, bool, error)
	HistoryDealsGet(positionID int64) ([]Deal, error)
	OrderSend(req OrderRequest) (OrderResult, error)
}
