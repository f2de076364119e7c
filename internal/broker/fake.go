package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Fake is an in-memory Adapter used by tests and local development. It has
// no external dependency; the real MT5-style terminal is an external
// collaborator per spec.md §6.
type Fake struct {
	mu sync.Mutex

	initialized bool
	creds       Credentials
	account     AccountInfo

	symbols   map[string]SymbolInfo
	ticks     map[string]Tick
	rates     map[string][]Rate
	positions map[int64]Position
	deals     map[int64][]Deal

	nextTicket int64
	onOrder    func(req OrderRequest) (OrderResult, error)
}

// NewFake creates a Fake adapter seeded with a single account.
func NewFake(account AccountInfo) *Fake {
	return &Fake{
		account:    account,
		symbols:    make(map[string]SymbolInfo),
		ticks:      make(map[string]Tick),
		rates:      make(map[string][]Rate),
		positions:  make(map[int64]Position),
		deals:      make(map[int64][]Deal),
		nextTicket: 1,
	}
}

// SetSymbol seeds symbol trading specs.
func (f *Fake) SetSymbol(symbol string, info SymbolInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols[symbol] = info
}

// SetTick seeds the latest quote for a symbol.
func (f *Fake) SetTick(symbol string, tick Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks[symbol] = tick
}

// SetRates seeds the candle series returned for a symbol.
func (f *Fake) SetRates(symbol string, rates []Rate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rates[symbol] = rates
}

// SetAccount updates the simulated account snapshot (e.g. to move equity).
func (f *Fake) SetAccount(account AccountInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = account
}

// OnOrderSend overrides the default fill-everything OrderSend behavior.
func (f *Fake) OnOrderSend(fn func(req OrderRequest) (OrderResult, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onOrder = fn
}

// CloseOut simulates the broker closing a position with a deal.
func (f *Fake) CloseOut(ticket int64, closePrice, profit, swap, commission decimal.Decimal, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[ticket]
	if !ok {
		return
	}
	f.deals[ticket] = append(f.deals[ticket], Deal{
		Ticket:     f.nextTicket,
		PositionID: ticket,
		Symbol:     pos.Symbol,
		Entry:      EntryOut,
		Type:       pos.Type,
		Volume:     pos.Volume,
		Price:      closePrice,
		Profit:     profit,
		Swap:       swap,
		Commission: commission,
		Time:       at,
	})
	f.nextTicket++
	delete(f.positions, ticket)
}

func (f *Fake) Initialize(creds Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = true
	f.creds = creds
	return nil
}

func (f *Fake) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = false
}

func (f *Fake) AccountInfo() (AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return AccountInfo{}, fmt.Errorf("not initialized")
	}
	return f.account, nil
}

func (f *Fake) SymbolInfo(symbol string) (SymbolInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.symbols[symbol]
	if !ok {
		return SymbolInfo{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return info, nil
}

func (f *Fake) SymbolSelect(symbol string, visible bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.symbols[symbol]
	if !ok {
		return fmt.Errorf("unknown symbol %s", symbol)
	}
	info.Visible = visible
	f.symbols[symbol] = info
	return nil
}

func (f *Fake) LastTick(symbol string) (Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tick, ok := f.ticks[symbol]
	if !ok {
		return Tick{}, fmt.Errorf("no tick for %s", symbol)
	}
	return tick, nil
}

func (f *Fake) CopyRatesFromPos(symbol string, tf Timeframe, start, count int) ([]Rate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rates := f.rates[symbol]
	if start >= len(rates) {
		return nil, nil
	}
	end := start + count
	if end > len(rates) {
		end = len(rates)
	}
	out := make([]Rate, end-start)
	copy(out, rates[start:end])
	return out, nil
}

func (f *Fake) PositionsGet(symbol string) ([]Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Position
	for _, p := range f.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Fake) PositionByTicket(ticket int64) (Position, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[ticket]
	return p, ok, nil
}

func (f *Fake) HistoryDealsGet(positionID int64) ([]Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Deal(nil), f.deals[positionID]...), nil
}

func (f *Fake) OrderSend(req OrderRequest) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onOrder != nil {
		return f.onOrder(req)
	}

	switch req.Action {
	case ActionSLTP:
		pos, ok := f.positions[req.Position]
		if !ok {
			return OrderResult{RetCode: 10013}, fmt.Errorf("position %d not found", req.Position)
		}
		pos.SL = req.SL
		pos.TP = req.TP
		f.positions[req.Position] = pos
		return OrderResult{RetCode: RetCodeDone}, nil
	default:
		ticket := f.nextTicket
		f.nextTicket++
		f.positions[ticket] = Position{
			Ticket:       ticket,
			Symbol:       req.Symbol,
			Type:         req.Type,
			Volume:       req.Volume,
			PriceOpen:    req.Price,
			PriceCurrent: req.Price,
			SL:           req.SL,
			TP:           req.TP,
			Comment:      req.Comment,
			Magic:        req.Magic,
			OpenTime:     time.Now(),
		}
		return OrderResult{RetCode: RetCodeDone, Order: ticket, Price: req.Price, Volume: req.Volume}, nil
	}
}
