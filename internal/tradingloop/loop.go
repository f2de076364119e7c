// Package tradingloop is the scheduler: a single background worker that
// walks the configured agents in declared order every tick, running each
// agent's five-phase cycle to completion before moving to the next
// (spec.md §4.6).
package tradingloop

import (
	"context"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/atlas-desktop/g13trader/internal/agent"
	"github.com/atlas-desktop/g13trader/internal/broker"
	"github.com/atlas-desktop/g13trader/internal/decider"
	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/atlas-desktop/g13trader/internal/market"
	"github.com/atlas-desktop/g13trader/internal/opsapi"
	"github.com/atlas-desktop/g13trader/internal/position"
	"github.com/atlas-desktop/g13trader/internal/riskguard"
	"github.com/atlas-desktop/g13trader/internal/strategist"
	"github.com/atlas-desktop/g13trader/pkg/types"
	"github.com/atlas-desktop/g13trader/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tick and cadence periods (spec.md §4.6).
const (
	TickPeriod        = 10 * time.Second
	StatsCadence      = 60 * time.Second
	StrategistCadence = 300 * time.Second
)

// Runtime bundles one agent's decision engine with its broker identity and
// risk parameters.
type Runtime struct {
	ID            string
	Agent         *agent.StrategyAgent
	Config        agent.Config
	Credentials   broker.Credentials
	ExpectedLogin int64
	RiskConfig    riskguard.Config
	WinnerNeverLoser bool
	Detector      decider.InstitutionalDetector
	Enrichers     []decider.Enricher
}

// Loop is the trading scheduler.
type Loop struct {
	logger     *zap.Logger
	store      *ledger.Store
	gate       *broker.Gate
	guard      *riskguard.Guard
	posManager *position.Manager
	strategist *strategist.Runner

	runtimes []*Runtime

	lastStats      time.Time
	lastStrategist time.Time

	tickPeriod        time.Duration
	statsCadence      time.Duration
	strategistCadence time.Duration

	running atomic.Bool
	metrics *opsapi.Metrics
}

// SetMetrics wires Prometheus instrumentation into the loop. Optional;
// a nil metrics set (the default) skips all recording.
func (l *Loop) SetMetrics(m *opsapi.Metrics) {
	l.metrics = m
}

// SetCadences overrides the tick/stats/strategist periods from process
// config (spec.md §A's ambient knobs). Zero values leave the corresponding
// default untouched, so a caller can override just one cadence.
func (l *Loop) SetCadences(tickPeriod, statsCadence, strategistCadence time.Duration) {
	if tickPeriod > 0 {
		l.tickPeriod = tickPeriod
	}
	if statsCadence > 0 {
		l.statsCadence = statsCadence
	}
	if strategistCadence > 0 {
		l.strategistCadence = strategistCadence
	}
}

// New builds a Loop over the given agent runtimes, in the order they
// should be processed each tick.
func New(logger *zap.Logger, store *ledger.Store, gate *broker.Gate, guard *riskguard.Guard,
	posManager *position.Manager, strategistRunner *strategist.Runner, runtimes []*Runtime) *Loop {
	return &Loop{
		logger:            logger.Named("trading_loop"),
		store:             store,
		gate:              gate,
		guard:             guard,
		posManager:        posManager,
		strategist:        strategistRunner,
		runtimes:          runtimes,
		tickPeriod:        TickPeriod,
		statsCadence:      StatsCadence,
		strategistCadence: StrategistCadence,
	}
}

// Start runs the scheduler until ctx is cancelled or Stop is called.
// Cancellation is cooperative: the loop checks at each tick boundary, so
// an in-flight tick always finishes and releases the gate before exiting.
func (l *Loop) Start(ctx context.Context) {
	l.running.Store(true)
	ticker := time.NewTicker(l.tickPeriod)
	defer ticker.Stop()

	for {
		if !l.running.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.tick(ctx, now)
		}
	}
}

// Stop requests cooperative shutdown; the current tick finishes first.
func (l *Loop) Stop() {
	l.running.Store(false)
}

func (l *Loop) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.TickDuration.Observe(time.Since(start).Seconds())
		}
		if r := recover(); r != nil {
			l.logger.Error("tick panicked, recovering", zap.Any("panic", r))
		}
	}()

	sess := l.store.LoadSession()
	if sess.Status != ledger.SessionActive {
		return
	}

	for _, rt := range l.runtimes {
		if !rt.Config.Enabled {
			continue
		}
		l.runAgentCycle(ctx, rt, now)
	}

	if now.Sub(l.lastStats) >= l.statsCadence {
		l.runStats()
		l.lastStats = now
	}
	if now.Sub(l.lastStrategist) >= l.strategistCadence {
		l.runStrategistCycle(ctx, now)
		l.lastStrategist = now
	}
}

// runAgentCycle implements the five-phase per-agent cycle (spec.md §4.6).
func (l *Loop) runAgentCycle(ctx context.Context, rt *Runtime, now time.Time) {
	// Phase 1: Connect.
	result, err := l.gate.Acquire(rt.ID, rt.Credentials, rt.ExpectedLogin)
	if l.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		l.metrics.GateAcquisitions.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		l.logger.Warn("broker gate acquire failed, skipping agent this tick", zap.String("agent", rt.ID), zap.Error(err))
		return
	}

	// Phase 2: Ingest + Risk Guard.
	verdict := l.guard.Check(rt.ID, result.Account.Equity, rt.RiskConfig, now)
	canTrade := true

	switch verdict {
	case riskguard.VerdictEmergencyClose:
		l.closeAllOwnedPositions(rt)
		positions, _ := l.gate.Adapter().PositionsGet(rt.Config.Symbol)
		syncPositions(l.logger, l.store, rt.ID, positions)
		syncClosedTrades(l.logger, l.store, l.gate.Adapter(), rt.ID)
		l.gate.Release()
		return
	case riskguard.VerdictBlock:
		canTrade = false
	}

	// Phase 3: Sync + Manage.
	adapter := l.gate.Adapter()
	allPositions, err := adapter.PositionsGet(rt.Config.Symbol)
	if err != nil {
		l.logger.Warn("positions get failed", zap.String("agent", rt.ID), zap.Error(err))
		l.gate.Release()
		return
	}
	owned := syncPositions(l.logger, l.store, rt.ID, allPositions)
	syncClosedTrades(l.logger, l.store, adapter, rt.ID)
	if err := l.posManager.Run(adapter, rt.ID, owned, rt.Config.TPSL.ToPositionConfig(), rt.WinnerNeverLoser); err != nil {
		l.logger.Warn("position manager run failed", zap.String("agent", rt.ID), zap.Error(err))
	}
	rt.Agent.SetOpenPositionCount(len(owned))
	if l.metrics != nil {
		l.metrics.OpenPositions.WithLabelValues(rt.ID).Set(float64(len(owned)))
	}

	// Phase 4: Read market, then release.
	snap, ok := l.readMarketSnapshot(adapter, rt, len(owned))
	l.gate.Release()
	if !ok {
		return
	}

	// Phase 5: Decide + Execute (no broker held).
	if !canTrade || !rt.Agent.CanTrade(now) {
		return
	}
	if rt.Config.KillzoneEnabled {
		window, err := market.ParseWindow(rt.Config.KillzoneStart, rt.Config.KillzoneEnd)
		if err == nil && !market.InWindow(window, now) {
			return
		}
	}

	signal, err := rt.Agent.ShouldOpenTrade(ctx, snap, rt.Detector, rt.Enrichers, now)
	if err != nil {
		l.logger.Warn("decider call failed", zap.String("agent", rt.ID), zap.Error(err))
		return
	}
	if signal == nil {
		return
	}

	l.executeSignal(rt, signal, now)
}

// mainCandleCount matches the swing-detection lookback window in
// internal/market (spec.md §4.4's fibonacci retracement window).
const mainCandleCount = 100

func (l *Loop) readMarketSnapshot(adapter broker.Adapter, rt *Runtime, openCount int) (decider.MarketSnapshot, bool) {
	mainTF := broker.Timeframe(rt.Config.Timeframe)
	mainRates, err := adapter.CopyRatesFromPos(rt.Config.Symbol, mainTF, 0, mainCandleCount)
	if err != nil {
		l.logger.Warn("copy rates failed", zap.String("agent", rt.ID), zap.Error(err))
		return decider.MarketSnapshot{}, false
	}
	m1Rates, _ := adapter.CopyRatesFromPos(rt.Config.Symbol, broker.M1, 0, 60)
	m5Rates, _ := adapter.CopyRatesFromPos(rt.Config.Symbol, broker.M5, 0, 60)
	tick, err := adapter.LastTick(rt.Config.Symbol)
	if err != nil {
		l.logger.Warn("last tick failed", zap.String("agent", rt.ID), zap.Error(err))
		return decider.MarketSnapshot{}, false
	}
	symInfo, err := adapter.SymbolInfo(rt.Config.Symbol)
	if err != nil {
		l.logger.Warn("symbol info failed", zap.String("agent", rt.ID), zap.Error(err))
		return decider.MarketSnapshot{}, false
	}

	spread := tick.Ask.Sub(tick.Bid)
	if symInfo.Point.IsPositive() {
		spread = spread.Div(symInfo.Point)
	}

	return decider.MarketSnapshot{
		Symbol:            rt.Config.Symbol,
		Price:             tick.Ask,
		SpreadPoints:      spread,
		M1Candles:         ratesToCandles(m1Rates),
		M5Candles:         ratesToCandles(m5Rates),
		MainCandles:       ratesToCandles(mainRates),
		OpenPositionCount: openCount,
		MaxPositions:      rt.Config.MaxPositions,
	}, true
}

func ratesToCandles(rates []broker.Rate) []types.Candle {
	out := make([]types.Candle, len(rates))
	for i, r := range rates {
		out[i] = types.Candle{
			Time: r.Time, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, TickVolume: r.TickVolume,
		}
	}
	return out
}

// executeSignal re-acquires the gate, snaps volume to the symbol's step,
// opens the trade, and records the ticket (spec.md §4.6 step 5).
func (l *Loop) executeSignal(rt *Runtime, sig *agent.Signal, now time.Time) {
	result, err := l.gate.Acquire(rt.ID, rt.Credentials, rt.ExpectedLogin)
	if err != nil {
		l.logger.Warn("re-acquire for execution failed", zap.String("agent", rt.ID), zap.Error(err))
		return
	}
	defer l.gate.Release()

	adapter := l.gate.Adapter()
	symInfo, err := adapter.SymbolInfo(rt.Config.Symbol)
	if err != nil {
		l.logger.Warn("symbol info failed before execution", zap.String("agent", rt.ID), zap.Error(err))
		return
	}

	rawVolume := decimal.NewFromFloat(rt.Config.PositionSizePct).
		Mul(result.Account.Equity).Div(sig.Entry)
	volume := utils.RoundToStepSize(rawVolume, symInfo.VolumeStep)
	volume = utils.ClampDecimal(volume, symInfo.VolumeMin, symInfo.VolumeMax)

	posType := broker.PositionBuy
	if sig.Direction == decider.Sell {
		posType = broker.PositionSell
	}

	res, err := adapter.OrderSend(broker.OrderRequest{
		Action:     broker.ActionDeal,
		Symbol:     rt.Config.Symbol,
		Volume:     volume,
		Type:       posType,
		SL:         sig.SL,
		TP:         sig.TP,
		Deviation:  10,
		Magic:      magicFor(rt.ID),
		Comment:    position.OwnerTag(rt.ID),
		TypeTime:   broker.TypeTimeGTC,
		TypeFillin: broker.TypeFillingIOC,
	})
	if err != nil || res.RetCode != broker.RetCodeDone {
		l.logger.Warn("order send failed", zap.String("agent", rt.ID), zap.Int("retcode", res.RetCode), zap.Error(err))
		return
	}

	if err := l.store.SaveTicket(ledger.Ticket{
		Ticket:    res.Order,
		AgentID:   rt.ID,
		Symbol:    rt.Config.Symbol,
		Direction: string(sig.Direction),
		OpenedAt:  now,
		Status:    ledger.TicketOpen,
	}); err != nil {
		l.logger.Warn("failed to record ticket", zap.Error(err))
	}

	rt.Agent.MarkExecuted(now)
	l.logger.Info("trade opened", zap.String("agent", rt.ID), zap.Int64("ticket", res.Order), zap.String("direction", string(sig.Direction)))
}

// closeAllOwnedPositions sends opposing DEAL orders to flatten every
// position this agent owns (spec.md §4.6 EmergencyClose path).
func (l *Loop) closeAllOwnedPositions(rt *Runtime) {
	adapter := l.gate.Adapter()
	positions, err := adapter.PositionsGet(rt.Config.Symbol)
	if err != nil {
		l.logger.Warn("positions get failed during emergency close", zap.String("agent", rt.ID), zap.Error(err))
		return
	}
	for _, p := range ownedBy(rt.ID, positions) {
		closingType := broker.PositionSell
		if p.Type == broker.PositionSell {
			closingType = broker.PositionBuy
		}
		_, err := adapter.OrderSend(broker.OrderRequest{
			Action:     broker.ActionDeal,
			Symbol:     p.Symbol,
			Volume:     p.Volume,
			Type:       closingType,
			Position:   p.Ticket,
			Deviation:  20,
			Magic:      magicFor(rt.ID),
			Comment:    position.OwnerTag(rt.ID) + "_emergency",
			TypeTime:   broker.TypeTimeGTC,
			TypeFillin: broker.TypeFillingIOC,
		})
		if err != nil {
			l.logger.Error("emergency close failed", zap.String("agent", rt.ID), zap.Int64("ticket", p.Ticket), zap.Error(err))
		}
	}
}

func magicFor(agentID string) int64 {
	h := fnv.New32a()
	h.Write([]byte(agentID))
	return int64(h.Sum32() % 1_000_000)
}

func (l *Loop) runStats() {
	now := time.Now()
	masterClosed := decimal.Zero
	masterFloating := decimal.Zero

	for _, rt := range l.runtimes {
		trades := l.store.LoadClosedTrades(rt.ID)
		stats := ledger.CalculateStats(trades)
		if err := l.store.SaveStats(rt.ID, stats); err != nil {
			l.logger.Warn("failed to save stats", zap.String("agent", rt.ID), zap.Error(err))
		}

		floating := decimal.Zero
		for _, p := range l.store.LoadOpenPositions(rt.ID) {
			floating = floating.Add(p.Profit)
		}
		masterClosed = masterClosed.Add(stats.TotalProfit)
		masterFloating = masterFloating.Add(floating)

		if err := l.store.AppendPerformanceSample(rt.ID, ledger.PerformanceSample{
			Timestamp:   now,
			ClosedPnL:   stats.TotalProfit,
			FloatingPnL: floating,
		}); err != nil {
			l.logger.Warn("failed to append performance sample", zap.String("agent", rt.ID), zap.Error(err))
		}
	}

	if err := l.store.AppendPerformanceSample("master", ledger.PerformanceSample{
		Timestamp:   now,
		ClosedPnL:   masterClosed,
		FloatingPnL: masterFloating,
	}); err != nil {
		l.logger.Warn("failed to append master performance sample", zap.Error(err))
	}
}

func (l *Loop) runStrategistCycle(ctx context.Context, now time.Time) {
	if l.strategist == nil {
		return
	}
	for _, rt := range l.runtimes {
		if _, err := l.gate.Acquire(rt.ID, rt.Credentials, rt.ExpectedLogin); err != nil {
			l.logger.Warn("broker gate acquire failed, skipping strategist cycle", zap.String("agent", rt.ID), zap.Error(err))
			continue
		}
		positions := l.store.LoadOpenPositions(rt.ID)
		l.strategist.RunAgent(ctx, l.gate.Adapter(), rt.ID, rt.Config, openPositionsToBroker(positions), now)
		l.gate.Release()

		// Pick up any adjustment the strategist just persisted.
		l.store.LoadAgentConfig(rt.ID, &rt.Config)
		if rt.Agent != nil {
			rt.Agent.Config = rt.Config
		}
	}
}

func openPositionsToBroker(positions []ledger.OpenPosition) []broker.Position {
	out := make([]broker.Position, len(positions))
	for i, p := range positions {
		t := broker.PositionBuy
		if p.Type == "SELL" {
			t = broker.PositionSell
		}
		out[i] = broker.Position{
			Ticket: p.Ticket, Symbol: p.Symbol, Type: t, Volume: p.Volume,
			PriceOpen: p.PriceOpen, PriceCurrent: p.PriceCurrent, SL: p.SL, TP: p.TP,
			Profit: p.Profit, Comment: p.Comment,
		}
	}
	return out
}
