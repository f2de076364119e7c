// Package riskguard computes drawdown, daily-loss, and emergency-close
// verdicts from equity vs. per-agent reference balances (spec.md §4.3).
package riskguard

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Verdict is the outcome of a Check call.
type Verdict string

const (
	VerdictOk             Verdict = "ok"
	VerdictBlock          Verdict = "block"
	VerdictEmergencyClose Verdict = "emergency_close"
)

// Config is the global risk configuration (spec.md §3 RiskConfig).
type Config struct {
	MaxDrawdownPct    float64
	MaxDailyLossPct   float64
	EmergencyClosePct float64
	WinnerNeverLoser  bool
}

// Guard tracks, per process, the session-start and day-start reference
// balances per agent and the set of currently-blocked agents. It is the
// single authority for trade-permission verdicts.
type Guard struct {
	logger *zap.Logger
	mu     sync.Mutex

	sessionStart map[string]decimal.Decimal
	dayStart     map[string]decimal.Decimal
	dayStartDate map[string]string // YYYY-MM-DD, for rollover detection
	blocked      map[string]bool
}

// NewGuard creates an empty Guard.
func NewGuard(logger *zap.Logger) *Guard {
	return &Guard{
		logger:       logger.Named("risk_guard"),
		sessionStart: make(map[string]decimal.Decimal),
		dayStart:     make(map[string]decimal.Decimal),
		dayStartDate: make(map[string]string),
		blocked:      make(map[string]bool),
	}
}

// Blocked reports whether an agent is currently in the blocked set.
func (g *Guard) Blocked(agent string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked[agent]
}

// rolloverIfNeeded wipes an agent's day-start reference (and its blocked
// marker) the first time a new calendar day (UTC) is observed.
func (g *Guard) rolloverIfNeeded(agent string, now time.Time) {
	today := now.UTC().Format("2006-01-02")
	if g.dayStartDate[agent] != today {
		g.dayStartDate[agent] = today
		delete(g.dayStart, agent)
		if g.blocked[agent] {
			delete(g.blocked, agent)
			g.logger.Info("risk guard day rollover cleared block", zap.String("agent", agent))
		}
	}
}

// Check computes the verdict for an agent given its current equity,
// seeding the session-start and day-start reference balances on first
// sight.
func (g *Guard) Check(agent string, equity decimal.Decimal, cfg Config, now time.Time) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverIfNeeded(agent, now)

	sessionStart, ok := g.sessionStart[agent]
	if !ok {
		g.sessionStart[agent] = equity
		sessionStart = equity
	}
	dayStart, ok := g.dayStart[agent]
	if !ok {
		g.dayStart[agent] = equity
		dayStart = equity
	}

	if sessionStart.IsPositive() {
		emergencyDD := sessionStart.Sub(equity).Div(sessionStart)
		if emergencyDD.GreaterThanOrEqual(decimal.NewFromFloat(cfg.EmergencyClosePct / 100)) {
			g.blocked[agent] = true
			g.logger.Error("emergency close threshold breached",
				zap.String("agent", agent), zap.String("drawdown", emergencyDD.String()))
			return VerdictEmergencyClose
		}
	}

	drawdownBreach := false
	if sessionStart.IsPositive() {
		dd := sessionStart.Sub(equity).Div(sessionStart)
		drawdownBreach = dd.GreaterThanOrEqual(decimal.NewFromFloat(cfg.MaxDrawdownPct / 100))
	}
	dailyLossBreach := false
	if dayStart.IsPositive() {
		loss := dayStart.Sub(equity).Div(dayStart)
		dailyLossBreach = loss.GreaterThanOrEqual(decimal.NewFromFloat(cfg.MaxDailyLossPct / 100))
	}

	if drawdownBreach || dailyLossBreach {
		wasBlocked := g.blocked[agent]
		g.blocked[agent] = true
		if !wasBlocked {
			g.logger.Warn("agent blocked by risk guard",
				zap.String("agent", agent), zap.Bool("drawdown", drawdownBreach), zap.Bool("daily_loss", dailyLossBreach))
		}
		return VerdictBlock
	}

	if g.blocked[agent] {
		delete(g.blocked, agent)
		g.logger.Info("agent unblocked by risk guard", zap.String("agent", agent))
	}
	return VerdictOk
}

// ResetSession clears the session-start reference for an agent, used when
// a new session record replaces the old one.
func (g *Guard) ResetSession(agent string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessionStart, agent)
	delete(g.dayStart, agent)
	delete(g.dayStartDate, agent)
	delete(g.blocked, agent)
}
