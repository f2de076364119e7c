// Package session implements the trading session lifecycle (spec.md
// §4.8): start/resume, force-new with archival, and end.
package session

import (
	"time"

	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Lifecycle owns the Session record transitions and the archive-once
// bookkeeping shared by the force-new and end paths.
type Lifecycle struct {
	logger         *zap.Logger
	store          *ledger.Store
	agentIDs       []string
	lastArchivedAt time.Time
}

// NewLifecycle builds a session Lifecycle over the given agent ids, used
// both for resets and for report generation.
func NewLifecycle(logger *zap.Logger, store *ledger.Store, agentIDs []string) *Lifecycle {
	return &Lifecycle{logger: logger.Named("session"), store: store, agentIDs: agentIDs}
}

// Start (resume): if a session already exists, mark it active and patch a
// missing starting balance; never touches ledgers. Idempotent, used by
// process restart.
func (l *Lifecycle) Start(initialBalance decimal.Decimal) ledger.Session {
	sess := l.store.LoadSession()
	if sess.ID == "" {
		return l.startFresh(initialBalance)
	}

	if sess.Status != ledger.SessionActive {
		sess.Status = ledger.SessionActive
	}
	if sess.BalanceStart.IsZero() && initialBalance.IsPositive() {
		sess.BalanceStart = initialBalance
	}
	if err := l.store.SaveSession(sess); err != nil {
		l.logger.Warn("failed to save resumed session", zap.Error(err))
	}
	return sess
}

// StartForceNew archives the prior session (if it recorded any activity
// since the last archive) then resets all ledger state and creates a
// fresh session record.
func (l *Lifecycle) StartForceNew(initialBalance decimal.Decimal) ledger.Session {
	l.archiveIfDue()

	if err := l.store.ResetSessionState(l.agentIDs); err != nil {
		l.logger.Warn("failed to reset session state", zap.Error(err))
	}

	return l.startFresh(initialBalance)
}

func (l *Lifecycle) startFresh(initialBalance decimal.Decimal) ledger.Session {
	sess := ledger.Session{
		ID:           uuid.NewString(),
		StartTime:    time.Now(),
		BalanceStart: initialBalance,
		Status:       ledger.SessionActive,
	}
	if err := l.store.SaveSession(sess); err != nil {
		l.logger.Warn("failed to save new session", zap.Error(err))
	}
	l.logger.Info("session started", zap.String("id", sess.ID))
	return sess
}

// End archives the session, then marks it stopped. Does not itself stop
// the trading loop; that is a separate toggle so reconnect "resumes"
// (spec.md §4.8).
func (l *Lifecycle) End() ledger.Session {
	l.archiveIfDue()

	sess := l.store.LoadSession()
	sess.Status = ledger.SessionStopped
	if err := l.store.SaveSession(sess); err != nil {
		l.logger.Warn("failed to save stopped session", zap.Error(err))
	}
	return sess
}

// archiveIfDue writes a report once per session boundary event. Both
// StartForceNew and End can trigger archival for the same still-active
// session; whichever fires first wins and the second becomes a no-op,
// since there is nothing new to report immediately after (decided Open
// Question: archive once, on whichever event fires first).
func (l *Lifecycle) archiveIfDue() {
	sess := l.store.LoadSession()
	if sess.ID == "" || sess.Status != ledger.SessionActive {
		return
	}
	if !l.hasActivitySince() {
		return
	}

	path, err := l.writeReport(sess)
	if err != nil {
		l.logger.Warn("failed to archive session", zap.Error(err))
		return
	}
	l.lastArchivedAt = time.Now()
	l.logger.Info("session archived", zap.String("file", path))
}

// hasActivitySince reports whether the prior session recorded any closed
// trade, decision, or ticket (spec.md §4.8's archival trigger).
func (l *Lifecycle) hasActivitySince() bool {
	if len(l.store.RecentDecisions(1)) > 0 {
		return true
	}
	if len(l.store.LoadTickets()) > 0 {
		return true
	}
	for _, id := range l.agentIDs {
		if len(l.store.LoadClosedTrades(id)) > 0 {
			return true
		}
	}
	return false
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
