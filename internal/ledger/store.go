package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Store is a thin atomic JSON store rooted at a directory. Each logical
// file is guarded by a dedicated in-process lock; operations are whole-file
// read-modify-write. The design assumes no other process writes the same
// directory concurrently (spec.md §5).
type Store struct {
	logger *zap.Logger
	root   string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates a Store rooted at dir, creating the standard
// subdirectories used by the ledger.
func NewStore(logger *zap.Logger, dir string) (*Store, error) {
	s := &Store{
		logger: logger.Named("ledger"),
		root:   dir,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, sub := range []string{"config", "closed_trades", "open_positions", "stats", "decisions", "history"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir %s: %w", sub, err)
		}
	}
	return s, nil
}

// lockFor returns the dedicated mutex for a relative file path, creating it
// on first use.
func (s *Store) lockFor(rel string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[rel]
	if !ok {
		l = &sync.Mutex{}
		s.locks[rel] = l
	}
	return l
}

func (s *Store) path(rel string) string {
	return filepath.Join(s.root, rel)
}

// readJSON reads and unmarshals rel into v. A missing or malformed file is
// not an error to the caller: v is simply left at its zero value, per the
// ledger's "never raise on missing/malformed" contract.
func (s *Store) readJSON(rel string, v interface{}) {
	data, err := os.ReadFile(s.path(rel))
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("ledger file malformed, treating as empty", zap.String("file", rel), zap.Error(err))
	}
}

func (s *Store) writeJSON(rel string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rel, err)
	}
	full := s.path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// --- Session ---

const sessionFile = "session.json"

// LoadSession returns the current session, or the zero value if none
// exists yet.
func (s *Store) LoadSession() Session {
	l := s.lockFor(sessionFile)
	l.Lock()
	defer l.Unlock()
	var sess Session
	s.readJSON(sessionFile, &sess)
	return sess
}

// SaveSession overwrites the session record.
func (s *Store) SaveSession(sess Session) error {
	l := s.lockFor(sessionFile)
	l.Lock()
	defer l.Unlock()
	return s.writeJSON(sessionFile, sess)
}

// --- Tickets ---

const ticketsFile = "session_tickets.json"

// LoadTickets returns all tickets recorded this session.
func (s *Store) LoadTickets() []Ticket {
	l := s.lockFor(ticketsFile)
	l.Lock()
	defer l.Unlock()
	var tickets []Ticket
	s.readJSON(ticketsFile, &tickets)
	return tickets
}

// SaveTicket appends a newly opened ticket.
func (s *Store) SaveTicket(t Ticket) error {
	l := s.lockFor(ticketsFile)
	l.Lock()
	defer l.Unlock()
	var tickets []Ticket
	s.readJSON(ticketsFile, &tickets)
	tickets = append(tickets, t)
	return s.writeJSON(ticketsFile, tickets)
}

// MarkClosed flips a ticket's status to closed. Idempotent: marking an
// already-closed or unknown ticket is a no-op.
func (s *Store) MarkClosed(ticket int64) error {
	l := s.lockFor(ticketsFile)
	l.Lock()
	defer l.Unlock()
	var tickets []Ticket
	s.readJSON(ticketsFile, &tickets)
	changed := false
	for i := range tickets {
		if tickets[i].Ticket == ticket && tickets[i].Status != TicketClosed {
			tickets[i].Status = TicketClosed
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.writeJSON(ticketsFile, tickets)
}

// ClearTickets empties the session tickets ledger.
func (s *Store) ClearTickets() error {
	l := s.lockFor(ticketsFile)
	l.Lock()
	defer l.Unlock()
	return s.writeJSON(ticketsFile, []Ticket{})
}

// --- Closed trades (per agent) ---

func closedTradesFile(agent string) string {
	return filepath.Join("closed_trades", agent+".json")
}

// LoadClosedTrades returns an agent's closed-trade ledger, sorted by
// close-time descending.
func (s *Store) LoadClosedTrades(agent string) []ClosedTrade {
	rel := closedTradesFile(agent)
	l := s.lockFor(rel)
	l.Lock()
	defer l.Unlock()
	var trades []ClosedTrade
	s.readJSON(rel, &trades)
	return trades
}

// AppendClosedTrade appends a closed trade, deduped by position id. If a
// trade for the same position already exists, it is left untouched
// (idempotent under repeated sync).
func (s *Store) AppendClosedTrade(agent string, trade ClosedTrade) error {
	rel := closedTradesFile(agent)
	l := s.lockFor(rel)
	l.Lock()
	defer l.Unlock()

	var trades []ClosedTrade
	s.readJSON(rel, &trades)
	for _, t := range trades {
		if t.PositionID == trade.PositionID {
			return nil
		}
	}
	trades = append(trades, trade)
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].CloseTime.After(trades[j].CloseTime)
	})
	return s.writeJSON(rel, trades)
}

// --- Open positions (per agent) ---

func openPositionsFile(agent string) string {
	return filepath.Join("open_positions", agent+".json")
}

// RewriteOpenPositions replaces an agent's open-position snapshot wholesale.
func (s *Store) RewriteOpenPositions(agent string, positions []OpenPosition) error {
	rel := openPositionsFile(agent)
	l := s.lockFor(rel)
	l.Lock()
	defer l.Unlock()
	if positions == nil {
		positions = []OpenPosition{}
	}
	return s.writeJSON(rel, positions)
}

// LoadOpenPositions returns an agent's last-synced open positions.
func (s *Store) LoadOpenPositions(agent string) []OpenPosition {
	rel := openPositionsFile(agent)
	l := s.lockFor(rel)
	l.Lock()
	defer l.Unlock()
	var positions []OpenPosition
	s.readJSON(rel, &positions)
	return positions
}

// --- Stats (per agent) ---

func statsFile(agent string) string {
	return filepath.Join("stats", agent+".json")
}

// LoadStats returns an agent's last-computed stats.
func (s *Store) LoadStats(agent string) Stats {
	rel := statsFile(agent)
	l := s.lockFor(rel)
	l.Lock()
	defer l.Unlock()
	var stats Stats
	s.readJSON(rel, &stats)
	return stats
}

// SaveStats overwrites an agent's stats.
func (s *Store) SaveStats(agent string, stats Stats) error {
	rel := statsFile(agent)
	l := s.lockFor(rel)
	l.Lock()
	defer l.Unlock()
	return s.writeJSON(rel, stats)
}

// --- Performance history ---

const performanceFile = "performance_history.json"

// AppendPerformanceSample appends a sample under key (an agent id or
// "master"), trimming the ring to PerformanceRingLimit.
func (s *Store) AppendPerformanceSample(key string, sample PerformanceSample) error {
	l := s.lockFor(performanceFile)
	l.Lock()
	defer l.Unlock()

	history := make(map[string][]PerformanceSample)
	s.readJSON(performanceFile, &history)
	series := append(history[key], sample)
	if len(series) > PerformanceRingLimit {
		series = series[len(series)-PerformanceRingLimit:]
	}
	history[key] = series
	return s.writeJSON(performanceFile, history)
}

// --- Adjustments log ---

const adjustmentsFile = "adjustments_log.json"

// AppendAdjustment prepends an adjustment entry, trimming the ring to
// AdjustmentRingLimit.
func (s *Store) AppendAdjustment(entry AdjustmentLogEntry) error {
	l := s.lockFor(adjustmentsFile)
	l.Lock()
	defer l.Unlock()

	var entries []AdjustmentLogEntry
	s.readJSON(adjustmentsFile, &entries)
	entries = append([]AdjustmentLogEntry{entry}, entries...)
	if len(entries) > AdjustmentRingLimit {
		entries = entries[:AdjustmentRingLimit]
	}
	return s.writeJSON(adjustmentsFile, entries)
}

// RecentAdjustments returns up to limit most-recent adjustment entries.
func (s *Store) RecentAdjustments(limit int) []AdjustmentLogEntry {
	l := s.lockFor(adjustmentsFile)
	l.Lock()
	defer l.Unlock()

	var entries []AdjustmentLogEntry
	s.readJSON(adjustmentsFile, &entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// --- Decisions ---

const decisionsFile = "decisions/decisions.json"

// LogDecision prepends a Strategy Agent decision, trimming to
// DecisionRingLimit. Always called, including for HOLD, per spec.md §4.5.
func (s *Store) LogDecision(d Decision) error {
	l := s.lockFor(decisionsFile)
	l.Lock()
	defer l.Unlock()

	var decisions []Decision
	s.readJSON(decisionsFile, &decisions)
	decisions = append([]Decision{d}, decisions...)
	if len(decisions) > DecisionRingLimit {
		decisions = decisions[:DecisionRingLimit]
	}
	return s.writeJSON(decisionsFile, decisions)
}

// RecentDecisions returns up to limit most-recent decisions.
func (s *Store) RecentDecisions(limit int) []Decision {
	l := s.lockFor(decisionsFile)
	l.Lock()
	defer l.Unlock()

	var decisions []Decision
	s.readJSON(decisionsFile, &decisions)
	if limit > 0 && len(decisions) > limit {
		decisions = decisions[:limit]
	}
	return decisions
}

// RootDir returns the ledger's root directory, for the session archiver
// and config loader.
func (s *Store) RootDir() string {
	return s.root
}

// ResetSessionState clears closed_trades, stats, open_positions,
// decisions, session_tickets and performance_history for every known
// agent, preserving config/ and history/ (spec.md §4.8).
func (s *Store) ResetSessionState(agents []string) error {
	for _, agent := range agents {
		if err := s.writeJSON(closedTradesFile(agent), []ClosedTrade{}); err != nil {
			return err
		}
		if err := s.writeJSON(statsFile(agent), Stats{}); err != nil {
			return err
		}
		if err := s.writeJSON(openPositionsFile(agent), []OpenPosition{}); err != nil {
			return err
		}
	}
	if err := s.ClearTickets(); err != nil {
		return err
	}
	l := s.lockFor(decisionsFile)
	l.Lock()
	if err := s.writeJSON(decisionsFile, []Decision{}); err != nil {
		l.Unlock()
		return err
	}
	l.Unlock()

	pl := s.lockFor(performanceFile)
	pl.Lock()
	defer pl.Unlock()
	return s.writeJSON(performanceFile, map[string][]PerformanceSample{})
}

// --- Agent config ---
//
// Agent configuration is a domain type owned by internal/agent, not the
// ledger; it is stored and loaded as raw JSON to avoid an import cycle
// (internal/agent already depends on internal/ledger for decision
// logging).

const agentConfigFile = "config/agents.json"

// LoadAgentConfig unmarshals the named agent's config section from
// config/agents.json into out. A missing agent or file leaves out
// untouched, mirroring the rest of the ledger's "zero value on absence"
// contract.
func (s *Store) LoadAgentConfig(agentID string, out interface{}) {
	l := s.lockFor(agentConfigFile)
	l.Lock()
	defer l.Unlock()

	var all map[string]json.RawMessage
	s.readJSON(agentConfigFile, &all)
	raw, ok := all[agentID]
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn("agent config malformed", zap.String("agent", agentID), zap.Error(err))
	}
}

// SaveAgentConfig writes back the named agent's config section, leaving
// every other agent's section untouched.
func (s *Store) SaveAgentConfig(agentID string, cfg interface{}) error {
	l := s.lockFor(agentConfigFile)
	l.Lock()
	defer l.Unlock()

	var all map[string]json.RawMessage
	s.readJSON(agentConfigFile, &all)
	if all == nil {
		all = make(map[string]json.RawMessage)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal agent config for %s: %w", agentID, err)
	}
	all[agentID] = data
	return s.writeJSON(agentConfigFile, all)
}

// LoadAllAgentIDs returns every agent id present in config/agents.json.
func (s *Store) LoadAllAgentIDs() []string {
	l := s.lockFor(agentConfigFile)
	l.Lock()
	defer l.Unlock()

	var all map[string]json.RawMessage
	s.readJSON(agentConfigFile, &all)
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	return ids
}
