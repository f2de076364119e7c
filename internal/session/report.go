package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atlas-desktop/g13trader/internal/ledger"
)

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

const separator = "================================================================================"
const subSeparator = "--------------------------------------------------------------------------------"

// writeReport builds the human-readable session report (spec.md §4.8:
// "session header, per-agent summary, per-agent trade list, session
// tickets, AI decisions, adjustments") and writes it under history/.
func (l *Lifecycle) writeReport(sess ledger.Session) (string, error) {
	now := time.Now()

	statsByAgent := make(map[string]ledger.Stats, len(l.agentIDs))
	tradesByAgent := make(map[string][]ledger.ClosedTrade, len(l.agentIDs))
	totalTrades := 0
	var profitSum float64

	for _, id := range l.agentIDs {
		stats := l.store.LoadStats(id)
		statsByAgent[id] = stats
		totalTrades += stats.TotalTrades
		profitSum += mustFloat(stats.TotalProfit)

		tradesByAgent[id] = l.store.LoadClosedTrades(id)
	}

	decisions := l.store.RecentDecisions(0)
	tickets := l.store.LoadTickets()
	adjustments := l.store.RecentAdjustments(0)

	report := buildReport(reportInput{
		session:       sess,
		now:           now,
		totalProfit:   profitSum,
		totalTrades:   totalTrades,
		statsByAgent:  statsByAgent,
		tradesByAgent: tradesByAgent,
		decisions:     decisions,
		tickets:       tickets,
		adjustments:   adjustments,
		agentIDs:      l.agentIDs,
	})

	filename := fmt.Sprintf("%s_%s$.txt", now.Format("2006-01-02_15h04"), signedAmount(profitSum))
	path := filepath.Join(l.store.RootDir(), "history", filename)

	if err := writeFile(path, report); err != nil {
		return "", err
	}
	return path, nil
}

type reportInput struct {
	session       ledger.Session
	now           time.Time
	totalProfit   float64
	totalTrades   int
	statsByAgent  map[string]ledger.Stats
	tradesByAgent map[string][]ledger.ClosedTrade
	decisions     []ledger.Decision
	tickets       []ledger.Ticket
	adjustments   []ledger.AdjustmentLogEntry
	agentIDs      []string
}

func buildReport(in reportInput) string {
	var b strings.Builder

	duration := "N/A"
	if !in.session.StartTime.IsZero() {
		d := in.now.Sub(in.session.StartTime)
		duration = fmt.Sprintf("%dh%02dmin", int(d.Hours()), int(d.Minutes())%60)
	}

	balanceStart := mustFloat(in.session.BalanceStart)

	fmt.Fprintln(&b, separator)
	fmt.Fprintln(&b, "  G13 TRADING ORCHESTRATOR - SESSION REPORT")
	fmt.Fprintln(&b, separator)
	fmt.Fprintf(&b, "  Session ID    : %s\n", in.session.ID)
	fmt.Fprintf(&b, "  Start         : %s\n", in.session.StartTime.Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&b, "  End           : %s\n", in.now.Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&b, "  Duration      : %s\n", duration)
	fmt.Fprintf(&b, "  Balance start : %.2f $\n", balanceStart)
	fmt.Fprintf(&b, "  Balance end   : %.2f $\n", balanceStart+in.totalProfit)
	fmt.Fprintf(&b, "  Total P&L     : %s $\n", signedAmount(in.totalProfit))
	fmt.Fprintf(&b, "  Total trades  : %d\n", in.totalTrades)
	fmt.Fprintln(&b, separator)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "  PER-AGENT SUMMARY")
	fmt.Fprintln(&b, subSeparator)
	for _, id := range in.agentIDs {
		s := in.statsByAgent[id]
		fmt.Fprintf(&b, "  %s\n", strings.ToUpper(id))
		fmt.Fprintf(&b, "    Trades : %d  (W:%d / L:%d)\n", s.TotalTrades, s.Wins, s.Losses)
		fmt.Fprintf(&b, "    Winrate: %.1f%%\n", s.WinRate)
		fmt.Fprintf(&b, "    P&L    : %s $\n", signedAmount(mustFloat(s.TotalProfit)))
		fmt.Fprintf(&b, "    AvgWin : %s $  |  AvgLoss: %s $  |  PF: %.2f\n",
			signedAmount(mustFloat(s.AvgWin)), signedAmount(mustFloat(s.AvgLoss)), s.ProfitFactor)
		fmt.Fprintln(&b)
	}
	fmt.Fprintln(&b, subSeparator)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "  TRADE DETAIL")
	fmt.Fprintln(&b, subSeparator)
	anyTrade := false
	for _, id := range in.agentIDs {
		trades := in.tradesByAgent[id]
		if len(trades) == 0 {
			continue
		}
		anyTrade = true
		fmt.Fprintf(&b, "  --- %s (%d trades) ---\n", strings.ToUpper(id), len(trades))
		for _, t := range trades {
			result := "BE"
			profit := mustFloat(t.Profit)
			if profit > 0 {
				result = "WIN"
			} else if profit < 0 {
				result = "LOSS"
			}
			fmt.Fprintf(&b, "    #%d  %s  %s  open: %.5f\n", t.PositionID, t.Symbol, t.Direction, mustFloat(t.OpenPrice))
			fmt.Fprintf(&b, "      Close: %.5f @ %s\n", mustFloat(t.ClosePrice), t.CloseTime.Format("02/01/2006 15:04:05"))
			fmt.Fprintf(&b, "      Profit: %s $ (swap: %.2f, comm: %.2f) [%s]\n",
				signedAmount(profit), mustFloat(t.Swap), mustFloat(t.Commission), result)
			fmt.Fprintln(&b)
		}
	}
	if !anyTrade {
		fmt.Fprintln(&b, "  No trades during this session.")
		fmt.Fprintln(&b)
	}
	fmt.Fprintln(&b, subSeparator)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "  SESSION TICKETS")
	fmt.Fprintln(&b, subSeparator)
	if len(in.tickets) == 0 {
		fmt.Fprintln(&b, "  No tickets recorded.")
	}
	for _, t := range in.tickets {
		fmt.Fprintf(&b, "    #%d  %s  %s  %s  [%s]  opened: %s\n",
			t.Ticket, t.AgentID, t.Direction, t.Symbol, t.Status, t.OpenedAt.Format("02/01/2006 15:04:05"))
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, subSeparator)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "  AI DECISIONS")
	fmt.Fprintln(&b, subSeparator)
	if len(in.decisions) == 0 {
		fmt.Fprintln(&b, "  No decisions recorded.")
	}
	for _, d := range in.decisions {
		executed := "not executed"
		if d.Executed {
			executed = "executed"
		}
		reason := d.Reason
		if len(reason) > 120 {
			reason = reason[:120]
		}
		fmt.Fprintf(&b, "    [%s] %s -> %s @ %.5f  (%s)\n",
			d.Timestamp.Format("02/01/2006 15:04:05"), d.AgentID, d.Action, mustFloat(d.Price), executed)
		fmt.Fprintf(&b, "      Reason: %s\n", reason)
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, subSeparator)
	fmt.Fprintln(&b)

	if len(in.adjustments) > 0 {
		fmt.Fprintln(&b, "  STRATEGIST ADJUSTMENTS")
		fmt.Fprintln(&b, subSeparator)
		for _, a := range in.adjustments {
			fmt.Fprintf(&b, "    [%s] %s %s: %s %.4f -> %.4f\n",
				a.Timestamp.Format("02/01/2006 15:04:05"), a.AgentID, a.Type, a.Field, a.OldValue, a.NewValue)
		}
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, subSeparator)
		fmt.Fprintln(&b)
	}

	fmt.Fprintln(&b, separator)
	fmt.Fprintln(&b, "  END OF REPORT")
	fmt.Fprintln(&b, separator)

	return b.String()
}

func signedAmount(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.2f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
