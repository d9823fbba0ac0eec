package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// Console implementa ports.Notifier escribiendo en un io.Writer.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
// table=false imprime una línea por run; table=true añade el detalle por posición.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyDiscovery imprime el resultado de un run de discovery.
func (c *Console) NotifyDiscovery(_ context.Context, s domain.DiscoverySummary) error {
	ts := s.CompletedAt.Format("15:04:05")
	if s.HaltReason != "" {
		fmt.Fprintf(c.out, "[%s][%s] discovery halted: %s | bal $%.2f\n",
			ts, strings.ToUpper(string(s.Mode)), s.HaltReason, s.BalanceAfter)
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][%s] discovery %d mkts → %d pass → %d sugg | +%d pos $%.2f | bal $%.2f",
		ts, strings.ToUpper(string(s.Mode)),
		s.MarketsFetched, s.MarketsPassed, s.Suggestions,
		len(s.Opened), s.TotalStaked, s.BalanceAfter)
	if len(s.Skips) > 0 {
		fmt.Fprintf(&sb, " | skip %s", skipCounts(s.Skips))
	}
	writeErrors(&sb, s.Errors)
	fmt.Fprintln(c.out, sb.String())

	if c.table && len(s.Opened) > 0 {
		c.PrintPositions(s.Opened)
	}
	return nil
}

// NotifyMonitor imprime el resultado de un run del monitor.
func (c *Console) NotifyMonitor(_ context.Context, s domain.MonitorSummary) error {
	ts := s.CompletedAt.Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][%s] monitor %d pos | hold %d | closed %d",
		ts, strings.ToUpper(string(s.Mode)), s.Checked, s.Held, len(s.Closed))
	if len(s.Closed) > 0 {
		fmt.Fprintf(&sb, " (SL:%d TP:%d) pnl %s",
			s.ClosedByReason[domain.CloseStopLoss],
			s.ClosedByReason[domain.CloseTakeProfit],
			signed(s.RealizedPnL))
	}
	if len(s.Skips) > 0 {
		fmt.Fprintf(&sb, " | skip %s", skipCounts(s.Skips))
	}
	writeErrors(&sb, s.Errors)
	fmt.Fprintln(c.out, sb.String())

	if c.table && len(s.Closed) > 0 {
		c.PrintPositions(s.Closed)
	}
	return nil
}

// PrintPositions imprime una tabla de posiciones, abiertas o cerradas.
func (c *Console) PrintPositions(positions []domain.Position) {
	if len(positions) == 0 {
		fmt.Fprintln(c.out, "  No positions.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Market", "Side", "Entry", "Stake", "Status", "Exit", "Proceeds", "PnL", "Opened")
	for _, p := range positions {
		exit, proceeds, pnl := "-", "-", "-"
		status := string(p.Status)
		if !p.IsOpen() {
			exit = fmt.Sprintf("%.3f", p.ExitPrice)
			proceeds = fmt.Sprintf("$%.2f", p.Proceeds)
			pnl = signed(p.RealizedPnL())
			status = string(p.CloseReason)
		}
		table.Append(
			shortID(p.ID),
			domain.TruncateQuestion(p.Question, p.MarketID, 40),
			p.Outcome,
			fmt.Sprintf("%.3f", p.EntryPrice),
			fmt.Sprintf("$%.2f", p.Stake),
			status,
			exit,
			proceeds,
			pnl,
			p.OpenedAt.Format("01-02 15:04"),
		)
	}
	table.Render()
}

// PrintReport imprime el estado del ledger de un modo.
func (c *Console) PrintReport(snap domain.LedgerSnapshot, open []domain.Position) {
	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  LEDGER REPORT [%s]\n", strings.ToUpper(string(snap.Mode)))
	fmt.Fprintf(c.out, "========================================================\n\n")

	fmt.Fprintf(c.out, "  Initial balance:   $%.2f\n", snap.InitialBalance)
	fmt.Fprintf(c.out, "  Balance:           $%.2f\n", snap.Balance)
	fmt.Fprintf(c.out, "  Open positions:    %d ($%.2f staked)\n", snap.OpenPositions, snap.OpenStake)
	fmt.Fprintf(c.out, "  Closed positions:  %d\n", snap.ClosedPositions)
	fmt.Fprintf(c.out, "  Realized PnL:      %s\n", signed(snap.RealizedPnL))
	if snap.InitialBalance > 0 {
		fmt.Fprintf(c.out, "  Return:            %.2f%%\n", snap.RealizedPnL/snap.InitialBalance*100)
	}
	if d := snap.Drift(); d > 1e-6 || d < -1e-6 {
		fmt.Fprintf(c.out, "  !! ledger drift:   %.6f\n", d)
	}
	fmt.Fprintln(c.out)

	if len(open) > 0 {
		c.PrintPositions(open)
		fmt.Fprintln(c.out)
	}
}

// PrintWorkflows imprime el flag y la última ejecución de cada workflow.
func (c *Console) PrintWorkflows(states []domain.WorkflowState) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Workflow", "Mode", "Enabled", "Runs", "Last run", "Last error")
	for _, st := range states {
		last := "-"
		if st.LastRun != nil {
			last = st.LastRun.Format(time.DateTime)
		}
		table.Append(
			string(st.Workflow),
			string(st.Mode),
			fmt.Sprintf("%t", st.Enabled),
			fmt.Sprintf("%d", st.RunCount),
			last,
			truncate(st.LastError, 40),
		)
	}
	table.Render()
}

// --- helpers ---

func skipCounts(skips []domain.Skip) string {
	counts := make(map[domain.SkipReason]int)
	for _, s := range skips {
		counts[s.Reason]++
	}
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("%s:%d", r, counts[domain.SkipReason(r)]))
	}
	return strings.Join(parts, " ")
}

func writeErrors(sb *strings.Builder, errs []string) {
	for i, e := range errs {
		if i >= 2 {
			fmt.Fprintf(sb, "\n  !! +%d more errors", len(errs)-i)
			break
		}
		fmt.Fprintf(sb, "\n  !! %s", e)
	}
}

func signed(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
