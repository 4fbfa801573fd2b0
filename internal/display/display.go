// Package display renders run outcomes and history for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dyike/PolyCortex/internal/execution"
	"github.com/dyike/PolyCortex/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(0, 2).
			Width(80)

	abortBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("#EF4444"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	buyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	sellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	holdStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)
)

const wrapWidth = 74

// Result prints the outcome of one run.
func Result(w io.Writer, runID string, out *models.OutputState, receipt *execution.Receipt) {
	if out == nil {
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("PolyCortex run %s  market %s", shortID(runID), out.MarketID)))

	var b strings.Builder
	if out.Aborted {
		fmt.Fprintf(&b, "%s in %s phase\n", sellStyle.Render("ABORTED"), out.Phase)
		b.WriteString(wrap(out.AbortReason, ""))
		fmt.Fprintln(w, abortBoxStyle.Render(strings.TrimRight(b.String(), "\n")))
	} else {
		fmt.Fprintf(&b, "Decision: %s  confidence %.2f\n", SideLabel(out.TradeDecision), out.Confidence)
		if t := out.TradeInfo; t != nil {
			fmt.Fprintf(&b, "Token:    %s\n", t.TokenID)
			fmt.Fprintf(&b, "Size:     %.2f", t.SizeValue())
			if t.Price > 0 {
				fmt.Fprintf(&b, " @ %.4f", t.Price)
			}
			b.WriteString("\n")
			b.WriteString(wrap(t.Reason, ""))
		}
		fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
	}

	if r := out.ResearchReport; r != nil {
		section(w, fmt.Sprintf("Research (confidence %.2f)", r.Confidence), r.ResearchSummary)
		for _, s := range r.Sources {
			fmt.Fprintln(w, mutedStyle.Render("   - "+s))
		}
	}
	if a := out.AnalysisInfo; a != nil {
		section(w, fmt.Sprintf("Analysis (confidence %.2f)", a.Confidence), a.AnalysisSummary)
		fmt.Fprintf(w, "   implied probability %.3f  liquidity %.2f  signal %s (%.2f)\n",
			a.MarketMetrics.ImpliedProbability, a.MarketMetrics.LiquidityScore,
			a.TradingSignals.Direction, a.TradingSignals.Strength)
	}
	if len(out.Trace) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("Trace"))
		for _, line := range out.Trace {
			fmt.Fprintln(w, mutedStyle.Render("   "+truncate(line, wrapWidth*2)))
		}
	}
	if receipt != nil {
		fmt.Fprintln(w, sectionStyle.Render("Execution"))
		fmt.Fprintf(w, "   %s %s: %s\n", receipt.Status, receipt.OrderID, receipt.Plan)
	}
}

// History prints a table of past runs.
func History(w io.Writer, runs []models.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No runs recorded yet."))
		return
	}
	header := fmt.Sprintf("%-10s %-19s %-12s %-9s %-10s %-6s %s", "RUN", "CREATED", "MARKET", "STATUS", "DECISION", "CONF", "QUESTION")
	fmt.Fprintln(w, sectionStyle.Render(header))
	for _, r := range runs {
		fmt.Fprintf(w, "%-10s %-19s %-12s %-9s %-10s %-6.2f %s\n",
			shortID(r.ID), r.CreatedAt.Local().Format("2006-01-02 15:04:05"), truncate(r.MarketID, 12),
			r.Status, SideLabel(models.Side(r.TradeDecision)), r.Confidence, truncate(r.Question, 40))
	}
}

// Run prints a stored run with its transcript.
func Run(w io.Writer, run *models.RunRecord, msgs []models.MessageRecord) {
	if run == nil {
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Run "+run.ID))
	fmt.Fprintf(w, "Market:   %s\n", run.MarketID)
	if run.Question != "" {
		fmt.Fprintf(w, "Question: %s\n", run.Question)
	}
	fmt.Fprintf(w, "Status:   %s (phase %s)\n", run.Status, run.Phase)
	if run.TradeDecision != "" {
		fmt.Fprintf(w, "Decision: %s  confidence %.2f\n", SideLabel(models.Side(run.TradeDecision)), run.Confidence)
	}
	if run.AbortReason != "" {
		fmt.Fprint(w, wrap("Reason:   "+run.AbortReason, ""))
	}
	if len(msgs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("(no transcript stored; run with --transcript to keep it)"))
		return
	}
	fmt.Fprintln(w, sectionStyle.Render("Transcript"))
	for _, m := range msgs {
		label := m.Role
		if m.ToolName != "" {
			label += ":" + m.ToolName
		}
		if m.Status != "" {
			label += " [" + m.Status + "]"
		}
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("#%d %s", m.Seq, label)))
		body := m.Content
		if body == "" {
			body = m.ToolCalls
		}
		fmt.Fprint(w, wrap(truncate(body, 1200), "   "))
	}
}

// SideLabel colours a trade side.
func SideLabel(s models.Side) string {
	switch s {
	case models.SideBuy:
		return buyStyle.Render(string(s))
	case models.SideSell:
		return sellStyle.Render(string(s))
	case models.SideNoTrade:
		return holdStyle.Render(string(s))
	case "":
		return mutedStyle.Render("-")
	}
	return string(s)
}

func section(w io.Writer, title, body string) {
	fmt.Fprintln(w, sectionStyle.Render(title))
	if strings.TrimSpace(body) == "" {
		fmt.Fprintln(w, mutedStyle.Render("   (empty)"))
		return
	}
	fmt.Fprint(w, wrap(body, "   "))
}

// wrap word-wraps text to wrapWidth, one trailing newline per line.
func wrap(text, indent string) string {
	var b strings.Builder
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := indent + words[0]
		for _, word := range words[1:] {
			if len(line)+1+len(word) > wrapWidth {
				b.WriteString(line + "\n")
				line = indent + word
				continue
			}
			line += " " + word
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Progress prints one node event as a single line.
func Progress(w io.Writer, ev models.RunEvent) {
	switch ev.Kind {
	case "start":
		fmt.Fprintln(w, mutedStyle.Render("→ "+ev.Node))
	case "error":
		fmt.Fprintln(w, sellStyle.Render("✗ "+ev.Node+": "+truncate(ev.Message, wrapWidth)))
	}
}
