package display

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyike/PolyCortex/models"
)

// Markdown renders a stored run as a markdown report. The accepted artifacts
// come from the run's serialized output; msgs may be empty.
func Markdown(run *models.RunRecord, msgs []models.MessageRecord) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run is required")
	}
	var out models.OutputState
	if strings.TrimSpace(run.Output) != "" {
		if err := json.Unmarshal([]byte(run.Output), &out); err != nil {
			return "", fmt.Errorf("decode run output: %w", err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# PolyCortex run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- Market: `%s`\n", run.MarketID)
	if run.Question != "" {
		fmt.Fprintf(&b, "- Question: %s\n", run.Question)
	}
	fmt.Fprintf(&b, "- Status: %s (phase %s)\n", run.Status, run.Phase)
	fmt.Fprintf(&b, "- Created: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if run.TradeDecision != "" {
		fmt.Fprintf(&b, "- Decision: **%s** (confidence %.2f)\n", run.TradeDecision, run.Confidence)
	}
	if run.AbortReason != "" {
		fmt.Fprintf(&b, "\n> %s\n", run.AbortReason)
	}

	if r := out.ResearchReport; r != nil {
		fmt.Fprintf(&b, "\n## Research\n\n%s\n", r.ResearchSummary)
		if len(r.Sources) > 0 {
			b.WriteString("\nSources:\n")
			for _, s := range r.Sources {
				fmt.Fprintf(&b, "- %s\n", s)
			}
		}
	}
	if a := out.AnalysisInfo; a != nil {
		fmt.Fprintf(&b, "\n## Analysis\n\n%s\n\n", a.AnalysisSummary)
		b.WriteString("| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Implied probability | %.3f |\n", a.MarketMetrics.ImpliedProbability)
		fmt.Fprintf(&b, "| Liquidity score | %.2f |\n", a.MarketMetrics.LiquidityScore)
		fmt.Fprintf(&b, "| Bid/ask imbalance | %.3f |\n", a.OrderbookAnalysis.BidAskImbalance)
		fmt.Fprintf(&b, "| Signal | %s (%.2f) |\n", a.TradingSignals.Direction, a.TradingSignals.Strength)
		fmt.Fprintf(&b, "| Recommended order | %s @ %.4f |\n", a.ExecutionRecommendation.OrderType, a.ExecutionRecommendation.TargetPrice)
	}
	if t := out.TradeInfo; t != nil {
		fmt.Fprintf(&b, "\n## Trade\n\n- Side: %s\n- Token: `%s`\n- Size: %.2f\n", t.Side, t.TokenID, t.SizeValue())
		if t.Price > 0 {
			fmt.Fprintf(&b, "- Price: %.4f\n", t.Price)
		}
		fmt.Fprintf(&b, "\n%s\n", t.Reason)
	}
	if len(out.Trace) > 0 {
		b.WriteString("\n## Trace\n\n")
		for _, line := range out.Trace {
			fmt.Fprintf(&b, "- %s\n", strings.ReplaceAll(line, "\n", " "))
		}
	}
	if len(msgs) > 0 {
		b.WriteString("\n## Transcript\n")
		for _, m := range msgs {
			label := m.Role
			if m.ToolName != "" {
				label += " / " + m.ToolName
			}
			body := m.Content
			if body == "" {
				body = m.ToolCalls
			}
			fmt.Fprintf(&b, "\n### %d. %s\n\n```\n%s\n```\n", m.Seq, label, body)
		}
	}
	return b.String(), nil
}

// WriteMarkdown writes content to dir/name, creating dir as needed, and
// returns the file path.
func WriteMarkdown(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return path, nil
}
