package display

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dyike/PolyCortex/internal/execution"
	"github.com/dyike/PolyCortex/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	text := strings.Repeat("word ", 40)
	out := wrap(text, "  ")
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		assert.LessOrEqual(t, len(line), wrapWidth)
		assert.True(t, strings.HasPrefix(line, "  "))
	}
	assert.Empty(t, wrap("   ", ""))
}

func TestResultShowsDecisionAndReceipt(t *testing.T) {
	size, conf := 3.0, 0.8
	out := &models.OutputState{
		MarketID:       "123",
		Phase:          models.PhaseDone,
		TradeDecision:  models.SideBuy,
		Confidence:     0.8,
		ResearchReport: &models.ResearchInfo{ResearchSummary: "polls favour yes", Sources: []string{"https://a.example"}},
		TradeInfo:      &models.TradeInfo{Side: "BUY", TokenID: "tok-yes", Size: &size, Confidence: &conf, Reason: "mispriced"},
	}
	receipt := &execution.Receipt{OrderID: "dry-1", Status: "simulated", SubmittedAt: time.Now(),
		Plan: &execution.OrderPlan{Side: models.SideBuy, TokenID: "tok-yes", Size: decimal.NewFromInt(3), Notional: decimal.NewFromInt(3)}}

	var buf bytes.Buffer
	Result(&buf, "0123456789abcdef", out, receipt)
	s := buf.String()
	assert.Contains(t, s, "01234567")
	assert.Contains(t, s, "tok-yes")
	assert.Contains(t, s, "polls favour yes")
	assert.Contains(t, s, "https://a.example")
	assert.Contains(t, s, "dry-1")
}

func TestResultAborted(t *testing.T) {
	var buf bytes.Buffer
	Result(&buf, "r", &models.OutputState{MarketID: "9", Phase: models.PhaseResearch, Aborted: true, AbortReason: "failed to fetch market 9"}, nil)
	assert.Contains(t, buf.String(), "ABORTED")
	assert.Contains(t, buf.String(), "failed to fetch market 9")
}

func TestHistoryAndRun(t *testing.T) {
	var buf bytes.Buffer
	History(&buf, nil)
	assert.Contains(t, buf.String(), "No runs")

	buf.Reset()
	runs := []models.RunRecord{{ID: "run-abcdefgh-1", MarketID: "123", Status: "done", TradeDecision: "SELL", Question: "Will it rain?", CreatedAt: time.Now()}}
	History(&buf, runs)
	assert.Contains(t, buf.String(), "run-abcd")
	assert.Contains(t, buf.String(), "Will it rain?")

	buf.Reset()
	Run(&buf, &runs[0], []models.MessageRecord{{Seq: 1, Role: "user", Content: "Analyze"}, {Seq: 2, Role: "tool", ToolName: "submit_trade", Status: "error", Content: "needs work"}})
	assert.Contains(t, buf.String(), "#2 tool:submit_trade [error]")
	assert.Contains(t, buf.String(), "needs work")
}

func TestMarkdownReport(t *testing.T) {
	size := 5.0
	out := models.OutputState{
		MarketID:       "123",
		Phase:          models.PhaseDone,
		TradeDecision:  models.SideBuy,
		ResearchReport: &models.ResearchInfo{ResearchSummary: "summary text", Sources: []string{"src-1"}},
		TradeInfo:      &models.TradeInfo{Side: "BUY", TokenID: "tok", Size: &size, Reason: "because"},
		Trace:          []string{"[research/submit_research] success: ok"},
	}
	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	run := &models.RunRecord{ID: "r1", MarketID: "123", Status: "done", Phase: "done", TradeDecision: "BUY", Output: string(raw)}

	md, err := Markdown(run, []models.MessageRecord{{Seq: 1, Role: "user", Content: "Analyze"}})
	assert.NoError(t, err)
	assert.Contains(t, md, "# PolyCortex run r1")
	assert.Contains(t, md, "summary text")
	assert.Contains(t, md, "- Token: `tok`")
	assert.Contains(t, md, "### 1. user")

	path, err := WriteMarkdown(filepath.Join(t.TempDir(), "reports"), "r1.md", md)
	assert.NoError(t, err)
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, md, string(data))

	_, err = Markdown(&models.RunRecord{ID: "x", Output: "{broken"}, nil)
	assert.Error(t, err)
}
