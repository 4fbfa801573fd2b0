package models

import (
	"math"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func funds(v float64) *float64 { return &v }

func TestInitDefaultsFunds(t *testing.T) {
	st, err := NewWorkflowState(&InputState{MarketID: " 123 "})
	require.NoError(t, err)
	assert.Equal(t, "123", st.MarketID)
	assert.Equal(t, DefaultAvailableFunds, st.AvailableFunds)
	assert.Equal(t, PhaseResearch, st.Phase)
	assert.NotNil(t, st.Positions)
}

func TestInitRejectsBadInput(t *testing.T) {
	_, err := NewWorkflowState(&InputState{})
	require.Error(t, err)

	_, err = NewWorkflowState(&InputState{MarketID: "1", AvailableFunds: funds(-1)})
	require.Error(t, err)

	_, err = NewWorkflowState(&InputState{MarketID: "1", Positions: map[string]float64{"t": -2}})
	require.Error(t, err)

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = NewWorkflowState(&InputState{MarketID: "1", AvailableFunds: funds(bad)})
		assert.Error(t, err, "funds %v", bad)
		_, err = NewWorkflowState(&InputState{MarketID: "1", Positions: map[string]float64{"t": bad}})
		assert.Error(t, err, "position %v", bad)
	}
}

func TestInitCopiesPositions(t *testing.T) {
	in := &InputState{MarketID: "1", Positions: map[string]float64{"tok": 3}}
	st, err := NewWorkflowState(in)
	require.NoError(t, err)
	in.Positions["tok"] = 0
	assert.True(t, st.HasPosition("tok"))
}

func TestAdvanceResetsLoopStep(t *testing.T) {
	st, err := NewWorkflowState(&InputState{MarketID: "1"})
	require.NoError(t, err)

	st.IncrementLoop()
	st.IncrementLoop()
	assert.Equal(t, 2, st.LoopStep)

	assert.Equal(t, PhaseAnalysis, st.Advance())
	assert.Equal(t, 0, st.LoopStep)
	assert.Equal(t, PhaseTrade, st.Advance())

	size, conf := 2.0, 0.7
	st.TradeInfo = &TradeInfo{Side: "buy", TokenID: "a", Size: &size, Confidence: &conf}
	assert.Equal(t, PhaseDone, st.Advance())
	assert.Equal(t, SideBuy, st.TradeDecision)
	assert.Equal(t, 0.7, st.Confidence)
}

func TestPermittedSides(t *testing.T) {
	st, err := NewWorkflowState(&InputState{MarketID: "1"})
	require.NoError(t, err)
	assert.Equal(t, []Side{SideBuy, SideNoTrade}, st.PermittedSides())

	st.Positions["tok"] = 0
	assert.NotContains(t, st.PermittedSides(), SideSell)

	st.Positions["tok"] = 1.5
	assert.Contains(t, st.PermittedSides(), SideSell)
}

func TestParseSide(t *testing.T) {
	for raw, want := range map[string]Side{"buy": SideBuy, " SELL ": SideSell, "no trade": SideNoTrade, "No-Trade": SideNoTrade} {
		got, err := ParseSide(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParseSide("HOLD")
	assert.Error(t, err)
}

func TestTraceCollectsReflectionsAndAbort(t *testing.T) {
	st, err := NewWorkflowState(&InputState{MarketID: "1", KeepTranscript: true})
	require.NoError(t, err)
	st.Append(
		schema.UserMessage("hi"),
		&schema.Message{Role: schema.Tool, Content: "ok", Extra: map[string]any{
			consts.ExtraStatus: consts.ToolStatusSuccess, consts.ExtraToolName: "search_exa"}},
		&schema.Message{Role: schema.Tool, Content: "boom", Extra: map[string]any{
			consts.ExtraStatus: consts.ToolStatusError, consts.ExtraToolName: "search_tavily"}},
		&schema.Message{Role: schema.Tool, Content: "needs sources", Extra: map[string]any{
			consts.ExtraStatus: consts.ToolStatusError, consts.ExtraToolName: consts.ToolSubmitResearch,
			consts.ExtraPhase: string(PhaseResearch)}},
	)
	st.Abort("research phase exhausted")

	out := st.Output()
	require.Len(t, out.Trace, 3)
	assert.Contains(t, out.Trace[0], "search_tavily")
	assert.Contains(t, out.Trace[1], "research/submit_research")
	assert.Equal(t, "[abort] research phase exhausted", out.Trace[2])
	assert.Len(t, out.Transcript, 4)
	assert.True(t, out.Aborted)
	assert.False(t, out.Accepted())
}

func TestOrderbookSummary(t *testing.T) {
	d := decimal.RequireFromString
	book := &Orderbook{
		TokenID: "tok",
		Bids:    []PriceLevel{{Price: d("0.48"), Size: d("100")}, {Price: d("0.47"), Size: d("50")}},
		Asks:    []PriceLevel{{Price: d("0.52"), Size: d("50")}},
	}
	s := book.Summary()
	assert.True(t, s.MidPrice.Decimal.Equal(d("0.5")))
	assert.True(t, s.Spread.Decimal.Equal(d("0.04")))
	assert.True(t, s.SpreadBps.Decimal.Equal(d("800")))
	assert.True(t, s.BidDepth.Equal(d("150")))
	assert.True(t, s.Imbalance.Decimal.Equal(d("0.5")))

	empty := (&Orderbook{TokenID: "x"}).Summary()
	assert.False(t, empty.MidPrice.Valid)
	assert.False(t, empty.Imbalance.Valid)
}

func TestEnrichedDescription(t *testing.T) {
	m := &MarketSnapshot{Description: "Resolves YES if...", Active: true, Volume: 1200, Liquidity: 30.5}
	desc := m.EnrichedDescription()
	assert.Contains(t, desc, "This market is active.")
	assert.Contains(t, desc, "This market is not closed.")
	assert.Contains(t, desc, "Volume: 1200.00")
}

func TestOutputOmitsUnacceptedCandidates(t *testing.T) {
	st, err := NewWorkflowState(&InputState{MarketID: "1"})
	require.NoError(t, err)
	st.ResearchInfo = &ResearchInfo{ResearchSummary: "r"}
	st.Advance()
	st.AnalysisInfo = &AnalysisInfo{AnalysisSummary: "rejected"}
	st.Abort("analysis phase exhausted its loop budget of 6")

	out := st.Output()
	assert.NotNil(t, out.ResearchReport)
	assert.Nil(t, out.AnalysisInfo)
	assert.Nil(t, out.TradeInfo)
	assert.True(t, PhaseDone.Passed(PhaseTrade))
	assert.False(t, PhaseResearch.Passed(PhaseResearch))
}

func TestCompactHistoryKeepsTaskAndLastExchange(t *testing.T) {
	st := &WorkflowState{}
	st.Append(schema.UserMessage("task"))
	st.Append(schema.AssistantMessage("", []schema.ToolCall{{ID: "s1", Function: schema.FunctionCall{Name: "search_tavily"}}}))
	st.Append(schema.ToolMessage("results", "s1"))
	st.Append(schema.AssistantMessage("", []schema.ToolCall{{ID: "r1", Function: schema.FunctionCall{Name: "submit_research"}}}))
	st.Append(schema.ToolMessage("accepted", "r1"))

	st.CompactHistory()
	require.Len(t, st.Messages, 3)
	assert.Equal(t, "task", st.Messages[0].Content)
	assert.Equal(t, "r1", st.Messages[1].ToolCalls[0].ID)
	assert.Equal(t, "r1", st.Messages[2].ToolCallID)

	st.CompactHistory()
	assert.Len(t, st.Messages, 3)
}
