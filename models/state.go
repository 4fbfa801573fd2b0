package models

import (
	"fmt"
	"maps"
	"math"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
)

type Phase string

const (
	PhaseResearch Phase = "research"
	PhaseAnalysis Phase = "analysis"
	PhaseTrade    Phase = "trade"
	PhaseDone     Phase = "done"
)

// Next returns the phase that follows p on ADVANCE.
func (p Phase) Next() Phase {
	switch p {
	case PhaseResearch:
		return PhaseAnalysis
	case PhaseAnalysis:
		return PhaseTrade
	default:
		return PhaseDone
	}
}

var phaseOrder = map[Phase]int{PhaseResearch: 0, PhaseAnalysis: 1, PhaseTrade: 2, PhaseDone: 3}

// Passed reports whether p lies strictly after other, i.e. other's
// candidate has been accepted.
func (p Phase) Passed(other Phase) bool {
	return phaseOrder[p] > phaseOrder[other]
}

const DefaultAvailableFunds = 10.0

// InputState is what a caller supplies to start a run.
type InputState struct {
	MarketID           string             `json:"market_id"`
	Positions          map[string]float64 `json:"positions,omitempty"`
	AvailableFunds     *float64           `json:"available_funds,omitempty"`
	CustomInstructions string             `json:"custom_instructions,omitempty"`
	KeepTranscript     bool               `json:"keep_transcript,omitempty"`
}

func (in *InputState) Validate() error {
	if in == nil || strings.TrimSpace(in.MarketID) == "" {
		return fmt.Errorf("market_id is required")
	}
	if in.AvailableFunds != nil {
		if f := *in.AvailableFunds; !finite(f) || f < 0 {
			return fmt.Errorf("available_funds must be a finite non-negative number, got %v", f)
		}
	}
	for token, size := range in.Positions {
		if !finite(size) || size < 0 {
			return fmt.Errorf("position for token %s must be a finite non-negative size, got %v", token, size)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// OrderbookReport is the cached result of get_multi_level_orderbook for one token.
type OrderbookReport struct {
	Summary OrderbookSummary `json:"summary"`
	Bids    []PriceLevel     `json:"bids"`
	Asks    []PriceLevel     `json:"asks"`
}

// WorkflowState is the per-run shared state. The graph owns it as local state
// and nodes reach it through compose.ProcessState.
type WorkflowState struct {
	MarketID string            `json:"market_id"`
	Messages []*schema.Message `json:"messages"`
	LoopStep int               `json:"loop_step"`
	Phase    Phase             `json:"phase"`
	Goto     string            `json:"goto"`

	ResearchInfo *ResearchInfo `json:"research_info,omitempty"`
	AnalysisInfo *AnalysisInfo `json:"analysis_info,omitempty"`
	TradeInfo    *TradeInfo    `json:"trade_info,omitempty"`

	MarketData       *MarketSnapshot             `json:"market_data,omitempty"`
	MarketDetails    *MarketDetails              `json:"market_details,omitempty"`
	OrderbookData    map[string]*OrderbookReport `json:"orderbook_data,omitempty"`
	MarketTrades     []TradeEvent                `json:"market_trades,omitempty"`
	HistoricalTrends *HistoricalTrends           `json:"historical_trends,omitempty"`
	ExternalNews     []NewsArticle               `json:"external_news,omitempty"`

	TradeDecision      Side               `json:"trade_decision,omitempty"`
	Confidence         float64            `json:"confidence"`
	Positions          map[string]float64 `json:"positions"`
	AvailableFunds     float64            `json:"available_funds"`
	CustomInstructions string             `json:"custom_instructions,omitempty"`
	KeepTranscript     bool               `json:"-"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`

	// guards the auxiliary cache when capability tools run concurrently
	cacheMu sync.Mutex
}

// NewWorkflowState builds a fresh state from the caller input.
func NewWorkflowState(in *InputState) (*WorkflowState, error) {
	st := &WorkflowState{}
	if err := st.Init(in); err != nil {
		return nil, err
	}
	return st, nil
}

// Init resets st to the starting point for in.
func (st *WorkflowState) Init(in *InputState) error {
	if err := in.Validate(); err != nil {
		return err
	}
	funds := DefaultAvailableFunds
	if in.AvailableFunds != nil {
		funds = *in.AvailableFunds
	}
	positions := make(map[string]float64, len(in.Positions))
	maps.Copy(positions, in.Positions)

	st.MarketID = strings.TrimSpace(in.MarketID)
	st.Messages = nil
	st.LoopStep = 0
	st.Phase = PhaseResearch
	st.Goto = ""
	st.ResearchInfo, st.AnalysisInfo, st.TradeInfo = nil, nil, nil
	st.MarketData, st.MarketDetails, st.HistoricalTrends = nil, nil, nil
	st.OrderbookData = map[string]*OrderbookReport{}
	st.MarketTrades, st.ExternalNews = nil, nil
	st.TradeDecision = ""
	st.Confidence = 0
	st.Positions = positions
	st.AvailableFunds = funds
	st.CustomInstructions = in.CustomInstructions
	st.KeepTranscript = in.KeepTranscript
	st.Aborted, st.AbortReason = false, ""
	return nil
}

func (st *WorkflowState) Append(msgs ...*schema.Message) {
	for _, m := range msgs {
		if m != nil {
			st.Messages = append(st.Messages, m)
		}
	}
}

func (st *WorkflowState) LastMessage() *schema.Message {
	if len(st.Messages) == 0 {
		return nil
	}
	return st.Messages[len(st.Messages)-1]
}

// IncrementLoop counts one executor invocation of the current phase.
func (st *WorkflowState) IncrementLoop() int {
	st.LoopStep++
	return st.LoopStep
}

// Advance moves to the next phase and resets the loop budget. Leaving the
// trade phase copies the accepted decision into the output fields.
func (st *WorkflowState) Advance() Phase {
	if st.Phase == PhaseTrade && st.TradeInfo != nil {
		if side, err := ParseSide(st.TradeInfo.Side); err == nil {
			st.TradeDecision = side
		}
		st.Confidence = st.TradeInfo.ConfidenceValue()
	}
	st.Phase = st.Phase.Next()
	st.LoopStep = 0
	return st.Phase
}

// CompactHistory drops the working turns of the phase just finished. The
// opening task message and the last terminal call with its answer stay, so the
// conversation remains a valid call/result sequence.
func (st *WorkflowState) CompactHistory() {
	if len(st.Messages) <= 3 {
		return
	}
	kept := make([]*schema.Message, 0, 3)
	kept = append(kept, st.Messages[0])
	kept = append(kept, st.Messages[len(st.Messages)-2:]...)
	st.Messages = kept
}

func (st *WorkflowState) Abort(reason string) {
	st.Aborted = true
	st.AbortReason = reason
}

// HasPosition reports whether a strictly positive position is held in tokenID.
func (st *WorkflowState) HasPosition(tokenID string) bool {
	return st.Positions[tokenID] > 0
}

func (st *WorkflowState) HoldsAnyPosition() bool {
	for _, size := range st.Positions {
		if size > 0 {
			return true
		}
	}
	return false
}

// PermittedSides is the side enum offered to the trade executor. SELL is
// only offered while some position is held.
func (st *WorkflowState) PermittedSides() []Side {
	if st.HoldsAnyPosition() {
		return []Side{SideBuy, SideSell, SideNoTrade}
	}
	return []Side{SideBuy, SideNoTrade}
}

func (st *WorkflowState) CachedDetails() *MarketDetails {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	return st.MarketDetails
}

func (st *WorkflowState) StoreDetails(d *MarketDetails) {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	st.MarketDetails = d
}

func (st *WorkflowState) CachedOrderbook(tokenID string) *OrderbookReport {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	return st.OrderbookData[tokenID]
}

func (st *WorkflowState) StoreOrderbook(tokenID string, r *OrderbookReport) {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	if st.OrderbookData == nil {
		st.OrderbookData = map[string]*OrderbookReport{}
	}
	st.OrderbookData[tokenID] = r
}

// CachedTrades returns the trade history and whether it was fetched at all.
func (st *WorkflowState) CachedTrades() ([]TradeEvent, bool) {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	return st.MarketTrades, st.MarketTrades != nil
}

func (st *WorkflowState) StoreTrades(trades []TradeEvent) {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	if trades == nil {
		trades = []TradeEvent{}
	}
	st.MarketTrades = trades
}

func (st *WorkflowState) CachedTrends() *HistoricalTrends {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	return st.HistoricalTrends
}

func (st *WorkflowState) StoreTrends(t *HistoricalTrends) {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	st.HistoricalTrends = t
}

func (st *WorkflowState) CachedNews() ([]NewsArticle, bool) {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	return st.ExternalNews, st.ExternalNews != nil
}

func (st *WorkflowState) StoreNews(news []NewsArticle) {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	if news == nil {
		news = []NewsArticle{}
	}
	st.ExternalNews = news
}

// DataAvailability lists which auxiliary datasets are already cached.
func (st *WorkflowState) DataAvailability() map[string]bool {
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	return map[string]bool{
		consts.ToolMarketDetails:    st.MarketDetails != nil,
		consts.ToolMultiLevelBook:   len(st.OrderbookData) > 0,
		consts.ToolHistoricalTrends: st.HistoricalTrends != nil,
		consts.ToolMarketTrades:     st.MarketTrades != nil,
		consts.ToolExternalNews:     st.ExternalNews != nil,
	}
}

// Trace renders the reasoning trail of the run: every reflection outcome and
// tool failure in order, followed by the abort reason when there is one.
func (st *WorkflowState) Trace() []string {
	var out []string
	for _, m := range st.Messages {
		if m == nil || m.Role != schema.Tool {
			continue
		}
		status, _ := m.Extra[consts.ExtraStatus].(string)
		phase, _ := m.Extra[consts.ExtraPhase].(string)
		tool, _ := m.Extra[consts.ExtraToolName].(string)
		if status != consts.ToolStatusError && phase == "" {
			continue
		}
		label := tool
		if phase != "" {
			label = phase + "/" + tool
		}
		out = append(out, fmt.Sprintf("[%s] %s: %s", label, status, truncate(m.Content, 400)))
	}
	if st.Aborted && st.AbortReason != "" {
		out = append(out, "[abort] "+st.AbortReason)
	}
	return out
}

// OutputState is the subset of the state surfaced to the caller.
type OutputState struct {
	MarketID       string            `json:"market_id"`
	Question       string            `json:"question,omitempty"`
	Phase          Phase             `json:"phase"`
	ResearchReport *ResearchInfo     `json:"research_report,omitempty"`
	AnalysisInfo   *AnalysisInfo     `json:"analysis_info,omitempty"`
	TradeInfo      *TradeInfo        `json:"trade_info,omitempty"`
	TradeDecision  Side              `json:"trade_decision,omitempty"`
	Confidence     float64           `json:"confidence"`
	Aborted        bool              `json:"aborted"`
	AbortReason    string            `json:"abort_reason,omitempty"`
	Trace          []string          `json:"trace,omitempty"`
	Transcript     []*schema.Message `json:"transcript,omitempty"`
}

// Accepted reports whether the run reached the end with a validated decision.
func (o *OutputState) Accepted() bool {
	return o != nil && !o.Aborted && o.Phase == PhaseDone && o.TradeDecision != ""
}

// Output surfaces only accepted artifacts; a rejected candidate of the phase
// the run stopped in is left out.
func (st *WorkflowState) Output() *OutputState {
	out := &OutputState{
		MarketID:      st.MarketID,
		Phase:         st.Phase,
		TradeDecision: st.TradeDecision,
		Confidence:    st.Confidence,
		Aborted:       st.Aborted,
		AbortReason:   st.AbortReason,
		Trace:         st.Trace(),
	}
	if st.MarketData != nil {
		out.Question = st.MarketData.Question
	}
	if st.Phase.Passed(PhaseResearch) {
		out.ResearchReport = st.ResearchInfo
	}
	if st.Phase.Passed(PhaseAnalysis) {
		out.AnalysisInfo = st.AnalysisInfo
	}
	if st.Phase.Passed(PhaseTrade) {
		out.TradeInfo = st.TradeInfo
	}
	if st.KeepTranscript {
		out.Transcript = append([]*schema.Message(nil), st.Messages...)
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
