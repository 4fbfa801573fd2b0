package models

import (
	"fmt"
	"strings"
)

type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideNoTrade Side = "NO_TRADE"
)

func (s Side) Valid() bool {
	switch s {
	case SideBuy, SideSell, SideNoTrade:
		return true
	}
	return false
}

// ParseSide accepts the side case-insensitively; "NO TRADE" and "no-trade"
// normalize to NO_TRADE.
func ParseSide(raw string) (Side, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s := Side(norm)
	if !s.Valid() {
		return "", fmt.Errorf("unknown trade side %q", raw)
	}
	return s, nil
}

// ResearchInfo is the terminal artifact of the research phase.
type ResearchInfo struct {
	ResearchSummary string   `json:"research_summary"`
	Confidence      float64  `json:"confidence"`
	Sources         []string `json:"sources"`
}

type MarketMetrics struct {
	ImpliedProbability float64 `json:"implied_probability"`
	SpreadAssessment   string  `json:"spread_assessment"`
	VolumeProfile      string  `json:"volume_profile"`
	LiquidityScore     float64 `json:"liquidity_score"`
}

type OrderbookAnalysis struct {
	BidAskImbalance  float64 `json:"bid_ask_imbalance"`
	DepthAssessment  string  `json:"depth_assessment"`
	SupportLevels    string  `json:"support_levels,omitempty"`
	ResistanceLevels string  `json:"resistance_levels,omitempty"`
}

type TradingSignals struct {
	Direction string  `json:"direction"`
	Strength  float64 `json:"strength"`
	Rationale string  `json:"rationale"`
}

type ExecutionRecommendation struct {
	OrderType    string  `json:"order_type"`
	TargetPrice  float64 `json:"target_price"`
	SizeGuidance string  `json:"size_guidance"`
	RiskFactors  string  `json:"risk_factors"`
	TimeHorizon  string  `json:"time_horizon,omitempty"`
}

// AnalysisInfo is the terminal artifact of the analysis phase.
type AnalysisInfo struct {
	AnalysisSummary         string                  `json:"analysis_summary"`
	Confidence              float64                 `json:"confidence"`
	MarketMetrics           MarketMetrics           `json:"market_metrics"`
	OrderbookAnalysis       OrderbookAnalysis       `json:"orderbook_analysis"`
	TradingSignals          TradingSignals          `json:"trading_signals"`
	ExecutionRecommendation ExecutionRecommendation `json:"execution_recommendation"`
}

// TradeInfo is the terminal artifact of the trade phase. Side is kept as the
// raw string so an out-of-enum value reaches the deterministic check instead
// of failing argument decoding.
type TradeInfo struct {
	Side       string   `json:"side"`
	MarketID   string   `json:"market_id,omitempty"`
	TokenID    string   `json:"token_id"`
	Size       *float64 `json:"size"`
	Price      float64  `json:"price,omitempty"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence"`
}

func (t *TradeInfo) SizeValue() float64 {
	if t == nil || t.Size == nil {
		return 0
	}
	return *t.Size
}

func (t *TradeInfo) ConfidenceValue() float64 {
	if t == nil || t.Confidence == nil {
		return 0
	}
	return *t.Confidence
}

// Verdict is the structured output of a reflection judge.
type Verdict struct {
	Reasons                 []string `json:"reason"`
	IsSatisfactory          bool     `json:"is_satisfactory"`
	ImprovementInstructions string   `json:"improvement_instructions,omitempty"`
}
