package tools

import (
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/models"
)

var terminalNames = map[string]models.Phase{
	consts.ToolSubmitResearch: models.PhaseResearch,
	consts.ToolSubmitAnalysis: models.PhaseAnalysis,
	consts.ToolSubmitTrade:    models.PhaseTrade,
}

// IsTerminal reports whether name is one of the phase terminal tools.
func IsTerminal(name string) bool {
	_, ok := terminalNames[name]
	return ok
}

// TerminalFor returns the terminal tool name of phase.
func TerminalFor(phase models.Phase) string {
	for name, p := range terminalNames {
		if p == phase {
			return name
		}
	}
	return ""
}

func ResearchTool() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: consts.ToolSubmitResearch,
		Desc: "Submit the final external research report for this market. Call it once the research is complete.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"research_summary": {
				Type:     schema.String,
				Desc:     "Concise summary of the evidence relevant to how the market resolves",
				Required: true,
			},
			"confidence": {
				Type:     schema.Number,
				Desc:     "Confidence in the research, between 0 and 1",
				Required: true,
			},
			"sources": {
				Type:     schema.Array,
				Desc:     "URLs of the sources the summary relies on",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: true,
			},
		}),
	}
}

func AnalysisTool() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: consts.ToolSubmitAnalysis,
		Desc: "Submit the final market analysis. Call it once prices, orderbook and trade flow have been assessed.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"analysis_summary": {Type: schema.String, Desc: "Summary of the market analysis", Required: true},
			"confidence":       {Type: schema.Number, Desc: "Confidence in the analysis, between 0 and 1", Required: true},
			"market_metrics": {
				Type:     schema.Object,
				Desc:     "Headline market metrics",
				Required: true,
				SubParams: map[string]*schema.ParameterInfo{
					"implied_probability": {Type: schema.Number, Desc: "Probability implied by the YES price"},
					"spread_assessment":   {Type: schema.String, Desc: "Assessment of the bid/ask spread"},
					"volume_profile":      {Type: schema.String, Desc: "Recent volume characterisation"},
					"liquidity_score":     {Type: schema.Number, Desc: "Liquidity score between 0 and 1"},
				},
			},
			"orderbook_analysis": {
				Type:     schema.Object,
				Desc:     "Orderbook structure",
				Required: true,
				SubParams: map[string]*schema.ParameterInfo{
					"bid_ask_imbalance": {Type: schema.Number, Desc: "(bid depth - ask depth) / total depth"},
					"depth_assessment":  {Type: schema.String, Desc: "Depth on both sides of the book"},
					"support_levels":    {Type: schema.String, Desc: "Notable bid levels"},
					"resistance_levels": {Type: schema.String, Desc: "Notable ask levels"},
				},
			},
			"trading_signals": {
				Type:     schema.Object,
				Desc:     "Directional signal derived from the data",
				Required: true,
				SubParams: map[string]*schema.ParameterInfo{
					"direction": {Type: schema.String, Desc: "bullish, bearish or neutral", Enum: []string{"bullish", "bearish", "neutral"}},
					"strength":  {Type: schema.Number, Desc: "Signal strength between 0 and 1"},
					"rationale": {Type: schema.String, Desc: "Why the signal points this way"},
				},
			},
			"execution_recommendation": {
				Type:     schema.Object,
				Desc:     "How a trade should be executed if taken",
				Required: true,
				SubParams: map[string]*schema.ParameterInfo{
					"order_type":    {Type: schema.String, Desc: "limit or market", Enum: []string{"limit", "market"}},
					"target_price":  {Type: schema.Number, Desc: "Target price between 0 and 1"},
					"size_guidance": {Type: schema.String, Desc: "Sizing guidance relative to liquidity"},
					"risk_factors":  {Type: schema.String, Desc: "Main execution risks"},
					"time_horizon":  {Type: schema.String, Desc: "Expected holding period"},
				},
			},
		}),
	}
}

// TradeTool builds the trade terminal for the sides and tokens that are
// permitted right now.
func TradeTool(sides []models.Side, tokenIDs []string) *schema.ToolInfo {
	enum := sideEnum(sides)
	token := &schema.ParameterInfo{
		Type:     schema.String,
		Desc:     "CLOB token id of the outcome to trade",
		Required: true,
	}
	if len(tokenIDs) > 0 {
		token.Enum = append([]string(nil), tokenIDs...)
	}
	return &schema.ToolInfo{
		Name: consts.ToolSubmitTrade,
		Desc: "Submit the final trade decision for this market.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"side": {
				Type:     schema.String,
				Desc:     "Trade side",
				Enum:     enum,
				Required: true,
			},
			"token_id": token,
			"size": {
				Type:     schema.Number,
				Desc:     "Order size in USDC for BUY, in shares for SELL, 0 for NO_TRADE",
				Required: true,
			},
			"price": {
				Type: schema.Number,
				Desc: "Optional limit price between 0 and 1",
			},
			"reason": {
				Type:     schema.String,
				Desc:     "Justification of the decision",
				Required: true,
			},
			"confidence": {
				Type:     schema.Number,
				Desc:     "Confidence in the decision, between 0 and 1",
				Required: true,
			},
		}),
	}
}

// VerdictTool is the structured output of every reflection judge.
func VerdictTool() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: consts.ToolSubmitVerdict,
		Desc: "Submit your review of the candidate.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"reason": {
				Type:     schema.Array,
				Desc:     "At least three distinct reasons supporting the verdict",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: true,
			},
			"is_satisfactory": {
				Type:     schema.Boolean,
				Desc:     "Whether the candidate is good enough to proceed",
				Required: true,
			},
			"improvement_instructions": {
				Type: schema.String,
				Desc: "What to fix when the candidate is not satisfactory",
			},
		}),
	}
}

func sideEnum(sides []models.Side) []string {
	enum := make([]string, 0, len(sides))
	for _, s := range sides {
		enum = append(enum, string(s))
	}
	return enum
}
