package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/internal/llm"
	"github.com/dyike/PolyCortex/internal/tools"
	"github.com/dyike/PolyCortex/internal/utils"
	"github.com/dyike/PolyCortex/models"
)

var tradeStage = stage{
	prompt: "agents/trader",
	registry: func(k *tools.Toolkit, ctx context.Context, st *models.WorkflowState) (*tools.Registry, error) {
		return k.TradeRegistry(ctx, st)
	},
	// the side enum is recomputed from positions before every turn
	terminal: func(st *models.WorkflowState) *schema.ToolInfo {
		var tokens []string
		if st.MarketData != nil {
			tokens = st.MarketData.TokenIDs
		}
		return tools.TradeTool(st.PermittedSides(), tokens)
	},
	vars: func(st *models.WorkflowState) map[string]any {
		sides := st.PermittedSides()
		names := make([]string, len(sides))
		for i, s := range sides {
			names[i] = string(s)
		}
		analysis := "none"
		if st.AnalysisInfo != nil {
			analysis = utils.JSONBlock(st.AnalysisInfo)
		}
		return map[string]any{
			"info":            utils.JSONBlock(models.TradeInfo{}),
			"research":        researchSummary(st),
			"analysis":        analysis,
			"permitted_sides": strings.Join(names, ", "),
			"available_funds": fmt.Sprintf("%.2f", st.AvailableFunds),
			"positions":       positionsBlock(st),
		}
	},
	accept: func(st *models.WorkflowState, call schema.ToolCall) error {
		var info models.TradeInfo
		if err := llm.DecodeArguments(call, &info); err != nil {
			return err
		}
		if info.MarketID == "" {
			info.MarketID = st.MarketID
		}
		st.TradeInfo = &info
		return nil
	},
}

func positionsBlock(st *models.WorkflowState) string {
	if !st.HoldsAnyPosition() {
		return "none"
	}
	return utils.JSONBlock(st.Positions)
}
