package agents

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/internal/llm"
	"github.com/dyike/PolyCortex/internal/tools"
	"github.com/dyike/PolyCortex/internal/utils"
	"github.com/dyike/PolyCortex/models"
)

var researchStage = stage{
	prompt: "agents/researcher",
	registry: func(k *tools.Toolkit, ctx context.Context, st *models.WorkflowState) (*tools.Registry, error) {
		return k.ResearchRegistry(ctx, st)
	},
	terminal: func(*models.WorkflowState) *schema.ToolInfo {
		return tools.ResearchTool()
	},
	vars: func(*models.WorkflowState) map[string]any {
		return map[string]any{
			"info": utils.JSONBlock(models.ResearchInfo{Sources: []string{}}),
		}
	},
	accept: func(st *models.WorkflowState, call schema.ToolCall) error {
		var info models.ResearchInfo
		if err := llm.DecodeArguments(call, &info); err != nil {
			return err
		}
		st.ResearchInfo = &info
		return nil
	},
}
