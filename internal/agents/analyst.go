package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/internal/llm"
	"github.com/dyike/PolyCortex/internal/tools"
	"github.com/dyike/PolyCortex/internal/utils"
	"github.com/dyike/PolyCortex/models"
)

var analysisStage = stage{
	prompt: "agents/analyst",
	registry: func(k *tools.Toolkit, ctx context.Context, st *models.WorkflowState) (*tools.Registry, error) {
		return k.AnalysisRegistry(ctx, st)
	},
	terminal: func(*models.WorkflowState) *schema.ToolInfo {
		return tools.AnalysisTool()
	},
	vars: func(st *models.WorkflowState) map[string]any {
		return map[string]any{
			"info":              utils.JSONBlock(models.AnalysisInfo{}),
			"research":          researchSummary(st),
			"data_availability": availability(st),
		}
	},
	accept: func(st *models.WorkflowState, call schema.ToolCall) error {
		var info models.AnalysisInfo
		if err := llm.DecodeArguments(call, &info); err != nil {
			return err
		}
		st.AnalysisInfo = &info
		return nil
	},
}

// availability renders which auxiliary datasets are cached, so the executor
// does not re-request what it already has.
func availability(st *models.WorkflowState) string {
	avail := st.DataAvailability()
	names := make([]string, 0, len(avail))
	for name := range avail {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		status := "missing"
		if avail[name] {
			status = "available"
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func researchSummary(st *models.WorkflowState) string {
	if st.ResearchInfo == nil {
		return "none"
	}
	return utils.JSONBlock(st.ResearchInfo)
}
