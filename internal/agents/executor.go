package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/internal/llm"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/internal/tools"
	"github.com/dyike/PolyCortex/internal/utils"
	"github.com/dyike/PolyCortex/models"
)

// Route is where the engine goes after an executor turn.
type Route int

const (
	// RouteExecute re-enters the executor; the turn named no tool.
	RouteExecute Route = iota
	RouteTools
	RouteValidate
)

func (r Route) String() string {
	switch r {
	case RouteTools:
		return "tools"
	case RouteValidate:
		return "validate"
	default:
		return "execute"
	}
}

// stage is the per-phase part of an executor: its prompt, its capability
// registry, its terminal tool and how the terminal arguments land in state.
type stage struct {
	prompt   string
	registry func(k *tools.Toolkit, ctx context.Context, st *models.WorkflowState) (*tools.Registry, error)
	terminal func(st *models.WorkflowState) *schema.ToolInfo
	vars     func(st *models.WorkflowState) map[string]any
	accept   func(st *models.WorkflowState, call schema.ToolCall) error
}

var stages = map[models.Phase]stage{
	models.PhaseResearch: researchStage,
	models.PhaseAnalysis: analysisStage,
	models.PhaseTrade:    tradeStage,
}

// Executor runs the EXECUTE and TOOL steps of every phase.
type Executor struct {
	engine   llm.Engine
	toolkit  *tools.Toolkit
	parallel bool
}

func NewExecutor(engine llm.Engine, toolkit *tools.Toolkit, parallelTools bool) *Executor {
	if toolkit == nil {
		toolkit = &tools.Toolkit{}
	}
	return &Executor{engine: engine, toolkit: toolkit, parallel: parallelTools}
}

// Execute is one executor invocation of the current phase. It counts against
// the loop budget, asks the engine for a forced tool call, and records the
// filtered response. A terminal call is decoded into the phase candidate;
// undecodable arguments are returned as a fatal error.
func (e *Executor) Execute(ctx context.Context, st *models.WorkflowState) (Route, error) {
	sg, ok := stages[st.Phase]
	if !ok {
		return RouteExecute, fmt.Errorf("execute: phase %q has no executor", st.Phase)
	}
	step := st.IncrementLoop()
	logger := logging.FromContext(ctx).WithPhase(string(st.Phase))

	registry, err := sg.registry(e.toolkit, ctx, st)
	if err != nil {
		return RouteExecute, fmt.Errorf("%s tools: %w", st.Phase, err)
	}
	terminal := sg.terminal(st)
	msgs, err := e.messages(ctx, st, sg, terminal)
	if err != nil {
		return RouteExecute, err
	}

	resp, err := e.engine.Invoke(ctx, msgs, append(registry.Infos(), terminal))
	if err != nil {
		return RouteExecute, fmt.Errorf("%s executor: %w", st.Phase, err)
	}
	resp = KeepTerminal(resp, terminal.Name)
	st.Append(resp)

	if call, ok := llm.FindCall(resp, terminal.Name); ok {
		if err := sg.accept(st, call); err != nil {
			return RouteExecute, err
		}
		logger.Info("candidate submitted", "loop_step", step, "tool", terminal.Name)
		return RouteValidate, nil
	}
	if len(resp.ToolCalls) == 0 {
		logger.Warn("executor answered without a tool call", "loop_step", step)
		st.Append(schema.UserMessage(consts.NudgeMessage))
		return RouteExecute, nil
	}
	logger.Debug("capability calls requested", "loop_step", step, "calls", len(resp.ToolCalls))
	return RouteTools, nil
}

// RunTools answers every tool call of the last executor turn, in request
// order. Capability failures become error results and never fail the run.
func (e *Executor) RunTools(ctx context.Context, st *models.WorkflowState) error {
	last := st.LastMessage()
	if last == nil || len(last.ToolCalls) == 0 {
		return fmt.Errorf("%s tools: last message carries no tool calls", st.Phase)
	}
	sg := stages[st.Phase]
	registry, err := sg.registry(e.toolkit, ctx, st)
	if err != nil {
		return fmt.Errorf("%s tools: %w", st.Phase, err)
	}
	results := registry.Dispatch(ctx, last.ToolCalls, e.parallel)
	for _, r := range results {
		if r.Extra[consts.ExtraStatus] == consts.ToolStatusError {
			logging.FromContext(ctx).Warn("tool failed", "phase", st.Phase, "tool", r.Extra[consts.ExtraToolName], "result", r.Content)
		}
	}
	st.Append(results...)
	return nil
}

func (e *Executor) messages(ctx context.Context, st *models.WorkflowState, sg stage, terminal *schema.ToolInfo) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(utils.MustLoadPrompt(sg.prompt)),
		schema.MessagesPlaceholder("history", false),
	)
	vars := marketVars(st)
	for k, v := range sg.vars(st) {
		vars[k] = v
	}
	vars["terminal_tool"] = terminal.Name
	vars["history"] = st.Messages
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format %s prompt: %w", st.Phase, err)
	}
	return msgs, nil
}

// KeepTerminal strips every other tool call from a turn that names the
// terminal tool. A turn may not finalize and ask for more data at once.
func KeepTerminal(msg *schema.Message, terminal string) *schema.Message {
	if msg == nil || len(msg.ToolCalls) < 2 {
		return msg
	}
	call, ok := llm.FindCall(msg, terminal)
	if !ok {
		return msg
	}
	out := *msg
	out.ToolCalls = []schema.ToolCall{call}
	return &out
}

func marketVars(st *models.WorkflowState) map[string]any {
	m := st.MarketData
	if m == nil {
		m = &models.MarketSnapshot{ID: st.MarketID}
	}
	return map[string]any{
		"market_data":         utils.JSONBlock(m),
		"question":            m.Question,
		"description":         m.EnrichedDescription(),
		"outcomes":            utils.JSONBlock(outcomeTable(m)),
		"custom_instructions": utils.Section("Additional instructions", st.CustomInstructions),
	}
}

type outcomeRow struct {
	Outcome string  `json:"outcome"`
	TokenID string  `json:"token_id"`
	Price   float64 `json:"price"`
}

func outcomeTable(m *models.MarketSnapshot) []outcomeRow {
	rows := make([]outcomeRow, 0, len(m.TokenIDs))
	for i, token := range m.TokenIDs {
		row := outcomeRow{TokenID: token, Outcome: m.OutcomeFor(token)}
		if i < len(m.OutcomePrices) {
			row.Price = m.OutcomePrices[i]
		}
		rows = append(rows, row)
	}
	return rows
}
