package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/internal/agents"
	"github.com/dyike/PolyCortex/internal/dataflows"
	"github.com/dyike/PolyCortex/internal/llm"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/internal/reflection"
	"github.com/dyike/PolyCortex/internal/tools"
	"github.com/dyike/PolyCortex/models"
)

// nodes holds the collaborators behind every graph node.
type nodes struct {
	markets  dataflows.MarketProvider
	executor *agents.Executor
	reviewer *reflection.Reviewer
	maxLoops int

	keepHistory bool
}

func (n *nodes) initRun(ctx context.Context, in *models.InputState) (string, error) {
	err := compose.ProcessState[*models.WorkflowState](ctx, func(_ context.Context, state *models.WorkflowState) error {
		if err := state.Init(in); err != nil {
			return err
		}
		state.Append(schema.UserMessage(fmt.Sprintf(
			"Analyze Polymarket market %s and decide whether to trade it.", state.MarketID)))
		state.Goto = consts.FetchMarket
		return nil
	})
	return "", err
}

// fetchMarket is the zero-retry pre-phase: any failure aborts the run.
func (n *nodes) fetchMarket(ctx context.Context, _ string) (string, error) {
	err := compose.ProcessState[*models.WorkflowState](ctx, func(_ context.Context, state *models.WorkflowState) error {
		logger := logging.FromContext(ctx).WithMarket(state.MarketID)
		state.Goto = consts.Finish

		snap, err := n.markets.FetchMarket(ctx, state.MarketID)
		if err != nil {
			state.Abort(fmt.Sprintf("failed to fetch market %s: %v", state.MarketID, err))
			logger.Error("market fetch failed", "error", err)
			return nil
		}
		if !snap.Identifiable() {
			state.Abort(fmt.Sprintf("market %s returned no question or token ids", state.MarketID))
			logger.Error("market snapshot is not identifiable")
			return nil
		}
		state.MarketData = snap
		state.Goto = phases[0].guard
		logger.Info("market loaded", "question", snap.Question, "tokens", len(snap.TokenIDs))
		return nil
	})
	return "", err
}

// guard runs before every EXECUTE. It enforces the loop budget and turns a
// cancelled context into an abort.
func (n *nodes) guard(p phaseNodes) func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		err := compose.ProcessState[*models.WorkflowState](ctx, func(_ context.Context, state *models.WorkflowState) error {
			state.Goto = consts.Finish
			if err := ctx.Err(); err != nil {
				state.Abort(fmt.Sprintf("run cancelled during %s: %v", p.phase, err))
				return nil
			}
			if state.LoopStep >= n.maxLoops {
				state.Abort(fmt.Sprintf("%s phase exhausted its loop budget of %d", p.phase, n.maxLoops))
				return nil
			}
			state.Goto = p.agent
			return nil
		})
		return "", err
	}
}

func (n *nodes) agent(p phaseNodes) func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		err := compose.ProcessState[*models.WorkflowState](ctx, func(_ context.Context, state *models.WorkflowState) error {
			route, err := n.executor.Execute(ctx, state)
			if err != nil {
				return n.failOrCancel(ctx, state, err)
			}
			switch route {
			case agents.RouteValidate:
				state.Goto = p.reflect
			case agents.RouteTools:
				state.Goto = p.tools
			default:
				state.Goto = p.guard
			}
			return nil
		})
		return "", err
	}
}

func (n *nodes) tools(p phaseNodes) func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		err := compose.ProcessState[*models.WorkflowState](ctx, func(_ context.Context, state *models.WorkflowState) error {
			if err := n.executor.RunTools(ctx, state); err != nil {
				return n.failOrCancel(ctx, state, err)
			}
			state.Goto = p.guard
			return nil
		})
		return "", err
	}
}

// reflect validates the candidate and answers the terminal call with the
// verdict. Accept advances the phase; reject retries until the budget is
// spent.
func (n *nodes) reflect(p phaseNodes) func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		err := compose.ProcessState[*models.WorkflowState](ctx, func(_ context.Context, state *models.WorkflowState) error {
			logger := logging.FromContext(ctx).WithPhase(string(p.phase))
			call, ok := llm.FindCall(state.LastMessage(), tools.TerminalFor(p.phase))
			if !ok {
				return fmt.Errorf("reflect on %s: last message has no terminal call", p.phase)
			}

			outcome, err := n.reviewer.Review(ctx, state)
			if err != nil {
				return n.failOrCancel(ctx, state, err)
			}
			state.Append(outcome.ToolMessage(call))

			if outcome.Accepted {
				if !n.keepHistory {
					state.CompactHistory()
				}
				next := state.Advance()
				logger.Info("candidate accepted", "next_phase", next)
				state.Goto = nodesFor(next).guard
				if next == models.PhaseDone {
					state.Goto = consts.Finish
				}
				return nil
			}

			logger.Info("candidate rejected", "loop_step", state.LoopStep, "max_loops", n.maxLoops)
			if state.LoopStep >= n.maxLoops {
				state.Abort(fmt.Sprintf("%s phase was rejected %d times: %s", p.phase, state.LoopStep, outcome.Critique()))
				state.Goto = consts.Finish
				return nil
			}
			state.Goto = p.guard
			return nil
		})
		return "", err
	}
}

func (n *nodes) finish(ctx context.Context, _ string) (out *models.OutputState, err error) {
	err = compose.ProcessState[*models.WorkflowState](ctx, func(_ context.Context, state *models.WorkflowState) error {
		out = state.Output()
		return nil
	})
	return out, err
}

// failOrCancel turns an error raised under a cancelled context into an
// abort; anything else is fatal for the run.
func (n *nodes) failOrCancel(ctx context.Context, state *models.WorkflowState, err error) error {
	if ctx.Err() != nil {
		state.Abort(fmt.Sprintf("run cancelled during %s: %v", state.Phase, ctx.Err()))
		state.Goto = consts.Finish
		return nil
	}
	return err
}
