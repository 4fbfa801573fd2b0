package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/dyike/PolyCortex/config"
	"github.com/dyike/PolyCortex/internal/agents"
	"github.com/dyike/PolyCortex/internal/llm"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/internal/reflection"
	"github.com/dyike/PolyCortex/internal/tools"
	"github.com/dyike/PolyCortex/models"
)

// TradingGraph is the compiled decision workflow. It is safe for concurrent
// runs: every Propagate gets its own WorkflowState.
type TradingGraph struct {
	config   *config.Config
	workflow compose.Runnable[*models.InputState, *models.OutputState]
}

func NewTradingGraph(ctx context.Context, cfg *config.Config, engine llm.Engine, toolkit *tools.Toolkit) (*TradingGraph, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if engine == nil {
		return nil, fmt.Errorf("trading graph needs a reasoning engine")
	}
	if toolkit == nil || toolkit.Markets == nil {
		return nil, fmt.Errorf("trading graph needs a market snapshot provider")
	}
	maxLoops := cfg.MaxLoops
	if maxLoops < 1 {
		maxLoops = 6
	}

	wf, err := NewWorkflow(ctx, &nodes{
		markets:  toolkit.Markets,
		executor: agents.NewExecutor(engine, toolkit, cfg.ParallelToolCalls),
		reviewer: reflection.NewReviewer(engine),
		maxLoops: maxLoops,

		keepHistory: cfg.KeepHistory,
	})
	if err != nil {
		return nil, err
	}
	return &TradingGraph{config: cfg, workflow: wf}, nil
}

// Propagate runs the workflow for one market. Aborts come back as an
// OutputState with Aborted set; a non-nil error means the run itself failed
// (invalid input, a broken judge, malformed terminal arguments).
func (g *TradingGraph) Propagate(ctx context.Context, in *models.InputState, opts ...compose.Option) (*models.OutputState, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	logger := logging.FromContext(ctx).WithMarket(in.MarketID)
	ctx = logging.IntoContext(ctx, logger)

	out, err := g.workflow.Invoke(ctx, in, opts...)
	if err != nil {
		logger.Error("workflow failed", "error", err)
		return nil, fmt.Errorf("workflow for market %s: %w", in.MarketID, err)
	}
	logger.Info("workflow finished", "phase", out.Phase, "aborted", out.Aborted, "decision", out.TradeDecision)
	return out, nil
}
