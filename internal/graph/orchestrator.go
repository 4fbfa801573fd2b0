package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/models"
)

// phaseNodes names the four nodes of one phase sub-loop.
type phaseNodes struct {
	phase   models.Phase
	guard   string
	agent   string
	tools   string
	reflect string
}

var phases = []phaseNodes{
	{models.PhaseResearch, consts.ResearchGuard, consts.ResearchAgent, consts.ResearchTools, consts.ResearchReflect},
	{models.PhaseAnalysis, consts.AnalysisGuard, consts.AnalysisAgent, consts.AnalysisTools, consts.AnalysisReflect},
	{models.PhaseTrade, consts.TradeGuard, consts.TradeAgent, consts.TradeTools, consts.TradeReflect},
}

func nodesFor(p models.Phase) phaseNodes {
	for _, n := range phases {
		if n.phase == p {
			return n
		}
	}
	return phaseNodes{}
}

func agentHandOff(ctx context.Context, input string) (next string, err error) {
	_ = compose.ProcessState[*models.WorkflowState](ctx, func(_ context.Context, state *models.WorkflowState) error {
		next = state.Goto
		return nil
	})
	return next, nil
}

func outMap(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// maxRunSteps bounds graph supersteps: every executor turn costs at most
// four node visits (guard, agent, tools or reflect), plus the fixed nodes.
func maxRunSteps(maxLoops int) int {
	return 3*(maxLoops*4+4) + 10
}

// NewWorkflow wires the Research -> Analysis -> Trade sub-loops into one
// graph. Routing is driven by WorkflowState.Goto, written by each node.
func NewWorkflow(ctx context.Context, n *nodes) (compose.Runnable[*models.InputState, *models.OutputState], error) {
	g := compose.NewGraph[*models.InputState, *models.OutputState](
		compose.WithGenLocalState(func(ctx context.Context) *models.WorkflowState {
			return &models.WorkflowState{}
		}),
	)

	var wireErr error
	check := func(err error) {
		if wireErr == nil && err != nil {
			wireErr = err
		}
	}
	branch := func(from string, to ...string) {
		check(g.AddBranch(from, compose.NewGraphBranch(agentHandOff, outMap(to...))))
	}

	// every node must exist before a branch may name it as an end node
	check(g.AddLambdaNode(consts.InitRun, compose.InvokableLambda(n.initRun), compose.WithNodeName(consts.InitRun)))
	check(g.AddLambdaNode(consts.FetchMarket, compose.InvokableLambda(n.fetchMarket), compose.WithNodeName(consts.FetchMarket)))
	check(g.AddLambdaNode(consts.Finish, compose.InvokableLambda(n.finish), compose.WithNodeName(consts.Finish)))
	for _, p := range phases {
		check(g.AddLambdaNode(p.guard, compose.InvokableLambda(n.guard(p)), compose.WithNodeName(p.guard)))
		check(g.AddLambdaNode(p.agent, compose.InvokableLambda(n.agent(p)), compose.WithNodeName(p.agent)))
		check(g.AddLambdaNode(p.tools, compose.InvokableLambda(n.tools(p)), compose.WithNodeName(p.tools)))
		check(g.AddLambdaNode(p.reflect, compose.InvokableLambda(n.reflect(p)), compose.WithNodeName(p.reflect)))
	}

	check(g.AddEdge(compose.START, consts.InitRun))
	check(g.AddEdge(consts.InitRun, consts.FetchMarket))
	branch(consts.FetchMarket, phases[0].guard, consts.Finish)
	for i, p := range phases {
		nextGuard := consts.Finish
		if i+1 < len(phases) {
			nextGuard = phases[i+1].guard
		}
		branch(p.guard, p.agent, consts.Finish)
		branch(p.agent, p.guard, p.tools, p.reflect, consts.Finish)
		branch(p.tools, p.guard, consts.Finish)
		branch(p.reflect, p.guard, nextGuard, consts.Finish)
	}
	check(g.AddEdge(consts.Finish, compose.END))
	if wireErr != nil {
		return nil, fmt.Errorf("wire workflow: %w", wireErr)
	}

	r, err := g.Compile(ctx,
		compose.WithGraphName("PolyCortex-Workflow"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(maxRunSteps(n.maxLoops)),
	)
	if err != nil {
		return nil, fmt.Errorf("compile workflow: %w", err)
	}
	return r, nil
}
