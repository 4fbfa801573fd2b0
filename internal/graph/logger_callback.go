package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/models"
)

// LoggerCallback logs node activity and, when Out is set, streams it as
// RunEvents. It never touches the graph state: ProcessState is held by the
// node being reported on.
type LoggerCallback struct {
	callbacks.HandlerBuilder

	RunID  string
	Logger *logging.Logger
	Out    chan<- models.RunEvent
}

func NewLoggerCallback(runID string, logger *logging.Logger, out chan<- models.RunEvent) *LoggerCallback {
	if logger == nil {
		logger = logging.Default()
	}
	return &LoggerCallback{RunID: runID, Logger: logger.WithComponent("graph"), Out: out}
}

func (cb *LoggerCallback) push(ctx context.Context, ev models.RunEvent) {
	if cb.Out == nil {
		return
	}
	ev.RunID = cb.RunID
	select {
	case cb.Out <- ev:
	case <-ctx.Done():
	}
}

func nodeName(info *callbacks.RunInfo) string {
	if info == nil {
		return ""
	}
	return info.Name
}

func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	node := nodeName(info)
	cb.Logger.Debug("node start", "node", node)
	cb.push(ctx, models.RunEvent{Kind: "start", Node: node})
	return ctx
}

func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	node := nodeName(info)
	ev := models.RunEvent{Kind: "end", Node: node}
	if out, ok := output.(*models.OutputState); ok && out != nil {
		ev.Kind = "result"
		ev.Message = fmt.Sprintf("phase=%s decision=%s aborted=%t", out.Phase, out.TradeDecision, out.Aborted)
	}
	cb.Logger.Debug("node end", "node", node)
	cb.push(ctx, ev)
	return ctx
}

func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	node := nodeName(info)
	cb.Logger.Error("node failed", "node", node, "error", err)
	cb.push(ctx, models.RunEvent{Kind: "error", Node: node, Message: err.Error()})
	return ctx
}

func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}

func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}
