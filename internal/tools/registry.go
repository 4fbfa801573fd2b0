package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"golang.org/x/sync/errgroup"
)

// maxParallelCalls bounds concurrent capability calls within one turn.
const maxParallelCalls = 4

// Registry is the closed set of capability tools of one phase, keyed by name.
type Registry struct {
	tools map[string]tool.InvokableTool
	infos []*schema.ToolInfo
}

// NewRegistry validates and indexes tools. Names must be non-empty, unique,
// and must not shadow a terminal tool.
func NewRegistry(ctx context.Context, list ...tool.InvokableTool) (*Registry, error) {
	r := &Registry{tools: make(map[string]tool.InvokableTool, len(list))}
	for _, t := range list {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		if info.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if IsTerminal(info.Name) {
			return nil, fmt.Errorf("tool %s collides with a terminal tool", info.Name)
		}
		if _, dup := r.tools[info.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %s", info.Name)
		}
		r.tools[info.Name] = t
		r.infos = append(r.infos, info)
	}
	return r, nil
}

// Infos lists the tool schemas in registration order.
func (r *Registry) Infos() []*schema.ToolInfo {
	return append([]*schema.ToolInfo(nil), r.infos...)
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) Len() int {
	return len(r.tools)
}

// Dispatch runs every call and returns one tool message per call in request
// order. Failures become error-status results; Dispatch itself never fails.
func (r *Registry) Dispatch(ctx context.Context, calls []schema.ToolCall, parallel bool) []*schema.Message {
	out := make([]*schema.Message, len(calls))
	if !parallel || len(calls) < 2 {
		for i, call := range calls {
			out[i] = r.invoke(ctx, call)
		}
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCalls)
	for i, call := range calls {
		g.Go(func() error {
			out[i] = r.invoke(gctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Registry) invoke(ctx context.Context, call schema.ToolCall) *schema.Message {
	name := call.Function.Name
	t, ok := r.tools[name]
	if !ok {
		return ErrorResult(call, fmt.Errorf("unknown tool %q", name))
	}
	args := call.Function.Arguments
	if args == "" {
		args = "{}"
	}
	content, err := t.InvokableRun(ctx, args)
	if err != nil {
		return ErrorResult(call, err)
	}
	return Result(call, content, consts.ToolStatusSuccess)
}

// Result wraps content as the tool message answering call.
func Result(call schema.ToolCall, content, status string) *schema.Message {
	return &schema.Message{
		Role:       schema.Tool,
		Content:    content,
		ToolCallID: call.ID,
		Extra: map[string]any{
			consts.ExtraStatus:   status,
			consts.ExtraToolName: call.Function.Name,
		},
	}
}

func ErrorResult(call schema.ToolCall, err error) *schema.Message {
	body, _ := json.Marshal(map[string]string{
		"status": consts.ToolStatusError,
		"error":  err.Error(),
	})
	return Result(call, string(body), consts.ToolStatusError)
}
