package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/internal/errs"
)

// Engine is the reasoning engine seen by executors and validators: one
// model turn with the given tools bound and tool use forced.
type Engine interface {
	Invoke(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error)
}

// ChatEngine adapts an eino tool-calling chat model to Engine.
type ChatEngine struct {
	model   model.ToolCallingChatModel
	timeout time.Duration
}

func NewChatEngine(m model.ToolCallingChatModel, timeout time.Duration) *ChatEngine {
	return &ChatEngine{model: m, timeout: timeout}
}

func (e *ChatEngine) Invoke(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	bound := e.model
	var opts []model.Option
	if len(tools) > 0 {
		var err error
		bound, err = e.model.WithTools(tools)
		if err != nil {
			return nil, errs.Fatal("BIND_TOOLS", "bind tools to chat model").WithCause(err)
		}
		opts = append(opts, model.WithToolChoice(schema.ToolChoiceForced))
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := bound.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("chat model generate: %w", err)
	}
	if out == nil {
		return nil, errs.Fatal("EMPTY_RESPONSE", "chat model returned no message")
	}
	return out, nil
}

// InvokeStructured forces a single call to tool and decodes its arguments
// into out.
func InvokeStructured(ctx context.Context, e Engine, msgs []*schema.Message, tool *schema.ToolInfo, out any) error {
	msg, err := e.Invoke(ctx, msgs, []*schema.ToolInfo{tool})
	if err != nil {
		return err
	}
	call, ok := FindCall(msg, tool.Name)
	if !ok {
		return errs.Fatal("NO_STRUCTURED_OUTPUT", fmt.Sprintf("model did not call %s", tool.Name))
	}
	if err := DecodeArguments(call, out); err != nil {
		return err
	}
	return nil
}

// FindCall returns the first tool call in msg naming name.
func FindCall(msg *schema.Message, name string) (schema.ToolCall, bool) {
	if msg == nil {
		return schema.ToolCall{}, false
	}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == name {
			return tc, true
		}
	}
	return schema.ToolCall{}, false
}

// DecodeArguments unmarshals the JSON arguments of call. Undecodable
// arguments are fatal for the run.
func DecodeArguments(call schema.ToolCall, out any) error {
	args := call.Function.Arguments
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), out); err != nil {
		return errs.Fatal("MALFORMED_ARGUMENTS", fmt.Sprintf("arguments of %s are not valid JSON", call.Function.Name)).WithCause(err)
	}
	return nil
}
