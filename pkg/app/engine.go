package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dyike/PolyCortex/config"
	"github.com/dyike/PolyCortex/internal/graph"
	"github.com/dyike/PolyCortex/internal/llm"
	"github.com/dyike/PolyCortex/internal/tools"
)

// Engine is one immutable build of the workflow for a config snapshot.
type Engine struct {
	Config  config.Config
	Graph   *graph.TradingGraph
	BuiltAt time.Time
	Version uint64
}

var engineSeq atomic.Uint64

// BuildEngine wires the chat model, the providers and the compiled graph.
func BuildEngine(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	ctx := context.Background()

	reasoner, err := llm.NewEngine(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	g, err := graph.NewTradingGraph(ctx, &cfg, reasoner, tools.NewToolkit(&cfg))
	if err != nil {
		return nil, fmt.Errorf("build trading graph: %w", err)
	}
	return &Engine{
		Config:  cfg,
		Graph:   g,
		BuiltAt: time.Now(),
		Version: engineSeq.Add(1),
	}, nil
}
