package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyike/PolyCortex/config"
	"github.com/dyike/PolyCortex/internal/logging"
)

type EngineBuilder func(config.Config) (*Engine, error)

// ReloadEvent describes one reaction to a config change.
type ReloadEvent struct {
	Changed []string
	// false when only per-run keys changed and the engine was reused
	Rebuilt bool
	Version uint64
	Err     error
	At      time.Time
}

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

func WithNotifier(fn func(ReloadEvent)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

// Runtime holds the engine for the current config.json and swaps it when the
// file changes. A failed build leaves the previous engine serving runs.
type Runtime struct {
	cfgMgr *config.Manager
	engine atomic.Pointer[Engine]

	builder EngineBuilder
	notify  func(ReloadEvent)

	// serialises rebuilds triggered by overlapping changes
	buildMu     sync.Mutex
	unsubscribe func()
	cancel      context.CancelFunc
}

func NewRuntime(cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}
	rt := &Runtime{
		cfgMgr:  cfgMgr,
		builder: BuildEngine,
	}
	for _, opt := range opts {
		opt(rt)
	}

	engine, err := rt.builder(cfgMgr.Get())
	if err != nil {
		return nil, err
	}
	rt.engine.Store(engine)

	rt.unsubscribe = cfgMgr.Subscribe(rt.onConfigChange)
	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	if err := cfgMgr.Watch(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

func (r *Runtime) Config() config.Config {
	return r.cfgMgr.Get()
}

func (r *Runtime) UpdateConfigJSON(patch string) error {
	return r.cfgMgr.UpdateFromJSON(patch)
}

func (r *Runtime) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) onConfigChange(prev, next config.Config) {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	ev := ReloadEvent{Changed: config.Changed(prev, next), At: time.Now()}
	current := r.engine.Load()

	if !config.RebuildNeeded(ev.Changed) && current != nil {
		reused := *current
		reused.Config = next
		r.engine.Store(&reused)
		ev.Version = reused.Version
		r.emit(ev)
		return
	}

	engine, err := r.builder(next)
	if err != nil {
		ev.Err = err
		if current != nil {
			ev.Version = current.Version
		}
		r.emit(ev)
		return
	}
	r.engine.Store(engine)
	ev.Rebuilt = true
	ev.Version = engine.Version
	r.emit(ev)
}

func (r *Runtime) emit(ev ReloadEvent) {
	logger := logging.Default().WithComponent("runtime")
	switch {
	case ev.Err != nil:
		logger.Warn("engine rebuild failed, keeping previous", "changed", ev.Changed, "error", ev.Err)
	case ev.Rebuilt:
		logger.Info("engine rebuilt", "version", ev.Version, "changed", ev.Changed)
	default:
		logger.Debug("config applied without rebuild", "changed", ev.Changed)
	}
	if r.notify != nil {
		r.notify(ev)
	}
}
