package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/dyike/PolyCortex/config"
)

func countingBuilder(fail *bool) EngineBuilder {
	return func(cfg config.Config) (*Engine, error) {
		if fail != nil && *fail {
			return nil, errors.New("model unavailable")
		}
		return &Engine{Config: cfg, Version: engineSeq.Add(1)}, nil
	}
}

func TestRuntimeRebuildsOnUpdate(t *testing.T) {
	mgr, err := config.NewManager(config.WithConfigDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	var mu sync.Mutex
	var events []ReloadEvent
	rt, err := NewRuntime(mgr, WithBuilder(countingBuilder(nil)), WithNotifier(func(ev ReloadEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	first := rt.Engine()
	if first == nil || first.Config.MaxLoops != 6 {
		t.Fatalf("expected initial engine with max_loops 6, got %+v", first)
	}

	cfg := rt.Config()
	cfg.MaxLoops = 3
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}

	second := rt.Engine()
	if second.Version <= first.Version {
		t.Fatalf("engine was not rebuilt: version %d -> %d", first.Version, second.Version)
	}
	if second.Config.MaxLoops != 3 {
		t.Fatalf("expected rebuilt engine with max_loops 3, got %d", second.Config.MaxLoops)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || !events[0].Rebuilt || events[0].Changed[0] != "max_loops" {
		t.Fatalf("unexpected reload events: %+v", events)
	}
}

func TestRuntimeReusesEngineForRunKeys(t *testing.T) {
	mgr, err := config.NewManager(config.WithConfigDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	rt, err := NewRuntime(mgr, WithBuilder(countingBuilder(nil)))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	before := rt.Engine()
	if err := rt.UpdateConfigJSON(`{"available_funds": 42, "log_level": "debug"}`); err != nil {
		t.Fatalf("UpdateConfigJSON: %v", err)
	}
	after := rt.Engine()
	if after.Version != before.Version {
		t.Fatalf("engine rebuilt for per-run keys: %d -> %d", before.Version, after.Version)
	}
	if after.Config.AvailableFunds != 42 {
		t.Fatalf("engine config not refreshed: funds=%v", after.Config.AvailableFunds)
	}
}

func TestRuntimeKeepsEngineOnFailedReload(t *testing.T) {
	mgr, err := config.NewManager(config.WithConfigDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	fail := false
	var failures int
	rt, err := NewRuntime(mgr, WithBuilder(countingBuilder(&fail)), WithNotifier(func(ev ReloadEvent) {
		if ev.Err != nil {
			failures++
		}
	}))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	before := rt.Engine()
	fail = true
	cfg := rt.Config()
	cfg.TradesLimit = 7
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rt.Engine() != before {
		t.Fatalf("engine replaced by a failed build")
	}
	if failures != 1 {
		t.Fatalf("expected one failure notification, got %d", failures)
	}
}

func TestBuildEngineNeedsCredentials(t *testing.T) {
	cfg := *config.DefaultConfigWithRoot(t.TempDir())
	cfg.DeepSeekAPIKey = ""
	cfg.OpenAIAPIKey = ""
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := BuildEngine(cfg); err == nil {
		t.Fatalf("expected missing api key error")
	}
}

func TestBuildEngineCompilesWorkflow(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-test-not-used")
	cfg := *config.DefaultConfigWithRoot(t.TempDir())
	cfg.LLMProvider = "deepseek"
	cfg.DeepSeekAPIKey = "sk-test-not-used"

	engine, err := BuildEngine(cfg)
	if err != nil {
		t.Fatalf("BuildEngine: %v", err)
	}
	if engine.Graph == nil {
		t.Fatalf("engine has no compiled graph")
	}

	cfg.LLMProvider = "openai"
	cfg.Model = "gpt-4o-mini"
	cfg.OpenAIAPIKey = "sk-test-not-used"
	if _, err := BuildEngine(cfg); err != nil {
		t.Fatalf("BuildEngine with openai: %v", err)
	}
}
