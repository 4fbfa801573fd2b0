package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManagerCreatesAndPatches(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	before := mgr.Get()
	if err := mgr.UpdateFromJSON(`{"max_loops": 4, "keep_history": false}`); err != nil {
		t.Fatalf("UpdateFromJSON: %v", err)
	}

	got := mgr.Get()
	if got.MaxLoops != 4 || got.KeepHistory {
		t.Fatalf("patch not applied: max_loops=%d keep_history=%v", got.MaxLoops, got.KeepHistory)
	}
	if got.OrderbookDepth != before.OrderbookDepth || got.GammaBaseURL != before.GammaBaseURL {
		t.Fatalf("patch clobbered keys it did not name: %+v", got)
	}

	reopened, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Get().MaxLoops != 4 {
		t.Fatalf("patch not persisted, max_loops=%d", reopened.Get().MaxLoops)
	}
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := mgr.Get()
	cfg.MaxLoops = 0
	if err := mgr.Update(cfg); err == nil {
		t.Fatalf("expected validation error for max_loops=0")
	}
	if got := mgr.Get().MaxLoops; got != 6 {
		t.Fatalf("config changed after rejected update: max_loops=%d", got)
	}
}

func TestManagerFillsMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"max_loops": 3, "llm_provider": "openai", "model": "gpt-4o"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	mgr, err := NewManager(WithConfigPath(path))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := mgr.Get()
	if cfg.MaxLoops != 3 || cfg.LLMProvider != "openai" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.OrderbookDepth != 10 || cfg.GammaBaseURL == "" {
		t.Fatalf("defaults not filled: depth=%d gamma=%q", cfg.OrderbookDepth, cfg.GammaBaseURL)
	}
}

func TestManagerKeepsEnvSecretsOffDisk(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "tvly-from-env-1234")
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if mgr.Get().TavilyAPIKey != "tvly-from-env-1234" {
		t.Fatalf("env key not loaded: %q", mgr.Get().TavilyAPIKey)
	}

	cfg := mgr.Get()
	cfg.ExaAPIKey = "exa-typed-by-hand"
	cfg.TradesLimit = 20
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}

	data, err := os.ReadFile(mgr.Path())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if strings.Contains(string(data), "tvly-from-env-1234") {
		t.Fatalf("env-sourced key written to disk:\n%s", data)
	}
	if !strings.Contains(string(data), "exa-typed-by-hand") {
		t.Fatalf("explicit key was dropped:\n%s", data)
	}
}

func TestManagerNotifiesSubscribers(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	var calls int
	var lastPrev, lastNext Config
	unsubscribe := mgr.Subscribe(func(prev, next Config) {
		calls++
		lastPrev, lastNext = prev, next
	})

	cfg := mgr.Get()
	cfg.OrderbookDepth = 5
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 1 || lastPrev.OrderbookDepth != 10 || lastNext.OrderbookDepth != 5 {
		t.Fatalf("unexpected notification: calls=%d prev=%d next=%d", calls, lastPrev.OrderbookDepth, lastNext.OrderbookDepth)
	}

	// unchanged snapshot is not a change
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	unsubscribe()
	cfg.OrderbookDepth = 7
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one notification, got %d", calls)
	}
}

func TestManagerWatchReloads(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()), WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	mgr.Subscribe(func(_, next Config) {
		select {
		case reloaded <- next:
		default:
		}
	})
	if err := mgr.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(mgr.Path(), []byte(`{"max_search_results": 3}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case got := <-reloaded:
		if got.MaxSearchResults != 3 {
			t.Fatalf("expected max_search_results 3, got %d", got.MaxSearchResults)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}

func TestChangedAndRebuildNeeded(t *testing.T) {
	a := *DefaultConfigWithRoot(t.TempDir())
	b := a
	if keys := Changed(a, b); len(keys) != 0 {
		t.Fatalf("identical configs reported changes: %v", keys)
	}

	b.LogLevel = "debug"
	b.AvailableFunds = 50
	keys := Changed(a, b)
	if len(keys) != 2 || keys[0] != "available_funds" || keys[1] != "log_level" {
		t.Fatalf("unexpected changed keys: %v", keys)
	}
	if RebuildNeeded(keys) {
		t.Fatalf("log and funds changes should not need a rebuild")
	}

	b.Model = "deepseek-reasoner"
	if !RebuildNeeded(Changed(a, b)) {
		t.Fatalf("model change should need a rebuild")
	}
}
