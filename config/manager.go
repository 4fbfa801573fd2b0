package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/fsnotify/fsnotify"
)

const fileName = "config.json"

// Listener receives the snapshot that was replaced and the one now active.
type Listener func(prev, next Config)

// Manager owns config.json. Updates are validated, written atomically with
// env-sourced secrets stripped, and fanned out to subscribers. Watch picks up
// edits made by hand while the process runs.
type Manager struct {
	path     string
	debounce time.Duration

	mu        sync.RWMutex
	cfg       Config
	listeners map[int]Listener
	nextID    int
	watching  bool

	// set while our own write is in flight so the watcher skips the echo
	selfWrite atomic.Bool
}

type managerOptions struct {
	configPath string
	debounce   time.Duration
}

type ManagerOption func(*managerOptions)

func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, fileName)
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

func NewManager(opts ...ManagerOption) (*Manager, error) {
	o := managerOptions{debounce: 300 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	if o.configPath == "" {
		path, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		o.configPath = path
	}
	if err := os.MkdirAll(filepath.Dir(o.configPath), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	m := &Manager{
		path:      o.configPath,
		debounce:  o.debounce,
		listeners: make(map[int]Listener),
	}

	cfg, err := m.read()
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		cfg = *DefaultConfigWithRoot(filepath.Dir(m.path))
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := m.write(cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
	default:
		return nil, fmt.Errorf("load config: %w", err)
	}
	m.cfg = cfg
	return m, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// Subscribe registers fn for every applied change. The returned func removes it.
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// UpdateFromJSON applies a JSON patch on top of the current snapshot: keys
// absent from raw keep their value.
func (m *Manager) UpdateFromJSON(raw string) error {
	next := m.Get()
	if err := json.Unmarshal([]byte(raw), &next); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return m.Update(next)
}

func (m *Manager) Update(next Config) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if len(Changed(m.Get(), next)) == 0 {
		return nil
	}

	m.selfWrite.Store(true)
	err := m.write(next)
	time.AfterFunc(m.debounce, func() { m.selfWrite.Store(false) })
	if err != nil {
		return err
	}
	m.apply(next)
	return nil
}

// Watch reloads config.json on external edits until ctx is done. Calling it
// again while a watch is active is a no-op.
func (m *Manager) Watch(ctx context.Context) error {
	m.mu.Lock()
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.setWatching(false)
		return err
	}
	// the directory, not the file: editors and our own writer replace it by rename
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		m.setWatching(false)
		return fmt.Errorf("watch config dir: %w", err)
	}

	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) setWatching(v bool) {
	m.mu.Lock()
	m.watching = v
	m.mu.Unlock()
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer m.setWatching(false)
	defer watcher.Close()
	logger := logging.Default().WithComponent("config")

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || m.selfWrite.Load() {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(m.debounce, m.reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}

// reload applies the file on disk. A missing file is recreated from the
// current snapshot; an unreadable or invalid one is ignored.
func (m *Manager) reload() {
	logger := logging.Default().WithComponent("config")

	next, err := m.read()
	if errors.Is(err, os.ErrNotExist) {
		if err := m.write(m.Get()); err != nil {
			logger.Error("config recreate failed", "path", m.path, "error", err)
		}
		return
	}
	if err != nil {
		logger.Warn("config reload failed, keeping previous", "path", m.path, "error", err)
		return
	}
	changed := Changed(m.Get(), next)
	if len(changed) == 0 {
		return
	}
	logger.Info("config reloaded", "path", m.path, "changed", changed)
	m.apply(next)
}

func (m *Manager) apply(next Config) {
	m.mu.Lock()
	prev := m.cfg
	m.cfg = next
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
}

// read decodes config.json over the defaults, so keys added in newer versions
// get their default value, then lets environment secrets win over the file.
func (m *Manager) read() (Config, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Config{}, err
	}
	cfg := *DefaultConfigWithRoot(filepath.Dir(m.path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", m.path, err)
	}
	cfg.applySecretsFromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// write replaces config.json through a temp file in the same directory.
func (m *Manager) write(cfg Config) error {
	data, err := json.MarshalIndent(cfg.persisted(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), m.path)
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "PolyCortex", fileName), nil
}
