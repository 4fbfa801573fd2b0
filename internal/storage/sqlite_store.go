package storage

import (
	"errors"
	"strings"
	"sync"

	"github.com/dyike/PolyCortex/config"
	"github.com/dyike/PolyCortex/internal/storage/sqlite"
)

var (
	storeMu   sync.Mutex
	storeInst *sqlite.Store
	storePath string
	// ErrDBPathNotConfigured indicates config.DBPath is empty.
	ErrDBPathNotConfigured = errors.New("db_path is not configured")
)

// Shared returns a process-wide store for cfg.DBPath. A different path closes
// the previous handle and opens the new one.
func Shared(cfg *config.Config) (*sqlite.Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	path := strings.TrimSpace(cfg.DBPath)
	if path == "" {
		return nil, ErrDBPathNotConfigured
	}

	storeMu.Lock()
	defer storeMu.Unlock()
	if storeInst != nil && storePath == path {
		return storeInst, nil
	}
	if storeInst != nil {
		_ = storeInst.Close()
		storeInst = nil
	}
	st, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	storeInst, storePath = st, path
	return st, nil
}

// CloseShared releases the shared store, if any.
func CloseShared() error {
	storeMu.Lock()
	defer storeMu.Unlock()
	if storeInst == nil {
		return nil
	}
	err := storeInst.Close()
	storeInst, storePath = nil, ""
	return err
}
