package dataflows

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// ResponseCache keeps decoded provider responses on disk, one directory per
// source. Order books and trades are never cached; only lookups whose answer
// is stable for a few minutes go through it.
type ResponseCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

type cacheEntry struct {
	StoredAt time.Time       `json:"stored_at"`
	Request  json.RawMessage `json:"request"`
	Data     json.RawMessage `json:"data"`
}

// NewResponseCache returns nil when caching is off; a nil cache misses on
// every lookup and drops every store.
func NewResponseCache(dir string, ttl time.Duration, enabled bool) *ResponseCache {
	if !enabled || dir == "" || ttl <= 0 {
		return nil
	}
	return &ResponseCache{dir: dir, ttl: ttl, now: time.Now}
}

func (c *ResponseCache) path(source, method string, req []byte) string {
	sum := sha256.Sum256(append([]byte(method+"\x00"), req...))
	return filepath.Join(c.dir, source, method+"-"+hex.EncodeToString(sum[:12])+".json")
}

// Load decodes a fresh entry for (source, method, request) into out.
func (c *ResponseCache) Load(source, method string, request, out any) bool {
	if c == nil {
		return false
	}
	req, err := json.Marshal(request)
	if err != nil {
		return false
	}
	p := c.path(source, method, req)
	data, err := os.ReadFile(p)
	if err != nil {
		return false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || c.now().Sub(entry.StoredAt) > c.ttl {
		_ = os.Remove(p)
		return false
	}
	return json.Unmarshal(entry.Data, out) == nil
}

// Store records v as the answer to (source, method, request).
func (c *ResponseCache) Store(source, method string, request, v any) error {
	if c == nil {
		return nil
	}
	req, err := json.Marshal(request)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	entry, err := json.Marshal(cacheEntry{StoredAt: c.now().UTC(), Request: req, Data: data})
	if err != nil {
		return err
	}

	p := c.path(source, method, req)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, entry, 0o644)
}
