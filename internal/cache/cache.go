package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/evidencecheck/internal/model"
)

// Cache stores fetched report bodies, detection files and finished analyses
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from a namespace and the inputs that determine the value
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "evidencecheck-v1-" + namespace + "-" + hex.EncodeToString(h.Sum(nil))
}

// New builds the cache described by cfg: memory backed by disk, or a no-op cache when disabled
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return Nop{}
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}

// GetJSON decodes a cached JSON value into v
func GetJSON(c Cache, key string, v any) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON encodes v as JSON and caches it
func SetJSON(c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(key, data, ttl)
}

// Nop is a cache that stores nothing
type Nop struct{}

func (Nop) Get(string) ([]byte, bool) { return nil, false }

func (Nop) Set(string, []byte, time.Duration) error { return nil }

func (Nop) Delete(string) error { return nil }

func (Nop) Clear() error { return nil }
