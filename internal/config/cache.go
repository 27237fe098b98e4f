package config

import (
	"os"
	"path/filepath"
	"sync"
)

// stamp records the file metadata a cache entry was built from.
type stamp struct {
	modTime int64
	size    int64
}

type cacheEntry struct {
	cfg   *Config
	stamp stamp
}

// Cache is a process-wide, concurrency-safe store of parsed
// configurations keyed by canonical path. An entry is evicted and
// reparsed when the underlying file's mtime or size changes, so a
// request's steady-state cost is a single stat call.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCache returns an empty configuration cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get resolves and returns the effective configuration for the given
// override path and working directory, using and maintaining the
// cache. An empty resolved path (no file at any precedence level)
// always returns the built-in empty default without touching the
// cache.
func (c *Cache) Get(override, cwd string) (*Config, error) {
	path := Resolve(override, cwd)
	if path == "" {
		return empty(), nil
	}

	canonical, err := filepath.Abs(path)
	if err != nil {
		canonical = path
	}
	if real, err := filepath.EvalSymlinks(canonical); err == nil {
		canonical = real
	}

	info, statErr := os.Stat(canonical)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return empty(), nil
		}
		return nil, statErr
	}
	st := stamp{modTime: info.ModTime().UnixNano(), size: info.Size()}

	c.mu.RLock()
	entry, ok := c.entries[canonical]
	c.mu.RUnlock()
	if ok && entry.stamp == st {
		return entry.cfg, nil
	}

	cfg, err := Load(canonical)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[canonical] = cacheEntry{cfg: cfg, stamp: st}
	c.mu.Unlock()

	return cfg, nil
}

// Invalidate drops the cached entry for path, if any.
func (c *Cache) Invalidate(path string) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		canonical = path
	}
	if real, err := filepath.EvalSymlinks(canonical); err == nil {
		canonical = real
	}
	c.mu.Lock()
	delete(c.entries, canonical)
	c.mu.Unlock()
}

// Len reports the number of distinct cached configurations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
