package dataflows

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache is a TTL cache keyed by (source, method, params). Entries live in
// memory and, when a directory is configured, are mirrored to JSON files so
// that repeated runs on the same day reuse fetched data.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time

	mu  sync.Mutex
	mem map[string]cacheEntry
}

type cacheEntry struct {
	data     []byte
	storedAt time.Time
}

// NewCache creates a cache. An empty dir keeps entries in memory only.
func NewCache(dir string, ttl time.Duration, enabled bool) *Cache {
	return &Cache{
		dir:     dir,
		ttl:     ttl,
		enabled: enabled && ttl > 0,
		now:     time.Now,
		mem:     make(map[string]cacheEntry),
	}
}

func (c *Cache) key(source, method string, params any) string {
	data, _ := json.Marshal(params)
	return fmt.Sprintf("%s_%s_%x.json", source, method, md5.Sum(data))
}

// Get decodes a fresh entry into result and reports whether one was found.
func (c *Cache) Get(source, method string, params any, result any) bool {
	if c == nil || !c.enabled {
		return false
	}
	key := c.key(source, method, params)

	c.mu.Lock()
	entry, ok := c.mem[key]
	if ok && c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.mem, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok && c.dir != "" {
		path := filepath.Join(c.dir, key)
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if c.now().Sub(info.ModTime()) > c.ttl {
			os.Remove(path)
			return false
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		entry, ok = cacheEntry{data: data, storedAt: info.ModTime()}, true
	}
	if !ok {
		return false
	}
	return json.Unmarshal(entry.data, result) == nil
}

// Set stores data under the key.
func (c *Cache) Set(source, method string, params any, data any) error {
	if c == nil || !c.enabled {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	key := c.key(source, method, params)

	c.mu.Lock()
	c.mem[key] = cacheEntry{data: raw, storedAt: c.now()}
	c.mu.Unlock()

	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, key), raw, 0o644)
}
