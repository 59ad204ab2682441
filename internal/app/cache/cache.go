// Package cache provides a short-TTL memoization cache for idempotent remote
// reads. Losing every entry is always safe; only latency changes.
package cache

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/mkaschke/offtrack/internal/infra/metrics"
	"github.com/mkaschke/offtrack/internal/infra/store"
)

// entry is a cached value with its expiry. Exported fields so mirrored
// entries survive the JSON round trip through the persistent store.
type entry struct {
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Option configures a Cache.
type Option func(*Cache)

// WithMirror enables best-effort durable mirroring of entries through the
// given store. Stale mirrors are acceptable; the expiry check on read
// self-heals them.
func WithMirror(s store.Store) Option {
	return func(c *Cache) { c.mirror = s }
}

// WithMetrics wires hit/miss counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// mirrorIndexKey holds the list of mirrored keys so Clear can sweep mirrors
// written by earlier processes, not just entries currently in memory.
const mirrorIndexKey = "cache_index"

// Cache is an in-memory map of key to (value, expiry).
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	mirrored map[string]struct{}
	mirror   store.Store
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*entry),
		mirrored: make(map[string]struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mirror != nil {
		var keys []string
		if _, err := c.mirror.Load(mirrorIndexKey, &keys); err != nil {
			zlog.Warn().Err(err).Msg("cache: mirror index read failed")
		}
		for _, k := range keys {
			c.mirrored[k] = struct{}{}
		}
	}
	return c
}

// Get returns the value for key if it has not expired. Expired entries are
// treated as absent and evicted lazily.
func (c *Cache) Get(key string) ([]byte, bool) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.expired(now) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if ok {
		c.metrics.CacheHit()
		return e.Data, true
	}

	// Consult the durable mirror before declaring a miss.
	if c.mirror != nil {
		var m entry
		found, err := c.mirror.Load(c.mirrorKey(key), &m)
		if err != nil {
			zlog.Warn().Err(err).Str("key", key).Msg("cache: mirror read failed")
		} else if found && !m.expired(now) {
			c.mu.Lock()
			c.entries[key] = &m
			c.mirrored[key] = struct{}{}
			c.mu.Unlock()
			c.metrics.CacheHit()
			return m.Data, true
		}
	}

	c.metrics.CacheMiss()
	return nil, false
}

// Set stores data under key for the given TTL, overwriting unconditionally.
func (c *Cache) Set(key string, data []byte, ttl time.Duration) {
	now := c.now()
	e := &entry{
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	c.mu.Lock()
	c.entries[key] = e
	if c.mirror != nil {
		c.mirrored[key] = struct{}{}
	}
	c.mu.Unlock()

	if c.mirror != nil {
		if err := c.mirror.Save(c.mirrorKey(key), e); err != nil {
			zlog.Warn().Err(err).Str("key", key).Msg("cache: mirror write failed")
		}
		c.saveMirrorIndex()
	}
}

// Remove deletes a key immediately.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	delete(c.mirrored, key)
	c.mu.Unlock()

	if c.mirror != nil {
		if err := c.mirror.Remove(c.mirrorKey(key)); err != nil {
			zlog.Warn().Err(err).Str("key", key).Msg("cache: mirror remove failed")
		}
		c.saveMirrorIndex()
	}
}

// Clear removes all entries, including mirrors left behind by earlier
// processes.
func (c *Cache) Clear() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.mirrored))
	for k := range c.mirrored {
		keys = append(keys, k)
	}
	c.entries = make(map[string]*entry)
	c.mirrored = make(map[string]struct{})
	c.mu.Unlock()

	if c.mirror != nil {
		for _, k := range keys {
			_ = c.mirror.Remove(c.mirrorKey(k))
		}
		_ = c.mirror.Remove(mirrorIndexKey)
	}
}

// Cleanup sweeps all expired entries proactively. Useful for bounding memory
// in long-lived processes; correctness never depends on it.
func (c *Cache) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including not-yet-evicted expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) mirrorKey(key string) string {
	return "cache_" + key
}

func (c *Cache) saveMirrorIndex() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.mirrored))
	for k := range c.mirrored {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	if err := c.mirror.Save(mirrorIndexKey, keys); err != nil {
		zlog.Warn().Err(err).Msg("cache: mirror index write failed")
	}
}
