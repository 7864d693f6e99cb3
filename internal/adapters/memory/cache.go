package memory

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/threadline-io/threadline/internal/domain"
	"github.com/threadline-io/threadline/internal/ports"
)

type cacheEntry struct {
	response   *domain.WorkerResponse
	insertedAt time.Time
	ttl        time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.insertedAt.Add(e.ttl))
}

// ResponseCache is the TTL-keyed worker response cache. Reads treat
// expired entries as absent and remove them on the spot; the sweep
// goroutine only reclaims memory for keys nobody reads again.
type ResponseCache struct {
	config domain.CacheConfig
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*cacheEntry

	hits    int64
	misses  int64
	evicted int64

	stopOnce sync.Once
	done     chan struct{}
}

func NewResponseCache(config domain.CacheConfig, logger *slog.Logger) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 15 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 10000
	}

	c := &ResponseCache{
		config:  config,
		logger:  logger.With("component", "response-cache"),
		entries: make(map[string]*cacheEntry),
		done:    make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

func (c *ResponseCache) Get(key string) (*domain.WorkerResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if entry.expired(time.Now()) {
		delete(c.entries, key)
		atomic.AddInt64(&c.misses, 1)
		atomic.AddInt64(&c.evicted, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return entry.response, true
}

func (c *ResponseCache) Set(key string, resp *domain.WorkerResponse, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{
		response:   resp,
		insertedAt: time.Now(),
		ttl:        ttl,
	}
}

func (c *ResponseCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *ResponseCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.insertedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		atomic.AddInt64(&c.evicted, 1)
	}
}

func (c *ResponseCache) Stats() ports.CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return ports.CacheStats{
		Entries: entries,
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Evicted: atomic.LoadInt64(&c.evicted),
	}
}

// Stop releases the sweep goroutine. Idempotent.
func (c *ResponseCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

func (c *ResponseCache) sweepLoop() {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *ResponseCache) sweep() {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		atomic.AddInt64(&c.evicted, int64(removed))
		c.logger.Debug("swept expired cache entries", "removed", removed)
	}
}
