package memory

import (
	"log/slog"
	"sync"
	"time"
)

type variableEntry struct {
	value interface{}
	setAt time.Time
	ttl   time.Duration
}

func (e *variableEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.After(e.setAt.Add(e.ttl))
}

// Variables is a process-lifetime key/value store with per-entry TTL.
// Expired values are invisible to Get and lazily purged.
type Variables struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*variableEntry

	sweepInterval time.Duration
	stopOnce      sync.Once
	done          chan struct{}
}

func NewVariables(sweepInterval time.Duration, logger *slog.Logger) *Variables {
	if logger == nil {
		logger = slog.Default()
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	v := &Variables{
		logger:        logger.With("component", "variable-store"),
		entries:       make(map[string]*variableEntry),
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
	}

	go v.sweepLoop()

	return v
}

func (v *Variables) Set(key string, value interface{}, ttl time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.entries[key] = &variableEntry{
		value: value,
		setAt: time.Now(),
		ttl:   ttl,
	}
}

func (v *Variables) Get(key string) (interface{}, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, exists := v.entries[key]
	if !exists {
		return nil, false
	}
	if entry.expired(time.Now()) {
		delete(v.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (v *Variables) Delete(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, key)
}

// Snapshot returns the live, unexpired entries as a plain map.
func (v *Variables) Snapshot() map[string]interface{} {
	now := time.Now()

	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]interface{}, len(v.entries))
	for key, entry := range v.entries {
		if !entry.expired(now) {
			out[key] = entry.value
		}
	}
	return out
}

func (v *Variables) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

func (v *Variables) Stop() {
	v.stopOnce.Do(func() {
		close(v.done)
	})
}

func (v *Variables) sweepLoop() {
	ticker := time.NewTicker(v.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.done:
			return
		case <-ticker.C:
			v.sweep()
		}
	}
}

func (v *Variables) sweep() {
	now := time.Now()
	removed := 0

	v.mu.Lock()
	for key, entry := range v.entries {
		if entry.expired(now) {
			delete(v.entries, key)
			removed++
		}
	}
	v.mu.Unlock()

	if removed > 0 {
		v.logger.Debug("swept expired variables", "removed", removed)
	}
}
