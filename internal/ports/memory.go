package ports

import (
	"time"

	"github.com/threadline-io/threadline/internal/domain"
)

type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Evicted int64 `json:"evicted"`
}

// ResponseCache is the TTL-keyed worker response cache. Expired entries
// are invisible to Get and removed on access; the sweep goroutine is
// pure housekeeping.
type ResponseCache interface {
	Get(key string) (*domain.WorkerResponse, bool)
	Set(key string, resp *domain.WorkerResponse, ttl time.Duration)
	Invalidate(key string)
	Stats() CacheStats
	Stop()
}

// ConversationMemory keeps the rolling conversation history per
// session, trimming to a maximum length and compressing the middle span
// once the history exceeds a threshold.
type ConversationMemory interface {
	Append(sessionID string, entry domain.ConversationEntry)
	History(sessionID string) []domain.ConversationEntry
	Clear(sessionID string)
	Sessions() int
}

// VariableStore is a process-lifetime key/value store with per-entry
// TTL, used for short-term cross-invocation state.
type VariableStore interface {
	Set(key string, value interface{}, ttl time.Duration)
	Get(key string) (interface{}, bool)
	Delete(key string)
	Snapshot() map[string]interface{}
	Len() int
	Stop()
}
