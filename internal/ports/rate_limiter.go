package ports

import (
	"time"
)

// RateLimitStatus is the caller-visible window state for one key.
type RateLimitStatus struct {
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	ResetTime   time.Time `json:"reset_time"`
	LastRequest time.Time `json:"last_request"`
}

// RateLimiter enforces per-user and per-(worker,user) request quotas
// plus a short-window burst guard. Counters are process-wide shared
// state, safe under arbitrary concurrent callers. The background sweep
// is released only by an explicit Stop.
type RateLimiter interface {
	// Check admits or rejects one request for user against both
	// windows and the burst guard, incrementing on admit. A rejection
	// is a *domain.RateLimitError carrying the window reset time.
	Check(userID, workerID string) error

	UserStatus(userID string) RateLimitStatus
	WorkerStatus(workerID, userID string) RateLimitStatus

	Stop()
}
