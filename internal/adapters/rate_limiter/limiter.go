package rate_limiter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/threadline-io/threadline/internal/domain"
	"github.com/threadline-io/threadline/internal/ports"
)

const (
	ScopeUser   = "user"
	ScopeWorker = "worker"
	ScopeBurst  = "burst"
)

type windowEntry struct {
	count       int
	resetTime   time.Time
	lastRequest time.Time
}

// Limiter enforces two independent fixed windows, per-user and
// per-(worker,user), plus a burst guard that rejects short spikes even
// when the per-minute quota is not exhausted. All counters are
// process-wide shared state guarded by one mutex; a count resets only
// at its window boundary and is never decremented otherwise.
type Limiter struct {
	config domain.RateLimitConfig
	logger *slog.Logger

	mu      sync.Mutex
	users   map[string]*windowEntry
	workers map[string]*windowEntry
	bursts  map[string][]time.Time

	stopOnce sync.Once
	done     chan struct{}
}

func NewLimiter(config domain.RateLimitConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.WorkerRequestsPerHour <= 0 {
		config.WorkerRequestsPerHour = 1000
	}
	if config.BurstLimit <= 0 {
		config.BurstLimit = 10
	}
	if config.BurstWindow <= 0 {
		config.BurstWindow = 10 * time.Second
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}

	l := &Limiter{
		config:  config,
		logger:  logger.With("component", "rate-limiter"),
		users:   make(map[string]*windowEntry),
		workers: make(map[string]*windowEntry),
		bursts:  make(map[string][]time.Time),
		done:    make(chan struct{}),
	}

	go l.sweepLoop()

	return l
}

// Check admits or rejects one request. Order: burst guard, per-user
// window, per-(worker,user) window. Both windows increment together on
// admit so a rejection by one never consumes quota in the other.
func (l *Limiter) Check(userID, workerID string) error {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkBurstLocked(userID, now); err != nil {
		l.logger.Debug("burst limit exceeded", "user_id", userID)
		return err
	}

	user := l.entryLocked(l.users, userID, now, time.Minute)
	if user.count >= l.config.RequestsPerMinute {
		l.logger.Debug("user rate limit exceeded", "user_id", userID, "reset_time", user.resetTime)
		return &domain.RateLimitError{
			Scope:     ScopeUser,
			Key:       userID,
			Limit:     l.config.RequestsPerMinute,
			ResetTime: user.resetTime,
		}
	}

	workerKey := workerID + ":" + userID
	worker := l.entryLocked(l.workers, workerKey, now, time.Hour)
	if worker.count >= l.config.WorkerRequestsPerHour {
		l.logger.Debug("worker rate limit exceeded", "worker_id", workerID, "user_id", userID)
		return &domain.RateLimitError{
			Scope:     ScopeWorker,
			Key:       workerKey,
			Limit:     l.config.WorkerRequestsPerHour,
			ResetTime: worker.resetTime,
		}
	}

	user.count++
	user.lastRequest = now
	worker.count++
	worker.lastRequest = now
	l.bursts[userID] = append(l.bursts[userID], now)

	return nil
}

// entryLocked fetches the window entry for key, resetting it when
// absent or past its window boundary.
func (l *Limiter) entryLocked(entries map[string]*windowEntry, key string, now time.Time, window time.Duration) *windowEntry {
	e, exists := entries[key]
	if !exists || now.After(e.resetTime) {
		e = &windowEntry{resetTime: now.Add(window)}
		entries[key] = e
	}
	return e
}

func (l *Limiter) checkBurstLocked(userID string, now time.Time) error {
	cutoff := now.Add(-l.config.BurstWindow)
	recent := l.bursts[userID][:0]
	for _, t := range l.bursts[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	l.bursts[userID] = recent

	if len(recent) >= l.config.BurstLimit {
		return &domain.RateLimitError{
			Scope:     ScopeBurst,
			Key:       userID,
			Limit:     l.config.BurstLimit,
			ResetTime: recent[0].Add(l.config.BurstWindow),
		}
	}
	return nil
}

func (l *Limiter) UserStatus(userID string) ports.RateLimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return statusFrom(l.users[userID], l.config.RequestsPerMinute)
}

func (l *Limiter) WorkerStatus(workerID, userID string) ports.RateLimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return statusFrom(l.workers[workerID+":"+userID], l.config.WorkerRequestsPerHour)
}

func statusFrom(e *windowEntry, limit int) ports.RateLimitStatus {
	status := ports.RateLimitStatus{Limit: limit}
	if e == nil {
		return status
	}
	status.Count = e.count
	status.ResetTime = e.resetTime
	status.LastRequest = e.lastRequest
	return status
}

// Stop releases the sweep goroutine. Idempotent.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep drops entries whose window has passed. Housekeeping only;
// Check resets stale entries on its own.
func (l *Limiter) sweep() {
	now := time.Now()
	removed := 0

	l.mu.Lock()
	for key, e := range l.users {
		if now.After(e.resetTime) {
			delete(l.users, key)
			removed++
		}
	}
	for key, e := range l.workers {
		if now.After(e.resetTime) {
			delete(l.workers, key)
			removed++
		}
	}
	cutoff := now.Add(-l.config.BurstWindow)
	for key, stamps := range l.bursts {
		live := stamps[:0]
		for _, t := range stamps {
			if t.After(cutoff) {
				live = append(live, t)
			}
		}
		if len(live) == 0 {
			delete(l.bursts, key)
		} else {
			l.bursts[key] = live
		}
	}
	l.mu.Unlock()

	if removed > 0 {
		l.logger.Debug("swept expired rate limit entries", "removed", removed)
	}
}
