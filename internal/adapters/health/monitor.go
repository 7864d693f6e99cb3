package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/threadline-io/threadline/internal/domain"
)

type probeFunc func(context.Context) error

type entry struct {
	probe  probeFunc
	status domain.HealthStatus
}

// Monitor runs periodic liveness probes against every tracked worker.
// A worker flips to unhealthy only after reaching the configured
// consecutive-failure threshold and flips back on the very next
// successful probe. The ticker is owned by whoever calls Start and is
// released only by an explicit Stop.
type Monitor struct {
	config domain.HealthConfig
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewMonitor(config domain.HealthConfig, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = 30 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = 3
	}

	return &Monitor{
		config:  config,
		logger:  logger.With("component", "health-monitor"),
		entries: make(map[string]*entry),
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(runCtx)

	m.logger.Debug("health monitor started", "interval", m.config.CheckInterval)
	return nil
}

func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.logger.Debug("health monitor stopped")
	return nil
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// Track starts monitoring a worker. New workers begin healthy until a
// probe says otherwise.
func (m *Monitor) Track(workerID string, probe func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[workerID] = &entry{
		probe:  probe,
		status: domain.HealthStatus{Healthy: true},
	}
	m.logger.Debug("tracking worker", "worker_id", workerID)
}

func (m *Monitor) Forget(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, workerID)
	m.logger.Debug("stopped tracking worker", "worker_id", workerID)
}

// CheckOne probes a single worker and advances its status state
// machine.
func (m *Monitor) CheckOne(ctx context.Context, workerID string) (domain.HealthStatus, error) {
	m.mu.RLock()
	e, exists := m.entries[workerID]
	var probe probeFunc
	if exists {
		probe = e.probe
	}
	m.mu.RUnlock()

	if !exists {
		return domain.HealthStatus{}, &domain.WorkerNotFoundError{WorkerID: workerID}
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	err := probe(probeCtx)
	cancel()

	return m.record(workerID, err), nil
}

func (m *Monitor) record(workerID string, probeErr error) domain.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.entries[workerID]
	if !exists {
		return domain.HealthStatus{}
	}

	e.status.LastCheck = time.Now()
	if probeErr == nil {
		wasUnhealthy := !e.status.Healthy
		e.status.Healthy = true
		e.status.ConsecutiveFailures = 0
		e.status.LastError = ""
		if wasUnhealthy {
			m.logger.Info("worker recovered", "worker_id", workerID)
		}
	} else {
		e.status.ConsecutiveFailures++
		e.status.LastError = probeErr.Error()
		if e.status.Healthy && e.status.ConsecutiveFailures >= m.config.MaxConsecutiveFailures {
			e.status.Healthy = false
			m.logger.Warn("worker marked unhealthy",
				"worker_id", workerID,
				"consecutive_failures", e.status.ConsecutiveFailures,
				"error", probeErr.Error(),
			)
		}
	}
	return e.status
}

// CheckAll probes every tracked worker concurrently and waits for all
// probes to settle. One worker's probe failure never affects another's.
func (m *Monitor) CheckAll(ctx context.Context) map[string]bool {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	results := make(map[string]bool, len(ids))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()

			status, err := m.CheckOne(ctx, workerID)
			healthy := err == nil && status.Healthy

			resultsMu.Lock()
			results[workerID] = healthy
			resultsMu.Unlock()
		}(id)
	}
	wg.Wait()

	return results
}

func (m *Monitor) Status(workerID string) (domain.HealthStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.entries[workerID]
	if !exists {
		return domain.HealthStatus{}, false
	}
	return e.status, true
}

func (m *Monitor) IsHealthy(workerID string) bool {
	status, tracked := m.Status(workerID)
	return !tracked || status.Healthy
}

func (m *Monitor) Summary() domain.HealthSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := domain.HealthSummary{Total: len(m.entries)}
	for id, e := range m.entries {
		if e.status.Healthy {
			summary.Healthy++
		} else {
			summary.Unhealthy++
			summary.UnhealthyIDs = append(summary.UnhealthyIDs, id)
		}
	}
	sort.Strings(summary.UnhealthyIDs)
	return summary
}
