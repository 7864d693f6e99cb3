package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/threadline-io/threadline/internal/domain"
	"github.com/threadline-io/threadline/internal/ports"
)

// Registry is the process-wide worker registry. Descriptors are
// immutable once registered; replacing a worker requires unregister
// followed by register. Unregistering has no effect on in-flight
// executions that already hold a worker reference.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*ports.Registration
	health  ports.HealthMonitor
	logger  *slog.Logger
}

func NewRegistry(health ports.HealthMonitor, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		workers: make(map[string]*ports.Registration),
		health:  health,
		logger:  logger.With("component", "registry"),
	}
}

func (r *Registry) Register(id string, worker ports.WorkerPort, descriptor domain.WorkerDescriptor) error {
	if worker == nil {
		return &ports.WorkerRegistrationError{WorkerID: id, Reason: "worker cannot be nil"}
	}
	if id == "" {
		return &ports.WorkerRegistrationError{WorkerID: id, Reason: "worker id cannot be empty"}
	}
	if descriptor.ID != "" && descriptor.ID != id {
		return &ports.WorkerRegistrationError{WorkerID: id, Reason: "descriptor id does not match registration id"}
	}
	descriptor.ID = id

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; exists {
		r.logger.Warn("worker registration conflict detected", "worker_id", id)
		return &ports.WorkerRegistrationError{WorkerID: id, Reason: "worker already registered"}
	}

	r.workers[id] = &ports.Registration{Worker: worker, Descriptor: descriptor}
	if r.health != nil {
		r.health.Track(id, worker.Ping)
	}

	r.logger.Info("worker registered", "worker_id", id, "capabilities", descriptor.Capabilities)
	return nil
}

func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; !exists {
		r.logger.Warn("attempt to unregister unknown worker", "worker_id", id)
		return &domain.WorkerNotFoundError{WorkerID: id}
	}

	delete(r.workers, id)
	if r.health != nil {
		r.health.Forget(id)
	}

	r.logger.Info("worker unregistered", "worker_id", id)
	return nil
}

func (r *Registry) Lookup(id string) (*ports.Registration, error) {
	r.mu.RLock()
	reg, exists := r.workers[id]
	r.mu.RUnlock()

	if !exists {
		r.logger.Debug("worker not found", "worker_id", id)
		return nil, &domain.WorkerNotFoundError{WorkerID: id}
	}

	if r.health != nil {
		if status, tracked := r.health.Status(id); tracked && !status.Healthy {
			r.logger.Debug("worker lookup rejected, unhealthy", "worker_id", id)
			return nil, &domain.WorkerUnhealthyError{WorkerID: id, LastError: status.LastError}
		}
	}

	return reg, nil
}

func (r *Registry) QueryByCapability(capability string) []domain.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.WorkerDescriptor
	for _, reg := range r.workers {
		if reg.Descriptor.HasCapability(capability) {
			out = append(out, reg.Descriptor)
		}
	}
	sortDescriptors(out)
	return out
}

func (r *Registry) QueryByWorkflow(tag string) []domain.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.WorkerDescriptor
	for _, reg := range r.workers {
		if reg.Descriptor.SupportsWorkflow(tag) {
			out = append(out, reg.Descriptor)
		}
	}
	sortDescriptors(out)
	return out
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// ValidateDependencies walks every registered worker's declared
// dependency list. Each missing or unhealthy dependency becomes one
// descriptive issue; the report carries resolved and unresolved worker
// sets instead of an error so callers can decide policy.
func (r *Registry) ValidateDependencies() domain.DependencyReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := domain.DependencyReport{}
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		reg := r.workers[id]
		resolved := true
		for _, dep := range reg.Descriptor.Dependencies {
			if _, exists := r.workers[dep]; !exists {
				report.Issues = append(report.Issues,
					fmt.Sprintf("worker %s depends on %s which is not registered", id, dep))
				resolved = false
				continue
			}
			if r.health != nil {
				if status, tracked := r.health.Status(dep); tracked && !status.Healthy {
					report.Issues = append(report.Issues,
						fmt.Sprintf("worker %s depends on %s which is unhealthy", id, dep))
					resolved = false
				}
			}
		}
		if resolved {
			report.Resolved = append(report.Resolved, id)
		} else {
			report.Unresolved = append(report.Unresolved, id)
		}
	}

	if len(report.Issues) > 0 {
		r.logger.Warn("dependency validation found issues",
			"unresolved", len(report.Unresolved),
			"issues", len(report.Issues),
		)
	}
	return report
}

func (r *Registry) Stats() domain.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.RegistryStats{
		WorkerCount:            len(r.workers),
		CapabilityDistribution: make(map[string]int),
	}

	healthy := 0
	for id, reg := range r.workers {
		for _, c := range reg.Descriptor.Capabilities {
			stats.CapabilityDistribution[c]++
		}
		if r.health == nil {
			healthy++
			continue
		}
		if status, tracked := r.health.Status(id); !tracked || status.Healthy {
			healthy++
		}
	}
	if len(r.workers) > 0 {
		stats.HealthyPercent = float64(healthy) / float64(len(r.workers)) * 100
	}
	return stats
}

func sortDescriptors(descriptors []domain.WorkerDescriptor) {
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].ID < descriptors[j].ID
	})
}
