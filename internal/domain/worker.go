package domain

import (
	"time"
)

// WorkerDescriptor declares what a registered worker can do and what it
// needs. Immutable once registered; replacing a worker requires
// unregister followed by register.
type WorkerDescriptor struct {
	ID           string         `json:"id" yaml:"id"`
	Capabilities []string       `json:"capabilities" yaml:"capabilities"`
	Workflows    []string       `json:"workflows,omitempty" yaml:"workflows,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Limits       ResourceLimits `json:"limits" yaml:"limits"`
}

type ResourceLimits struct {
	MaxConcurrency int           `json:"max_concurrency" yaml:"max_concurrency"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	MemoryHintMB   int           `json:"memory_hint_mb" yaml:"memory_hint_mb"`
	Priority       int           `json:"priority" yaml:"priority"`
}

func (d WorkerDescriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

func (d WorkerDescriptor) SupportsWorkflow(tag string) bool {
	for _, w := range d.Workflows {
		if w == tag {
			return true
		}
	}
	return false
}

// HealthStatus tracks a worker's liveness as derived from consecutive
// probe outcomes.
type HealthStatus struct {
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

type HealthSummary struct {
	Total        int      `json:"total"`
	Healthy      int      `json:"healthy"`
	Unhealthy    int      `json:"unhealthy"`
	UnhealthyIDs []string `json:"unhealthy_ids,omitempty"`
}

// DependencyReport is the result of validating every registered worker's
// declared dependencies. It never carries an error; callers decide
// policy from the unresolved set.
type DependencyReport struct {
	Resolved   []string `json:"resolved"`
	Unresolved []string `json:"unresolved"`
	Issues     []string `json:"issues,omitempty"`
}

func (r DependencyReport) AllResolved() bool {
	return len(r.Unresolved) == 0
}

type RegistryStats struct {
	WorkerCount            int            `json:"worker_count"`
	HealthyPercent         float64        `json:"healthy_percent"`
	CapabilityDistribution map[string]int `json:"capability_distribution"`
}
