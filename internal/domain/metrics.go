package domain

import (
	"sync/atomic"
	"time"
)

// EngineMetrics is the process-wide execution counter set. All fields
// are updated atomically and read via GetSnapshot.
type EngineMetrics struct {
	WorkflowsStarted   int64 `json:"workflows_started"`
	WorkflowsCompleted int64 `json:"workflows_completed"`
	WorkflowsFailed    int64 `json:"workflows_failed"`
	WorkflowsCancelled int64 `json:"workflows_cancelled"`
	WorkflowsRejected  int64 `json:"workflows_rejected"`

	StepsExecuted  int64 `json:"steps_executed"`
	StepsSucceeded int64 `json:"steps_succeeded"`
	StepsFailed    int64 `json:"steps_failed"`
	StepsSkipped   int64 `json:"steps_skipped"`
	StepsRetried   int64 `json:"steps_retried"`

	WorkersInvoked     int64 `json:"workers_invoked"`
	CacheHits          int64 `json:"cache_hits"`
	RateLimitRejected  int64 `json:"rate_limit_rejected"`
	SecurityRejected   int64 `json:"security_rejected"`
	ValidationRejected int64 `json:"validation_rejected"`

	TotalStepTimeNs int64 `json:"total_step_time_ns"`
	StepTimeSamples int64 `json:"step_time_samples"`
}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{}
}

func (m *EngineMetrics) IncrementWorkflowsStarted()   { atomic.AddInt64(&m.WorkflowsStarted, 1) }
func (m *EngineMetrics) IncrementWorkflowsCompleted() { atomic.AddInt64(&m.WorkflowsCompleted, 1) }
func (m *EngineMetrics) IncrementWorkflowsFailed()    { atomic.AddInt64(&m.WorkflowsFailed, 1) }
func (m *EngineMetrics) IncrementWorkflowsCancelled() { atomic.AddInt64(&m.WorkflowsCancelled, 1) }
func (m *EngineMetrics) IncrementWorkflowsRejected()  { atomic.AddInt64(&m.WorkflowsRejected, 1) }
func (m *EngineMetrics) IncrementStepsExecuted()      { atomic.AddInt64(&m.StepsExecuted, 1) }
func (m *EngineMetrics) IncrementStepsSucceeded()     { atomic.AddInt64(&m.StepsSucceeded, 1) }
func (m *EngineMetrics) IncrementStepsFailed()        { atomic.AddInt64(&m.StepsFailed, 1) }
func (m *EngineMetrics) IncrementStepsSkipped()       { atomic.AddInt64(&m.StepsSkipped, 1) }
func (m *EngineMetrics) IncrementStepsRetried()       { atomic.AddInt64(&m.StepsRetried, 1) }
func (m *EngineMetrics) IncrementWorkersInvoked()     { atomic.AddInt64(&m.WorkersInvoked, 1) }
func (m *EngineMetrics) IncrementCacheHits()          { atomic.AddInt64(&m.CacheHits, 1) }
func (m *EngineMetrics) IncrementRateLimitRejected()  { atomic.AddInt64(&m.RateLimitRejected, 1) }
func (m *EngineMetrics) IncrementSecurityRejected()   { atomic.AddInt64(&m.SecurityRejected, 1) }
func (m *EngineMetrics) IncrementValidationRejected() { atomic.AddInt64(&m.ValidationRejected, 1) }

func (m *EngineMetrics) AddStepTime(d time.Duration) {
	atomic.AddInt64(&m.TotalStepTimeNs, int64(d))
	atomic.AddInt64(&m.StepTimeSamples, 1)
}

func (m *EngineMetrics) AverageStepTime() time.Duration {
	samples := atomic.LoadInt64(&m.StepTimeSamples)
	if samples == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&m.TotalStepTimeNs) / samples)
}

func (m *EngineMetrics) GetSnapshot() EngineMetrics {
	return EngineMetrics{
		WorkflowsStarted:   atomic.LoadInt64(&m.WorkflowsStarted),
		WorkflowsCompleted: atomic.LoadInt64(&m.WorkflowsCompleted),
		WorkflowsFailed:    atomic.LoadInt64(&m.WorkflowsFailed),
		WorkflowsCancelled: atomic.LoadInt64(&m.WorkflowsCancelled),
		WorkflowsRejected:  atomic.LoadInt64(&m.WorkflowsRejected),
		StepsExecuted:      atomic.LoadInt64(&m.StepsExecuted),
		StepsSucceeded:     atomic.LoadInt64(&m.StepsSucceeded),
		StepsFailed:        atomic.LoadInt64(&m.StepsFailed),
		StepsSkipped:       atomic.LoadInt64(&m.StepsSkipped),
		StepsRetried:       atomic.LoadInt64(&m.StepsRetried),
		WorkersInvoked:     atomic.LoadInt64(&m.WorkersInvoked),
		CacheHits:          atomic.LoadInt64(&m.CacheHits),
		RateLimitRejected:  atomic.LoadInt64(&m.RateLimitRejected),
		SecurityRejected:   atomic.LoadInt64(&m.SecurityRejected),
		ValidationRejected: atomic.LoadInt64(&m.ValidationRejected),
		TotalStepTimeNs:    atomic.LoadInt64(&m.TotalStepTimeNs),
		StepTimeSamples:    atomic.LoadInt64(&m.StepTimeSamples),
	}
}

// WorkerMetrics aggregates per-worker invocation telemetry.
type WorkerMetrics struct {
	Invocations int64 `json:"invocations"`
	Failures    int64 `json:"failures"`
	CacheHits   int64 `json:"cache_hits"`
	TotalTokens int64 `json:"total_tokens"`
	TotalTimeNs int64 `json:"total_time_ns"`
}

func (m *WorkerMetrics) Record(tokens int, d time.Duration, failed, cacheHit bool) {
	atomic.AddInt64(&m.Invocations, 1)
	atomic.AddInt64(&m.TotalTokens, int64(tokens))
	atomic.AddInt64(&m.TotalTimeNs, int64(d))
	if failed {
		atomic.AddInt64(&m.Failures, 1)
	}
	if cacheHit {
		atomic.AddInt64(&m.CacheHits, 1)
	}
}

func (m *WorkerMetrics) GetSnapshot() WorkerMetrics {
	return WorkerMetrics{
		Invocations: atomic.LoadInt64(&m.Invocations),
		Failures:    atomic.LoadInt64(&m.Failures),
		CacheHits:   atomic.LoadInt64(&m.CacheHits),
		TotalTokens: atomic.LoadInt64(&m.TotalTokens),
		TotalTimeNs: atomic.LoadInt64(&m.TotalTimeNs),
	}
}
