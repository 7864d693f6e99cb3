// Package threadline provides a multi-worker task orchestration engine
// for Go applications.
//
// Threadline routes work to registered workers through a fixed
// execution pipeline (security validation, rate limiting, caching,
// retrying invocation) and composes workers into declarative workflows
// under four coordination patterns:
//   - sequential: declared order, one step at a time
//   - parallel: dependency-closure groups, siblings run concurrently
//   - conditional: sequential with shared-state predicates gating steps
//   - event_driven: sequential with step lifecycle event emission
//
// Basic usage:
//
//	engine := threadline.New(nil, myBackend)
//	engine.RegisterWorker("summarizer", summarizer, descriptor)
//	engine.Start(context.Background())
//
//	exec, err := engine.ExecuteWorkflow(ctx, def, threadline.NewExecutionContext("session-1", "user-1"))
package threadline

import (
	"github.com/threadline-io/threadline/internal/core"
	"github.com/threadline-io/threadline/internal/domain"
	"github.com/threadline-io/threadline/internal/ports"
)

// Orchestrator is the main engine type. It owns every subsystem and is
// the only entry point into the module.
type Orchestrator = core.Orchestrator

// Stats is the aggregate operational snapshot across subsystems.
type Stats = core.Stats

// Config is the full engine configuration. Zero values fall back to
// defaults per section.
type Config = domain.Config

// WorkerDescriptor declares a worker's identity, capabilities,
// workflow tags, dependencies, and resource limits at registration.
type WorkerDescriptor = domain.WorkerDescriptor

// ResourceLimits carries per-worker concurrency, timeout, and priority
// hints.
type ResourceLimits = domain.ResourceLimits

// ExecutionContext carries session identity, permissions, and the
// shared state threaded through a workflow run.
type ExecutionContext = domain.ExecutionContext

// SharedState is the typed, TTL-aware variable store workflow steps
// read and write through mappings.
type SharedState = domain.SharedState

// WorkerRequest is the caller-facing invocation request.
type WorkerRequest = domain.WorkerRequest

// WorkerResponse is the standard response shape every worker produces.
type WorkerResponse = domain.WorkerResponse

// InvocationOptions tunes one invocation: timeout, attempts, cache
// behavior.
type InvocationOptions = domain.InvocationOptions

// WorkflowDefinition is a declarative multi-step plan.
type WorkflowDefinition = domain.WorkflowDefinition

// WorkflowStep is one unit of a workflow definition.
type WorkflowStep = domain.WorkflowStep

// InputMapping binds a step input field to context, shared state, or a
// static value.
type InputMapping = domain.InputMapping

// OutputMapping writes a response field into shared state.
type OutputMapping = domain.OutputMapping

// Condition is a shared-state predicate gating a step.
type Condition = domain.Condition

// RetryPolicy shapes per-step retry backoff.
type RetryPolicy = domain.RetryPolicy

// ErrorPolicy decides what a step failure does to the run.
type ErrorPolicy = domain.ErrorPolicy

// WorkflowExecution is the live record of one workflow run.
type WorkflowExecution = domain.WorkflowExecution

// ExecutionSnapshot is the caller-visible copy of a run's state.
type ExecutionSnapshot = domain.ExecutionSnapshot

// ConversationEntry is one turn of rolling session history.
type ConversationEntry = domain.ConversationEntry

// HealthSummary aggregates worker liveness.
type HealthSummary = domain.HealthSummary

// DependencyReport lists resolved and unresolved worker dependencies.
type DependencyReport = domain.DependencyReport

// WorkerPort is the capability contract registered workers implement.
type WorkerPort = ports.WorkerPort

// InferenceBackend is the boundary with the model-serving system.
type InferenceBackend = ports.InferenceBackend

// EventManager fans workflow and step lifecycle events out to
// registered observers.
type EventManager = ports.EventManager

// Workflow lifecycle events.

// WorkflowStartedEvent is emitted when a workflow run begins.
type WorkflowStartedEvent = domain.WorkflowStartedEvent

// WorkflowCompletedEvent is emitted when a run reaches completed.
type WorkflowCompletedEvent = domain.WorkflowCompletedEvent

// WorkflowFailedEvent is emitted when a run reaches failed.
type WorkflowFailedEvent = domain.WorkflowFailedEvent

// WorkflowCancelledEvent is emitted when a run is cancelled.
type WorkflowCancelledEvent = domain.WorkflowCancelledEvent

// StepStartedEvent is emitted when an event_driven step starts.
type StepStartedEvent = domain.StepStartedEvent

// StepCompletedEvent is emitted when an event_driven step finishes.
type StepCompletedEvent = domain.StepCompletedEvent

// StepFailedEvent is emitted when an event_driven step fails.
type StepFailedEvent = domain.StepFailedEvent

// Typed errors callers match on.

// SecurityError reports a rejected request with its violations and
// risk score.
type SecurityError = domain.SecurityError

// RateLimitError reports a rejected request with the window reset
// time.
type RateLimitError = domain.RateLimitError

// CircularDependencyError reports a dependency cycle found before any
// step ran.
type CircularDependencyError = domain.CircularDependencyError

// StepExecutionError reports a step failure after its attempts were
// spent.
type StepExecutionError = domain.StepExecutionError

// MappingError reports an input or output mapping defect.
type MappingError = domain.MappingError

// Coordination patterns.
const (
	PatternSequential  = domain.PatternSequential
	PatternParallel    = domain.PatternParallel
	PatternConditional = domain.PatternConditional
	PatternEventDriven = domain.PatternEventDriven
)

// Workflow statuses.
const (
	WorkflowStatusInitializing = domain.WorkflowStatusInitializing
	WorkflowStatusRunning      = domain.WorkflowStatusRunning
	WorkflowStatusCompleted    = domain.WorkflowStatusCompleted
	WorkflowStatusFailed       = domain.WorkflowStatusFailed
	WorkflowStatusCancelled    = domain.WorkflowStatusCancelled
)

// Step statuses.
const (
	StepStatusPending   = domain.StepStatusPending
	StepStatusRunning   = domain.StepStatusRunning
	StepStatusCompleted = domain.StepStatusCompleted
	StepStatusFailed    = domain.StepStatusFailed
	StepStatusSkipped   = domain.StepStatusSkipped
)

// Sentinel errors.
var (
	ErrCapacityExceeded  = domain.ErrCapacityExceeded
	ErrExecutionNotFound = domain.ErrExecutionNotFound
	ErrCancelled         = domain.ErrCancelled
)

// New creates an orchestrator with the given configuration and
// inference backend. A nil config uses defaults throughout.
func New(config *Config, backend InferenceBackend) *Orchestrator {
	return core.NewOrchestrator(config, backend)
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

// LoadConfig reads a YAML configuration file over defaults.
func LoadConfig(path string) (*Config, error) {
	return domain.LoadConfig(path)
}

// NewExecutionContext creates an execution context with fresh request
// and trace ids.
func NewExecutionContext(sessionID, userID string) *ExecutionContext {
	return domain.NewExecutionContext(sessionID, userID)
}

// ParseWorkflowDefinition decodes and validates a YAML or JSON
// workflow document.
func ParseWorkflowDefinition(data []byte) (*WorkflowDefinition, error) {
	return domain.ParseWorkflowDefinition(data)
}

// IsRetryable reports whether an error carries a retryable failure
// code.
func IsRetryable(err error) bool {
	return domain.IsRetryable(err)
}
