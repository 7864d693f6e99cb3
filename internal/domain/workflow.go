package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type CoordinationPattern string

const (
	PatternSequential  CoordinationPattern = "sequential"
	PatternParallel    CoordinationPattern = "parallel"
	PatternConditional CoordinationPattern = "conditional"
	PatternEventDriven CoordinationPattern = "event_driven"
)

func (p CoordinationPattern) Valid() bool {
	switch p {
	case PatternSequential, PatternParallel, PatternConditional, PatternEventDriven:
		return true
	}
	return false
}

type WorkflowStatus string

const (
	WorkflowStatusInitializing WorkflowStatus = "initializing"
	WorkflowStatusRunning      WorkflowStatus = "running"
	WorkflowStatusCompleted    WorkflowStatus = "completed"
	WorkflowStatusFailed       WorkflowStatus = "failed"
	WorkflowStatusCancelled    WorkflowStatus = "cancelled"
)

func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	}
	return false
}

// CanTransition enforces forward-only movement through the workflow
// state machine.
func (s WorkflowStatus) CanTransition(to WorkflowStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case WorkflowStatusInitializing:
		return to == WorkflowStatusRunning || to.Terminal()
	case WorkflowStatusRunning:
		return to.Terminal()
	}
	return false
}

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

func (s StepStatus) CanTransition(to StepStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StepStatusPending:
		return to == StepStatusRunning || to == StepStatusSkipped || to == StepStatusFailed
	case StepStatusRunning:
		return to.Terminal()
	}
	return false
}

type MappingSource string

const (
	SourceContext MappingSource = "context"
	SourceShared  MappingSource = "sharedState"
	SourceStatic  MappingSource = "static"
)

func (s MappingSource) Valid() bool {
	switch s {
	case SourceContext, SourceShared, SourceStatic:
		return true
	}
	return false
}

// TransformOp is a closed set of named value transforms applied at
// mapping time. Workflow definitions stay fully data-describable: no
// executable code is accepted in a mapping.
type TransformOp string

const (
	TransformNone      TransformOp = ""
	TransformTrim      TransformOp = "trim"
	TransformUppercase TransformOp = "uppercase"
	TransformLowercase TransformOp = "lowercase"
	TransformStringify TransformOp = "stringify"
	TransformLength    TransformOp = "length"
	TransformFirst     TransformOp = "first"
)

func (t TransformOp) Valid() bool {
	switch t {
	case TransformNone, TransformTrim, TransformUppercase, TransformLowercase,
		TransformStringify, TransformLength, TransformFirst:
		return true
	}
	return false
}

type InputMapping struct {
	Field     string        `json:"field" yaml:"field"`
	Source    MappingSource `json:"source" yaml:"source"`
	Path      string        `json:"path,omitempty" yaml:"path,omitempty"`
	Value     interface{}   `json:"value,omitempty" yaml:"value,omitempty"`
	Required  bool          `json:"required" yaml:"required"`
	Default   interface{}   `json:"default,omitempty" yaml:"default,omitempty"`
	Transform TransformOp   `json:"transform,omitempty" yaml:"transform,omitempty"`
}

type OutputMapping struct {
	Field     string        `json:"field" yaml:"field"`
	Path      string        `json:"path" yaml:"path"`
	Transform TransformOp   `json:"transform,omitempty" yaml:"transform,omitempty"`
	TTL       time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

type ConditionOperator string

const (
	OpEquals    ConditionOperator = "eq"
	OpNotEquals ConditionOperator = "ne"
	OpExists    ConditionOperator = "exists"
	OpAbsent    ConditionOperator = "absent"
	OpGreater   ConditionOperator = "gt"
	OpLess      ConditionOperator = "lt"
	OpContains  ConditionOperator = "contains"
)

func (o ConditionOperator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpExists, OpAbsent, OpGreater, OpLess, OpContains:
		return true
	}
	return false
}

// Condition is a predicate over current shared-state values. All of a
// step's conditions must hold or the step is skipped without invoking
// its worker.
type Condition struct {
	Variable string            `json:"variable" yaml:"variable"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    interface{}       `json:"value,omitempty" yaml:"value,omitempty"`
}

type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay   time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay       time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier     float64       `json:"multiplier" yaml:"multiplier"`
	Jitter         bool          `json:"jitter" yaml:"jitter"`
	RetryableCodes []string      `json:"retryable_codes,omitempty" yaml:"retryable_codes,omitempty"`
}

// Retryable reports whether a failure code is retryable under this
// policy. An empty code list falls back to the engine-wide set.
func (p RetryPolicy) Retryable(code string) bool {
	if len(p.RetryableCodes) == 0 {
		return IsRetryableCode(code)
	}
	for _, c := range p.RetryableCodes {
		if c == code {
			return true
		}
	}
	return false
}

type ErrorAction string

const (
	ErrorActionFail     ErrorAction = "fail"
	ErrorActionContinue ErrorAction = "continue"
	ErrorActionRetry    ErrorAction = "retry"
)

func (a ErrorAction) Valid() bool {
	switch a {
	case ErrorActionFail, ErrorActionContinue, ErrorActionRetry:
		return true
	}
	return false
}

type ErrorPolicy struct {
	Action   ErrorAction `json:"action" yaml:"action"`
	Fallback string      `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

type WorkflowStep struct {
	ID         string          `json:"id" yaml:"id"`
	WorkerID   string          `json:"worker_id" yaml:"worker_id"`
	DependsOn  []string        `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Inputs     []InputMapping  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    []OutputMapping `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Conditions []Condition     `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Timeout    time.Duration   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry      RetryPolicy     `json:"retry,omitempty" yaml:"retry,omitempty"`
	OnError    ErrorPolicy     `json:"on_error,omitempty" yaml:"on_error,omitempty"`
}

type VariableSpec struct {
	Key      string `json:"key" yaml:"key"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// WorkflowDefinition is a declarative multi-step plan. It is read-only
// configuration; executions never mutate it.
type WorkflowDefinition struct {
	ID              string              `json:"id" yaml:"id"`
	Name            string              `json:"name,omitempty" yaml:"name,omitempty"`
	Pattern         CoordinationPattern `json:"pattern" yaml:"pattern"`
	Steps           []WorkflowStep      `json:"steps" yaml:"steps"`
	Variables       []VariableSpec      `json:"variables,omitempty" yaml:"variables,omitempty"`
	SuccessCriteria []string            `json:"success_criteria,omitempty" yaml:"success_criteria,omitempty"`
	Fallback        string              `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Timeout         time.Duration       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

func (d *WorkflowDefinition) Step(id string) *WorkflowStep {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

type Milestone struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

type CostRollup struct {
	TokenCost   float64 `json:"token_cost"`
	ComputeCost float64 `json:"compute_cost"`
	Total       float64 `json:"total"`
	Currency    string  `json:"currency"`
}

func (c *CostRollup) Add(other CostRollup) {
	c.TokenCost += other.TokenCost
	c.ComputeCost += other.ComputeCost
	c.Total += other.Total
	if c.Currency == "" {
		c.Currency = other.Currency
	}
}

type StepExecution struct {
	StepID      string                 `json:"step_id"`
	WorkerID    string                 `json:"worker_id"`
	Status      StepStatus             `json:"status"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	StartedAt   time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Attempts    int                    `json:"attempts"`
	Cost        CostRollup             `json:"cost"`
	Latency     time.Duration          `json:"latency"`
	Logs        []string               `json:"logs,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// WorkflowExecution is the mutable record of one workflow run. It is
// created at submission, mutated only by the engine, and immutable once
// terminal. All access goes through the mutex-guarded methods so that
// sibling steps in a parallel group can report concurrently.
type WorkflowExecution struct {
	mu sync.RWMutex

	ID          string
	WorkflowID  string
	Status      WorkflowStatus
	CurrentStep int
	Steps       []*StepExecution
	State       *SharedState
	StartedAt   time.Time
	CompletedAt *time.Time
	Milestones  []Milestone
	Cost        CostRollup
	Error       string
}

func NewWorkflowExecution(def *WorkflowDefinition, state *SharedState) *WorkflowExecution {
	if state == nil {
		state = NewSharedState()
	}
	steps := make([]*StepExecution, 0, len(def.Steps))
	for _, step := range def.Steps {
		steps = append(steps, &StepExecution{
			StepID:   step.ID,
			WorkerID: step.WorkerID,
			Status:   StepStatusPending,
		})
	}
	return &WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: def.ID,
		Status:     WorkflowStatusInitializing,
		Steps:      steps,
		State:      state,
		StartedAt:  time.Now(),
	}
}

// SetStatus advances the workflow state machine. Illegal transitions,
// including any move out of a terminal status, are ignored.
func (e *WorkflowExecution) SetStatus(status WorkflowStatus) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.Status.CanTransition(status) {
		return false
	}
	e.Status = status
	if status.Terminal() {
		now := time.Now()
		e.CompletedAt = &now
	}
	return true
}

func (e *WorkflowExecution) GetStatus() WorkflowStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Status
}

func (e *WorkflowExecution) SetError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Error = msg
}

func (e *WorkflowExecution) SetCurrentStep(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CurrentStep = index
}

func (e *WorkflowExecution) AddMilestone(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Milestones = append(e.Milestones, Milestone{Name: name, At: time.Now()})
}

func (e *WorkflowExecution) AddCost(cost CostRollup) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Cost.Add(cost)
}

func (e *WorkflowExecution) StepExecution(stepID string) *StepExecution {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, s := range e.Steps {
		if s.StepID == stepID {
			return s
		}
	}
	return nil
}

// SetStepStatus advances one step's state machine, enforcing
// forward-only transitions.
func (e *WorkflowExecution) SetStepStatus(stepID string, status StepStatus) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.Steps {
		if s.StepID != stepID {
			continue
		}
		if !s.Status.CanTransition(status) {
			return false
		}
		s.Status = status
		switch status {
		case StepStatusRunning:
			s.StartedAt = time.Now()
		case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
			now := time.Now()
			s.CompletedAt = &now
			if !s.StartedAt.IsZero() {
				s.Latency = now.Sub(s.StartedAt)
			}
		}
		return true
	}
	return false
}

func (e *WorkflowExecution) UpdateStep(stepID string, fn func(*StepExecution)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.Steps {
		if s.StepID == stepID {
			fn(s)
			return
		}
	}
}

// SkipRunningSteps marks every step currently running as skipped.
// Cancellation is cooperative: an in-flight worker call is not
// interrupted, only its result is discarded on return.
func (e *WorkflowExecution) SkipRunningSteps() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for _, s := range e.Steps {
		if s.Status == StepStatusRunning {
			s.Status = StepStatusSkipped
			s.CompletedAt = &now
		}
	}
}

// ExecutionSnapshot is the caller-visible view of a run. Copies only;
// the live execution stays engine-owned.
type ExecutionSnapshot struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	Status      WorkflowStatus  `json:"status"`
	CurrentStep int             `json:"current_step"`
	Steps       []StepExecution `json:"steps"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Milestones  []Milestone     `json:"milestones,omitempty"`
	Cost        CostRollup      `json:"cost"`
	Error       string          `json:"error,omitempty"`
}

func (e *WorkflowExecution) Snapshot() ExecutionSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	steps := make([]StepExecution, 0, len(e.Steps))
	for _, s := range e.Steps {
		steps = append(steps, *s)
	}
	return ExecutionSnapshot{
		ID:          e.ID,
		WorkflowID:  e.WorkflowID,
		Status:      e.Status,
		CurrentStep: e.CurrentStep,
		Steps:       steps,
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		Milestones:  append([]Milestone(nil), e.Milestones...),
		Cost:        e.Cost,
		Error:       e.Error,
	}
}
