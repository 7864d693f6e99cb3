package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/threadline-io/threadline/internal/domain"
	"github.com/threadline-io/threadline/internal/ports"
	"github.com/threadline-io/threadline/internal/xjson"
)

// Engine runs workflow definitions to a terminal status under the
// definition's coordination pattern. All step invocations go through
// the worker invoker, so every step pays the full validation,
// rate-limit, and cache pipeline.
type Engine struct {
	invoker ports.WorkerInvoker
	events  ports.EventManager
	config  domain.EngineConfig
	metrics *domain.EngineMetrics
	logger  *slog.Logger

	mu         sync.RWMutex
	executions map[string]*runState
}

type runState struct {
	exec      *domain.WorkflowExecution
	def       *domain.WorkflowDefinition
	plan      *Plan
	execCtx   *domain.ExecutionContext
	cancelled atomic.Bool
}

func NewEngine(invoker ports.WorkerInvoker, events ports.EventManager, config domain.EngineConfig, metrics *domain.EngineMetrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &domain.EngineMetrics{}
	}
	return &Engine{
		invoker:    invoker,
		events:     events,
		config:     config,
		metrics:    metrics,
		logger:     logger.With("component", "workflow_engine"),
		executions: make(map[string]*runState),
	}
}

// Execute runs one workflow to completion, failure, or cancellation.
// The returned execution is always non-nil once the definition passes
// validation, even when the run fails.
func (e *Engine) Execute(ctx context.Context, def *domain.WorkflowDefinition, execCtx *domain.ExecutionContext) (*domain.WorkflowExecution, error) {
	exec, err := e.Prepare(def, execCtx)
	if err != nil {
		return nil, err
	}
	return exec, e.Run(ctx, exec.ID)
}

// Prepare validates a definition, builds its plan, and registers a
// pending execution without starting it. The returned execution's id
// resolves through Execution and Cancel immediately, so callers that
// run the workflow in the background can hand the id out first.
func (e *Engine) Prepare(def *domain.WorkflowDefinition, execCtx *domain.ExecutionContext) (*domain.WorkflowExecution, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	plan, err := BuildPlan(def)
	if err != nil {
		return nil, err
	}

	exec := domain.NewWorkflowExecution(def, execCtx.Shared)
	st := &runState{exec: exec, def: def, plan: plan, execCtx: execCtx}

	e.mu.Lock()
	e.executions[exec.ID] = st
	e.mu.Unlock()

	return exec, nil
}

// Run drives a prepared execution to a terminal status. A cancellation
// flagged before Run starts is honored before any worker is invoked.
func (e *Engine) Run(ctx context.Context, executionID string) error {
	e.mu.RLock()
	st, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return domain.ErrExecutionNotFound
	}
	exec, def, plan, execCtx := st.exec, st.def, st.plan, st.execCtx

	e.metrics.IncrementWorkflowsStarted()
	e.events.EmitWorkflowStarted(&domain.WorkflowStartedEvent{
		WorkflowID:  def.ID,
		ExecutionID: exec.ID,
		Pattern:     def.Pattern,
		StepCount:   len(def.Steps),
		StartedAt:   exec.StartedAt,
	})
	e.logger.Info("workflow execution started",
		"workflow_id", def.ID,
		"execution_id", exec.ID,
		"pattern", string(def.Pattern),
		"steps", len(def.Steps))

	exec.SetStatus(domain.WorkflowStatusRunning)
	exec.AddMilestone("started")

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = e.config.WorkflowTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runErr := e.runPattern(runCtx, st, def, plan, execCtx)
	return e.finish(st, def, runErr)
}

func (e *Engine) finish(st *runState, def *domain.WorkflowDefinition, runErr error) error {
	exec := st.exec

	if st.cancelled.Load() || errors.Is(runErr, domain.ErrCancelled) {
		exec.SkipRunningSteps()
		exec.SetStatus(domain.WorkflowStatusCancelled)
		exec.SetError(domain.ErrCancelled.Error())
		exec.AddMilestone("cancelled")
		e.metrics.IncrementWorkflowsCancelled()
		e.events.EmitWorkflowCancelled(&domain.WorkflowCancelledEvent{
			WorkflowID:  def.ID,
			ExecutionID: exec.ID,
			CancelledAt: time.Now(),
		})
		e.logger.Info("workflow execution cancelled",
			"workflow_id", def.ID, "execution_id", exec.ID)
		return domain.ErrCancelled
	}

	if runErr != nil {
		exec.SetError(runErr.Error())
		exec.SetStatus(domain.WorkflowStatusFailed)
		exec.AddMilestone("failed")
		e.metrics.IncrementWorkflowsFailed()

		failedStep := ""
		var se *domain.StepExecutionError
		if errors.As(runErr, &se) {
			failedStep = se.StepID
		} else {
			var me *domain.MappingError
			if errors.As(runErr, &me) {
				failedStep = me.StepID
			}
		}
		e.events.EmitWorkflowFailed(&domain.WorkflowFailedEvent{
			WorkflowID:  def.ID,
			ExecutionID: exec.ID,
			FailedStep:  failedStep,
			Error:       runErr.Error(),
			FailedAt:    time.Now(),
		})
		e.logger.Warn("workflow execution failed",
			"workflow_id", def.ID,
			"execution_id", exec.ID,
			"failed_step", failedStep,
			"error", runErr)
		return &domain.WorkflowExecutionError{
			WorkflowID:  def.ID,
			ExecutionID: exec.ID,
			FailedStep:  failedStep,
			Err:         runErr,
		}
	}

	exec.SetStatus(domain.WorkflowStatusCompleted)
	exec.AddMilestone("completed")
	e.metrics.IncrementWorkflowsCompleted()

	snapshot := exec.Snapshot()
	failedSteps := 0
	for _, s := range snapshot.Steps {
		if s.Status == domain.StepStatusFailed {
			failedSteps++
		}
	}
	duration := time.Duration(0)
	if snapshot.CompletedAt != nil {
		duration = snapshot.CompletedAt.Sub(snapshot.StartedAt)
	}
	e.events.EmitWorkflowCompleted(&domain.WorkflowCompletedEvent{
		WorkflowID:  def.ID,
		ExecutionID: exec.ID,
		CompletedAt: time.Now(),
		Duration:    duration,
		FailedSteps: failedSteps,
	})
	e.logger.Info("workflow execution completed",
		"workflow_id", def.ID,
		"execution_id", exec.ID,
		"duration", duration,
		"failed_steps", failedSteps)
	return nil
}

// Cancel flags a running execution for cooperative cancellation. The
// engine observes the flag between steps; an in-flight worker call is
// never interrupted, its result is discarded on return. Cancelling an
// already-terminal execution is a no-op.
func (e *Engine) Cancel(executionID string) error {
	e.mu.RLock()
	st, ok := e.executions[executionID]
	e.mu.RUnlock()

	if !ok {
		return domain.ErrExecutionNotFound
	}
	if st.exec.GetStatus().Terminal() {
		return nil
	}
	st.cancelled.Store(true)
	e.logger.Info("cancellation requested", "execution_id", executionID)
	return nil
}

// Execution returns the live execution record by id.
func (e *Engine) Execution(executionID string) (*domain.WorkflowExecution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.executions[executionID]
	if !ok {
		return nil, false
	}
	return st.exec, true
}

// runStep executes a single step end to end: dependency and condition
// gating, input mapping, worker invocation with retry, output mapping,
// and error-policy resolution. A nil return means the workflow may
// proceed; a non-nil return aborts the run.
func (e *Engine) runStep(ctx context.Context, st *runState, def *domain.WorkflowDefinition, step *domain.WorkflowStep, execCtx *domain.ExecutionContext) error {
	exec := st.exec

	if st.cancelled.Load() {
		return domain.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// A dependency that did not complete, whether failed under a
	// continue policy or skipped itself, skips this step too.
	for _, dep := range step.DependsOn {
		depExec := exec.StepExecution(dep)
		if depExec == nil || depExec.Status != domain.StepStatusCompleted {
			e.skipStep(st, def, step, fmt.Sprintf("dependency %s did not complete", dep))
			return nil
		}
	}

	passed, err := evaluateConditions(step.Conditions, execCtx.Shared)
	if err != nil {
		return &domain.StepExecutionError{StepID: step.ID, WorkerID: step.WorkerID, Attempts: 0, Err: err}
	}
	if !passed {
		e.skipStep(st, def, step, "conditions not met")
		return nil
	}

	fields, err := mapInputs(step, execCtx)
	if err != nil {
		// Mapping errors are definition defects. They fail the run
		// regardless of the step's error policy.
		exec.UpdateStep(step.ID, func(s *domain.StepExecution) {
			s.Error = err.Error()
		})
		exec.SetStepStatus(step.ID, domain.StepStatusFailed)
		e.metrics.IncrementStepsFailed()
		return err
	}

	exec.SetStepStatus(step.ID, domain.StepStatusRunning)
	exec.UpdateStep(step.ID, func(s *domain.StepExecution) {
		s.Input = fields
	})
	if def.Pattern == domain.PatternEventDriven {
		e.events.EmitStepStarted(&domain.StepStartedEvent{
			WorkflowID:  def.ID,
			ExecutionID: exec.ID,
			StepID:      step.ID,
			WorkerID:    step.WorkerID,
			Attempt:     1,
			StartedAt:   time.Now(),
		})
	}

	req, err := buildStepRequest(step, fields, e.config.StepTimeout)
	if err != nil {
		exec.UpdateStep(step.ID, func(s *domain.StepExecution) {
			s.Error = err.Error()
		})
		exec.SetStepStatus(step.ID, domain.StepStatusFailed)
		e.metrics.IncrementStepsFailed()
		return err
	}

	resp, attempts, invokeErr := e.invokeWithPolicy(ctx, st, step, req, execCtx)
	e.metrics.IncrementStepsExecuted()

	if st.cancelled.Load() {
		// Result discarded; the step is marked skipped during finish.
		return domain.ErrCancelled
	}

	if invokeErr != nil {
		return e.failStep(st, def, step, attempts, invokeErr)
	}

	outputs, err := mapOutputs(step, resp, execCtx)
	if err != nil {
		exec.UpdateStep(step.ID, func(s *domain.StepExecution) {
			s.Attempts = attempts
			s.Error = err.Error()
		})
		exec.SetStepStatus(step.ID, domain.StepStatusFailed)
		e.metrics.IncrementStepsFailed()
		return err
	}

	if err := execCtx.Shared.MergeArtifacts(resp.Artifacts); err != nil {
		exec.UpdateStep(step.ID, func(s *domain.StepExecution) {
			s.Attempts = attempts
			s.Error = err.Error()
		})
		exec.SetStepStatus(step.ID, domain.StepStatusFailed)
		e.metrics.IncrementStepsFailed()
		return fmt.Errorf("merge artifacts for step %s: %w", step.ID, err)
	}

	exec.UpdateStep(step.ID, func(s *domain.StepExecution) {
		s.Attempts = attempts
		s.Output = outputs
		s.Cost = resp.Cost
	})
	exec.SetStepStatus(step.ID, domain.StepStatusCompleted)
	exec.AddCost(resp.Cost)
	execCtx.Shared.RecordMetric("total_cost", resp.Cost.Total)
	execCtx.Shared.RecordMetric("total_tokens", float64(resp.Metadata.TotalTokens))
	e.metrics.IncrementStepsSucceeded()

	stepExec := exec.StepExecution(step.ID)
	if stepExec != nil {
		e.metrics.AddStepTime(stepExec.Latency)
	}

	if def.Pattern == domain.PatternEventDriven {
		e.events.EmitStepCompleted(&domain.StepCompletedEvent{
			WorkflowID:  def.ID,
			ExecutionID: exec.ID,
			StepID:      step.ID,
			WorkerID:    step.WorkerID,
			Status:      domain.StepStatusCompleted,
			Duration:    stepLatency(stepExec),
			CompletedAt: time.Now(),
		})
	}
	return nil
}

func (e *Engine) skipStep(st *runState, def *domain.WorkflowDefinition, step *domain.WorkflowStep, reason string) {
	st.exec.UpdateStep(step.ID, func(s *domain.StepExecution) {
		s.Logs = append(s.Logs, reason)
	})
	st.exec.SetStepStatus(step.ID, domain.StepStatusSkipped)
	e.metrics.IncrementStepsSkipped()
	e.logger.Debug("step skipped",
		"workflow_id", def.ID, "step_id", step.ID, "reason", reason)
	if def.Pattern == domain.PatternEventDriven {
		e.events.EmitStepCompleted(&domain.StepCompletedEvent{
			WorkflowID:  def.ID,
			ExecutionID: st.exec.ID,
			StepID:      step.ID,
			WorkerID:    step.WorkerID,
			Status:      domain.StepStatusSkipped,
			CompletedAt: time.Now(),
		})
	}
}

// failStep records a step failure and applies the step's error policy:
// fail aborts the run, continue lets it proceed.
func (e *Engine) failStep(st *runState, def *domain.WorkflowDefinition, step *domain.WorkflowStep, attempts int, cause error) error {
	st.exec.UpdateStep(step.ID, func(s *domain.StepExecution) {
		s.Attempts = attempts
		s.Error = cause.Error()
	})
	st.exec.SetStepStatus(step.ID, domain.StepStatusFailed)
	e.metrics.IncrementStepsFailed()

	if def.Pattern == domain.PatternEventDriven {
		e.events.EmitStepFailed(&domain.StepFailedEvent{
			WorkflowID:  def.ID,
			ExecutionID: st.exec.ID,
			StepID:      step.ID,
			WorkerID:    step.WorkerID,
			Attempts:    attempts,
			Error:       cause.Error(),
			FailedAt:    time.Now(),
		})
	}

	stepErr := &domain.StepExecutionError{
		StepID:   step.ID,
		WorkerID: step.WorkerID,
		Attempts: attempts,
		Err:      cause,
	}

	switch step.OnError.Action {
	case domain.ErrorActionContinue:
		e.logger.Warn("step failed, continuing",
			"workflow_id", def.ID, "step_id", step.ID, "error", cause)
		return nil
	case domain.ErrorActionRetry:
		// Retries were already spent by invokeWithPolicy. The fallback
		// tag decides whether exhaustion is fatal.
		if step.OnError.Fallback == "continue" {
			e.logger.Warn("step retries exhausted, continuing",
				"workflow_id", def.ID, "step_id", step.ID, "attempts", attempts, "error", cause)
			return nil
		}
		return stepErr
	default:
		return stepErr
	}
}

// invokeWithPolicy runs the worker call, re-attempting under the step's
// retry policy when the error policy asks for retries and the failure
// code qualifies.
func (e *Engine) invokeWithPolicy(ctx context.Context, st *runState, step *domain.WorkflowStep, req *domain.WorkerRequest, execCtx *domain.ExecutionContext) (*domain.WorkerResponse, int, error) {
	maxAttempts := 1
	if step.OnError.Action == domain.ErrorActionRetry {
		maxAttempts = step.Retry.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 3
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			e.metrics.IncrementStepsRetried()
			if err := sleepContext(ctx, stepBackoff(step.Retry, attempt-1)); err != nil {
				return nil, attempt, lastErr
			}
			if st.cancelled.Load() {
				return nil, attempt, domain.ErrCancelled
			}
		}

		resp, err := e.invoker.Invoke(ctx, step.WorkerID, req, execCtx)
		if err == nil {
			return resp, attempt + 1, nil
		}
		lastErr = err

		code := classifyStepFailure(err)
		if !step.Retry.Retryable(code) {
			return nil, attempt + 1, err
		}
		e.logger.Debug("step attempt failed",
			"step_id", step.ID, "attempt", attempt+1, "code", code, "error", err)
	}
	return nil, maxAttempts, lastErr
}

// buildStepRequest converts mapped input fields into a worker request.
// A string field named payload becomes the payload verbatim; otherwise
// the whole field map is serialized.
func buildStepRequest(step *domain.WorkflowStep, fields map[string]interface{}, defaultTimeout time.Duration) (*domain.WorkerRequest, error) {
	payload := ""
	if raw, ok := fields["payload"]; ok {
		if s, isString := raw.(string); isString {
			payload = s
		}
	}
	if payload == "" && len(fields) > 0 {
		data, err := xjson.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("encode step input for %s: %w", step.ID, err)
		}
		payload = string(data)
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &domain.WorkerRequest{
		WorkerID: step.WorkerID,
		Payload:  payload,
		Fields:   fields,
		Options: domain.InvocationOptions{
			Timeout: timeout,
		},
	}, nil
}

func stepBackoff(policy domain.RetryPolicy, attempt int) time.Duration {
	initial := policy.InitialDelay
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	max := policy.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	multiplier := policy.Multiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if delay > max || delay <= 0 {
		delay = max
	}
	if policy.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()/2))
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func classifyStepFailure(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorCodeTimeout
	}
	var ie *domain.WorkerInvocationError
	if errors.As(err, &ie) {
		return ie.Code
	}
	var se *domain.StepExecutionError
	if errors.As(err, &se) {
		return classifyStepFailure(se.Err)
	}
	if domain.IsRateLimitError(err) {
		return domain.ErrorCodeThrottled
	}
	return domain.ErrorCodeInternal
}

func stepLatency(s *domain.StepExecution) time.Duration {
	if s == nil {
		return 0
	}
	return s.Latency
}
