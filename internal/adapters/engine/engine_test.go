package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-io/threadline/internal/adapters/events"
	"github.com/threadline-io/threadline/internal/domain"
)

type invocation struct {
	WorkerID string
	Payload  string
	Started  time.Time
	Finished time.Time
}

// fakeInvoker satisfies ports.WorkerInvoker and records every call with
// timing, so tests can assert ordering and overlap.
type fakeInvoker struct {
	mu    sync.Mutex
	calls []invocation

	delay     time.Duration
	active    int32
	maxActive int32

	handler func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, workerID string, req *domain.WorkerRequest, execCtx *domain.ExecutionContext) (*domain.WorkerResponse, error) {
	current := atomic.AddInt32(&f.active, 1)
	for {
		max := atomic.LoadInt32(&f.maxActive)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxActive, max, current) {
			break
		}
	}
	defer atomic.AddInt32(&f.active, -1)

	started := time.Now()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	var resp *domain.WorkerResponse
	var err error
	if f.handler != nil {
		resp, err = f.handler(workerID, req)
	} else {
		resp = &domain.WorkerResponse{
			WorkerID:   workerID,
			Text:       "out:" + workerID,
			Confidence: 0.9,
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, invocation{
		WorkerID: workerID,
		Payload:  req.Payload,
		Started:  started,
		Finished: time.Now(),
	})
	f.mu.Unlock()
	return resp, err
}

func (f *fakeInvoker) Metrics(workerID string) domain.WorkerMetrics {
	return domain.WorkerMetrics{}
}

func (f *fakeInvoker) invocations() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.calls...)
}

func (f *fakeInvoker) workerOrder() []string {
	order := make([]string, 0)
	for _, c := range f.invocations() {
		order = append(order, c.WorkerID)
	}
	return order
}

func newTestEngine(invoker *fakeInvoker) (*Engine, *domain.EngineMetrics) {
	metrics := &domain.EngineMetrics{}
	eng := NewEngine(invoker, events.NewManager(nil), domain.EngineConfig{
		MaxConcurrentExecutions: 10,
		StepTimeout:             time.Second,
		WorkflowTimeout:         5 * time.Second,
	}, metrics, nil)
	return eng, metrics
}

func step(id, workerID string, deps ...string) domain.WorkflowStep {
	return domain.WorkflowStep{ID: id, WorkerID: workerID, DependsOn: deps}
}

func TestExecuteSequentialOrdering(t *testing.T) {
	invoker := &fakeInvoker{}
	eng, metrics := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-seq",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			step("first", "w1"),
			step("second", "w2"),
			step("third", "w3"),
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)
	require.NotNil(t, exec)

	assert.Equal(t, []string{"w1", "w2", "w3"}, invoker.workerOrder())

	snapshot := exec.Snapshot()
	assert.Equal(t, domain.WorkflowStatusCompleted, snapshot.Status)
	require.Len(t, snapshot.Steps, len(def.Steps))
	for _, s := range snapshot.Steps {
		assert.Equal(t, domain.StepStatusCompleted, s.Status, s.StepID)
	}

	calls := invoker.invocations()
	for i := 1; i < len(calls); i++ {
		assert.False(t, calls[i].Started.Before(calls[i-1].Finished),
			"step %d started before step %d finished", i, i-1)
	}

	m := metrics.GetSnapshot()
	assert.Equal(t, int64(1), m.WorkflowsStarted)
	assert.Equal(t, int64(1), m.WorkflowsCompleted)
	assert.Equal(t, int64(3), m.StepsSucceeded)
}

func TestExecuteParallelGroups(t *testing.T) {
	invoker := &fakeInvoker{delay: 30 * time.Millisecond}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-diamond",
		Pattern: domain.PatternParallel,
		Steps: []domain.WorkflowStep{
			step("fetch", "fetcher"),
			step("enrich", "enricher", "fetch"),
			step("classify", "classifier", "fetch"),
			step("report", "reporter", "enrich", "classify"),
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, exec.Snapshot().Status)

	byWorker := make(map[string]invocation)
	for _, c := range invoker.invocations() {
		byWorker[c.WorkerID] = c
	}
	require.Len(t, byWorker, 4)

	assert.GreaterOrEqual(t, invoker.maxActive, int32(2),
		"siblings in a dependency layer should run concurrently")

	for _, sibling := range []string{"enricher", "classifier"} {
		assert.False(t, byWorker[sibling].Started.Before(byWorker["fetcher"].Finished),
			"%s started before its dependency finished", sibling)
		assert.False(t, byWorker["reporter"].Started.Before(byWorker[sibling].Finished),
			"reporter started before %s finished", sibling)
	}
}

func TestExecuteSharedStateFlow(t *testing.T) {
	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		if workerID == "classifier" {
			return &domain.WorkerResponse{WorkerID: workerID, Text: "REFUND"}, nil
		}
		return &domain.WorkerResponse{WorkerID: workerID, Text: "handled " + req.Payload}, nil
	}}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-state",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			{
				ID: "classify", WorkerID: "classifier",
				Outputs: []domain.OutputMapping{
					{Field: "text", Path: "category", Transform: domain.TransformLowercase},
				},
			},
			{
				ID: "respond", WorkerID: "responder", DependsOn: []string{"classify"},
				Inputs: []domain.InputMapping{
					{Field: "payload", Source: domain.SourceShared, Path: "category", Required: true},
				},
			},
		},
	}

	execCtx := domain.NewExecutionContext("s1", "u1")
	_, err := eng.Execute(context.Background(), def, execCtx)
	require.NoError(t, err)

	category, ok := execCtx.Shared.Get("category")
	require.True(t, ok)
	assert.Equal(t, "refund", category)

	calls := invoker.invocations()
	require.Len(t, calls, 2)
	assert.Equal(t, "refund", calls[1].Payload)
}

func TestExecuteConditionalSkip(t *testing.T) {
	invoker := &fakeInvoker{}
	eng, metrics := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-cond",
		Pattern: domain.PatternConditional,
		Steps: []domain.WorkflowStep{
			step("always", "w1"),
			{
				ID: "gated", WorkerID: "w2", DependsOn: []string{"always"},
				Conditions: []domain.Condition{
					{Variable: "escalate", Operator: domain.OpEquals, Value: true},
				},
			},
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"w1"}, invoker.workerOrder(), "gated worker must not be invoked")

	snapshot := exec.Snapshot()
	assert.Equal(t, domain.WorkflowStatusCompleted, snapshot.Status)
	assert.Equal(t, domain.StepStatusSkipped, snapshot.Steps[1].Status)
	assert.Equal(t, int64(1), metrics.GetSnapshot().StepsSkipped)
}

func TestExecuteCycleRejectedBeforeInvocation(t *testing.T) {
	invoker := &fakeInvoker{}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-cycle",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			step("a", "w1", "c"),
			step("b", "w2", "a"),
			step("c", "w3", "b"),
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.Error(t, err)
	assert.True(t, domain.IsCircularDependency(err))
	assert.Nil(t, exec)
	assert.Empty(t, invoker.invocations(), "no worker may run for a cyclic definition")
}

func TestExecuteContinuePolicy(t *testing.T) {
	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		if workerID == "flaky" {
			return nil, domain.NewWorkerInvocationError(workerID, domain.ErrorCodeInternal, errors.New("boom"))
		}
		return &domain.WorkerResponse{WorkerID: workerID, Text: "ok"}, nil
	}}
	eng, metrics := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-continue",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			step("first", "w1"),
			{
				ID: "middle", WorkerID: "flaky", DependsOn: []string{"first"},
				OnError: domain.ErrorPolicy{Action: domain.ErrorActionContinue},
			},
			step("last", "w3", "first"),
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err, "a continue-policy failure must not fail the run")

	snapshot := exec.Snapshot()
	assert.Equal(t, domain.WorkflowStatusCompleted, snapshot.Status)
	assert.Equal(t, domain.StepStatusCompleted, snapshot.Steps[0].Status)
	assert.Equal(t, domain.StepStatusFailed, snapshot.Steps[1].Status)
	assert.Equal(t, domain.StepStatusCompleted, snapshot.Steps[2].Status)
	assert.NotEmpty(t, snapshot.Steps[1].Error)

	m := metrics.GetSnapshot()
	assert.Equal(t, int64(1), m.WorkflowsCompleted)
	assert.Equal(t, int64(1), m.StepsFailed)
	assert.Equal(t, int64(2), m.StepsSucceeded)
}

func TestExecuteFailPolicyAborts(t *testing.T) {
	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		if workerID == "broken" {
			return nil, domain.NewWorkerInvocationError(workerID, domain.ErrorCodeInternal, errors.New("boom"))
		}
		return &domain.WorkerResponse{WorkerID: workerID, Text: "ok"}, nil
	}}
	eng, metrics := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-fail",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			step("first", "broken"),
			step("second", "w2", "first"),
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.Error(t, err)

	var we *domain.WorkflowExecutionError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "first", we.FailedStep)

	var se *domain.StepExecutionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "broken", se.WorkerID)

	snapshot := exec.Snapshot()
	assert.Equal(t, domain.WorkflowStatusFailed, snapshot.Status)
	assert.Equal(t, domain.StepStatusFailed, snapshot.Steps[0].Status)
	assert.Equal(t, domain.StepStatusPending, snapshot.Steps[1].Status)
	assert.Len(t, invoker.invocations(), 1)
	assert.Equal(t, int64(1), metrics.GetSnapshot().WorkflowsFailed)
}

func TestExecuteSkipsDependentsOfFailedStep(t *testing.T) {
	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		if workerID == "flaky" {
			return nil, domain.NewWorkerInvocationError(workerID, domain.ErrorCodeInternal, errors.New("boom"))
		}
		return &domain.WorkerResponse{WorkerID: workerID, Text: "ok"}, nil
	}}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-dep-skip",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			{ID: "first", WorkerID: "flaky", OnError: domain.ErrorPolicy{Action: domain.ErrorActionContinue}},
			step("second", "w2", "first"),
			step("third", "w3"),
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)

	snapshot := exec.Snapshot()
	assert.Equal(t, domain.WorkflowStatusCompleted, snapshot.Status)
	assert.Equal(t, domain.StepStatusFailed, snapshot.Steps[0].Status)
	assert.Equal(t, domain.StepStatusSkipped, snapshot.Steps[1].Status, "dependent of a failed step is skipped")
	assert.Equal(t, domain.StepStatusCompleted, snapshot.Steps[2].Status)
	assert.Equal(t, []string{"flaky", "w3"}, invoker.workerOrder())
}

func TestExecuteStepRetryRecovers(t *testing.T) {
	var attempts int32
	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, domain.NewWorkerInvocationError(workerID, domain.ErrorCodeUnavailable, errors.New("backend down"))
		}
		return &domain.WorkerResponse{WorkerID: workerID, Text: "recovered"}, nil
	}}
	eng, metrics := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-retry",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			{
				ID: "only", WorkerID: "w1",
				Retry:   domain.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2},
				OnError: domain.ErrorPolicy{Action: domain.ErrorActionRetry},
			},
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)

	snapshot := exec.Snapshot()
	assert.Equal(t, domain.WorkflowStatusCompleted, snapshot.Status)
	assert.Equal(t, 3, snapshot.Steps[0].Attempts)
	assert.Equal(t, int64(2), metrics.GetSnapshot().StepsRetried)
}

func TestExecuteStepRetryNonRetryableCode(t *testing.T) {
	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		return nil, domain.NewWorkerInvocationError(workerID, domain.ErrorCodeBadRequest, errors.New("malformed"))
	}}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-no-retry",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			{
				ID: "only", WorkerID: "w1",
				Retry:   domain.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond},
				OnError: domain.ErrorPolicy{Action: domain.ErrorActionRetry},
			},
		},
	}

	_, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.Error(t, err)
	assert.Len(t, invoker.invocations(), 1, "non-retryable failures must not be re-attempted")
}

func TestExecuteRetryExhaustionFallbackContinue(t *testing.T) {
	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		if workerID == "flaky" {
			return nil, domain.NewWorkerInvocationError(workerID, domain.ErrorCodeNetwork, errors.New("unreachable"))
		}
		return &domain.WorkerResponse{WorkerID: workerID, Text: "ok"}, nil
	}}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-fallback",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			{
				ID: "first", WorkerID: "flaky",
				Retry:   domain.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond},
				OnError: domain.ErrorPolicy{Action: domain.ErrorActionRetry, Fallback: "continue"},
			},
			step("second", "w2"),
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err, "fallback continue makes exhaustion non-fatal")

	snapshot := exec.Snapshot()
	assert.Equal(t, domain.WorkflowStatusCompleted, snapshot.Status)
	assert.Equal(t, domain.StepStatusFailed, snapshot.Steps[0].Status)
	assert.Equal(t, 2, snapshot.Steps[0].Attempts)
	assert.Equal(t, domain.StepStatusCompleted, snapshot.Steps[1].Status)
}

func TestExecuteMappingErrorOverridesPolicy(t *testing.T) {
	invoker := &fakeInvoker{}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-mapping",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			{
				ID: "only", WorkerID: "w1",
				Inputs: []domain.InputMapping{
					{Field: "category", Source: domain.SourceShared, Path: "missing", Required: true},
				},
				OnError: domain.ErrorPolicy{Action: domain.ErrorActionContinue},
			},
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.Error(t, err, "a mapping defect fails the run even under a continue policy")
	assert.True(t, domain.IsMappingError(err))
	assert.Equal(t, domain.WorkflowStatusFailed, exec.Snapshot().Status)
	assert.Empty(t, invoker.invocations())
}

func TestExecuteCancellation(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		if workerID == "slow" {
			once.Do(func() { close(entered) })
			<-release
		}
		return &domain.WorkerResponse{WorkerID: workerID, Text: "ok"}, nil
	}}
	eng, metrics := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-cancel",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			step("first", "w1"),
			step("second", "slow", "first"),
			step("third", "w3", "second"),
		},
	}

	type result struct {
		exec *domain.WorkflowExecution
		err  error
	}
	done := make(chan result, 1)
	go func() {
		exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
		done <- result{exec, err}
	}()

	<-entered

	var execID string
	require.Eventually(t, func() bool {
		eng.mu.RLock()
		defer eng.mu.RUnlock()
		for id := range eng.executions {
			execID = id
		}
		return execID != ""
	}, time.Second, time.Millisecond)

	require.NoError(t, eng.Cancel(execID))
	close(release)

	res := <-done
	require.ErrorIs(t, res.err, domain.ErrCancelled)

	snapshot := res.exec.Snapshot()
	assert.Equal(t, domain.WorkflowStatusCancelled, snapshot.Status)
	assert.Equal(t, domain.StepStatusCompleted, snapshot.Steps[0].Status)
	assert.Equal(t, domain.StepStatusSkipped, snapshot.Steps[1].Status, "in-flight result is discarded")
	assert.Equal(t, domain.StepStatusPending, snapshot.Steps[2].Status)
	assert.Len(t, invoker.invocations(), 2, "no further steps run after cancellation")
	assert.Equal(t, int64(1), metrics.GetSnapshot().WorkflowsCancelled)
}

func TestCancelUnknownExecution(t *testing.T) {
	eng, _ := newTestEngine(&fakeInvoker{})
	assert.ErrorIs(t, eng.Cancel("nope"), domain.ErrExecutionNotFound)
}

func TestPrepareRegistersBeforeRun(t *testing.T) {
	invoker := &fakeInvoker{}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-prepared",
		Pattern: domain.PatternSequential,
		Steps:   []domain.WorkflowStep{step("only", "w1")},
	}

	exec, err := eng.Prepare(def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)

	live, ok := eng.Execution(exec.ID)
	require.True(t, ok, "a prepared execution resolves before it runs")
	assert.Equal(t, domain.WorkflowStatusInitializing, live.GetStatus())
	assert.Empty(t, invoker.invocations())

	require.NoError(t, eng.Run(context.Background(), exec.ID))
	assert.Equal(t, domain.WorkflowStatusCompleted, exec.GetStatus())
	assert.Len(t, invoker.invocations(), 1)
}

func TestCancelBeforeRunSkipsEveryStep(t *testing.T) {
	invoker := &fakeInvoker{}
	eng, metrics := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-cancel-early",
		Pattern: domain.PatternSequential,
		Steps:   []domain.WorkflowStep{step("a", "w1"), step("b", "w2", "a")},
	}

	exec, err := eng.Prepare(def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)
	require.NoError(t, eng.Cancel(exec.ID))

	require.ErrorIs(t, eng.Run(context.Background(), exec.ID), domain.ErrCancelled)
	assert.Equal(t, domain.WorkflowStatusCancelled, exec.GetStatus())
	assert.Empty(t, invoker.invocations(), "no worker runs after an early cancel")
	assert.Equal(t, int64(1), metrics.GetSnapshot().WorkflowsCancelled)
}

func TestRunUnknownExecution(t *testing.T) {
	eng, _ := newTestEngine(&fakeInvoker{})
	assert.ErrorIs(t, eng.Run(context.Background(), "nope"), domain.ErrExecutionNotFound)
}

func TestCancelTerminalExecutionNoop(t *testing.T) {
	invoker := &fakeInvoker{}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-done",
		Pattern: domain.PatternSequential,
		Steps:   []domain.WorkflowStep{step("only", "w1")},
	}
	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)

	require.NoError(t, eng.Cancel(exec.ID))
	assert.Equal(t, domain.WorkflowStatusCompleted, exec.GetStatus())
}

func TestWorkflowEventsEmittedForAllPatterns(t *testing.T) {
	invoker := &fakeInvoker{}
	manager := events.NewManager(nil)
	eng := NewEngine(invoker, manager, domain.EngineConfig{}, nil, nil)

	var mu sync.Mutex
	var started, completed int
	manager.OnWorkflowStarted(func(*domain.WorkflowStartedEvent) {
		mu.Lock()
		started++
		mu.Unlock()
	})
	manager.OnWorkflowCompleted(func(event *domain.WorkflowCompletedEvent) {
		mu.Lock()
		completed++
		mu.Unlock()
	})

	def := &domain.WorkflowDefinition{
		ID:      "wf-events",
		Pattern: domain.PatternSequential,
		Steps:   []domain.WorkflowStep{step("only", "w1")},
	}
	_, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, completed)
}

func TestStepEventsOnlyForEventDriven(t *testing.T) {
	for _, tt := range []struct {
		pattern   domain.CoordinationPattern
		wantSteps bool
	}{
		{domain.PatternSequential, false},
		{domain.PatternEventDriven, true},
	} {
		t.Run(string(tt.pattern), func(t *testing.T) {
			invoker := &fakeInvoker{}
			manager := events.NewManager(nil)
			eng := NewEngine(invoker, manager, domain.EngineConfig{}, nil, nil)

			var mu sync.Mutex
			var stepStarted, stepCompleted []string
			manager.OnStepStarted(func(event *domain.StepStartedEvent) {
				mu.Lock()
				stepStarted = append(stepStarted, event.StepID)
				mu.Unlock()
			})
			manager.OnStepCompleted(func(event *domain.StepCompletedEvent) {
				mu.Lock()
				stepCompleted = append(stepCompleted, event.StepID)
				mu.Unlock()
			})

			def := &domain.WorkflowDefinition{
				ID:      fmt.Sprintf("wf-%s", tt.pattern),
				Pattern: tt.pattern,
				Steps: []domain.WorkflowStep{
					step("a", "w1"),
					step("b", "w2", "a"),
				},
			}
			_, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
			require.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			if tt.wantSteps {
				assert.Equal(t, []string{"a", "b"}, stepStarted)
				assert.Equal(t, []string{"a", "b"}, stepCompleted)
			} else {
				assert.Empty(t, stepStarted)
				assert.Empty(t, stepCompleted)
			}
		})
	}
}

func TestExecuteCostRollup(t *testing.T) {
	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		return &domain.WorkerResponse{
			WorkerID: workerID,
			Text:     "ok",
			Cost:     domain.CostRollup{TokenCost: 0.01, Total: 0.01, Currency: "USD"},
		}, nil
	}}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-cost",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			step("a", "w1"),
			step("b", "w2"),
		},
	}

	exec, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.NoError(t, err)

	snapshot := exec.Snapshot()
	assert.InDelta(t, 0.02, snapshot.Cost.Total, 1e-9)
	assert.Equal(t, "USD", snapshot.Cost.Currency)
}

func TestExecuteMergesArtifacts(t *testing.T) {
	invoker := &fakeInvoker{handler: func(workerID string, req *domain.WorkerRequest) (*domain.WorkerResponse, error) {
		if workerID == "drafter" {
			return &domain.WorkerResponse{WorkerID: workerID, Text: "ok", Artifacts: map[string]interface{}{
				"report": map[string]interface{}{"sections": []interface{}{"intro"}},
			}}, nil
		}
		return &domain.WorkerResponse{WorkerID: workerID, Text: "ok", Artifacts: map[string]interface{}{
			"report": map[string]interface{}{"sections": []interface{}{"body"}, "final": true},
		}}, nil
	}}
	eng, _ := newTestEngine(invoker)

	def := &domain.WorkflowDefinition{
		ID:      "wf-artifacts",
		Pattern: domain.PatternSequential,
		Steps: []domain.WorkflowStep{
			step("draft", "drafter"),
			step("finish", "finisher", "draft"),
		},
	}

	execCtx := domain.NewExecutionContext("s1", "u1")
	_, err := eng.Execute(context.Background(), def, execCtx)
	require.NoError(t, err)

	artifact, ok := execCtx.Shared.Artifact("report")
	require.True(t, ok)
	report, ok := artifact.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, report["final"])
	assert.Equal(t, []interface{}{"intro", "body"}, report["sections"])
}

func TestExecuteRejectsInvalidDefinition(t *testing.T) {
	eng, _ := newTestEngine(&fakeInvoker{})

	def := &domain.WorkflowDefinition{
		ID:      "wf-bad",
		Pattern: "mystery",
		Steps:   []domain.WorkflowStep{step("a", "w1")},
	}
	_, err := eng.Execute(context.Background(), def, domain.NewExecutionContext("s1", "u1"))
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}
