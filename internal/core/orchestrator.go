package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/threadline-io/threadline/internal/adapters/engine"
	"github.com/threadline-io/threadline/internal/adapters/events"
	"github.com/threadline-io/threadline/internal/adapters/health"
	"github.com/threadline-io/threadline/internal/adapters/memory"
	"github.com/threadline-io/threadline/internal/adapters/rate_limiter"
	"github.com/threadline-io/threadline/internal/adapters/registry"
	"github.com/threadline-io/threadline/internal/adapters/security"
	"github.com/threadline-io/threadline/internal/adapters/worker"
	"github.com/threadline-io/threadline/internal/domain"
	"github.com/threadline-io/threadline/internal/ports"
)

// Orchestrator is the composition root. It owns every subsystem's
// lifecycle, admits or rejects workflow submissions against the
// concurrency cap, and is the only type callers outside the module
// touch.
type Orchestrator struct {
	config   *domain.Config
	logger   *slog.Logger
	registry ports.WorkerRegistry
	monitor  ports.HealthMonitor
	limiter  ports.RateLimiter
	cache    ports.ResponseCache
	memory   ports.ConversationMemory
	globals  ports.VariableStore
	invoker  ports.WorkerInvoker
	engine   *engine.Engine
	events   ports.EventManager
	metrics  *domain.EngineMetrics

	// admission is a counting semaphore over active workflow
	// executions. Acquisition never blocks: a full semaphore is a
	// synchronous rejection.
	admission chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc

	execMu     sync.RWMutex
	executions map[string]*domain.WorkflowExecution
}

// Stats is the aggregate operational snapshot across subsystems.
type Stats struct {
	Registry         domain.RegistryStats `json:"registry"`
	Health           domain.HealthSummary `json:"health"`
	Cache            ports.CacheStats     `json:"cache"`
	Engine           domain.EngineMetrics `json:"engine"`
	ActiveExecutions int                  `json:"active_executions"`
	Sessions         int                  `json:"sessions"`
}

func NewOrchestrator(config *domain.Config, backend ports.InferenceBackend) *Orchestrator {
	if config == nil {
		config = domain.DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := domain.NewEngineMetrics()
	monitor := health.NewMonitor(config.Health, logger)
	reg := registry.NewRegistry(monitor, logger)
	limiter := rate_limiter.NewLimiter(config.RateLimit, logger)
	cache := memory.NewResponseCache(config.Cache, logger)
	conversation := memory.NewConversation(config.Memory, logger)
	globals := memory.NewVariables(config.Cache.SweepInterval, logger)
	validator := security.NewValidator(config.Security, logger)
	eventMgr := events.NewManager(logger)

	invoker := worker.NewPipeline(worker.PipelineDeps{
		Registry: reg,
		Security: validator,
		Limiter:  limiter,
		Cache:    cache,
		Memory:   conversation,
		Backend:  backend,
		Metrics:  metrics,
	}, config.Worker, config.Cache.DefaultTTL, logger)

	eng := engine.NewEngine(invoker, eventMgr, config.Engine, metrics, logger)

	capacity := config.Engine.MaxConcurrentExecutions
	if capacity <= 0 {
		capacity = 10
	}

	return &Orchestrator{
		config:     config,
		logger:     logger.With("component", "orchestrator"),
		registry:   reg,
		monitor:    monitor,
		limiter:    limiter,
		cache:      cache,
		memory:     conversation,
		globals:    globals,
		invoker:    invoker,
		engine:     eng,
		events:     eventMgr,
		metrics:    metrics,
		admission:  make(chan struct{}, capacity),
		executions: make(map[string]*domain.WorkflowExecution),
	}
}

// Start brings up the background health monitor. Calling Start twice
// is an error; the orchestrator is not restartable after Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return domain.ErrAlreadyStarted
	}
	if o.stopped {
		return domain.ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := o.monitor.Start(runCtx); err != nil {
		cancel()
		return err
	}
	o.cancel = cancel
	o.started = true
	o.logger.Info("orchestrator started",
		"max_concurrent_executions", cap(o.admission))
	return nil
}

// Stop shuts down background goroutines. In-flight executions are
// flagged for cooperative cancellation but not waited on.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return domain.ErrNotStarted
	}
	if o.stopped {
		return nil
	}
	o.stopped = true

	o.execMu.RLock()
	for id, exec := range o.executions {
		if !exec.GetStatus().Terminal() {
			_ = o.engine.Cancel(id)
		}
	}
	o.execMu.RUnlock()

	o.cancel()
	_ = o.monitor.Stop()
	o.limiter.Stop()
	o.cache.Stop()
	o.globals.Stop()
	o.logger.Info("orchestrator stopped")
	return nil
}

// RegisterWorker adds a worker to the registry and starts probing it.
func (o *Orchestrator) RegisterWorker(id string, w ports.WorkerPort, descriptor domain.WorkerDescriptor) error {
	return o.registry.Register(id, w, descriptor)
}

func (o *Orchestrator) UnregisterWorker(id string) error {
	return o.registry.Unregister(id)
}

func (o *Orchestrator) ValidateDependencies() domain.DependencyReport {
	return o.registry.ValidateDependencies()
}

// ExecuteWorker invokes one worker directly, outside any workflow. The
// call runs the full execution pipeline.
func (o *Orchestrator) ExecuteWorker(ctx context.Context, workerID string, req *domain.WorkerRequest, execCtx *domain.ExecutionContext) (*domain.WorkerResponse, error) {
	if execCtx == nil {
		execCtx = domain.NewExecutionContext("", "")
	}
	return o.invoker.Invoke(ctx, workerID, req, execCtx)
}

// ExecuteWorkflow runs a workflow synchronously. Admission is checked
// up front: when the concurrency cap is already consumed the
// submission is rejected immediately rather than queued.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, def *domain.WorkflowDefinition, execCtx *domain.ExecutionContext) (*domain.WorkflowExecution, error) {
	if execCtx == nil {
		execCtx = domain.NewExecutionContext("", "")
	}

	select {
	case o.admission <- struct{}{}:
	default:
		o.metrics.IncrementWorkflowsRejected()
		o.logger.Warn("workflow rejected at admission",
			"workflow_id", def.ID, "capacity", cap(o.admission))
		return nil, domain.ErrCapacityExceeded
	}
	defer func() { <-o.admission }()

	o.seedGlobals(execCtx)
	exec, err := o.engine.Execute(ctx, def, execCtx)
	if exec != nil {
		o.trackExecution(exec)
	}
	return exec, err
}

// SubmitWorkflow starts a workflow in the background and returns its
// execution id. Admission control and plan validation happen
// synchronously so callers learn about rejection and bad definitions
// before the id is handed back.
func (o *Orchestrator) SubmitWorkflow(ctx context.Context, def *domain.WorkflowDefinition, execCtx *domain.ExecutionContext) (string, error) {
	if err := def.Validate(); err != nil {
		return "", err
	}
	if _, err := engine.BuildPlan(def); err != nil {
		return "", err
	}
	if execCtx == nil {
		execCtx = domain.NewExecutionContext("", "")
	}

	select {
	case o.admission <- struct{}{}:
	default:
		o.metrics.IncrementWorkflowsRejected()
		o.logger.Warn("workflow rejected at admission",
			"workflow_id", def.ID, "capacity", cap(o.admission))
		return "", domain.ErrCapacityExceeded
	}

	o.seedGlobals(execCtx)
	exec, err := o.engine.Prepare(def, execCtx)
	if err != nil {
		<-o.admission
		return "", err
	}
	o.trackExecution(exec)

	go func() {
		defer func() { <-o.admission }()

		if err := o.engine.Run(ctx, exec.ID); err != nil {
			o.logger.Warn("submitted workflow finished with error",
				"workflow_id", def.ID, "execution_id", exec.ID, "error", err)
		}
	}()

	return exec.ID, nil
}

// SetGlobal stores a process-wide variable visible to every subsequent
// workflow execution. A zero ttl means the value never expires.
func (o *Orchestrator) SetGlobal(key string, value interface{}, ttl time.Duration) {
	o.globals.Set(key, value, ttl)
}

// GetGlobal reads a process-wide variable.
func (o *Orchestrator) GetGlobal(key string) (interface{}, bool) {
	return o.globals.Get(key)
}

// DeleteGlobal removes a process-wide variable.
func (o *Orchestrator) DeleteGlobal(key string) {
	o.globals.Delete(key)
}

// seedGlobals copies global variables into an execution's shared state.
// Values the caller already set on the context win over globals.
func (o *Orchestrator) seedGlobals(execCtx *domain.ExecutionContext) {
	for key, value := range o.globals.Snapshot() {
		if _, exists := execCtx.Shared.Get(key); !exists {
			execCtx.Shared.Set(key, value, "global")
		}
	}
}

// trackExecution records an execution for Status and Cancel lookups.
func (o *Orchestrator) trackExecution(exec *domain.WorkflowExecution) {
	o.execMu.Lock()
	o.executions[exec.ID] = exec
	o.execMu.Unlock()
}

// Status returns the point-in-time snapshot of an execution.
func (o *Orchestrator) Status(executionID string) (domain.ExecutionSnapshot, error) {
	if exec, ok := o.engine.Execution(executionID); ok {
		return exec.Snapshot(), nil
	}

	o.execMu.RLock()
	exec, ok := o.executions[executionID]
	o.execMu.RUnlock()
	if !ok {
		return domain.ExecutionSnapshot{}, domain.ErrExecutionNotFound
	}
	return exec.Snapshot(), nil
}

// Cancel requests cooperative cancellation of a running execution.
// Every execution this orchestrator hands out an id for is registered
// with the engine, so the lookup is authoritative.
func (o *Orchestrator) Cancel(executionID string) error {
	return o.engine.Cancel(executionID)
}

// Events exposes the event manager for observer registration.
func (o *Orchestrator) Events() ports.EventManager {
	return o.events
}

// History returns the rolling conversation history for a session.
func (o *Orchestrator) History(sessionID string) []domain.ConversationEntry {
	return o.memory.History(sessionID)
}

// WorkerMetrics returns per-worker invocation counters.
func (o *Orchestrator) WorkerMetrics(workerID string) domain.WorkerMetrics {
	return o.invoker.Metrics(workerID)
}

// RateLimitStatus returns the current per-user window state.
func (o *Orchestrator) RateLimitStatus(userID string) ports.RateLimitStatus {
	return o.limiter.UserStatus(userID)
}

// Stats aggregates operational counters across every subsystem.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Registry:         o.registry.Stats(),
		Health:           o.monitor.Summary(),
		Cache:            o.cache.Stats(),
		Engine:           o.metrics.GetSnapshot(),
		ActiveExecutions: len(o.admission),
		Sessions:         o.memory.Sessions(),
	}
}
