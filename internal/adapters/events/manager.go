package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/threadline-io/threadline/internal/domain"
)

type handlerEntry[T any] struct {
	id      string
	handler func(T)
}

// Manager fans workflow and step lifecycle events out to registered
// observers. Handlers run synchronously in registration order; they are
// expected to be fast and must not block on external events.
type Manager struct {
	logger *slog.Logger

	mu                sync.RWMutex
	workflowStarted   []handlerEntry[*domain.WorkflowStartedEvent]
	workflowCompleted []handlerEntry[*domain.WorkflowCompletedEvent]
	workflowFailed    []handlerEntry[*domain.WorkflowFailedEvent]
	workflowCancelled []handlerEntry[*domain.WorkflowCancelledEvent]
	stepStarted       []handlerEntry[*domain.StepStartedEvent]
	stepCompleted     []handlerEntry[*domain.StepCompletedEvent]
	stepFailed        []handlerEntry[*domain.StepFailedEvent]
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		logger: logger.With("component", "event-manager"),
	}
}

func subscribe[T any](m *Manager, list *[]handlerEntry[T], handler func(T)) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	*list = append(*list, handlerEntry[T]{id: id, handler: handler})
	return id
}

func emit[T any](m *Manager, list *[]handlerEntry[T], event T) {
	m.mu.RLock()
	handlers := make([]handlerEntry[T], len(*list))
	copy(handlers, *list)
	m.mu.RUnlock()

	for _, entry := range handlers {
		entry.handler(event)
	}
}

func removeByID[T any](list []handlerEntry[T], id string) []handlerEntry[T] {
	for i, entry := range list {
		if entry.id == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (m *Manager) OnWorkflowStarted(handler func(*domain.WorkflowStartedEvent)) string {
	return subscribe(m, &m.workflowStarted, handler)
}

func (m *Manager) OnWorkflowCompleted(handler func(*domain.WorkflowCompletedEvent)) string {
	return subscribe(m, &m.workflowCompleted, handler)
}

func (m *Manager) OnWorkflowFailed(handler func(*domain.WorkflowFailedEvent)) string {
	return subscribe(m, &m.workflowFailed, handler)
}

func (m *Manager) OnWorkflowCancelled(handler func(*domain.WorkflowCancelledEvent)) string {
	return subscribe(m, &m.workflowCancelled, handler)
}

func (m *Manager) OnStepStarted(handler func(*domain.StepStartedEvent)) string {
	return subscribe(m, &m.stepStarted, handler)
}

func (m *Manager) OnStepCompleted(handler func(*domain.StepCompletedEvent)) string {
	return subscribe(m, &m.stepCompleted, handler)
}

func (m *Manager) OnStepFailed(handler func(*domain.StepFailedEvent)) string {
	return subscribe(m, &m.stepFailed, handler)
}

func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workflowStarted = removeByID(m.workflowStarted, id)
	m.workflowCompleted = removeByID(m.workflowCompleted, id)
	m.workflowFailed = removeByID(m.workflowFailed, id)
	m.workflowCancelled = removeByID(m.workflowCancelled, id)
	m.stepStarted = removeByID(m.stepStarted, id)
	m.stepCompleted = removeByID(m.stepCompleted, id)
	m.stepFailed = removeByID(m.stepFailed, id)
}

func (m *Manager) EmitWorkflowStarted(event *domain.WorkflowStartedEvent) {
	m.logger.Debug("workflow started", "workflow_id", event.WorkflowID, "execution_id", event.ExecutionID)
	emit(m, &m.workflowStarted, event)
}

func (m *Manager) EmitWorkflowCompleted(event *domain.WorkflowCompletedEvent) {
	m.logger.Debug("workflow completed", "workflow_id", event.WorkflowID, "duration", event.Duration)
	emit(m, &m.workflowCompleted, event)
}

func (m *Manager) EmitWorkflowFailed(event *domain.WorkflowFailedEvent) {
	m.logger.Debug("workflow failed", "workflow_id", event.WorkflowID, "failed_step", event.FailedStep)
	emit(m, &m.workflowFailed, event)
}

func (m *Manager) EmitWorkflowCancelled(event *domain.WorkflowCancelledEvent) {
	m.logger.Debug("workflow cancelled", "workflow_id", event.WorkflowID)
	emit(m, &m.workflowCancelled, event)
}

func (m *Manager) EmitStepStarted(event *domain.StepStartedEvent) {
	emit(m, &m.stepStarted, event)
}

func (m *Manager) EmitStepCompleted(event *domain.StepCompletedEvent) {
	emit(m, &m.stepCompleted, event)
}

func (m *Manager) EmitStepFailed(event *domain.StepFailedEvent) {
	emit(m, &m.stepFailed, event)
}
