package ports

import (
	"github.com/threadline-io/threadline/internal/domain"
)

// EventManager fans workflow and step lifecycle events out to
// registered observers. Emission is non-blocking from the engine's
// perspective; slow handlers do not stall step progression.
type EventManager interface {
	OnWorkflowStarted(handler func(*domain.WorkflowStartedEvent)) string
	OnWorkflowCompleted(handler func(*domain.WorkflowCompletedEvent)) string
	OnWorkflowFailed(handler func(*domain.WorkflowFailedEvent)) string
	OnWorkflowCancelled(handler func(*domain.WorkflowCancelledEvent)) string
	OnStepStarted(handler func(*domain.StepStartedEvent)) string
	OnStepCompleted(handler func(*domain.StepCompletedEvent)) string
	OnStepFailed(handler func(*domain.StepFailedEvent)) string

	Unsubscribe(id string)

	EmitWorkflowStarted(event *domain.WorkflowStartedEvent)
	EmitWorkflowCompleted(event *domain.WorkflowCompletedEvent)
	EmitWorkflowFailed(event *domain.WorkflowFailedEvent)
	EmitWorkflowCancelled(event *domain.WorkflowCancelledEvent)
	EmitStepStarted(event *domain.StepStartedEvent)
	EmitStepCompleted(event *domain.StepCompletedEvent)
	EmitStepFailed(event *domain.StepFailedEvent)
}
