package domain

import (
	"time"
)

type WorkflowStartedEvent struct {
	WorkflowID  string              `json:"workflow_id"`
	ExecutionID string              `json:"execution_id"`
	Pattern     CoordinationPattern `json:"pattern"`
	StepCount   int                 `json:"step_count"`
	StartedAt   time.Time           `json:"started_at"`
}

type WorkflowCompletedEvent struct {
	WorkflowID  string        `json:"workflow_id"`
	ExecutionID string        `json:"execution_id"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	FailedSteps int           `json:"failed_steps"`
}

type WorkflowFailedEvent struct {
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
	FailedStep  string    `json:"failed_step,omitempty"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}

type WorkflowCancelledEvent struct {
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type StepStartedEvent struct {
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
	StepID      string    `json:"step_id"`
	WorkerID    string    `json:"worker_id"`
	Attempt     int       `json:"attempt"`
	StartedAt   time.Time `json:"started_at"`
}

type StepCompletedEvent struct {
	WorkflowID  string        `json:"workflow_id"`
	ExecutionID string        `json:"execution_id"`
	StepID      string        `json:"step_id"`
	WorkerID    string        `json:"worker_id"`
	Status      StepStatus    `json:"status"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

type StepFailedEvent struct {
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
	StepID      string    `json:"step_id"`
	WorkerID    string    `json:"worker_id"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}
