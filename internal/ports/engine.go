package ports

import (
	"context"

	"github.com/threadline-io/threadline/internal/domain"
)

// WorkerInvoker runs the fixed execution pipeline for one worker call.
type WorkerInvoker interface {
	Invoke(ctx context.Context, workerID string, req *domain.WorkerRequest, execCtx *domain.ExecutionContext) (*domain.WorkerResponse, error)
	Metrics(workerID string) domain.WorkerMetrics
}

// WorkflowEngine computes execution plans and runs them under the
// definition's coordination pattern.
type WorkflowEngine interface {
	// Execute runs an entire workflow to a terminal status. The
	// returned execution is the live record; callers read it through
	// Snapshot.
	Execute(ctx context.Context, def *domain.WorkflowDefinition, execCtx *domain.ExecutionContext) (*domain.WorkflowExecution, error)

	// Cancel cooperatively cancels a running execution.
	Cancel(executionID string) error
}
