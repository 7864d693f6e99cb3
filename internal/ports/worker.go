package ports

import (
	"context"

	"github.com/threadline-io/threadline/internal/domain"
)

// WorkerPort is the capability contract every registered worker
// implements. The execution pipeline is fixed and identical for all
// workers; these four methods are the only worker-specific behavior.
// Injecting a small capability object keeps the pipeline uniformly
// testable with fakes.
type WorkerPort interface {
	// Describe returns the worker's capability summary for discovery.
	Describe() domain.WorkerDescriptor

	// ValidateInput rejects malformed requests before any backend work.
	ValidateInput(ctx context.Context, req *domain.WorkerRequest) error

	// BuildRequest assembles the backend request from the caller's
	// request and execution context.
	BuildRequest(ctx context.Context, req *domain.WorkerRequest, execCtx *domain.ExecutionContext) (*domain.BackendRequest, error)

	// ParseResponse converts a raw backend response into the standard
	// response shape.
	ParseResponse(ctx context.Context, raw *domain.BackendResponse) (*domain.WorkerResponse, error)

	// Ping is the liveness probe used by the health monitor.
	Ping(ctx context.Context) error
}

// InferenceBackend is the boundary with the model-serving system. Its
// behavior past this interface is opaque.
type InferenceBackend interface {
	Invoke(ctx context.Context, req *domain.BackendRequest) (*domain.BackendResponse, error)
}

type WorkerRegistrationError struct {
	WorkerID string
	Reason   string
}

func (e *WorkerRegistrationError) Error() string {
	return "worker registration failed for " + e.WorkerID + ": " + e.Reason
}
