// Package testutil provides scriptable fakes for the worker and
// backend boundaries.
package testutil

import (
	"context"
	"sync"

	"github.com/threadline-io/threadline/internal/domain"
)

// Worker is a scriptable WorkerPort. Unset function fields fall back
// to permissive pass-through behavior.
type Worker struct {
	Desc domain.WorkerDescriptor

	ValidateFn func(ctx context.Context, req *domain.WorkerRequest) error
	BuildFn    func(ctx context.Context, req *domain.WorkerRequest, execCtx *domain.ExecutionContext) (*domain.BackendRequest, error)
	ParseFn    func(ctx context.Context, raw *domain.BackendResponse) (*domain.WorkerResponse, error)
	PingFn     func(ctx context.Context) error
}

// NewWorker builds a permissive fake with the given id and
// capabilities.
func NewWorker(id string, capabilities ...string) *Worker {
	return &Worker{
		Desc: domain.WorkerDescriptor{
			ID:           id,
			Capabilities: capabilities,
		},
	}
}

func (w *Worker) Describe() domain.WorkerDescriptor {
	return w.Desc
}

func (w *Worker) ValidateInput(ctx context.Context, req *domain.WorkerRequest) error {
	if w.ValidateFn != nil {
		return w.ValidateFn(ctx, req)
	}
	return nil
}

func (w *Worker) BuildRequest(ctx context.Context, req *domain.WorkerRequest, execCtx *domain.ExecutionContext) (*domain.BackendRequest, error) {
	if w.BuildFn != nil {
		return w.BuildFn(ctx, req, execCtx)
	}
	return &domain.BackendRequest{
		WorkerID:  w.Desc.ID,
		Prompt:    req.Payload,
		SessionID: execCtx.SessionID,
		UserID:    execCtx.UserID,
	}, nil
}

func (w *Worker) ParseResponse(ctx context.Context, raw *domain.BackendResponse) (*domain.WorkerResponse, error) {
	if w.ParseFn != nil {
		return w.ParseFn(ctx, raw)
	}
	return &domain.WorkerResponse{
		WorkerID:   w.Desc.ID,
		Text:       raw.Text,
		Confidence: raw.Confidence,
	}, nil
}

func (w *Worker) Ping(ctx context.Context) error {
	if w.PingFn != nil {
		return w.PingFn(ctx)
	}
	return nil
}

// Backend records every invocation and answers with a canned or
// scripted response.
type Backend struct {
	mu       sync.Mutex
	requests []*domain.BackendRequest

	InvokeFn func(ctx context.Context, req *domain.BackendRequest) (*domain.BackendResponse, error)
}

func (b *Backend) Invoke(ctx context.Context, req *domain.BackendRequest) (*domain.BackendResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	if b.InvokeFn != nil {
		return b.InvokeFn(ctx, req)
	}
	return &domain.BackendResponse{
		Text:         "echo: " + req.Prompt,
		Backend:      "fake",
		Confidence:   0.9,
		InputTokens:  len(req.Prompt),
		OutputTokens: 10,
	}, nil
}

// Calls returns how many invocations the backend has seen.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Requests returns a copy of the recorded invocations in order.
func (b *Backend) Requests() []*domain.BackendRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.BackendRequest, len(b.requests))
	copy(out, b.requests)
	return out
}
