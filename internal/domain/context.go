package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExecutionContext carries caller identity and request-scoped metadata
// through one invocation or workflow run. The engine never mutates it
// except through the SharedState it references.
type ExecutionContext struct {
	SessionID   string       `json:"session_id"`
	UserID      string       `json:"user_id"`
	OrgID       string       `json:"org_id,omitempty"`
	PageContext string       `json:"page_context,omitempty"`
	Permissions []string     `json:"permissions,omitempty"`
	PriorOutput []string     `json:"prior_output,omitempty"`
	Shared      *SharedState `json:"-"`

	Metadata ContextMetadata `json:"metadata"`
}

type ContextMetadata struct {
	StartedAt time.Time `json:"started_at"`
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id"`
}

func NewExecutionContext(sessionID, userID string) *ExecutionContext {
	return &ExecutionContext{
		SessionID: sessionID,
		UserID:    userID,
		Shared:    NewSharedState(),
		Metadata: ContextMetadata{
			StartedAt: time.Now(),
			RequestID: uuid.New().String(),
			TraceID:   uuid.New().String(),
		},
	}
}

func (ec *ExecutionContext) HasPermission(capability string) bool {
	for _, p := range ec.Permissions {
		if p == capability || p == "*" {
			return true
		}
	}
	return false
}

type contextKey string

const executionContextKey contextKey = "threadline:execution_context"

func WithExecutionContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey, execCtx)
}

func GetExecutionContext(ctx context.Context) (*ExecutionContext, bool) {
	execCtx, ok := ctx.Value(executionContextKey).(*ExecutionContext)
	return execCtx, ok
}
