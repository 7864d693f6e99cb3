package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrAlreadyStarted    = errors.New("already started")
	ErrNotStarted        = errors.New("not started")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrCapacityExceeded  = errors.New("too many active executions")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrCancelled         = errors.New("execution cancelled")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type ViolationCategory string

const (
	ViolationStructural ViolationCategory = "structural"
	ViolationInjection  ViolationCategory = "injection"
	ViolationPolicy     ViolationCategory = "policy"
	ViolationPermission ViolationCategory = "permission"
)

type SecurityViolation struct {
	Category ViolationCategory `json:"category"`
	Detail   string            `json:"detail"`
}

type SecurityError struct {
	WorkerID   string
	Violations []SecurityViolation
	RiskScore  int
}

func (e *SecurityError) Error() string {
	details := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		details = append(details, fmt.Sprintf("%s: %s", v.Category, v.Detail))
	}
	return fmt.Sprintf("security validation failed for worker %s (risk %d): %s",
		e.WorkerID, e.RiskScore, strings.Join(details, "; "))
}

type RateLimitError struct {
	Scope     string
	Key       string
	Limit     int
	ResetTime time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s %s: limit %d, resets at %s",
		e.Scope, e.Key, e.Limit, e.ResetTime.Format(time.RFC3339))
}

// RetryAfter reports how long the caller should back off before the
// window resets. Never negative.
func (e *RateLimitError) RetryAfter() time.Duration {
	d := time.Until(e.ResetTime)
	if d < 0 {
		return 0
	}
	return d
}

type WorkerNotFoundError struct {
	WorkerID string
}

func (e *WorkerNotFoundError) Error() string {
	return "worker not found: " + e.WorkerID
}

type WorkerUnhealthyError struct {
	WorkerID  string
	LastError string
}

func (e *WorkerUnhealthyError) Error() string {
	if e.LastError == "" {
		return "worker unhealthy: " + e.WorkerID
	}
	return fmt.Sprintf("worker unhealthy: %s (last error: %s)", e.WorkerID, e.LastError)
}

const (
	ErrorCodeTimeout     = "timeout"
	ErrorCodeThrottled   = "throttled"
	ErrorCodeNetwork     = "network"
	ErrorCodeUnavailable = "unavailable"
	ErrorCodeInternal    = "internal"
	ErrorCodeBadRequest  = "bad_request"
)

// Backend failure codes that are safe to retry. Everything not listed
// here is terminal on first occurrence.
var retryableCodes = map[string]bool{
	ErrorCodeTimeout:     true,
	ErrorCodeThrottled:   true,
	ErrorCodeNetwork:     true,
	ErrorCodeUnavailable: true,
}

func IsRetryableCode(code string) bool {
	return retryableCodes[code]
}

type WorkerInvocationError struct {
	WorkerID string
	Code     string
	Err      error
}

func (e *WorkerInvocationError) Error() string {
	return fmt.Sprintf("worker %s invocation failed [%s]: %v", e.WorkerID, e.Code, e.Err)
}

func (e *WorkerInvocationError) Unwrap() error {
	return e.Err
}

func NewWorkerInvocationError(workerID, code string, err error) *WorkerInvocationError {
	return &WorkerInvocationError{WorkerID: workerID, Code: code, Err: err}
}

type StepExecutionError struct {
	StepID   string
	WorkerID string
	Attempts int
	Err      error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s (worker %s) failed after %d attempt(s): %v",
		e.StepID, e.WorkerID, e.Attempts, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

type MappingError struct {
	StepID string
	Field  string
	Source string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping failed for step %s field %s (source %s): %s",
		e.StepID, e.Field, e.Source, e.Reason)
}

type CircularDependencyError struct {
	WorkflowID string
	Cycle      []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("workflow %s has a dependency cycle: %s",
		e.WorkflowID, strings.Join(e.Cycle, " -> "))
}

type WorkflowExecutionError struct {
	WorkflowID  string
	ExecutionID string
	FailedStep  string
	Err         error
}

func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("workflow %s execution %s failed at step %s: %v",
		e.WorkflowID, e.ExecutionID, e.FailedStep, e.Err)
}

func (e *WorkflowExecutionError) Unwrap() error {
	return e.Err
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsSecurityError(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}

func IsRateLimitError(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

func IsWorkerNotFound(err error) bool {
	var ne *WorkerNotFoundError
	return errors.As(err, &ne)
}

func IsWorkerUnhealthy(err error) bool {
	var ue *WorkerUnhealthyError
	return errors.As(err, &ue)
}

func IsCircularDependency(err error) bool {
	var ce *CircularDependencyError
	return errors.As(err, &ce)
}

func IsMappingError(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}

// IsRetryable reports whether a failure may be retried under a retry
// policy. Security, validation and mapping failures never are.
func IsRetryable(err error) bool {
	var ie *WorkerInvocationError
	if errors.As(err, &ie) {
		return IsRetryableCode(ie.Code)
	}
	var re *RateLimitError
	return errors.As(err, &re)
}
