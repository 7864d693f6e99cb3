package ports

import (
	"github.com/threadline-io/threadline/internal/domain"
)

// SecurityVerdict is the outcome of the validation pipeline. A verdict
// is invalid whenever any violation exists; the risk score is advisory
// telemetry only.
type SecurityVerdict struct {
	IsValid    bool                       `json:"is_valid"`
	Violations []domain.SecurityViolation `json:"violations,omitempty"`
	RiskScore  int                        `json:"risk_score"`
}

type SecurityValidator interface {
	// Validate runs the structural, injection, content-policy and
	// permission checks against one request.
	Validate(req *domain.WorkerRequest, execCtx *domain.ExecutionContext, required string) SecurityVerdict
}
