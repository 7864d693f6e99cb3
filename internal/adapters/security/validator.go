package security

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/threadline-io/threadline/internal/domain"
	"github.com/threadline-io/threadline/internal/ports"
)

// Risk weights per violation category. The score is advisory telemetry
// capped at 100; validity depends only on whether any violation exists.
var riskWeights = map[domain.ViolationCategory]int{
	domain.ViolationStructural: 10,
	domain.ViolationInjection:  25,
	domain.ViolationPolicy:     20,
	domain.ViolationPermission: 30,
}

// Validator runs the input policy pipeline: structural checks, pattern
// based injection detection, content-policy keyword matching, and the
// caller permission check.
type Validator struct {
	config domain.SecurityConfig
	logger *slog.Logger
	terms  []string
}

func NewValidator(config domain.SecurityConfig, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxInputLength <= 0 {
		config.MaxInputLength = 32768
	}

	terms := make([]string, 0, len(config.SensitiveTerms))
	for _, t := range config.SensitiveTerms {
		terms = append(terms, strings.ToLower(t))
	}

	return &Validator{
		config: config,
		logger: logger.With("component", "security-validator"),
		terms:  terms,
	}
}

func (v *Validator) Validate(req *domain.WorkerRequest, execCtx *domain.ExecutionContext, required string) ports.SecurityVerdict {
	var violations []domain.SecurityViolation

	violations = append(violations, v.structuralChecks(req.Payload)...)
	violations = append(violations, detectInjection(req.Payload)...)
	violations = append(violations, v.contentPolicyChecks(req.Payload)...)

	if required != "" && execCtx != nil && !execCtx.HasPermission(required) {
		violations = append(violations, domain.SecurityViolation{
			Category: domain.ViolationPermission,
			Detail:   fmt.Sprintf("caller lacks capability %q required by worker %s", required, req.WorkerID),
		})
	}

	verdict := ports.SecurityVerdict{
		IsValid:    len(violations) == 0,
		Violations: violations,
		RiskScore:  scoreViolations(violations),
	}

	if !verdict.IsValid {
		v.logger.Warn("security validation failed",
			"worker_id", req.WorkerID,
			"violations", len(violations),
			"risk_score", verdict.RiskScore,
		)
	}
	return verdict
}

func (v *Validator) structuralChecks(payload string) []domain.SecurityViolation {
	var violations []domain.SecurityViolation

	if len(payload) > v.config.MaxInputLength {
		violations = append(violations, domain.SecurityViolation{
			Category: domain.ViolationStructural,
			Detail:   fmt.Sprintf("input length %d exceeds ceiling %d", len(payload), v.config.MaxInputLength),
		})
	}
	if strings.ContainsRune(payload, 0) {
		violations = append(violations, domain.SecurityViolation{
			Category: domain.ViolationStructural,
			Detail:   "input contains embedded NUL byte",
		})
	}
	if !utf8.ValidString(payload) {
		violations = append(violations, domain.SecurityViolation{
			Category: domain.ViolationStructural,
			Detail:   "input is not valid UTF-8",
		})
	}
	return violations
}

func (v *Validator) contentPolicyChecks(payload string) []domain.SecurityViolation {
	var violations []domain.SecurityViolation

	lowered := strings.ToLower(payload)
	for _, term := range v.terms {
		if strings.Contains(lowered, term) {
			violations = append(violations, domain.SecurityViolation{
				Category: domain.ViolationPolicy,
				Detail:   fmt.Sprintf("input matches sensitive term %q", term),
			})
		}
	}
	return violations
}

func scoreViolations(violations []domain.SecurityViolation) int {
	score := 0
	for _, violation := range violations {
		score += riskWeights[violation.Category]
	}
	if score > 100 {
		score = 100
	}
	return score
}
