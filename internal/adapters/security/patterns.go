package security

import (
	"regexp"

	"github.com/threadline-io/threadline/internal/domain"
)

// Injection detection categories. Each compiled pattern that matches
// the input contributes one violation.
type injectionPattern struct {
	name    string
	pattern *regexp.Regexp
}

var injectionPatterns = []injectionPattern{
	{
		name:    "script",
		pattern: regexp.MustCompile(`(?i)<script[\s>]|javascript:|on(load|click|error|mouseover)\s*=`),
	},
	{
		name:    "command",
		pattern: regexp.MustCompile("(?i)[;&|`]\\s*(rm|cat|curl|wget|sh|bash|nc|chmod|chown)\\b|\\$\\([^)]*\\)"),
	},
	{
		name:    "path_traversal",
		pattern: regexp.MustCompile(`\.\./|\.\.\\|%2e%2e%2f|%2e%2e/`),
	},
	{
		name:    "query_injection",
		pattern: regexp.MustCompile(`(?i)('|")\s*(or|and)\s+\d+\s*=\s*\d+|union\s+select|;\s*drop\s+table|--\s*$`),
	},
}

func detectInjection(payload string) []domain.SecurityViolation {
	var violations []domain.SecurityViolation
	for _, p := range injectionPatterns {
		if p.pattern.MatchString(payload) {
			violations = append(violations, domain.SecurityViolation{
				Category: domain.ViolationInjection,
				Detail:   "input matches " + p.name + " injection pattern",
			})
		}
	}
	return violations
}
