// Package resilience wraps unreliable provider calls with retries, a
// per-operation circuit breaker, and an ordered fallback chain.
package resilience

import (
	"strings"

	"tablelens/internal/domain"
)

// classificationRule maps message substrings to an error category. Rules are
// checked in order and the first match wins; a message matching several
// keywords gets the earliest category in the table.
type classificationRule struct {
	keywords []string
	category domain.ErrorCategory
}

var classificationRules = []classificationRule{
	{[]string{"timeout", "timed out", "deadline exceeded"}, domain.ErrorTimeout},
	{[]string{"rate", "quota", "limit"}, domain.ErrorAPILimit},
	{[]string{"auth", "unauthorized", "forbidden"}, domain.ErrorAuthentication},
	{[]string{"json", "parse", "decode"}, domain.ErrorParsing},
	{[]string{"network", "connection", "http"}, domain.ErrorNetwork},
	{[]string{"memory", "resource"}, domain.ErrorResource},
}

// Classify assigns an error category based on the error message.
func Classify(err error) domain.ErrorCategory {
	if err == nil {
		return domain.ErrorUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range classificationRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.category
			}
		}
	}
	return domain.ErrorUnknown
}

// Retryable reports whether an error of the given category is worth
// retrying. Authentication and validation failures never are.
func Retryable(category domain.ErrorCategory) bool {
	switch category {
	case domain.ErrorAuthentication, domain.ErrorValidation:
		return false
	}
	return true
}

var baseSeverity = map[domain.ErrorCategory]domain.Severity{
	domain.ErrorAuthentication: domain.SeverityHigh,
	domain.ErrorAPILimit:       domain.SeverityHigh,
	domain.ErrorResource:       domain.SeverityHigh,
	domain.ErrorNetwork:        domain.SeverityMedium,
	domain.ErrorTimeout:        domain.SeverityMedium,
	domain.ErrorUnknown:        domain.SeverityMedium,
	domain.ErrorParsing:        domain.SeverityLow,
	domain.ErrorValidation:     domain.SeverityLow,
}

// AssessSeverity maps a category to a severity, escalating one level when
// the failure happened on the final attempt.
func AssessSeverity(category domain.ErrorCategory, fctx domain.FaultContext) domain.Severity {
	sev, ok := baseSeverity[category]
	if !ok {
		sev = domain.SeverityMedium
	}
	if fctx.MaxAttempts > 0 && fctx.Attempt >= fctx.MaxAttempts {
		switch sev {
		case domain.SeverityLow:
			sev = domain.SeverityMedium
		case domain.SeverityMedium:
			sev = domain.SeverityHigh
		}
	}
	return sev
}
