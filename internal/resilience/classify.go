// Package resilience implements the Resilience Kit (§4.9): error
// classification, retry-with-backoff, per-endpoint circuit breakers,
// named fallback strategies, and a graceful-degradation guard
// (DegradedGuard) for wrapping store calls. No package in this module
// wraps the Hot Store or Cold Store in a DegradedGuard.
package resilience

import "strings"

// Classify maps a raw error/exception string and optional HTTP status to
// a FailureCategory using the token rules in §4.9. isSubprocessTimeout
// forces subprocess_timeout regardless of the message content.
func Classify(message string, httpStatus int, isSubprocessTimeout bool) Category {
	if isSubprocessTimeout {
		return CategorySubprocessTimeout
	}
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "rate limit") || httpStatus == 429:
		return CategoryRateLimit
	case strings.Contains(lower, "timeout"):
		return CategoryTimeout
	case strings.Contains(lower, "connection") || strings.Contains(lower, "network"):
		return CategoryNetwork
	case httpStatus >= 500 && httpStatus <= 599:
		return CategoryServiceError
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") || strings.Contains(lower, "unauthorized"):
		return CategoryAuth
	case httpStatus == 401 || httpStatus == 403:
		return CategoryAuth
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid"):
		return CategoryInvalidInput
	default:
		return CategoryTransient
	}
}

// Category is a classified failure kind (§7's "Kinds" list).
type Category string

const (
	CategoryTransient          Category = "transient"
	CategoryRateLimit          Category = "rate_limit"
	CategoryTimeout            Category = "timeout"
	CategoryNetwork            Category = "network"
	CategoryServiceError       Category = "service_error"
	CategoryAuth               Category = "auth"
	CategoryInvalidInput       Category = "invalid_input"
	CategoryPermanent          Category = "permanent"
	CategorySubprocessTimeout  Category = "subprocess_timeout"
	CategoryCircuitOpen        Category = "circuit_open"
	CategoryBudgetExceeded     Category = "budget_exceeded"
	CategoryValidationFailed   Category = "validation_failed"
	CategoryRegressionDetected Category = "regression_detected"
	CategoryLowConfidence      Category = "low_confidence"
	CategoryNotFound           Category = "not_found"
	CategoryConflict           Category = "conflict"
	CategoryDegradedStore      Category = "degraded_store"
)

// NonRetryable reports whether a category must never be retried (§4.9:
// "Categories auth and invalid_input and permanent are never retried").
func (c Category) NonRetryable() bool {
	switch c {
	case CategoryAuth, CategoryInvalidInput, CategoryPermanent:
		return true
	default:
		return false
	}
}
