// Package rubric implements the Validation Rubric (§4.10): a pure,
// deterministic pass/fail function over a ValidatorRecord.
package rubric

import (
	"fmt"

	"kaya/internal/domain"
)

// MaxExecutionTimeMS is the rubric's execution-time ceiling (§3, §4.10).
const MaxExecutionTimeMS = 45_000

// Reason codes accumulated on failure (§4.10).
const (
	ReasonBrowserNotLaunched = "browser_not_launched"
	ReasonTestNotExecuted    = "test_not_executed"
	ReasonAssertionsFailed   = "assertions_failed"
	ReasonNoVisualEvidence   = "no_visual_evidence"
	ReasonTimeoutExceeded    = "timeout_exceeded"
)

// SchemaInvalid builds the "schema_invalid:<path>" reason for a missing or
// out-of-range required field.
func SchemaInvalid(path string) string {
	return fmt.Sprintf("schema_invalid:%s", path)
}

// IsPass applies schema validation first, then the three boolean checks
// plus the non-empty-screenshots and execution-time-ceiling checks.
// console_errors and network_failures are recorded on the record but
// never gate the rubric (§3). Every failed check accumulates its coded
// reason; IsPass never panics on a malformed record.
func IsPass(record domain.ValidatorRecord) (bool, []string) {
	var reasons []string

	if record.ExecutionTimeMS < 1 {
		reasons = append(reasons, SchemaInvalid("execution_time_ms"))
	}

	if !record.BrowserLaunched {
		reasons = append(reasons, ReasonBrowserNotLaunched)
	}
	if !record.TestExecuted {
		reasons = append(reasons, ReasonTestNotExecuted)
	}
	if !record.TestPassed {
		reasons = append(reasons, ReasonAssertionsFailed)
	}
	if len(record.Screenshots) == 0 {
		reasons = append(reasons, ReasonNoVisualEvidence)
	}
	if record.ExecutionTimeMS > MaxExecutionTimeMS {
		reasons = append(reasons, ReasonTimeoutExceeded)
	}

	return len(reasons) == 0, reasons
}
