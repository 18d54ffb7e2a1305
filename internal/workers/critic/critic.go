// Package critic implements the Critic specialist (§4.3): a pure
// static-analysis pre-validator. It never calls a model and never
// retries — CriticPolicy's {1, 0} retry policy (§4.9) encodes exactly
// that: one attempt, no backoff.
package critic

import (
	"context"
	"os"
	"time"

	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/logging"
	"kaya/internal/workers/scribe"
)

// Decision is Critic's verdict.
type Decision string

const (
	Approved Decision = "approved"
	Rejected Decision = "rejected"
)

// IssueTooExpensive marks a test rejected purely on cost/duration
// grounds, independent of the forbidden-pattern issues Scribe's rubric
// already covers.
const IssueTooExpensive = "too_expensive"

// Cost/duration estimation constants. Critic never executes the test, so
// these are static per-interaction estimates rather than measured values:
// each assertion or screenshot capture is assumed to cost one browser
// round-trip.
const (
	baseDurationMS   = 5_000
	perStepMS        = 1_500
	baseCostUSD      = 0.02
	perStepCostUSD   = 0.01
	maxDurationMS    = 60_000
	maxCostUSD       = 0.50
)

// Worker is the Critic specialist.
type Worker struct {
	bus *events.Bus
	log *logging.Logger
}

// New creates a Critic worker.
func New(bus *events.Bus) *Worker {
	return &Worker{bus: bus, log: logging.Get(logging.CategoryCritic)}
}

// Run implements the worker contract (§4.3). Payload carries
// {"test_path": string, optional "critical_path": bool}.
func (w *Worker) Run(ctx context.Context, req domain.WorkerRequest) domain.WorkerResult {
	start := time.Now()
	w.bus.Emit(events.AgentStarted, map[string]interface{}{"worker": "critic", "task_id": req.TaskID})

	testPath, _ := req.Payload["test_path"].(string)
	criticalPath, _ := req.Payload["critical_path"].(bool)

	source, err := os.ReadFile(testPath)
	if err != nil {
		w.log.Error("critic could not read %s: %v", testPath, err)
		w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "critic", "task_id": req.TaskID, "status": "failed"})
		return domain.WorkerResult{
			OK:         false,
			Error:      err.Error(),
			Category:   domain.FailureInvalidInput,
			DurationMS: time.Since(start).Milliseconds(),
		}
	}

	validation := scribe.Validate(string(source))
	issues := append([]string(nil), validation.Issues...)

	steps := validation.AssertionCount + validation.ScreenshotCount
	estimatedDurationMS := baseDurationMS + steps*perStepMS
	estimatedCostUSD := baseCostUSD + float64(steps)*perStepCostUSD

	tooExpensive := estimatedDurationMS > maxDurationMS || estimatedCostUSD > maxCostUSD
	if tooExpensive && !criticalPath {
		issues = append(issues, IssueTooExpensive)
	}

	decision := Approved
	if len(issues) > 0 {
		decision = Rejected
	}

	w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "critic", "task_id": req.TaskID, "status": "success"})
	return domain.WorkerResult{
		OK: true,
		Data: map[string]interface{}{
			"decision":              string(decision),
			"issues":                issues,
			"estimated_cost_usd":    estimatedCostUSD,
			"estimated_duration_ms": estimatedDurationMS,
		},
		DurationMS: time.Since(start).Milliseconds(),
	}
}
