// Package medic implements the Medic specialist (§4.3): diagnoses a
// Runner failure, asks the model for a patch with a self-reported
// confidence, and re-runs the affected test plus a configured
// regression scope before committing to the fix. The Hippocratic
// invariant governs every exit path: Medic must never leave the tree
// with more failing tests than it found.
package medic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/hotstore"
	"kaya/internal/llm"
	"kaya/internal/logging"
	"kaya/internal/resilience"
)

// MaxRetries is the per-task attempt ceiling (§4.3: MAX_RETRIES=3); past
// this, Medic escalates instead of attempting another fix.
const MaxRetries = 3

// ConfidenceThreshold is the self-reported confidence floor (§4.3); below
// it, Medic escalates rather than applying an uncertain patch.
const ConfidenceThreshold = 0.7

const diffExcerptBytes = 4096

const systemPrompt = "You diagnose failing browser tests and propose a minimal patch. " +
	"Respond with a single JSON object: " +
	`{"diagnosis": string, "patch": string, "confidence": number between 0 and 1}. ` +
	"patch must be the complete corrected file content."

// Outcome is what Medic accomplished this invocation.
type Outcome string

const (
	OutcomeFixApplied Outcome = "fix_applied"
	OutcomeEscalated  Outcome = "escalated_to_hitl"
)

// TestRunner is the subset of the Runner specialist Medic depends on, to
// capture baselines and re-run after patching without importing the full
// runner package's subprocess-pool wiring.
type TestRunner interface {
	Run(ctx context.Context, req domain.WorkerRequest) domain.WorkerResult
}

// Worker is the Medic specialist.
type Worker struct {
	llm               llm.Client
	hot               *hotstore.Store
	runner            TestRunner
	bus               *events.Bus
	regressionTargets []string
	jitter            *resilience.JitterSource
	log               *logging.Logger
}

// New creates a Medic worker. regressionTargets are additional test paths
// re-run alongside the affected test to catch collateral regressions.
func New(client llm.Client, hot *hotstore.Store, runner TestRunner, bus *events.Bus, regressionTargets []string) *Worker {
	return &Worker{
		llm: client, hot: hot, runner: runner, bus: bus, regressionTargets: regressionTargets,
		jitter: resilience.NewJitterSource(), log: logging.Get(logging.CategoryMedic),
	}
}

type patchResponse struct {
	Diagnosis  string  `json:"diagnosis"`
	Patch      string  `json:"patch"`
	Confidence float64 `json:"confidence"`
}

// Run implements the worker contract (§4.3). Payload carries
// {"test_path": string, "feature": string, "failure_message": string,
// "failure_excerpt": string}.
func (w *Worker) Run(ctx context.Context, req domain.WorkerRequest, modelID string) domain.WorkerResult {
	start := time.Now()
	w.bus.Emit(events.AgentStarted, map[string]interface{}{"worker": "medic", "task_id": req.TaskID})

	testPath, _ := req.Payload["test_path"].(string)
	feature, _ := req.Payload["feature"].(string)
	failureMessage, _ := req.Payload["failure_message"].(string)
	failureExcerpt, _ := req.Payload["failure_excerpt"].(string)

	attempts := w.hot.IncrMedicAttempts(req.TaskID)
	if attempts > MaxRetries {
		return w.escalate(req, "max_retries_exceeded", 0, start)
	}

	prompt := fmt.Sprintf("Feature: %s\nFailing test: %s\nFailure: %s\n%s", feature, testPath, failureMessage, failureExcerpt)
	var raw string
	call := resilience.Do(ctx, resilience.MedicPolicy, w.jitter, func(int) resilience.Attempt {
		var err error
		raw, err = w.llm.Complete(ctx, modelID, systemPrompt, prompt)
		if err != nil {
			return resilience.Attempt{Err: err, Category: resilience.Classify(err.Error(), 0, false)}
		}
		return resilience.Attempt{}
	})
	if call.Err != nil {
		return w.fail(req, fmt.Errorf("medic model call: %w", call.Err), start)
	}

	patch, parseErr := parsePatchResponse(raw)
	if parseErr != nil {
		return w.fail(req, fmt.Errorf("medic patch response: %w", parseErr), start)
	}

	if patch.Confidence < ConfidenceThreshold {
		return w.escalate(req, "low_confidence", patch.Confidence, start)
	}

	scope := append([]string{testPath}, w.regressionTargets...)

	originalContent, err := os.ReadFile(testPath)
	if err != nil {
		return w.fail(req, fmt.Errorf("reading original test before patching: %w", err), start)
	}

	baselineFailed := w.runScope(ctx, req, scope)

	if err := os.WriteFile(testPath, []byte(patch.Patch), 0o644); err != nil {
		return w.fail(req, fmt.Errorf("applying patch: %w", err), start)
	}

	postFailed := w.runScope(ctx, req, scope)
	diffExcerpt := unifiedDiffExcerpt(testPath, string(originalContent), patch.Patch)

	regressionDelta := postFailed - baselineFailed
	if regressionDelta > 0 {
		// Hippocratic invariant: never leave more failures than found.
		if rollbackErr := os.WriteFile(testPath, originalContent, 0o644); rollbackErr != nil {
			w.log.Error("medic rollback failed for %s: %v", testPath, rollbackErr)
		}
		w.recordAttempt(req.TaskID, patch, diffExcerpt, regressionDelta)
		result := w.escalate(req, "regression_detected", patch.Confidence, start)
		result.Category = domain.FailureRegressionDetected
		return result
	}

	w.recordAttempt(req.TaskID, patch, diffExcerpt, regressionDelta)

	w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "medic", "task_id": req.TaskID, "status": "success"})
	return domain.WorkerResult{
		OK: true,
		Data: map[string]interface{}{
			"outcome":    string(OutcomeFixApplied),
			"diagnosis":  patch.Diagnosis,
			"confidence": patch.Confidence,
			"attempts":   attempts,
		},
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// runScope runs Runner over every path in scope and sums failed_count;
// a path Runner can't even execute counts as one failure.
func (w *Worker) runScope(ctx context.Context, req domain.WorkerRequest, scope []string) int {
	total := 0
	for _, path := range scope {
		result := w.runner.Run(ctx, domain.WorkerRequest{
			TaskID:    req.TaskID,
			SessionID: req.SessionID,
			Payload:   map[string]interface{}{"test_path": path},
			Deadline:  req.Deadline,
		})
		if !result.OK {
			total++
			continue
		}
		if fc, ok := result.Data["failed_count"].(int); ok {
			total += fc
		}
	}
	return total
}

func (w *Worker) recordAttempt(taskID string, patch patchResponse, diffOrBaseline string, regressionDelta int) {
	attempt := domain.Attempt{
		Diagnosis:       patch.Diagnosis,
		Confidence:      patch.Confidence,
		DiffExcerpt:     truncate(diffOrBaseline, diffExcerptBytes),
		RegressionDelta: regressionDelta,
	}
	if err := w.hot.AppendMedicAttempt(taskID, attempt); err != nil {
		w.log.Warn("could not append medic attempt history for %s: %v", taskID, err)
	}
}

func (w *Worker) escalate(req domain.WorkerRequest, reason string, confidence float64, start time.Time) domain.WorkerResult {
	w.bus.Emit(events.HITLEscalated, map[string]interface{}{"task_id": req.TaskID, "reason": reason})
	w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "medic", "task_id": req.TaskID, "status": "success"})
	return domain.WorkerResult{
		OK: true,
		Data: map[string]interface{}{
			"outcome":    string(OutcomeEscalated),
			"reason":     reason,
			"confidence": confidence,
		},
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func (w *Worker) fail(req domain.WorkerRequest, err error, start time.Time) domain.WorkerResult {
	w.log.Error("medic failed for task %s: %v", req.TaskID, err)
	w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "medic", "task_id": req.TaskID, "status": "failed"})
	return domain.WorkerResult{
		OK:         false,
		Error:      err.Error(),
		Category:   domain.FailureServiceError,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func parsePatchResponse(raw string) (patchResponse, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return patchResponse{}, fmt.Errorf("no JSON object found in model response")
	}
	var p patchResponse
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &p); err != nil {
		return patchResponse{}, err
	}
	return p, nil
}

func unifiedDiffExcerpt(path, before, after string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path + " (before)",
		ToFile:   path + " (after)",
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
