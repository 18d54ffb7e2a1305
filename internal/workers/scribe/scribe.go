// Package scribe implements the Scribe specialist (§4.3): writes a
// browser test for a feature description, self-validating the result
// against a static rubric over up to 3 attempts in all, feeding issues
// back into the next attempt.
package scribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kaya/internal/coldstore"
	"kaya/internal/config"
	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/llm"
	"kaya/internal/logging"
	"kaya/internal/pathsafe"
	"kaya/internal/resilience"
)

// MaxSelfValidationRetries bounds Scribe's own rewrite-on-issues loop
// (§4.3), distinct from the orchestrator's Scribe<->Critic rewrite budget.
const MaxSelfValidationRetries = 3

const systemPrompt = "You write browser end-to-end tests. Use attribute-based selectors " +
	"(data-testid), capture at least one screenshot, assert real outcomes, and never use " +
	"index-based selectors, fixed-duration waits, or hard-coded credentials/URLs."

// tierCostUSD approximates the per-call cost for a Scribe invocation
// by model tier; real vendor pricing is out of scope (§1).
var tierCostUSD = map[string]float64{
	"cheap-tier":     0.01,
	"expensive-tier": 0.05,
}

// Worker is the Scribe specialist.
type Worker struct {
	llm       llm.Client
	cold      *coldstore.Store
	bus       *events.Bus
	policy    config.WorkerPolicy
	testsRoot string
	jitter    *resilience.JitterSource
	log       *logging.Logger
}

// New creates a Scribe worker. cold may be nil, in which case RAG
// retrieval is skipped entirely rather than attempted and failing.
// testsRoot is the configured root every written test file must resolve
// within (§6); an empty testsRoot defaults to "tests".
func New(client llm.Client, cold *coldstore.Store, bus *events.Bus, policy config.WorkerPolicy, testsRoot string) *Worker {
	if testsRoot == "" {
		testsRoot = "tests"
	}
	return &Worker{
		llm: client, cold: cold, bus: bus, policy: policy, testsRoot: testsRoot,
		jitter: resilience.NewJitterSource(), log: logging.Get(logging.CategoryScribe),
	}
}

// Run implements the worker contract (§4.3).
func (w *Worker) Run(ctx context.Context, req domain.WorkerRequest, modelID string) domain.WorkerResult {
	start := time.Now()
	w.bus.Emit(events.AgentStarted, map[string]interface{}{"worker": "scribe", "task_id": req.TaskID})

	description, _ := req.Payload["description"].(string)
	feature, _ := req.Payload["feature"].(string)
	outputPath, _ := req.Payload["output_path"].(string)

	patterns, usedRag := w.retrievePatterns(description)

	var lastText string
	var lastValidation Validation
	attempts := 0
	issues := []string(nil)

	for attempts = 1; attempts <= MaxSelfValidationRetries; attempts++ {
		prompt := buildPrompt(description, feature, patterns, issues)

		var text string
		call := resilience.Do(ctx, resilience.ScribePolicy, w.jitter, func(int) resilience.Attempt {
			var err error
			text, err = w.llm.Complete(ctx, modelID, systemPrompt, prompt)
			if err != nil {
				return resilience.Attempt{Err: err, Category: resilience.Classify(err.Error(), 0, false)}
			}
			return resilience.Attempt{}
		})
		if call.Err != nil {
			return w.fail(req, fmt.Errorf("scribe model call: %w", call.Err), call.Category, start)
		}

		lastText = text
		lastValidation = Validate(text)
		if lastValidation.Passes() {
			break
		}
		issues = lastValidation.Issues
	}
	if attempts > MaxSelfValidationRetries {
		attempts = MaxSelfValidationRetries
	}

	if outputPath == "" {
		outputPath = filepath.Join("tests", sanitizeFilename(feature)+".spec.js")
	}
	resolvedPath, err := pathsafe.Resolve(w.testsRoot, outputPath)
	if err != nil {
		return w.fail(req, fmt.Errorf("test output path rejected: %w", err), resilience.CategoryInvalidInput, start)
	}
	if err := writeTestFile(resolvedPath, lastText); err != nil {
		return w.fail(req, fmt.Errorf("writing test file: %w", err), resilience.CategoryTransient, start)
	}

	patternIDs := make([]string, 0, len(patterns))
	for _, p := range patterns {
		patternIDs = append(patternIDs, p.ID)
	}

	retriesUsed := attempts - 1
	if retriesUsed < 0 {
		retriesUsed = 0
	}

	cost := tierCostUSD[modelID] * float64(attempts)
	result := domain.WorkerResult{
		OK: true,
		Data: map[string]interface{}{
			"test_path":    resolvedPath,
			"retries_used": retriesUsed,
			"validation": map[string]interface{}{
				"assertion_count":  lastValidation.AssertionCount,
				"screenshot_count": lastValidation.ScreenshotCount,
				"uses_testid":      lastValidation.UsesTestID,
				"syntax_valid":     lastValidation.SyntaxValid,
				"issues":           lastValidation.Issues,
			},
			"rag_patterns_used": patternIDs,
			"used_rag":          usedRag,
		},
		CostUSD:    cost,
		DurationMS: time.Since(start).Milliseconds(),
	}

	w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "scribe", "task_id": req.TaskID, "status": "success"})
	return result
}

// retrievePatterns performs best-effort retrieval of up to 5 past test
// patterns with similarity >= 0.7. A nil Cold Store, or one returning no
// hits, simply yields no patterns — Scribe proceeds without RAG (§4.3).
func (w *Worker) retrievePatterns(description string) ([]coldstore.Result, bool) {
	if w.cold == nil || description == "" {
		return nil, false
	}
	results := w.cold.Search(coldstore.CollectionTestSuccess, description, 5, 0.7)
	return results, len(results) > 0
}

func (w *Worker) fail(req domain.WorkerRequest, err error, category resilience.Category, start time.Time) domain.WorkerResult {
	w.log.Error("scribe failed for task %s: %v", req.TaskID, err)
	w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "scribe", "task_id": req.TaskID, "status": "failed"})
	return domain.WorkerResult{
		OK:         false,
		Error:      err.Error(),
		Category:   domain.FailureCategory(category),
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func buildPrompt(description, feature string, patterns []coldstore.Result, issues []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feature: %s\nDescription: %s\n", feature, description)
	if len(patterns) > 0 {
		b.WriteString("Similar past tests that passed review:\n")
		for _, p := range patterns {
			fmt.Fprintf(&b, "---\n%s\n", p.Text)
		}
	}
	if len(issues) > 0 {
		b.WriteString("The previous attempt had these issues, fix them:\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	return b.String()
}

func writeTestFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func sanitizeFilename(s string) string {
	if s == "" {
		return "generated_test"
	}
	r := strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	return r.Replace(strings.ToLower(s))
}
