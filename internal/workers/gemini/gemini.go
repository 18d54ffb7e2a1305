// Package gemini implements the Gemini specialist (§4.3): drives a test
// page through a real browser via browserdriver.Driver and emits a
// domain.ValidatorRecord. AI screenshot analysis is optional and, when the
// worker is configured without a model client or the call fails, the
// record still comes back rubric-valid with validated=false and a reason
// rather than a hard failure — a browser run that actually passed should
// not be discarded for want of an opinion on it.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kaya/internal/browserdriver"
	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/llm"
	"kaya/internal/logging"
	"kaya/internal/resilience"
	"kaya/internal/rubric"
)

const systemPrompt = "You review a browser test run from its console errors, network failures, and " +
	"screenshot path. Respond with a single JSON object: " +
	`{"ui_correct": bool, "visual_regressions": bool, "confidence": number 0-100, "notes": string}.`

// DefaultWaitAfterNavigate is how long Validate lets the page settle before
// the screenshot is taken.
const DefaultWaitAfterNavigate = 2 * time.Second

// Worker is the Gemini specialist.
type Worker struct {
	driver       browserdriver.Driver
	llm          llm.Client
	artifactsDir string
	waitAfterNav time.Duration
	bus          *events.Bus
	jitter       *resilience.JitterSource
	log          *logging.Logger
}

// New creates a Gemini worker. client may be nil: AI analysis is then
// always skipped, every record comes back with validated=false, and a
// request with enable_ai_analysis set gets
// validated_reason="ai_analysis_unavailable".
func New(driver browserdriver.Driver, client llm.Client, artifactsDir string, bus *events.Bus) *Worker {
	return &Worker{
		driver:       driver,
		llm:          client,
		artifactsDir: artifactsDir,
		waitAfterNav: DefaultWaitAfterNavigate,
		bus:          bus,
		jitter:       resilience.NewJitterSource(),
		log:          logging.Get(logging.CategoryGemini),
	}
}

type analysisResponse struct {
	UICorrect         bool    `json:"ui_correct"`
	VisualRegressions bool    `json:"visual_regressions"`
	Confidence        float64 `json:"confidence"`
	Notes             string  `json:"notes"`
}

// Run implements the worker contract. Payload carries {"target_url":
// string, "test_path": string, "enable_ai_analysis": bool}.
func (w *Worker) Run(ctx context.Context, req domain.WorkerRequest, modelID string) domain.WorkerResult {
	start := time.Now()
	w.bus.Emit(events.AgentStarted, map[string]interface{}{"worker": "gemini", "task_id": req.TaskID})

	targetURL, _ := req.Payload["target_url"].(string)
	testPath, _ := req.Payload["test_path"].(string)
	enableAI, _ := req.Payload["enable_ai_analysis"].(bool)

	if targetURL == "" {
		return w.fail(req, fmt.Errorf("gemini requires a target_url to validate"), domain.FailureInvalidInput, start)
	}

	var run browserdriver.Run
	call := resilience.Do(ctx, resilience.GeminiPolicy, w.jitter, func(int) resilience.Attempt {
		var err error
		run, err = w.driver.Validate(ctx, targetURL, w.artifactsDir, w.waitAfterNav)
		if err != nil {
			return resilience.Attempt{Err: err, Category: resilience.Classify(err.Error(), 0, false)}
		}
		return resilience.Attempt{}
	})
	if call.Err != nil {
		return w.fail(req, fmt.Errorf("gemini browser validate: %w", call.Err), domain.FailureCategory(call.Category), start)
	}

	record := domain.ValidatorRecord{
		BrowserLaunched: run.Launched,
		TestExecuted:    run.Navigated,
		TestPassed:      run.Navigated && len(run.ConsoleErrors) == 0,
		Screenshots:     run.ScreenshotPaths,
		ConsoleErrors:   run.ConsoleErrors,
		NetworkFailures: run.NetworkFailures,
		ExecutionTimeMS: int(run.DurationMS),
	}

	passed, reasons := rubric.IsPass(record)

	validated := false
	aiReason := ""
	if enableAI && w.llm != nil && run.Launched {
		if analysis, err := w.analyze(ctx, modelID, testPath, record); err == nil {
			record.AIAnalysis = &domain.AIAnalysis{
				UICorrect:         analysis.UICorrect,
				VisualRegressions: analysis.VisualRegressions,
				Confidence:        analysis.Confidence,
				Notes:             analysis.Notes,
			}
			validated = true
		} else {
			aiReason = fmt.Sprintf("ai_analysis_failed: %v", err)
			w.log.Warn("gemini AI analysis unavailable for task %s: %v", req.TaskID, err)
		}
	} else if enableAI {
		aiReason = "ai_analysis_unavailable"
	}

	w.bus.Emit(events.ValidationComplete, map[string]interface{}{
		"task_id": req.TaskID, "passed": passed, "reasons": reasons, "validated": validated,
	})
	w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "gemini", "task_id": req.TaskID, "status": "success"})

	data := map[string]interface{}{
		"passed":           passed,
		"reasons":          reasons,
		"validated":        validated,
		"browser_launched": record.BrowserLaunched,
		"test_executed":    record.TestExecuted,
		"test_passed":      record.TestPassed,
		"screenshots":      record.Screenshots,
		"console_errors":   record.ConsoleErrors,
		"network_failures": record.NetworkFailures,
		"execution_time_ms": record.ExecutionTimeMS,
	}
	if aiReason != "" {
		data["validated_reason"] = aiReason
	}
	if record.AIAnalysis != nil {
		data["ai_analysis"] = record.AIAnalysis
	}

	return domain.WorkerResult{
		OK:         true,
		Data:       data,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func (w *Worker) analyze(ctx context.Context, modelID, testPath string, record domain.ValidatorRecord) (analysisResponse, error) {
	prompt := fmt.Sprintf(
		"Test: %s\nConsole errors: %v\nNetwork failures: %v\nScreenshot: %s\n",
		testPath, record.ConsoleErrors, record.NetworkFailures, firstOrEmpty(record.Screenshots),
	)
	raw, err := w.llm.Complete(ctx, modelID, systemPrompt, prompt)
	if err != nil {
		return analysisResponse{}, err
	}
	return parseAnalysis(raw)
}

func parseAnalysis(raw string) (analysisResponse, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return analysisResponse{}, fmt.Errorf("no JSON object found in model response")
	}
	var a analysisResponse
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &a); err != nil {
		return analysisResponse{}, err
	}
	return a, nil
}

func (w *Worker) fail(req domain.WorkerRequest, err error, category domain.FailureCategory, start time.Time) domain.WorkerResult {
	w.log.Error("gemini failed for task %s: %v", req.TaskID, err)
	w.bus.Emit(events.AgentCompleted, map[string]interface{}{"worker": "gemini", "task_id": req.TaskID, "status": "failed"})
	return domain.WorkerResult{
		OK:         false,
		Error:      err.Error(),
		Category:   category,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
