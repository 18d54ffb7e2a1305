package medic

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"kaya/internal/clock"
	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/hotstore"
	"kaya/internal/llm"
)

type fakeRunner struct {
	failedByPath map[string]int
}

func (r *fakeRunner) Run(ctx context.Context, req domain.WorkerRequest) domain.WorkerResult {
	path, _ := req.Payload["test_path"].(string)
	return domain.WorkerResult{OK: true, Data: map[string]interface{}{"failed_count": r.failedByPath[path]}}
}

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broken.spec.js")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

const goodPatchResponse = `{"diagnosis": "stale selector", "patch": "test('x', () => {});", "confidence": 0.9}`
const lowConfidenceResponse = `{"diagnosis": "not sure", "patch": "test('x', () => {});", "confidence": 0.2}`

func TestRunAppliesFixWhenNoRegression(t *testing.T) {
	path := writeFixture(t, "test('x', () => { throw new Error('boom'); });")
	bus := events.NewBus(clock.Real, 16)
	hot := hotstore.New(clock.Real)
	runner := &fakeRunner{failedByPath: map[string]int{path: 0}}
	client := &llm.StaticClient{Responses: map[string]string{"expensive-tier": goodPatchResponse}}
	w := New(client, hot, runner, bus, nil)

	result := w.Run(context.Background(), domain.WorkerRequest{
		TaskID: "m1",
		Payload: map[string]interface{}{
			"test_path":       path,
			"feature":         "checkout",
			"failure_message": "boom",
		},
	}, "expensive-tier")

	if !result.OK {
		t.Fatalf("expected ok result, got %+v", result)
	}
	if result.Data["outcome"] != string(OutcomeFixApplied) {
		t.Fatalf("expected fix_applied, got %+v", result.Data)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "test('x', () => {});" {
		t.Fatalf("expected patched content written, got %q", content)
	}
}

func TestRunEscalatesOnLowConfidence(t *testing.T) {
	path := writeFixture(t, "test('x', () => { throw new Error('boom'); });")
	bus := events.NewBus(clock.Real, 16)
	hot := hotstore.New(clock.Real)
	runner := &fakeRunner{failedByPath: map[string]int{path: 0}}
	client := &llm.StaticClient{Responses: map[string]string{"expensive-tier": lowConfidenceResponse}}
	w := New(client, hot, runner, bus, nil)

	result := w.Run(context.Background(), domain.WorkerRequest{
		TaskID:  "m2",
		Payload: map[string]interface{}{"test_path": path, "feature": "checkout"},
	}, "expensive-tier")

	if result.Data["outcome"] != string(OutcomeEscalated) {
		t.Fatalf("expected escalated_to_hitl, got %+v", result.Data)
	}
	if result.Data["reason"] != "low_confidence" {
		t.Fatalf("expected low_confidence reason, got %+v", result.Data)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "test('x', () => { throw new Error('boom'); });" {
		t.Fatalf("expected original content left untouched on escalation, got %q", content)
	}
}

func TestRunRollsBackOnRegression(t *testing.T) {
	path := writeFixture(t, "test('x', () => { throw new Error('boom'); });")
	regressionTarget := writeFixture(t, "test('y', () => {});")
	bus := events.NewBus(clock.Real, 16)
	hot := hotstore.New(clock.Real)
	// Baseline: both the affected test and the regression target pass (0).
	runner := &fakeRunner{failedByPath: map[string]int{path: 0, regressionTarget: 0}}
	client := &llm.StaticClient{Responses: map[string]string{"expensive-tier": goodPatchResponse}}
	w := New(client, hot, runner, bus, []string{regressionTarget})

	// Force a regression by having the runner report more failures after
	// the patch is written: the wrapper reports one failure for the
	// affected path once its content on disk differs from the original
	// (i.e. after WriteFile), so post-patch failures (1) exceed baseline (0).
	originalContent, _ := os.ReadFile(path)
	regressingRunner := &regressionAfterWriteRunner{base: runner, path: path, original: string(originalContent)}
	w.runner = regressingRunner

	result := w.Run(context.Background(), domain.WorkerRequest{
		TaskID:  "m3",
		Payload: map[string]interface{}{"test_path": path, "feature": "checkout"},
	}, "expensive-tier")

	if result.Data["outcome"] != string(OutcomeEscalated) {
		t.Fatalf("expected escalated_to_hitl on regression, got %+v", result.Data)
	}
	if result.Data["reason"] != "regression_detected" {
		t.Fatalf("expected regression_detected reason, got %+v", result.Data)
	}
	content, _ := os.ReadFile(path)
	if string(content) != string(originalContent) {
		t.Fatalf("expected patch rolled back after regression, got %q", content)
	}
}

// regressionAfterWriteRunner reports zero failures until the test file on
// disk no longer matches its original content, at which point it reports
// one new failure — simulating a patch that broke something.
type regressionAfterWriteRunner struct {
	base     *fakeRunner
	path     string
	original string
}

func (r *regressionAfterWriteRunner) Run(ctx context.Context, req domain.WorkerRequest) domain.WorkerResult {
	path, _ := req.Payload["test_path"].(string)
	if path == r.path {
		current, _ := os.ReadFile(path)
		if string(current) != r.original {
			return domain.WorkerResult{OK: true, Data: map[string]interface{}{"failed_count": 1}}
		}
	}
	return domain.WorkerResult{OK: true, Data: map[string]interface{}{"failed_count": 0}}
}

func TestRunEscalatesAfterMaxRetries(t *testing.T) {
	path := writeFixture(t, "test('x', () => { throw new Error('boom'); });")
	bus := events.NewBus(clock.Real, 16)
	hot := hotstore.New(clock.Real)
	runner := &fakeRunner{failedByPath: map[string]int{path: 0}}
	client := &llm.StaticClient{Responses: map[string]string{"expensive-tier": goodPatchResponse}}
	w := New(client, hot, runner, bus, nil)

	for i := 0; i < MaxRetries; i++ {
		hot.IncrMedicAttempts("m4")
	}

	result := w.Run(context.Background(), domain.WorkerRequest{
		TaskID:  "m4",
		Payload: map[string]interface{}{"test_path": path, "feature": "checkout"},
	}, "expensive-tier")

	if result.Data["outcome"] != string(OutcomeEscalated) || result.Data["reason"] != "max_retries_exceeded" {
		t.Fatalf("expected escalation on exceeding MaxRetries, got %+v", result.Data)
	}
}
