package scribe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kaya/internal/clock"
	"kaya/internal/config"
	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/llm"
)

type recordingSink struct {
	handled chan events.Event
}

func newRecordingSink() *recordingSink { return &recordingSink{handled: make(chan events.Event, 16)} }

func (r *recordingSink) Name() string          { return "scribe-test-sink" }
func (r *recordingSink) Handle(e events.Event) { r.handled <- e }

const passingTest = `
test("checkout completes", async () => {
  await page.goto("/checkout");
  await page.click('[data-testid="submit"]');
  await expect(page.locator('[data-testid="status"]')).toHaveText("done");
  await page.screenshot({ path: "out.png" });
});
`

const failingTest = `
test("checkout completes", async () => {
  await page.click(".css-a1b2c3");
});
`

func newTestWorker(t *testing.T, client llm.Client) (*Worker, *events.Bus) {
	t.Helper()
	bus := events.NewBus(clock.Real, 16)
	w := New(client, nil, bus, config.WorkerPolicy{}, os.TempDir())
	return w, bus
}

func TestRunWritesPassingTestOnFirstAttempt(t *testing.T) {
	dir := t.TempDir()
	client := &llm.StaticClient{Responses: map[string]string{"cheap-tier": passingTest}}
	w, _ := newTestWorker(t, client)

	req := domain.WorkerRequest{
		TaskID: "t1",
		Payload: map[string]interface{}{
			"description": "checkout flow",
			"feature":     "checkout",
			"output_path": filepath.Join(dir, "checkout.spec.js"),
		},
	}

	result := w.Run(context.Background(), req, "cheap-tier")
	if !result.OK {
		t.Fatalf("expected ok result, got %+v", result)
	}
	if result.Data["retries_used"] != 0 {
		t.Fatalf("expected no retries on a passing first attempt, got %v", result.Data["retries_used"])
	}
	validation := result.Data["validation"].(map[string]interface{})
	if !validation["syntax_valid"].(bool) {
		t.Fatalf("expected syntax_valid, got %+v", validation)
	}
	if _, err := os.Stat(filepath.Join(dir, "checkout.spec.js")); err != nil {
		t.Fatalf("expected test file written: %v", err)
	}
}

func TestRunExhaustsRetriesAndStillWritesBestEffort(t *testing.T) {
	dir := t.TempDir()
	client := &llm.StaticClient{Responses: map[string]string{"cheap-tier": failingTest}}
	w, _ := newTestWorker(t, client)

	req := domain.WorkerRequest{
		TaskID: "t2",
		Payload: map[string]interface{}{
			"description": "broken flow",
			"feature":     "broken",
			"output_path": filepath.Join(dir, "broken.spec.js"),
		},
	}

	result := w.Run(context.Background(), req, "cheap-tier")
	if !result.OK {
		t.Fatalf("expected ok=true even when the rubric never passes (Critic is the real gate), got %+v", result)
	}
	if result.Data["retries_used"] != MaxSelfValidationRetries-1 {
		t.Fatalf("expected all self-validation retries consumed, got %v", result.Data["retries_used"])
	}
	validation := result.Data["validation"].(map[string]interface{})
	issues := validation["issues"].([]string)
	if len(issues) == 0 {
		t.Fatalf("expected surviving issues to be reported, got none")
	}
}

func TestRunDefaultsOutputPathFromFeatureName(t *testing.T) {
	client := &llm.StaticClient{Responses: map[string]string{"cheap-tier": passingTest}}
	w, _ := newTestWorker(t, client)

	req := domain.WorkerRequest{
		TaskID: "t3",
		Payload: map[string]interface{}{
			"description": "search bar",
			"feature":     "Search Bar",
		},
	}

	result := w.Run(context.Background(), req, "cheap-tier")
	if !result.OK {
		t.Fatalf("expected ok result, got %+v", result)
	}
	path := result.Data["test_path"].(string)
	defer os.RemoveAll(filepath.Dir(path))
	if filepath.Base(path) != "search_bar.spec.js" {
		t.Fatalf("expected sanitized default filename, got %q", path)
	}
}

func TestRunWithoutColdStoreSkipsRAG(t *testing.T) {
	client := &llm.StaticClient{Responses: map[string]string{"cheap-tier": passingTest}}
	w, _ := newTestWorker(t, client)

	req := domain.WorkerRequest{
		TaskID: "t4",
		Payload: map[string]interface{}{
			"description": "anything",
			"feature":     "anything",
			"output_path": filepath.Join(t.TempDir(), "anything.spec.js"),
		},
	}

	result := w.Run(context.Background(), req, "cheap-tier")
	if result.Data["used_rag"] != false {
		t.Fatalf("expected used_rag=false with a nil Cold Store, got %v", result.Data["used_rag"])
	}
	if patterns := result.Data["rag_patterns_used"].([]string); len(patterns) != 0 {
		t.Fatalf("expected no rag patterns, got %v", patterns)
	}
}

func TestRunEmitsStartedAndCompletedEvents(t *testing.T) {
	client := &llm.StaticClient{Responses: map[string]string{"cheap-tier": passingTest}}
	w, bus := newTestWorker(t, client)

	sink := newRecordingSink()
	bus.AddSink(sink)

	req := domain.WorkerRequest{
		TaskID: "t5",
		Payload: map[string]interface{}{
			"description": "alerts",
			"feature":     "alerts",
			"output_path": filepath.Join(t.TempDir(), "alerts.spec.js"),
		},
	}
	w.Run(context.Background(), req, "cheap-tier")

	var seen []events.Type
	for i := 0; i < 2; i++ {
		select {
		case e := <-sink.handled:
			seen = append(seen, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	if len(seen) != 2 || seen[0] != events.AgentStarted || seen[1] != events.AgentCompleted {
		t.Fatalf("expected [AgentStarted, AgentCompleted], got %v", seen)
	}
}
