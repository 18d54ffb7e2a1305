package orchestrator

import (
	"context"
	"testing"
	"time"

	"kaya/internal/clock"
	"kaya/internal/config"
	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/hitl"
	"kaya/internal/hotstore"
	"kaya/internal/ledger"
	"kaya/internal/metrics"
	"kaya/internal/router"
)

type fakeWriter struct{ entries []domain.CostEntry }

func (f *fakeWriter) Write(entries []domain.CostEntry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

type fakeCold struct{ stored []string }

func (f *fakeCold) Store(collection, id, text string, metadata map[string]interface{}) error {
	f.stored = append(f.stored, id)
	return nil
}

type fakeScribe struct {
	result domain.WorkerResult
	calls  int
}

func (f *fakeScribe) Run(ctx context.Context, req domain.WorkerRequest, modelID string) domain.WorkerResult {
	f.calls++
	return f.result
}

type scriptedCritic struct {
	decisions []string
	i         int
}

func (f *scriptedCritic) Run(ctx context.Context, req domain.WorkerRequest) domain.WorkerResult {
	d := "approved"
	if f.i < len(f.decisions) {
		d = f.decisions[f.i]
	}
	f.i++
	issues := []string(nil)
	if d == "rejected" {
		issues = []string{"missing data-testid"}
	}
	return domain.WorkerResult{OK: true, Data: map[string]interface{}{"decision": d, "issues": issues}}
}

type scriptedRunner struct {
	statuses []string
	i        int
}

func (f *scriptedRunner) Run(ctx context.Context, req domain.WorkerRequest) domain.WorkerResult {
	s := "pass"
	if f.i < len(f.statuses) {
		s = f.statuses[f.i]
	}
	f.i++
	data := map[string]interface{}{"status": s}
	if s == "fail" {
		data["failed_count"] = 1
		data["failures"] = []domain.FailureRecord{{Message: "assertion failed", Excerpt: "expected true"}}
	} else {
		data["failed_count"] = 0
	}
	return domain.WorkerResult{OK: true, Data: data}
}

type scriptedMedic struct {
	outcomes []string
	i        int
}

func (f *scriptedMedic) Run(ctx context.Context, req domain.WorkerRequest, modelID string) domain.WorkerResult {
	o := "fix_applied"
	if f.i < len(f.outcomes) {
		o = f.outcomes[f.i]
	}
	f.i++
	return domain.WorkerResult{OK: true, Data: map[string]interface{}{
		"outcome": o, "diagnosis": "off by one", "confidence": 0.9, "reason": "max_retries_exceeded",
	}}
}

type fakeGemini struct {
	passed []bool
	i      int
}

func (f *fakeGemini) Run(ctx context.Context, req domain.WorkerRequest, modelID string) domain.WorkerResult {
	p := true
	if f.i < len(f.passed) {
		p = f.passed[f.i]
	}
	f.i++
	return domain.WorkerResult{OK: true, Data: map[string]interface{}{"passed": p, "reasons": []string{}}}
}

type harness struct {
	orc    *Orchestrator
	hot    *hotstore.Store
	fclock *clock.FakeClock
	sess   *domain.Session
	task   *domain.Task
	scribe *fakeScribe
	critic *scriptedCritic
	runner *scriptedRunner
	medic  *scriptedMedic
	gemini *fakeGemini
	cold   *fakeCold
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	bus := events.NewBus(fc, 64)
	hot := hotstore.New(fc)
	rcfg := config.DefaultRouterConfig()
	r, err := router.New(rcfg, bus)
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	led := ledger.New(fc, &fakeWriter{})
	cold := &fakeCold{}
	queue := hitl.New(hot, cold)
	rec := metrics.New(hot, fc)

	scribe := &fakeScribe{result: domain.WorkerResult{OK: true, CostUSD: 0.01, Data: map[string]interface{}{
		"test_path": "tests/checkout.spec.js", "retries_used": 0,
	}}}
	critic := &scriptedCritic{decisions: []string{"approved"}}
	runner := &scriptedRunner{statuses: []string{"pass"}}
	medic := &scriptedMedic{}
	gemini := &fakeGemini{passed: []bool{true}}

	orc := New(Deps{
		Router: r, Hot: hot, Cold: cold, Ledger: led, HITL: queue, Metrics: rec, Bus: bus, Clock: fc,
		Scribe: scribe, Critic: critic, Runner: runner, Medic: medic, Gemini: gemini,
		RouterConfig: rcfg,
	})

	sess := domain.NewSession("sess-1", fc.Now())
	if err := hot.PutSession(sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	task := &domain.Task{TaskID: "task-1", SessionID: sess.SessionID, Feature: "checkout", CreatedAt: fc.Now(), Status: domain.TaskQueued}
	if err := hot.PutTask(task); err != nil {
		t.Fatalf("PutTask: %v", err)
	}

	return &harness{orc: orc, hot: hot, fclock: fc, sess: sess, task: task, scribe: scribe, critic: critic, runner: runner, medic: medic, gemini: gemini, cold: cold}
}

func TestFullPipelineHappyPathSucceeds(t *testing.T) {
	h := newHarness(t)
	result := h.orc.RunFullPipeline(context.Background(), h.sess, h.task, "checkout flow completes", "checkout")

	if result.Status != domain.TaskSucceeded {
		t.Fatalf("expected succeeded, got %+v", result)
	}
	if h.scribe.calls != 1 {
		t.Fatalf("expected scribe called once, got %d", h.scribe.calls)
	}
	if len(h.cold.stored) != 1 {
		t.Fatalf("expected pattern archived to cold store, got %v", h.cold.stored)
	}
	finalTask, ok, _ := h.hot.GetTask(h.task.TaskID)
	if !ok || finalTask.Status != domain.TaskSucceeded {
		t.Fatalf("expected hot store task status succeeded, got %+v", finalTask)
	}
}

func TestFullPipelineRewritesOnCriticRejectionThenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.critic.decisions = []string{"rejected", "approved"}

	result := h.orc.RunFullPipeline(context.Background(), h.sess, h.task, "checkout flow completes", "checkout")

	if result.Status != domain.TaskSucceeded {
		t.Fatalf("expected succeeded after one rewrite, got %+v", result)
	}
	if h.scribe.calls != 2 {
		t.Fatalf("expected scribe called twice (initial + rewrite), got %d", h.scribe.calls)
	}
}

func TestFullPipelineFailsAfterMaxRewriteAttempts(t *testing.T) {
	h := newHarness(t)
	h.critic.decisions = []string{"rejected", "rejected", "rejected", "rejected"}

	result := h.orc.RunFullPipeline(context.Background(), h.sess, h.task, "checkout flow completes", "checkout")

	if result.Status != domain.TaskFailed || result.Reason != "critic_rejected_max_retries" {
		t.Fatalf("expected critic_rejected_max_retries failure, got %+v", result)
	}
}

func TestFullPipelineRunsMedicOnRunnerFailureThenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.runner.statuses = []string{"fail", "pass"}
	h.medic.outcomes = []string{"fix_applied"}

	result := h.orc.RunFullPipeline(context.Background(), h.sess, h.task, "checkout flow completes", "checkout")

	if result.Status != domain.TaskSucceeded {
		t.Fatalf("expected succeeded after medic fix, got %+v", result)
	}
}

func TestFullPipelineEscalatesWhenMedicGivesUp(t *testing.T) {
	h := newHarness(t)
	h.runner.statuses = []string{"fail"}
	h.medic.outcomes = []string{"escalated_to_hitl"}

	result := h.orc.RunFullPipeline(context.Background(), h.sess, h.task, "checkout flow completes", "checkout")

	if result.Status != domain.TaskEscalated {
		t.Fatalf("expected escalated, got %+v", result)
	}
	stats, err := hitl.New(h.hot, h.cold).QueueStats()
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.QueueDepth != 1 {
		t.Fatalf("expected one hitl task queued, got %+v", stats)
	}
}

func TestFullPipelineRetriesMedicOnceAfterFailedValidation(t *testing.T) {
	h := newHarness(t)
	h.gemini.passed = []bool{false, true}
	h.medic.outcomes = []string{"fix_applied"}

	result := h.orc.RunFullPipeline(context.Background(), h.sess, h.task, "checkout flow completes", "checkout")

	if result.Status != domain.TaskSucceeded {
		t.Fatalf("expected succeeded after one post-validation medic retry, got %+v", result)
	}
}

func TestFullPipelineFailsWhenBudgetExceeded(t *testing.T) {
	h := newHarness(t)
	h.sess.CostCapTotal = 0.001
	h.sess.CostCapWarn = 0.0005
	if err := h.hot.PutSession(h.sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	result := h.orc.RunFullPipeline(context.Background(), h.sess, h.task, "checkout flow completes", "checkout")

	if result.Status != domain.TaskBudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %+v", result)
	}
}

func TestIterativeFixPipelineSucceedsImmediatelyWhenClean(t *testing.T) {
	h := newHarness(t)
	result := h.orc.RunIterativeFixPipeline(context.Background(), h.sess, h.task, "tests/checkout.spec.js")

	if result.Status != domain.TaskSucceeded {
		t.Fatalf("expected succeeded, got %+v", result)
	}
	if len(result.IterationSummaries) != 1 {
		t.Fatalf("expected one iteration summary, got %v", result.IterationSummaries)
	}
}

func TestIterativeFixPipelineReachesMaxIterations(t *testing.T) {
	h := newHarness(t)
	h.runner.statuses = []string{"fail", "fail", "fail", "fail", "fail"}
	h.medic.outcomes = []string{"fix_applied", "fix_applied", "fix_applied", "fix_applied", "fix_applied"}

	result := h.orc.RunIterativeFixPipeline(context.Background(), h.sess, h.task, "tests/checkout.spec.js")

	if result.Status != domain.TaskFailed || result.Reason != "max_iterations_reached" {
		t.Fatalf("expected max_iterations_reached, got %+v", result)
	}
	if len(result.IterationSummaries) != MaxIterations {
		t.Fatalf("expected %d iteration summaries, got %d", MaxIterations, len(result.IterationSummaries))
	}
}

func TestIterativeFixPipelineEscalates(t *testing.T) {
	h := newHarness(t)
	h.runner.statuses = []string{"fail"}
	h.medic.outcomes = []string{"escalated_to_hitl"}

	result := h.orc.RunIterativeFixPipeline(context.Background(), h.sess, h.task, "tests/checkout.spec.js")

	if result.Status != domain.TaskEscalated {
		t.Fatalf("expected escalated, got %+v", result)
	}
}
