package hotstore

import (
	"testing"
	"time"

	"kaya/internal/clock"
	"kaya/internal/domain"
)

func TestSessionRoundTrip(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	s := New(fc)
	defer s.Close()

	sess := domain.NewSession("sess-1", fc.Now())
	sess.CostUsed = 1.25
	if err := s.PutSession(sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	got, ok, err := s.GetSession("sess-1")
	if err != nil || !ok {
		t.Fatalf("GetSession: got=%v ok=%v err=%v", got, ok, err)
	}
	if got.CostUsed != 1.25 {
		t.Fatalf("expected cost_used 1.25, got %v", got.CostUsed)
	}

	used, ok := s.GetSessionBudgetUsed("sess-1")
	if !ok || used != 1.25 {
		t.Fatalf("expected budget mirror 1.25, got %v ok=%v", used, ok)
	}
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	s := New(fc)
	defer s.Close()

	s.PutSession(domain.NewSession("sess-1", fc.Now()))
	fc.Advance(SessionTTL + time.Second)

	if _, ok, _ := s.GetSession("sess-1"); ok {
		t.Fatalf("expected session to have expired")
	}
}

func TestTaskCompareAndSetStatusHonorsDAG(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	s := New(fc)
	defer s.Close()

	task := &domain.Task{TaskID: "t1", Status: domain.TaskQueued, CreatedAt: fc.Now()}
	if err := s.PutTask(task); err != nil {
		t.Fatalf("PutTask: %v", err)
	}

	if err := s.CompareAndSetStatus("t1", domain.TaskQueued, domain.TaskInProgress); err != nil {
		t.Fatalf("CompareAndSetStatus queued->in_progress: %v", err)
	}
	got, _, _ := s.GetTask("t1")
	if got.Status != domain.TaskInProgress {
		t.Fatalf("expected in_progress, got %v", got.Status)
	}

	// Wrong expected status: conflict, not silently applied.
	if err := s.CompareAndSetStatus("t1", domain.TaskQueued, domain.TaskSucceeded); err != ErrStatusConflict {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}

	// Terminal -> terminal is not in the DAG.
	if err := s.CompareAndSetStatus("t1", domain.TaskInProgress, domain.TaskSucceeded); err != nil {
		t.Fatalf("in_progress->succeeded: %v", err)
	}
	if err := s.CompareAndSetStatus("t1", domain.TaskSucceeded, domain.TaskFailed); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition moving out of a terminal status, got %v", err)
	}
}

func TestMedicAttemptsAndBoundedHistory(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	s := New(fc)
	defer s.Close()

	for i := 0; i < 12; i++ {
		s.IncrMedicAttempts("t1")
		s.AppendMedicAttempt("t1", domain.Attempt{Timestamp: fc.Now(), Confidence: float64(i) / 12})
	}

	if got := s.MedicAttempts("t1"); got != 12 {
		t.Fatalf("expected 12 attempts, got %d", got)
	}
	hist, err := s.MedicHistory("t1")
	if err != nil {
		t.Fatalf("MedicHistory: %v", err)
	}
	if len(hist) != MedicHistoryCap {
		t.Fatalf("expected history capped at %d, got %d", MedicHistoryCap, len(hist))
	}
	// Oldest two attempts (confidence 0 and 1/12) should have been evicted;
	// the surviving oldest entry is the one recorded with i=2.
	want := float64(2) / 12
	if diff := hist[0].Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected oldest entries evicted, first confidence=%v want=%v", hist[0].Confidence, want)
	}
}

func TestHITLQueuePriorityOrderAndResolve(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	s := New(fc)
	defer s.Close()

	low := &domain.HITLTask{TaskID: "low", Priority: 0.2, CreatedAt: fc.Now()}
	high := &domain.HITLTask{TaskID: "high", Priority: 0.9, CreatedAt: fc.Now()}
	s.EnqueueHITL(low)
	s.EnqueueHITL(high)

	list, err := s.ListHITL(0)
	if err != nil {
		t.Fatalf("ListHITL: %v", err)
	}
	if len(list) != 2 || list[0].TaskID != "high" {
		t.Fatalf("expected high-priority task first, got %+v", list)
	}

	resolved, err := s.ResolveHITL("high", domain.HITLResolution{ResolvedAt: fc.Now(), Outcome: "fixed"})
	if err != nil {
		t.Fatalf("ResolveHITL: %v", err)
	}
	if resolved.Resolution == nil {
		t.Fatalf("expected resolution set")
	}
	if s.HITLQueueDepth() != 1 {
		t.Fatalf("expected resolved task removed from queue, depth=%d", s.HITLQueueDepth())
	}

	if _, err := s.ResolveHITL("high", domain.HITLResolution{}); err != ErrConflict {
		t.Fatalf("expected ErrConflict on double-resolve, got %v", err)
	}
}

func TestCircuitStateHasNoTTL(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	s := New(fc)
	defer s.Close()

	cb := &domain.CircuitBreakerState{Name: "anthropic_api", State: domain.CircuitOpen, FailureCount: 5}
	if err := s.PutCircuitState(cb); err != nil {
		t.Fatalf("PutCircuitState: %v", err)
	}
	fc.Advance(365 * 24 * time.Hour)

	got, ok, err := s.GetCircuitState("anthropic_api")
	if err != nil || !ok {
		t.Fatalf("expected circuit state to persist indefinitely, ok=%v err=%v", ok, err)
	}
	if got.State != domain.CircuitOpen {
		t.Fatalf("unexpected state %v", got.State)
	}
}

func TestMetricBucketRecordAndQuery(t *testing.T) {
	fc := clock.NewFake(time.Unix(1_700_000_000, 0))
	s := New(fc)
	defer s.Close()

	s.RecordMetric("cost_per_feature", "global", fc.Now(), "0.42")
	fc.Advance(time.Second)
	s.RecordMetric("cost_per_feature", "global", fc.Now(), "0.10")

	bucket := clock.HourBucket(fc.Now())
	tuples := s.QueryMetric("cost_per_feature", "global", bucket)
	if len(tuples) != 2 {
		t.Fatalf("expected 2 tuples in hour bucket, got %d: %v", len(tuples), tuples)
	}
	if tuples[0] != "0.42" || tuples[1] != "0.10" {
		t.Fatalf("expected chronological order, got %v", tuples)
	}
}

func TestTaskQueueFIFO(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	s := New(fc)
	defer s.Close()

	s.EnqueueTask("a")
	s.EnqueueTask("b")
	if got := s.QueueDepth(); got != 2 {
		t.Fatalf("expected depth 2, got %d", got)
	}
	id, ok := s.DequeueTask()
	if !ok || id != "a" {
		t.Fatalf("expected FIFO dequeue of 'a', got %q ok=%v", id, ok)
	}
}
