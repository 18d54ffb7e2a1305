package hitl

import (
	"testing"
	"time"

	"kaya/internal/clock"
	"kaya/internal/domain"
	"kaya/internal/hotstore"
)

type fakeColdStore struct {
	stored []string
}

func (f *fakeColdStore) Store(collection, id, text string, metadata map[string]interface{}) error {
	f.stored = append(f.stored, collection+":"+id)
	return nil
}

func TestPriorityFormula(t *testing.T) {
	cases := []struct {
		severity domain.HITLSeverity
		attempts int
		want     float64
	}{
		{domain.SeverityLow, 0, 0.1},
		{domain.SeverityMedium, 3, 0.3 + 0.3},
		{domain.SeverityHigh, 100, 0.5 + 0.3}, // attempts/10 capped at 0.3
		{domain.SeverityCritical, 100, 1.0},   // capped at maxPriority
	}
	for _, c := range cases {
		got := Priority(c.severity, c.attempts)
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Priority(%v, %d) = %v, want %v", c.severity, c.attempts, got, c.want)
		}
	}
}

func TestEnqueueListResolve(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	store := hotstore.New(fc)
	defer store.Close()
	cold := &fakeColdStore{}
	q := New(store, cold)

	task := &domain.HITLTask{TaskID: "t1", Severity: domain.SeverityHigh, Attempts: 4, CreatedAt: fc.Now()}
	if err := q.Enqueue(task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if task.Priority != Priority(domain.SeverityHigh, 4) {
		t.Fatalf("expected priority to be computed on enqueue")
	}

	list, err := q.List(0)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v, %v", list, err)
	}

	if err := q.Resolve("t1", "alice", Annotation{FixStrategy: "patched selector"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(cold.stored) != 1 || cold.stored[0] != "hitl_annotations:t1" {
		t.Fatalf("expected resolved task archived to hitl_annotations, got %v", cold.stored)
	}

	stats, err := q.QueueStats()
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.QueueDepth != 0 {
		t.Fatalf("expected empty queue after resolve, got depth %d", stats.QueueDepth)
	}

	if err := q.Resolve("t1", "bob", Annotation{}); err != ErrConflict {
		t.Fatalf("expected ErrConflict on double resolve, got %v", err)
	}

	if err := q.Resolve("nonexistent", "bob", Annotation{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
