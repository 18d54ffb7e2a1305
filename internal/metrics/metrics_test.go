package metrics

import (
	"testing"
	"time"

	"kaya/internal/clock"
	"kaya/internal/hotstore"
)

func newTestRecorder(t *testing.T) (*Recorder, *clock.FakeClock) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	store := hotstore.New(fake)
	return New(store, fake), fake
}

func TestAgentUtilizationDividesByWindowDuration(t *testing.T) {
	r, _ := newTestRecorder(t)
	r.RecordAgentDuration("scribe", 1800_000) // 30 minutes of the 1h window

	got := r.AgentUtilization("scribe", 1)
	if got < 0.49 || got > 0.51 {
		t.Fatalf("expected ~0.5 utilization, got %v", got)
	}
}

func TestCostPerFeatureAveragesAcrossCompletions(t *testing.T) {
	r, _ := newTestRecorder(t)
	r.RecordFeatureCompletion("checkout", 0.10, 1, 1000)
	r.RecordFeatureCompletion("checkout", 0.30, 2, 2000)

	if got := r.CostPerFeature("checkout", 1); got != 0.20 {
		t.Fatalf("expected mean cost 0.20, got %v", got)
	}
	if got := r.AverageRetryCount("checkout", 1); got != 1.5 {
		t.Fatalf("expected mean retries 1.5, got %v", got)
	}
	if got := r.TimeToCompletion("checkout", 1); got != 1500 {
		t.Fatalf("expected mean duration 1500ms, got %v", got)
	}
}

func TestCriticRejectionRate(t *testing.T) {
	r, _ := newTestRecorder(t)
	r.RecordCriticDecision(true)
	r.RecordCriticDecision(false)
	r.RecordCriticDecision(false)

	if got := r.CriticRejectionRate(1); got != 2.0/3.0 {
		t.Fatalf("expected 2/3 rejection rate, got %v", got)
	}
}

func TestValidationPassRate(t *testing.T) {
	r, _ := newTestRecorder(t)
	r.RecordValidation(true)
	r.RecordValidation(true)
	r.RecordValidation(false)

	if got := r.ValidationPassRate(1); got != 2.0/3.0 {
		t.Fatalf("expected 2/3 pass rate, got %v", got)
	}
}

func TestModelUsageAggregatesDurationAndCost(t *testing.T) {
	r, _ := newTestRecorder(t)
	r.RecordModelUsage("cheap-tier", 500, 0.01)
	r.RecordModelUsage("cheap-tier", 700, 0.02)

	summary := r.ModelUsage("cheap-tier", 1)
	if summary.CallCount != 2 {
		t.Fatalf("expected 2 calls, got %d", summary.CallCount)
	}
	if summary.TotalDurationMS != 1200 {
		t.Fatalf("expected total duration 1200ms, got %d", summary.TotalDurationMS)
	}
	if summary.TotalCostUSD < 0.0299 || summary.TotalCostUSD > 0.0301 {
		t.Fatalf("expected total cost ~0.03, got %v", summary.TotalCostUSD)
	}
}

func TestTrendReturnsOnePointPerDay(t *testing.T) {
	r, fake := newTestRecorder(t)
	r.RecordValidation(true)
	fake.Advance(25 * time.Hour)
	r.RecordValidation(false)

	points := r.Trend(MetricValidation, DimensionGlobal, 3, func(tuples []string) float64 {
		passed := 0
		for _, t := range tuples {
			if t == "pass" {
				passed++
			}
		}
		return float64(passed)
	})
	if len(points) != 3 {
		t.Fatalf("expected 3 trend points, got %d", len(points))
	}
	total := 0.0
	for _, p := range points {
		total += p.Value
	}
	if total != 1 {
		t.Fatalf("expected exactly one 'pass' tuple across the trend, got total %v (%+v)", total, points)
	}
}

func TestWindowedQueriesIgnoreOutOfWindowData(t *testing.T) {
	r, fake := newTestRecorder(t)
	r.RecordValidation(true)
	fake.Advance(3 * time.Hour)

	if got := r.ValidationPassRate(1); got != 0 {
		t.Fatalf("expected 0 validations visible in a 1h window 3h later, got %v", got)
	}
	if got := r.ValidationPassRate(4); got != 1 {
		t.Fatalf("expected the earlier validation visible in a 4h window, got %v", got)
	}
}
