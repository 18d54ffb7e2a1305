package orchestrator

import "testing"

func TestParseIntentIterativeFix(t *testing.T) {
	i := ParseIntent("Fix all test failures in Tests/Checkout")
	if i.Kind != KindIterativeFix {
		t.Fatalf("expected iterative_fix, got %+v", i)
	}
	if i.Slots["path"] != "Tests/Checkout" {
		t.Fatalf("expected case-preserved path slot, got %q", i.Slots["path"])
	}
}

func TestParseIntentIterativeFixWithoutPath(t *testing.T) {
	i := ParseIntent("fix all failures")
	if i.Kind != KindIterativeFix {
		t.Fatalf("expected iterative_fix, got %+v", i)
	}
	if i.Slots["path"] != "" {
		t.Fatalf("expected empty path slot, got %q", i.Slots["path"])
	}
}

func TestParseIntentRunTest(t *testing.T) {
	i := ParseIntent("run test in tests/Login.spec.js")
	if i.Kind != KindRunTest {
		t.Fatalf("expected run_test, got %+v", i)
	}
	if i.Slots["path"] != "tests/Login.spec.js" {
		t.Fatalf("expected path slot, got %q", i.Slots["path"])
	}
}

func TestParseIntentCreateTest(t *testing.T) {
	i := ParseIntent("write a test for the Checkout flow")
	if i.Kind != KindCreateTest {
		t.Fatalf("expected create_test, got %+v", i)
	}
	if i.Slots["feature"] != "the Checkout flow" {
		t.Fatalf("expected feature slot, got %q", i.Slots["feature"])
	}
}

func TestParseIntentValidateCritical(t *testing.T) {
	i := ParseIntent("validate Checkout - critical")
	if i.Kind != KindValidate {
		t.Fatalf("expected validate, got %+v", i)
	}
	if !i.Critical {
		t.Fatalf("expected critical=true, got %+v", i)
	}
	if i.Slots["feature"] != "Checkout" {
		t.Fatalf("expected feature slot without the critical suffix, got %q", i.Slots["feature"])
	}
}

func TestParseIntentValidateNonCritical(t *testing.T) {
	i := ParseIntent("validate login flow")
	if i.Kind != KindValidate {
		t.Fatalf("expected validate, got %+v", i)
	}
	if i.Critical {
		t.Fatalf("expected critical=false, got %+v", i)
	}
	if i.Slots["feature"] != "login flow" {
		t.Fatalf("expected feature slot, got %q", i.Slots["feature"])
	}
}

func TestParseIntentStatus(t *testing.T) {
	i := ParseIntent("what's the status of task-42")
	if i.Kind != KindStatus {
		t.Fatalf("expected status, got %+v", i)
	}
	if i.Slots["task_id"] != "task-42" {
		t.Fatalf("expected task_id slot, got %q", i.Slots["task_id"])
	}
}

func TestParseIntentStatusWithoutApostrophe(t *testing.T) {
	i := ParseIntent("whats the status")
	if i.Kind != KindStatus {
		t.Fatalf("expected status, got %+v", i)
	}
}

func TestParseIntentFallsBackToBrainstorm(t *testing.T) {
	i := ParseIntent("what do you think about our test coverage strategy")
	if i.Kind != KindBrainstorm {
		t.Fatalf("expected brainstorm fallback, got %+v", i)
	}
	if i.Confidence >= ConfidenceThreshold {
		t.Fatalf("expected confidence below threshold, got %v", i.Confidence)
	}
}
