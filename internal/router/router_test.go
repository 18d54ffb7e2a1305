package router

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"kaya/internal/config"
)

func TestDecideMatchesFirstRule(t *testing.T) {
	r, err := New(config.DefaultRouterConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := r.Decide("write_test", "write a test for the home page", "", "")
	if d.Worker != "scribe" || d.ModelID != "cheap-tier" {
		t.Fatalf("expected cheap scribe route for an easy task, got %+v", d)
	}

	d2 := r.Decide("write_test", "write a test for oauth login with 2fa payment checkout", "", "")
	if d2.Worker != "scribe" || d2.ModelID != "expensive-tier" {
		t.Fatalf("expected expensive scribe route for a hard task, got %+v", d2)
	}
}

func TestDecideAppliesCostOverrideGlob(t *testing.T) {
	r, _ := New(config.DefaultRouterConfig(), nil)
	d := r.Decide("write_test", "simple", "src/features/payment/checkout_test.go", "")
	if d.MaxCostUS != 3.00 {
		t.Fatalf("expected payment path override of 3.00, got %v", d.MaxCostUS)
	}
}

func TestDecideFallsBackWhenNoRuleMatches(t *testing.T) {
	r, _ := New(config.DefaultRouterConfig(), nil)
	d := r.Decide("unknown_task_type", "anything", "", "")
	if d.Worker != "orchestrator" || d.ModelID != "cheap-tier" {
		t.Fatalf("expected fallback to orchestrator with cheapest model, got %+v", d)
	}
}

func TestDecideCachesRepeatedCalls(t *testing.T) {
	r, _ := New(config.DefaultRouterConfig(), nil)
	r.Decide("write_test", "write a test for the home page", "", "")
	r.Decide("write_test", "write a test for the home page", "", "")

	stats := r.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", stats)
	}
}

func TestReplacePolicyHotReloadsRules(t *testing.T) {
	r, _ := New(config.DefaultRouterConfig(), nil)
	cfg := config.DefaultRouterConfig()
	cfg.Rules = []config.RoutingRule{
		{TaskType: "write_test", Complexity: "any", Worker: "medic", Model: "override-model", Reason: "reloaded policy"},
	}
	r.ReplacePolicy(cfg)
	r.ResetCache()

	d := r.Decide("write_test", "anything", "", "")
	if d.Worker != "medic" || d.ModelID != "override-model" {
		t.Fatalf("expected reloaded policy to take effect, got %+v", d)
	}
}

// A reload followed by a revert should reproduce the original decision
// exactly, field for field, not just on the two fields the other tests
// happen to check.
func TestReplacePolicyRevertReproducesOriginalDecision(t *testing.T) {
	r, _ := New(config.DefaultRouterConfig(), nil)
	before := r.Decide("write_test", "write a test for the home page", "", "")

	cfg := config.DefaultRouterConfig()
	cfg.Rules = []config.RoutingRule{
		{TaskType: "write_test", Complexity: "any", Worker: "medic", Model: "override-model", Reason: "reloaded policy"},
	}
	r.ReplacePolicy(cfg)
	r.ResetCache()
	r.Decide("write_test", "write a test for the home page", "", "")

	r.ReplacePolicy(config.DefaultRouterConfig())
	r.ResetCache()
	after := r.Decide("write_test", "write a test for the home page", "", "")

	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("decision after revert did not match original (-before +after):\n%s", diff)
	}
}
