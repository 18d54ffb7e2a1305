package runner

import (
	"context"
	"testing"

	"kaya/internal/clock"
	"kaya/internal/domain"
	"kaya/internal/events"
	"kaya/internal/procpool"
)

type fakeLauncher struct {
	result procpool.Result
	err    error
}

func (f *fakeLauncher) Launch(ctx context.Context, name string, args []string, dir string) (procpool.Result, error) {
	return f.result, f.err
}

func newTestWorker(launcher procpool.Launcher, cfg Config) *Worker {
	pool := procpool.New(launcher, 2)
	bus := events.NewBus(clock.Real, 16)
	return New(pool, cfg, bus)
}

func TestRunReportsPassOnZeroFailures(t *testing.T) {
	launcher := &fakeLauncher{result: procpool.Result{
		Stdout: `{"passed_count":3,"failed_count":0,"failures":[]}`,
	}}
	w := newTestWorker(launcher, DefaultConfig())

	result := w.Run(context.Background(), domain.WorkerRequest{
		TaskID:  "r1",
		Payload: map[string]interface{}{"test_path": "tests/a.spec.js"},
	})
	if !result.OK {
		t.Fatalf("expected ok result, got %+v", result)
	}
	if result.Data["status"] != "pass" {
		t.Fatalf("expected pass, got %+v", result.Data)
	}
	if result.Data["passed_count"] != 3 {
		t.Fatalf("expected passed_count=3, got %v", result.Data["passed_count"])
	}
}

func TestRunReportsFailWithFastFailSingleFailure(t *testing.T) {
	launcher := &fakeLauncher{result: procpool.Result{
		Stdout: `{"passed_count":1,"failed_count":1,"failures":[{"message":"assertion failed","excerpt":"expected true got false"}]}`,
	}}
	w := newTestWorker(launcher, DefaultConfig())

	result := w.Run(context.Background(), domain.WorkerRequest{
		TaskID:  "r2",
		Payload: map[string]interface{}{"test_path": "tests/a.spec.js"},
	})
	if result.Data["status"] != "fail" {
		t.Fatalf("expected fail, got %+v", result.Data)
	}
	failures := result.Data["failures"].([]domain.FailureRecord)
	if len(failures) != 1 {
		t.Fatalf("expected exactly one failure (fast-fail), got %d", len(failures))
	}
}

func TestRunOnTimeoutRunsSelfDiagnostic(t *testing.T) {
	launcher := &fakeLauncher{result: procpool.Result{TimedOut: true}, err: context.DeadlineExceeded}
	cfg := DefaultConfig()
	cfg.BackendPort = 1 // almost certainly unreachable
	cfg.FrontendPort = 2
	cfg.BrowserToolCheck = []string{"definitely-not-a-real-binary-xyz"}
	w := newTestWorker(launcher, cfg)

	result := w.Run(context.Background(), domain.WorkerRequest{
		TaskID:  "r3",
		Payload: map[string]interface{}{"test_path": "tests/a.spec.js"},
	})
	if result.Data["status"] != "timeout" {
		t.Fatalf("expected timeout, got %+v", result.Data)
	}
	failures := result.Data["failures"].([]domain.FailureRecord)
	if len(failures) != 3 {
		t.Fatalf("expected 3 self-diagnostic failures, got %d: %+v", len(failures), failures)
	}
}

func TestRunReportsErrorOnUnparsableOutput(t *testing.T) {
	launcher := &fakeLauncher{result: procpool.Result{Stdout: "not json at all"}}
	w := newTestWorker(launcher, DefaultConfig())

	result := w.Run(context.Background(), domain.WorkerRequest{
		TaskID:  "r4",
		Payload: map[string]interface{}{"test_path": "tests/a.spec.js"},
	})
	if result.Data["status"] != "error" {
		t.Fatalf("expected error status on unparsable report, got %+v", result.Data)
	}
}

func TestRunRespectsTimeoutMSOverride(t *testing.T) {
	launcher := &fakeLauncher{result: procpool.Result{Stdout: `{"passed_count":1,"failed_count":0}`}}
	w := newTestWorker(launcher, DefaultConfig())

	result := w.Run(context.Background(), domain.WorkerRequest{
		TaskID:  "r5",
		Payload: map[string]interface{}{"test_path": "tests/a.spec.js", "timeout_ms": int(500)},
	})
	if !result.OK {
		t.Fatalf("expected ok result, got %+v", result)
	}
	if result.Data["status"] != "pass" {
		t.Fatalf("expected pass, got %+v", result.Data)
	}
}
