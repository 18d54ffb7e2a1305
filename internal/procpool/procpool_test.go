package procpool

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeLauncher struct {
	mu       sync.Mutex
	running  int
	maxSeen  int
	delay    time.Duration
	result   Result
	err      error
}

func (f *fakeLauncher) Launch(ctx context.Context, name string, args []string, dir string) (Result, error) {
	f.mu.Lock()
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
		return Result{TimedOut: true}, ctx.Err()
	}

	f.mu.Lock()
	f.running--
	f.mu.Unlock()
	return f.result, f.err
}

func TestRunRespectsConcurrencyCeiling(t *testing.T) {
	fake := &fakeLauncher{delay: 30 * time.Millisecond, result: Result{ExitCode: 0}}
	p := New(fake, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(context.Background(), "echo", nil, "", time.Second)
		}()
	}
	wg.Wait()

	if fake.maxSeen > 2 {
		t.Fatalf("expected at most 2 concurrent launches, saw %d", fake.maxSeen)
	}
}

func TestRunPropagatesTimedOutResult(t *testing.T) {
	fake := &fakeLauncher{delay: 200 * time.Millisecond}
	p := New(fake, 1)

	result, err := p.Run(context.Background(), "sleep", nil, "", 10*time.Millisecond)
	if !result.TimedOut {
		t.Fatalf("expected TimedOut=true, got %+v (err=%v)", result, err)
	}
}

func TestRunReturnsExecLauncherOutputOnSuccess(t *testing.T) {
	p := New(nil, 1)
	result, err := p.Run(context.Background(), "echo", []string{"hi"}, "", time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", result.ExitCode)
	}
}
