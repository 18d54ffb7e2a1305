// Package procpool implements the bounded subprocess pool (§5) Runner
// and Gemini launch test/browser processes through: 5 concurrent
// processes by default, fair FIFO admission beyond that. Subprocess
// launch itself sits behind the Launcher interface so callers can
// substitute a deterministic fake in tests, per the Non-goals boundary
// around real browser/process control.
package procpool

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"kaya/internal/logging"
)

// DefaultConcurrency is the pool's default concurrent-process ceiling (§5).
const DefaultConcurrency = 5

// Result is what a launched process produced.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Launcher runs a single external command to completion (or until ctx is
// done) and reports its outcome. The default implementation shells out
// via os/exec; tests substitute a fake.
type Launcher interface {
	Launch(ctx context.Context, name string, args []string, dir string) (Result, error)
}

// ExecLauncher launches real OS processes via os/exec.
type ExecLauncher struct{}

// Launch implements Launcher.
func (ExecLauncher) Launch(ctx context.Context, name string, args []string, dir string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
		TimedOut: ctx.Err() == context.DeadlineExceeded,
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// Pool bounds subprocess concurrency with fair FIFO admission.
// semaphore.Weighted serves both roles: it blocks Acquire callers in
// arrival order and releases the oldest waiter first once a slot frees.
type Pool struct {
	sem      *semaphore.Weighted
	launcher Launcher
	log      *logging.Logger
}

// New creates a pool with the given launcher and concurrency ceiling. A
// non-positive concurrency uses DefaultConcurrency.
func New(launcher Launcher, concurrency int64) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	return &Pool{
		sem:      semaphore.NewWeighted(concurrency),
		launcher: launcher,
		log:      logging.Get(logging.CategoryProcPool),
	}
}

// Run admits one subprocess launch, blocking in FIFO order until a slot
// is free or ctx is cancelled, then launches name/args in dir bounded by
// timeout.
func (p *Pool) Run(ctx context.Context, name string, args []string, dir string, timeout time.Duration) (Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer p.sem.Release(1)

	cctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := p.launcher.Launch(cctx, name, args, dir)
	if cctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
	}
	if err != nil {
		p.log.Warn("subprocess %s failed: %v", name, err)
	}
	return result, err
}
