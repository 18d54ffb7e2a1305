package worker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireUsesCoreSlotsFirst(t *testing.T) {
	p := New("test", 2, 4, time.Second)
	ctx := context.Background()

	rel1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	rel2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	stats := p.Stats()
	if stats.CoreInUse != 2 || stats.OverflowInUse != 0 {
		t.Fatalf("expected both core slots in use with no overflow, got %+v", stats)
	}
	rel1()
	rel2()
}

func TestAcquireFallsBackToOverflowWhenCoreIsFull(t *testing.T) {
	p := New("test", 1, 3, time.Second)
	ctx := context.Background()

	relCore, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer relCore()

	relOverflow, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer relOverflow()

	stats := p.Stats()
	if stats.CoreInUse != 1 || stats.OverflowInUse != 1 {
		t.Fatalf("expected 1 core + 1 overflow in use, got %+v", stats)
	}
}

func TestAcquireReturnsErrExhaustedAtGlobalCap(t *testing.T) {
	p := New("test", 1, 2, 100*time.Millisecond)
	ctx := context.Background()

	var releases []func()
	for i := 0; i < 2; i++ {
		rel, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		releases = append(releases, rel)
	}

	_, err := p.Acquire(ctx)
	if err != ErrExhausted {
		t.Fatalf("expected ErrExhausted at global cap, got %v", err)
	}

	for _, rel := range releases {
		rel()
	}
}

func TestRunReleasesSlotAfterCompletion(t *testing.T) {
	p := New("test", 1, 2, time.Second)
	ctx := context.Background()

	if err := p.Run(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats := p.Stats(); stats.CoreInUse != 0 {
		t.Fatalf("expected slot released after Run, got %+v", stats)
	}
}

func TestAcquireRespectsCallerContextCancellation(t *testing.T) {
	p := New("test", 1, 1, 5*time.Second)
	ctx := context.Background()
	rel, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer rel()

	cctx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(cctx)
	if err == nil {
		t.Fatalf("expected an error from a cancelled context")
	}
}

func TestConcurrentAcquireReleaseStaysWithinBounds(t *testing.T) {
	p := New("test", 2, 5, time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx, func(context.Context) error {
				time.Sleep(time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	stats := p.Stats()
	if stats.CoreInUse != 0 || stats.OverflowInUse != 0 {
		t.Fatalf("expected pool fully drained after all goroutines finish, got %+v", stats)
	}
}
