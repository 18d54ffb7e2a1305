package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTryAcquireRespectsBurst(t *testing.T) {
	l := New()
	l.Configure("anthropic", VendorConfig{RequestsPerSecond: 1, Burst: 2})

	if !l.TryAcquire("anthropic") {
		t.Fatalf("expected first acquire to succeed")
	}
	if !l.TryAcquire("anthropic") {
		t.Fatalf("expected second acquire (within burst) to succeed")
	}
	if l.TryAcquire("anthropic") {
		t.Fatalf("expected third acquire to be throttled")
	}
}

func TestAcquireBlocksUntilContextDone(t *testing.T) {
	l := New()
	l.Configure("gemini", VendorConfig{RequestsPerSecond: 0.001, Burst: 1})
	// Drain the single burst token.
	if !l.TryAcquire("gemini") {
		t.Fatalf("expected initial token available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, "gemini"); err == nil {
		t.Fatalf("expected Acquire to fail once context deadline passed with no refill")
	}
}

func TestUnconfiguredVendorUsesDefault(t *testing.T) {
	l := New()
	if !l.TryAcquire("unknown_vendor") {
		t.Fatalf("expected default burst to allow at least one acquire")
	}
}
