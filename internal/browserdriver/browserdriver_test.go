package browserdriver

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestNonZeroFallsBackOnZeroOrNegative(t *testing.T) {
	if got := nonZero(0, 1280); got != 1280 {
		t.Fatalf("expected fallback 1280, got %d", got)
	}
	if got := nonZero(-5, 1280); got != 1280 {
		t.Fatalf("expected fallback 1280, got %d", got)
	}
	if got := nonZero(640, 1280); got != 640 {
		t.Fatalf("expected 640 preserved, got %d", got)
	}
}

func TestDefaultConfigNavigationTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.navigationTimeout().Seconds() != 30 {
		t.Fatalf("expected 30s default navigation timeout, got %v", cfg.navigationTimeout())
	}
	cfg.NavigationTimeoutMs = 0
	if cfg.navigationTimeout().Seconds() != 30 {
		t.Fatalf("expected 30s fallback when unset, got %v", cfg.navigationTimeout())
	}
}

func TestStringifyConsoleArgsJoinsDescriptions(t *testing.T) {
	args := []*proto.RuntimeRemoteObject{
		{Description: "TypeError: boom"},
		nil,
		{Description: "at line 12"},
	}
	got := stringifyConsoleArgs(args)
	if got != "TypeError: boom at line 12" {
		t.Fatalf("unexpected join: %q", got)
	}
}
