package resilience

import (
	"errors"
	"sync"
	"time"

	"kaya/internal/clock"
	"kaya/internal/logging"
)

// errConnectivity marks an error as the kind that should trip a
// DegradedGuard (as opposed to an application-level error like
// ErrNotFound, which should propagate normally).
type errConnectivity struct{ err error }

func (e *errConnectivity) Error() string { return e.err.Error() }
func (e *errConnectivity) Unwrap() error { return e.err }

// WrapConnectivityError marks err as a connectivity failure so a
// DegradedGuard will catch it and fall back instead of propagating it.
func WrapConnectivityError(err error) error {
	if err == nil {
		return nil
	}
	return &errConnectivity{err: err}
}

// IsConnectivityError reports whether err (or something it wraps) was
// produced by WrapConnectivityError.
func IsConnectivityError(err error) bool {
	var ce *errConnectivity
	return errors.As(err, &ce)
}

// DegradedGuard wraps calls to an external dependency (Hot Store, Cold
// Store, or any other RPC-shaped collaborator) and swaps to a caller-
// supplied fallback on connectivity errors, logging at most once per
// window rather than once per call (§4.9: "each producing exactly one
// warn log per window").
type DegradedGuard struct {
	name   string
	clock  clock.Clock
	window time.Duration
	log    *logging.Logger

	mu        sync.Mutex
	degraded  bool
	warnedAt  time.Time
}

// DefaultWindow is how long a single warn log covers before another may
// be emitted.
const DefaultWindow = time.Minute

// NewDegradedGuard creates a guard named name (used in the warn log).
func NewDegradedGuard(name string, c clock.Clock) *DegradedGuard {
	return &DegradedGuard{name: name, clock: c, window: DefaultWindow, log: logging.Get(logging.CategoryResilience)}
}

// Run executes fn. If fn returns a connectivity error, the guard enters
// degraded mode (logged at most once per window) and returns nil after
// fallback has been invoked in its place; any non-connectivity error from
// fn is returned unchanged.
func (g *DegradedGuard) Run(fn func() error, fallback func()) error {
	err := fn()
	if err == nil {
		g.mu.Lock()
		g.degraded = false
		g.mu.Unlock()
		return nil
	}
	if !IsConnectivityError(err) {
		return err
	}

	g.mu.Lock()
	shouldLog := g.clock.Now().Sub(g.warnedAt) >= g.window
	if shouldLog {
		g.warnedAt = g.clock.Now()
	}
	g.degraded = true
	g.mu.Unlock()

	if shouldLog {
		g.log.Warn("%s degraded, falling back: %v", g.name, err)
	}
	fallback()
	return nil
}

// Degraded reports whether the last call observed a connectivity error.
func (g *DegradedGuard) Degraded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded
}
