// Package clock provides the time and ID seam that the Hot Store, Cost
// Ledger, Metrics Aggregator, Event Bus and circuit breakers take as a
// Clock. Deriving their hour/day bucket keys and timestamps from it is
// what makes metrics-bucket and TTL tests deterministic. Other packages
// (logging, the process pool, the workers, retry jitter, browserdriver)
// call time.Now directly, and browserdriver generates IDs with uuid itself.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock is the minimal time source the rest of the module depends on.
// The default implementation wraps the real wall clock; tests substitute
// a fake to control bucket boundaries and TTL expiry deterministically.
type Clock interface {
	Now() time.Time
}

// realClock wraps time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real is the production clock.
var Real Clock = realClock{}

// FakeClock is a manually-advanced clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a FakeClock pinned at t.
func NewFake(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// NewID returns a 128-bit globally unique identifier, formatted as a
// canonical UUID string. Used for task_id, session_id, and hitl task_id.
func NewID() string {
	return uuid.NewString()
}

// HourBucket returns the YYYY-MM-DD-HH key used by metrics:* sorted sets (§4.5).
func HourBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02-15")
}

// DayBucket returns the YYYY-MM-DD key used by historical trend queries (§4.12).
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// EpochMillis returns t as epoch milliseconds, the score used for
// sorted-set entries throughout the Hot Store (§4.5).
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// EpochSeconds returns t as a float64 epoch-seconds timestamp, the format
// required for the event log file (§6).
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FormatDuration renders a duration the way Kaya's CLI and logs do:
// milliseconds for anything under a second, seconds otherwise.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
