package resilience

import (
	"fmt"
	"sync"
	"time"

	"kaya/internal/clock"
	"kaya/internal/domain"
)

// Circuit breaker defaults (§4.9).
const (
	DefaultFailureThreshold  = 5
	DefaultOpenFor           = 60 * time.Second
	DefaultHalfOpenMaxCalls  = 3
	DefaultSuccessThreshold  = 2
)

// ErrCircuitOpen is returned by Allow when the breaker is open.
var ErrCircuitOpen = fmt.Errorf("resilience: circuit open")

// Breaker is a single named circuit breaker. All transitions are O(1)
// under one mutex (§4.9).
type Breaker struct {
	name  string
	clock clock.Clock

	failureThreshold int
	openFor          time.Duration
	halfOpenMaxCalls int
	successThreshold int

	mu               sync.Mutex
	state            domain.CircuitState
	failureCount     int
	successCount     int
	lastFailureAt    time.Time
	halfOpenAttempts int
}

// NewBreaker creates a closed breaker named name with the §4.9 defaults.
func NewBreaker(name string, c clock.Clock) *Breaker {
	return &Breaker{
		name:             name,
		clock:            c,
		failureThreshold: DefaultFailureThreshold,
		openFor:          DefaultOpenFor,
		halfOpenMaxCalls: DefaultHalfOpenMaxCalls,
		successThreshold: DefaultSuccessThreshold,
		state:            domain.CircuitClosed,
	}
}

// Allow reports whether a call may proceed, transitioning open->half_open
// once openFor has elapsed. Returns ErrCircuitOpen if the call must fail
// fast.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.CircuitClosed:
		return nil
	case domain.CircuitOpen:
		if b.clock.Now().Sub(b.lastFailureAt) >= b.openFor {
			b.state = domain.CircuitHalfOpen
			b.halfOpenAttempts = 0
			b.successCount = 0
			return nil
		}
		return ErrCircuitOpen
	case domain.CircuitHalfOpen:
		if b.halfOpenAttempts >= b.halfOpenMaxCalls {
			return ErrCircuitOpen
		}
		b.halfOpenAttempts++
		return nil
	default:
		return nil
	}
}

// RecordSuccess reports a successful call, potentially closing a
// half_open breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case domain.CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = domain.CircuitClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case domain.CircuitClosed:
		b.failureCount = 0
	}
}

// RecordFailure reports a failed call, potentially opening the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureAt = b.clock.Now()
	switch b.state {
	case domain.CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.state = domain.CircuitOpen
		}
	case domain.CircuitHalfOpen:
		b.state = domain.CircuitOpen
		b.failureCount = b.failureThreshold
		b.successCount = 0
	}
}

// State returns a snapshot of the breaker's current state.
func (b *Breaker) State() domain.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.CircuitBreakerState{
		Name:             b.name,
		State:            b.state,
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		LastFailureAt:    b.lastFailureAt,
		HalfOpenAttempts: b.halfOpenAttempts,
	}
}

// Registry owns one Breaker per named external dependency, created
// lazily on first use (e.g. "anthropic_api", "gemini_api").
type Registry struct {
	clock clock.Clock
	mu    sync.Mutex
	named map[string]*Breaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(c clock.Clock) *Registry {
	return &Registry{clock: c, named: make(map[string]*Breaker)}
}

// Get returns the breaker for name, creating it closed if new.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.named[name]
	if !ok {
		b = NewBreaker(name, r.clock)
		r.named[name] = b
	}
	return b
}
