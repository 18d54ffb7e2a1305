// Package ratelimit implements the per-vendor token bucket with blocking
// acquire named in §2 #5: each external model vendor (anthropic, gemini,
// ...) gets its own bucket so a burst against one provider never starves
// calls to another.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"kaya/internal/logging"
)

// VendorConfig configures one vendor's token bucket.
type VendorConfig struct {
	// RequestsPerSecond is the sustained refill rate.
	RequestsPerSecond float64
	// Burst is the bucket capacity (instantaneous requests allowed).
	Burst int
}

// Limiter owns one token bucket per vendor, created lazily on first use
// from a default config, or explicitly via Configure.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	configs map[string]VendorConfig
	dflt    VendorConfig
	log     *logging.Logger
}

// DefaultVendorConfig is used for any vendor without an explicit Configure call.
var DefaultVendorConfig = VendorConfig{RequestsPerSecond: 5, Burst: 10}

// New creates a Limiter using DefaultVendorConfig for unconfigured vendors.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		configs: make(map[string]VendorConfig),
		dflt:    DefaultVendorConfig,
		log:     logging.Get(logging.CategoryRateLimit),
	}
}

// Configure sets a vendor's bucket parameters. Called before the vendor's
// first Acquire, it configures the bucket that call creates; afterwards it
// replaces the existing bucket's rate and burst size.
func (l *Limiter) Configure(vendor string, cfg VendorConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[vendor] = cfg
	if b, ok := l.buckets[vendor]; ok {
		b.SetLimit(rate.Limit(cfg.RequestsPerSecond))
		b.SetBurst(cfg.Burst)
	}
}

func (l *Limiter) bucketFor(vendor string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[vendor]; ok {
		return b
	}
	cfg, ok := l.configs[vendor]
	if !ok {
		cfg = l.dflt
	}
	b := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	l.buckets[vendor] = b
	return b
}

// Acquire blocks until a token for vendor is available or ctx is done.
// Blocking acquire (rather than a reject-on-empty bucket) is the
// contract's explicit shape — callers that want a non-blocking check
// should pass a context with a short deadline.
func (l *Limiter) Acquire(ctx context.Context, vendor string) error {
	b := l.bucketFor(vendor)
	if err := b.Wait(ctx); err != nil {
		l.log.Warn("rate limit acquire for vendor %s failed: %v", vendor, err)
		return err
	}
	return nil
}

// TryAcquire attempts a non-blocking acquire, returning false if no token
// is immediately available.
func (l *Limiter) TryAcquire(vendor string) bool {
	return l.bucketFor(vendor).Allow()
}
