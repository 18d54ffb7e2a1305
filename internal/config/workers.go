package config

import "time"

// RetryPolicy configures the Resilience Kit's retry behaviour for one
// worker (§4.9). Categories in RetryOn are the only ones ever retried;
// auth, invalid_input, and permanent are never retried regardless of
// this list.
type RetryPolicy struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
	JitterFraction float64       `yaml:"jitter_fraction"` // ±this fraction of the computed delay
	RetryOn        []string      `yaml:"retry_on"`
}

// WorkerPolicy bundles a worker's deadline, retry policy, and pool size.
type WorkerPolicy struct {
	Deadline time.Duration `yaml:"deadline"`
	Retry    RetryPolicy   `yaml:"retry"`
	PoolSize int           `yaml:"pool_size"`
}

// WorkersConfig holds per-worker-type policy, keyed by worker id.
type WorkersConfig struct {
	Scribe WorkerPolicy `yaml:"scribe"`
	Critic WorkerPolicy `yaml:"critic"`
	Runner WorkerPolicy `yaml:"runner"`
	Medic  WorkerPolicy `yaml:"medic"`
	Gemini WorkerPolicy `yaml:"gemini"`

	MaxMedicRetries     int `yaml:"max_medic_retries"`      // MAX_RETRIES = 3
	MedicConfidenceFloor float64 `yaml:"medic_confidence_floor"` // CONFIDENCE_THRESHOLD = 0.7
	MaxIterations       int `yaml:"max_iterations"`          // MAX_ITERATIONS = 5
	MaxRewriteAttempts  int `yaml:"max_rewrite_attempts"`    // Scribe<->Critic loop cap = 3
}

var defaultRetryable = []string{"transient", "rate_limit", "timeout", "network", "service_error"}

// DefaultWorkersConfig matches §4.9's per-worker defaults and §4.4's pipeline
// bounds (MAX_RETRIES=3, MAX_ITERATIONS=5, 3 Scribe rewrite attempts).
func DefaultWorkersConfig() WorkersConfig {
	return WorkersConfig{
		Scribe: WorkerPolicy{
			Deadline: 30 * time.Second,
			Retry:    RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, BackoffFactor: 2.0, JitterFraction: 0.25, RetryOn: defaultRetryable},
			PoolSize: 3,
		},
		Critic: WorkerPolicy{
			Deadline: 10 * time.Second,
			Retry:    RetryPolicy{MaxAttempts: 1, BaseDelay: 0, BackoffFactor: 2.0, JitterFraction: 0.25, RetryOn: nil},
			PoolSize: 3,
		},
		Runner: WorkerPolicy{
			Deadline: 180 * time.Second,
			Retry:    RetryPolicy{MaxAttempts: 2, BaseDelay: 5 * time.Second, BackoffFactor: 2.0, JitterFraction: 0.25, RetryOn: defaultRetryable},
			PoolSize: 3,
		},
		Medic: WorkerPolicy{
			Deadline: 120 * time.Second,
			Retry:    RetryPolicy{MaxAttempts: 2, BaseDelay: 2 * time.Second, BackoffFactor: 2.0, JitterFraction: 0.25, RetryOn: defaultRetryable},
			PoolSize: 3,
		},
		Gemini: WorkerPolicy{
			Deadline: 60 * time.Second,
			Retry:    RetryPolicy{MaxAttempts: 2, BaseDelay: 3 * time.Second, BackoffFactor: 2.0, JitterFraction: 0.25, RetryOn: defaultRetryable},
			PoolSize: 3,
		},
		MaxMedicRetries:      3,
		MedicConfidenceFloor: 0.7,
		MaxIterations:        5,
		MaxRewriteAttempts:   3,
	}
}
