package config

import "time"

// CircuitBreakerConfig configures one named external dependency's breaker (§4.9).
type CircuitBreakerConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	OpenFor           time.Duration `yaml:"open_for"`
	HalfOpenMaxCalls  int           `yaml:"half_open_max_calls"`
	SuccessThreshold  int           `yaml:"success_threshold"`
}

// RateLimitConfig configures one vendor's token bucket (§2 #5).
type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// ResilienceConfig aggregates per-endpoint breaker and rate-limit settings.
type ResilienceConfig struct {
	CircuitBreakers map[string]CircuitBreakerConfig `yaml:"circuit_breakers"`
	RateLimits      map[string]RateLimitConfig      `yaml:"rate_limits"`
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		OpenFor:          60 * time.Second,
		HalfOpenMaxCalls: 3,
		SuccessThreshold: 2,
	}
}

// DefaultResilienceConfig seeds breakers for the two named external
// dependencies §4.9 gives as examples, plus the browser driver.
func DefaultResilienceConfig() ResilienceConfig {
	def := DefaultCircuitBreakerConfig()
	return ResilienceConfig{
		CircuitBreakers: map[string]CircuitBreakerConfig{
			"anthropic_api": def,
			"gemini_api":    def,
			"browser_tool":  def,
		},
		RateLimits: map[string]RateLimitConfig{
			"anthropic_api": {RatePerSecond: 5, Burst: 10},
			"gemini_api":    {RatePerSecond: 5, Burst: 10},
		},
	}
}
