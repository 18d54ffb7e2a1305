package config

// BudgetConfig holds session budget defaults (§3 Session).
type BudgetConfig struct {
	CostCapTotalUSD float64 `yaml:"cost_cap_total_usd"`
	CostCapWarnUSD  float64 `yaml:"cost_cap_warn_usd"`
}

func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		CostCapTotalUSD: 5.00,
		CostCapWarnUSD:  4.00,
	}
}

// ConcurrencyConfig holds the parallelism knobs from §5.
type ConcurrencyConfig struct {
	MaxConcurrentTasks   int `yaml:"max_concurrent_tasks"`
	ProcessPoolSize      int `yaml:"process_pool_size"`
	WorkerPoolSizeEach   int `yaml:"worker_pool_size_each"`
}

func DefaultConcurrencyConfig() ConcurrencyConfig {
	return ConcurrencyConfig{
		MaxConcurrentTasks: 10,
		ProcessPoolSize:    5,
		WorkerPoolSizeEach: 3,
	}
}

// HITLConfig holds HITL queue tuning (§4.8, §9).
type HITLConfig struct {
	DiffExcerptBytes int `yaml:"diff_excerpt_bytes"`
	MaxAttemptHistory int `yaml:"max_attempt_history"`
}

func DefaultHITLConfig() HITLConfig {
	return HITLConfig{
		DiffExcerptBytes:  4096,
		MaxAttemptHistory: 10,
	}
}
