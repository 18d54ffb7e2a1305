package resilience

// Strategy names a fallback behavior a worker's policy may select when
// its primary call path fails (§4.9).
type Strategy string

const (
	// StrategySwitchCheaperModel retries once with a cheaper model.
	StrategySwitchCheaperModel Strategy = "switch_cheaper_model"
	// StrategyMarkUnvalidated returns ok=true with validated=false.
	StrategyMarkUnvalidated Strategy = "mark_unvalidated"
	// StrategySkipRAG returns an empty pattern list.
	StrategySkipRAG Strategy = "skip_rag"
	// StrategyEscalateToHITL enqueues an HITLTask.
	StrategyEscalateToHITL Strategy = "escalate_to_hitl"
	// StrategyReturnDefault returns a specified default value.
	StrategyReturnDefault Strategy = "return_default"
)

// FallbackPolicy maps a failure category to the strategy a caller should
// apply, per that worker's configuration.
type FallbackPolicy map[Category]Strategy

// StrategyFor returns the configured strategy for category, or
// StrategyReturnDefault if none is configured.
func (p FallbackPolicy) StrategyFor(c Category) Strategy {
	if s, ok := p[c]; ok {
		return s
	}
	return StrategyReturnDefault
}
