package hotstore

import (
	"encoding/json"
	"fmt"

	"kaya/internal/domain"
)

func circuitKey(name string) string { return "cb:" + name }

// PutCircuitState writes a circuit breaker's state. No TTL (§4.5): breaker
// state persists for the life of the process.
func (s *Store) PutCircuitState(cb *domain.CircuitBreakerState) error {
	data, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("marshal circuit state: %w", err)
	}
	s.setBytes(circuitKey(cb.Name), data, 0)
	return nil
}

// GetCircuitState reads a circuit breaker's state, ok=false if never set.
func (s *Store) GetCircuitState(name string) (*domain.CircuitBreakerState, bool, error) {
	raw, ok := s.getBytes(circuitKey(name))
	if !ok {
		return nil, false, nil
	}
	var cb domain.CircuitBreakerState
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, false, fmt.Errorf("unmarshal circuit state: %w", err)
	}
	return &cb, true, nil
}
