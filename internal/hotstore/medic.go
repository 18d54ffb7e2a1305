package hotstore

import (
	"encoding/json"
	"fmt"
	"time"

	"kaya/internal/domain"
)

// MedicTTL is the TTL applied to medic:attempts:{task_id} and
// medic:history:{task_id} (§4.5).
const MedicTTL = 24 * time.Hour

// MedicHistoryCap bounds medic:history:{task_id} to the last 10 entries (§3).
const MedicHistoryCap = 10

func medicAttemptsKey(taskID string) string { return "medic:attempts:" + taskID }
func medicHistoryKey(taskID string) string  { return "medic:history:" + taskID }

// IncrMedicAttempts atomically increments the per-task Medic attempt
// counter and returns the new value.
func (s *Store) IncrMedicAttempts(taskID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := medicAttemptsKey(taskID)
	e, ok := s.counters[key]
	if !ok {
		e = &counterEntry{}
		s.counters[key] = e
	}
	e.value++
	e.expiresAt = s.expiryAt(MedicTTL)
	return e.value
}

// MedicAttempts reads the current attempt count without incrementing it.
func (s *Store) MedicAttempts(taskID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.counters[medicAttemptsKey(taskID)]
	if !ok {
		return 0
	}
	if !e.expiresAt.IsZero() && s.clock.Now().After(e.expiresAt) {
		return 0
	}
	return e.value
}

// AppendMedicAttempt appends an attempt record to the bounded ring of the
// last MedicHistoryCap attempts for a task.
func (s *Store) AppendMedicAttempt(taskID string, a domain.Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := medicHistoryKey(taskID)
	e, ok := s.lists[key]
	if !ok {
		e = &listEntry{}
		s.lists[key] = e
	}
	e.items = append(e.items, string(data))
	if len(e.items) > MedicHistoryCap {
		e.items = e.items[len(e.items)-MedicHistoryCap:]
	}
	e.expiresAt = s.expiryAt(MedicTTL)
	return nil
}

// MedicHistory returns the stored attempt records for a task, oldest first.
func (s *Store) MedicHistory(taskID string) ([]domain.Attempt, error) {
	s.mu.Lock()
	e, ok := s.lists[medicHistoryKey(taskID)]
	var items []string
	if ok {
		items = append(items, e.items...)
	}
	s.mu.Unlock()

	out := make([]domain.Attempt, 0, len(items))
	for _, raw := range items {
		var a domain.Attempt
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("unmarshal attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}
