package hotstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"kaya/internal/domain"
)

// SessionTTL is the TTL applied to session:{id} on every write (§4.5).
const SessionTTL = time.Hour

func sessionKey(id string) string { return "session:" + id }
func budgetKey(id string) string  { return "budget:session:" + id }

// PutSession writes a session record, refreshing its TTL.
func (s *Store) PutSession(sess *domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	s.setBytes(sessionKey(sess.SessionID), data, SessionTTL)
	s.setFloat(budgetKey(sess.SessionID), sess.CostUsed, SessionTTL)
	return nil
}

// GetSession reads a session record. ok is false if absent or expired.
func (s *Store) GetSession(id string) (*domain.Session, bool, error) {
	raw, ok := s.getBytes(sessionKey(id))
	if !ok {
		return nil, false, nil
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, true, nil
}

// TouchSession refreshes a session's TTL without changing its contents,
// used on every access per the "1h from last touch" lifecycle rule.
func (s *Store) TouchSession(id string) error {
	sess, ok, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.PutSession(sess)
}

func (s *Store) setFloat(key string, v float64, ttl time.Duration) {
	s.setBytes(key, []byte(fmt.Sprintf("%.10f", v)), ttl)
}

// GetSessionBudgetUsed reads the budget:session:{id} mirror key directly,
// avoiding a full session unmarshal on the hot "can I spend this?" path.
func (s *Store) GetSessionBudgetUsed(id string) (float64, bool) {
	raw, ok := s.getBytes(budgetKey(id))
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AddSessionCost adds delta to a session's cost_used and persists the
// result, returning the new total. Returns ErrNotFound if the session is
// absent or has expired.
func (s *Store) AddSessionCost(id string, delta float64) (float64, error) {
	sess, ok, err := s.GetSession(id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotFound
	}
	sess.CostUsed += delta
	if err := s.PutSession(sess); err != nil {
		return 0, err
	}
	return sess.CostUsed, nil
}
