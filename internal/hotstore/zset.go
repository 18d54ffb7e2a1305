package hotstore

import (
	"sort"
	"time"
)

// zAdd inserts or updates member's score in the sorted set at key.
func (s *Store) zAdd(key, member string, score float64, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.zsets[key]
	if !ok {
		e = &zsetEntry{members: make(map[string]float64)}
		s.zsets[key] = e
	}
	e.members[member] = score
	e.expiresAt = s.expiryAt(ttl)
}

// zRem removes member from the sorted set at key.
func (s *Store) zRem(key, member string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.zsets[key]
	if !ok {
		return
	}
	delete(e.members, member)
}

// zScore returns member's score, ok=false if absent.
func (s *Store) zScore(key, member string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.zsets[key]
	if !ok {
		return 0, false
	}
	score, ok := e.members[member]
	return score, ok
}

// zsetMember pairs a member with its score for range results.
type zsetMember struct {
	Member string
	Score  float64
}

// zRangeDesc returns up to limit members ordered by descending score
// (highest-priority first). limit<=0 means unbounded.
func (s *Store) zRangeDesc(key string, limit int) []zsetMember {
	s.mu.Lock()
	e, ok := s.zsets[key]
	var out []zsetMember
	if ok {
		out = make([]zsetMember, 0, len(e.members))
		for m, sc := range e.members {
			out = append(out, zsetMember{Member: m, Score: sc})
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Member < out[j].Member
		}
		return out[i].Score > out[j].Score
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// zCard reports the number of members in the sorted set at key.
func (s *Store) zCard(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.zsets[key]
	if !ok {
		return 0
	}
	return len(e.members)
}
