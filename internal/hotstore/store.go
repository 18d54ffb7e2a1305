// Package hotstore implements the Hot Store (§4.5): a keyed KV with TTL,
// sorted-set ranges scored for time-bucketed lookups, and counters, all
// safe under concurrent callers. A single mutex guards the whole table —
// status transitions are therefore genuinely linearizable rather than
// merely best-effort, which is what §5 requires for Task status CAS.
//
// Grounded on the teacher's RWMutex-guarded resource-tracking shape
// (internal/core/limits.go) for the locking discipline, and its
// channel-driven background worker pattern for the TTL reaper.
package hotstore

import (
	"sync"
	"time"

	"kaya/internal/clock"
	"kaya/internal/logging"
)

// ReaperInterval is how often expired entries are swept from every table.
const ReaperInterval = 30 * time.Second

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

type zsetEntry struct {
	members   map[string]float64
	expiresAt time.Time
}

type listEntry struct {
	items     []string
	expiresAt time.Time
}

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

// Store is the in-memory Hot Store backend.
type Store struct {
	clock clock.Clock
	log   *logging.Logger

	mu       sync.Mutex
	kv       map[string]kvEntry
	zsets    map[string]*zsetEntry
	lists    map[string]*listEntry
	counters map[string]*counterEntry

	stopCh chan struct{}
	stopWG sync.WaitGroup
}

// New creates a Hot Store backend and starts its TTL reaper goroutine.
func New(c clock.Clock) *Store {
	s := &Store{
		clock:    c,
		log:      logging.Get(logging.CategoryHotStore),
		kv:       make(map[string]kvEntry),
		zsets:    make(map[string]*zsetEntry),
		lists:    make(map[string]*listEntry),
		counters: make(map[string]*counterEntry),
		stopCh:   make(chan struct{}),
	}
	s.stopWG.Add(1)
	go s.reapLoop()
	return s
}

// Close stops the background reaper.
func (s *Store) Close() {
	close(s.stopCh)
	s.stopWG.Wait()
}

func (s *Store) reapLoop() {
	defer s.stopWG.Done()
	ticker := time.NewTicker(ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reap()
		}
	}
}

func (s *Store) reap() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.kv {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.kv, k)
			n++
		}
	}
	for k, e := range s.zsets {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.zsets, k)
			n++
		}
	}
	for k, e := range s.lists {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.lists, k)
			n++
		}
	}
	for k, e := range s.counters {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.counters, k)
			n++
		}
	}
	if n > 0 {
		s.log.Debug("hot store reaper evicted %d expired entries", n)
	}
}

func (s *Store) expiryAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

// --- generic KV ---

// setBytes stores raw bytes under key with the given TTL (zero = no expiry).
func (s *Store) setBytes(key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = kvEntry{value: value, expiresAt: s.expiryAt(ttl)}
}

// getBytes returns the raw bytes for key, or ok=false if absent/expired.
func (s *Store) getBytes(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.kv[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && s.clock.Now().After(e.expiresAt) {
		delete(s.kv, key)
		return nil, false
	}
	return e.value, true
}

func (s *Store) deleteKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
}

// Len reports the number of top-level keys across all tables, including
// expired entries that the reaper has not swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.kv) + len(s.zsets) + len(s.lists) + len(s.counters)
}
