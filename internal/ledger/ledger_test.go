package ledger

import (
	"sync"
	"testing"
	"time"

	"kaya/internal/clock"
	"kaya/internal/domain"
)

type recordingWriter struct {
	mu    sync.Mutex
	calls [][]domain.CostEntry
}

func (r *recordingWriter) Write(entries []domain.CostEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := append([]domain.CostEntry(nil), entries...)
	r.calls = append(r.calls, cp)
	return nil
}

func (r *recordingWriter) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += len(c)
	}
	return n
}

func TestLedgerFlushesAtBatchSize(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	w := &recordingWriter{}
	l := New(fc, w)
	defer l.Shutdown()

	for i := 0; i < FlushBatchSize; i++ {
		l.Log(domain.CostEntry{SessionID: "s1", CostUSD: 0.01, Timestamp: fc.Now()})
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.total() < FlushBatchSize && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if w.total() != FlushBatchSize {
		t.Fatalf("expected %d entries flushed by batch trigger, got %d", FlushBatchSize, w.total())
	}
}

func TestLedgerFinalFlushOnShutdown(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	w := &recordingWriter{}
	l := New(fc, w)

	l.Log(domain.CostEntry{SessionID: "s1", CostUSD: 1.5, Timestamp: fc.Now()})
	l.Shutdown()

	if w.total() != 1 {
		t.Fatalf("expected final flush to deliver the one pending entry, got %d", w.total())
	}
}

func TestSpendBySessionSumsAcrossFlushedAndPending(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	w := &recordingWriter{}
	l := New(fc, w)
	defer l.Shutdown()

	l.Log(domain.CostEntry{SessionID: "s1", CostUSD: 0.5, Timestamp: fc.Now()})
	l.Log(domain.CostEntry{SessionID: "s2", CostUSD: 9.0, Timestamp: fc.Now()})
	l.Log(domain.CostEntry{SessionID: "s1", CostUSD: 0.25, Timestamp: fc.Now()})

	if got := l.SpendBySession("s1"); got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
}
