package events

import (
	"sync"
	"sync/atomic"
	"time"

	"kaya/internal/clock"
	"kaya/internal/logging"
)

// Sink receives every event the bus fans out. Implementations must not
// block for long — the bus calls sinks synchronously from its single
// background worker, so a slow sink slows down all sinks.
type Sink interface {
	Handle(Event)
	Name() string
}

// Bus is the in-process pub/sub event bus (§4.11). Emission never blocks
// the caller: events are pushed onto a bounded channel; if full, the
// oldest queued event is dropped and a counter incremented, following the
// degradation policy in §4.11 and §5 ("Event sink backpressure:
// non-blocking; drop-oldest").
type Bus struct {
	clock    clock.Clock
	queue    chan Event
	sinks    []Sink
	mu       sync.RWMutex
	dropped  atomic.Int64
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// DefaultQueueSize is the bounded in-process queue depth.
const DefaultQueueSize = 4096

// NewBus creates a bus with the given clock and queue capacity. A zero or
// negative capacity uses DefaultQueueSize.
func NewBus(c clock.Clock, capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	b := &Bus{
		clock:  c,
		queue:  make(chan Event, capacity),
		stopCh: make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// AddSink registers a fan-out destination. Not safe to call concurrently
// with Emit from a goroutine that assumes sink registration is complete;
// register all sinks before the pipeline starts emitting.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Emit publishes an event. Never blocks: on a full queue, the oldest
// queued event is dropped to make room.
func (b *Bus) Emit(t Type, payload map[string]interface{}) {
	evt := New(t, b.clock.Now(), payload)
	select {
	case b.queue <- evt:
	default:
		select {
		case <-b.queue:
			b.dropped.Add(1)
		default:
		}
		select {
		case b.queue <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// DroppedCount returns how many events have been dropped due to backpressure.
func (b *Bus) DroppedCount() int64 {
	return b.dropped.Load()
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		select {
		case evt := <-b.queue:
			b.fanOut(evt)
		case <-b.stopCh:
			// Drain remaining queued events before exiting.
			for {
				select {
				case evt := <-b.queue:
					b.fanOut(evt)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) fanOut(evt Event) {
	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, s := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Get(logging.CategoryEvents).Error("sink %s panicked: %v", s.Name(), r)
				}
			}()
			s.Handle(evt)
		}()
	}
}

// Shutdown flushes queued events to sinks and stops the background worker,
// waiting up to timeout (§4.11: "flush-and-wait up to 5s").
func (b *Bus) Shutdown(timeout time.Duration) {
	b.stopOnce.Do(func() { close(b.stopCh) })
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logging.Get(logging.CategoryEvents).Warn("event bus shutdown timed out after %v", timeout)
	}
}
