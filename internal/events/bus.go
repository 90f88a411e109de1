package events

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBufferSize is the number of events the bus holds before dropping.
const DefaultBufferSize = 1024

// Handler receives events from the bus dispatch goroutine.
type Handler func(Event)

// Bus is an asynchronous fan-out Presenter. Publish stamps the event time and
// enqueues it without blocking; a single goroutine assigns sequence numbers
// and delivers events to handlers in queue order.
type Bus struct {
	logger zerolog.Logger
	queue  chan Event
	done   chan struct{}

	mu       sync.RWMutex // guards closed and the queue send
	closed   bool
	handlers []Handler
	hmu      sync.Mutex

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewBus creates a bus and starts its dispatch goroutine.
func NewBus(size int, logger zerolog.Logger) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	b := &Bus{
		logger: logger,
		queue:  make(chan Event, size),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish enqueues e. If the buffer is full or the bus is closed the event
// is dropped and counted.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.dropped.Add(1)
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case b.queue <- e:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded so far.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops accepting events, delivers what is queued, and waits for the
// dispatch goroutine to exit. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for e := range b.queue {
		e.Seq = b.seq.Add(1)
		b.hmu.Lock()
		handlers := make([]Handler, len(b.handlers))
		copy(handlers, b.handlers)
		b.hmu.Unlock()

		for _, h := range handlers {
			b.safeCall(h, e)
		}
	}
}

// safeCall invokes a handler and recovers from any panic so one broken
// presenter cannot stop delivery to the others.
func (b *Bus) safeCall(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("kind", string(e.Kind)).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Event handler panicked")
		}
	}()
	h(e)
}
