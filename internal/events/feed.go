package events

import "sync"

// DefaultFeedSize is the number of recent events a Feed retains.
const DefaultFeedSize = 256

// Feed keeps the most recent events in a ring buffer so pollers (the RPC
// events_recent method) can page through activity by sequence number.
type Feed struct {
	mu   sync.RWMutex
	ring []Event
	next int
	full bool
}

// NewFeed creates a feed holding up to size events.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{ring: make([]Event, size)}
}

// Handle records e. It is a Handler and can be passed to Bus.Subscribe.
func (f *Feed) Handle(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ring[f.next] = e
	f.next = (f.next + 1) % len(f.ring)
	if f.next == 0 {
		f.full = true
	}
}

// Since returns retained events with Seq > seq, oldest first, at most limit
// (limit <= 0 means no limit).
func (f *Feed) Since(seq uint64, limit int) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []Event
	for _, e := range f.ordered() {
		if e.Seq <= seq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len returns the number of retained events.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.full {
		return len(f.ring)
	}
	return f.next
}

// ordered returns the retained events oldest first. Caller holds mu.
func (f *Feed) ordered() []Event {
	if !f.full {
		return f.ring[:f.next]
	}
	out := make([]Event, 0, len(f.ring))
	out = append(out, f.ring[f.next:]...)
	return append(out, f.ring[:f.next]...)
}
