package queue

import (
	"sync"

	"github.com/okian/convtrack/internal/domain/model"
)

// DefaultRingCapacity bounds the pending analytics events of one page.
const DefaultRingCapacity = 200

// Ring is a bounded FIFO of analytics events. Pushing into a full ring
// evicts the oldest entry, so memory stays flat while the endpoint is
// unreachable.
type Ring struct {
	mu    sync.Mutex
	buf   []model.AnalyticsEvent
	head  int
	size  int
	total uint64
}

// NewRing returns a ring holding at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{buf: make([]model.AnalyticsEvent, capacity)}
}

// Push appends e and reports whether an older event was evicted.
func (r *Ring) Push(e model.AnalyticsEvent) (evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if r.size == len(r.buf) {
		r.buf[r.head] = e
		r.head = (r.head + 1) % len(r.buf)
		return true
	}
	r.buf[(r.head+r.size)%len(r.buf)] = e
	r.size++
	return false
}

// Drain removes and returns every event in FIFO order.
func (r *Ring) Drain() []model.AnalyticsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.snapshot()
	for i := range r.buf {
		r.buf[i] = model.AnalyticsEvent{}
	}
	r.head, r.size = 0, 0
	return out
}

// Snapshot returns the events in FIFO order without removing them.
func (r *Ring) Snapshot() []model.AnalyticsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Ring) snapshot() []model.AnalyticsEvent {
	out := make([]model.AnalyticsEvent, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of pending events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Pushed returns how many events were ever pushed.
func (r *Ring) Pushed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
