// Package dedupe remembers which batches the collector already accepted so
// that a beacon retried by the browser is stored once.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/okian/convtrack/internal/domain/model"
)

const defaultMaxSize = 50_000

// Deduper records seen batch keys to ensure at-most-once storage.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so a batch rejected after recording (queue
	// backpressure) can be retried by the client.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// BatchKey identifies a batch by session, send time and event count. A
// browser that resends the same beacon produces the same key.
func BatchKey(b *model.Batch) string {
	var sb strings.Builder
	sb.WriteString(b.SessionID())
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(b.SentAt, 10))
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(len(b.Events)))
	if len(b.Events) > 0 {
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatInt(b.Events[0].Timestamp, 10))
	}
	return sb.String()
}

// inMemoryDeduper keeps keys in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.seen, oldest.Value.(string))
			d.order.Remove(oldest)
		}
	}
	d.seen[key] = d.order.PushBack(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
