package tracker

import (
	"time"

	"github.com/okian/convtrack/internal/adapters/mq/bus"
	"github.com/okian/convtrack/internal/adapters/transport"
	"github.com/okian/convtrack/internal/domain/consent"
	"github.com/okian/convtrack/internal/domain/identity"
)

// Default tracker configuration constants.
const (
	defaultFlushInterval = 5 * time.Second
	defaultLocale        = "en"
)

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithEndpoint sets the collector URL. Without one Flush does nothing.
func WithEndpoint(url string) Option {
	return func(t *Tracker) { t.endpoint = url }
}

// WithEnabled turns tracking on or off. A disabled tracker never installs
// listeners and ignores Track.
func WithEnabled(enabled bool) Option {
	return func(t *Tracker) { t.enabled = enabled }
}

// WithDebug logs every accepted event to the "analytics" logger.
func WithDebug(debug bool) Option {
	return func(t *Tracker) { t.debug = debug }
}

// WithLocale sets the locale attached to events.
func WithLocale(locale string) Option {
	return func(t *Tracker) {
		if locale != "" {
			t.locale = locale
		}
	}
}

// WithFlushInterval sets the period of the background flush.
func WithFlushInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.flushInterval = d
		}
	}
}

// WithQueueCapacity sets the pending event bound.
func WithQueueCapacity(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.queueCapacity = n
		}
	}
}

// WithTransport sets the batch transport.
func WithTransport(tr transport.Transport) Option {
	return func(t *Tracker) {
		if tr != nil {
			t.transport = tr
		}
	}
}

// WithBus sets the custom event bus the tracker subscribes to.
func WithBus(b *bus.Bus) Option {
	return func(t *Tracker) {
		if b != nil {
			t.bus = b
		}
	}
}

// WithGate sets the consent gate. Without one analytics-only events are
// never recorded.
func WithGate(g *consent.Gate) Option {
	return func(t *Tracker) {
		if g != nil {
			t.gate = g
		}
	}
}

// WithIdentity replaces the identity source built from the host storages.
func WithIdentity(id *identity.Identity) Option {
	return func(t *Tracker) {
		if id != nil {
			t.identity = id
		}
	}
}
