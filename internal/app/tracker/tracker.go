// Package tracker is the in-page analytics engine. It listens to page
// signals, turns them into sanitized events, keeps them in a bounded queue
// and flushes them to the collector on a timer and on page lifecycle
// transitions.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/okian/convtrack/internal/adapters/mq/bus"
	"github.com/okian/convtrack/internal/adapters/mq/queue"
	"github.com/okian/convtrack/internal/adapters/transport"
	"github.com/okian/convtrack/internal/domain/browser"
	"github.com/okian/convtrack/internal/domain/consent"
	"github.com/okian/convtrack/internal/domain/identity"
	"github.com/okian/convtrack/internal/domain/model"
	"github.com/okian/convtrack/internal/domain/privacy"
	"github.com/okian/convtrack/internal/domain/schema"
	"github.com/okian/convtrack/internal/domain/signals"
	"github.com/okian/convtrack/pkg/logger"
	"github.com/okian/convtrack/pkg/metrics"
)

// Tracker owns the runtime state of one page. Listener callbacks, bus
// handlers and the flush loop serialize on mu, which keeps the
// run-to-completion model of a single UI thread.
type Tracker struct {
	host          browser.Host
	endpoint      string
	enabled       bool
	debug         bool
	locale        string
	flushInterval time.Duration
	queueCapacity int
	transport     transport.Transport
	bus           *bus.Bus
	gate          *consent.Gate
	identity      *identity.Identity
	log           logger.Logger
	console       logger.Logger

	queue *queue.Ring

	mu          sync.Mutex
	initialized bool
	closed      bool
	state       *runtimeState
	unsubscribe []func()
	inflight    sync.WaitGroup
}

// New returns a tracker for host. Nothing is observed until Init.
func New(host browser.Host, opts ...Option) *Tracker {
	t := &Tracker{
		host:          host,
		enabled:       true,
		flushInterval: defaultFlushInterval,
		queueCapacity: queue.DefaultRingCapacity,
		log:           logger.OrNop().Named("tracker"),
		console:       logger.OrNop().Named("analytics"),
	}
	if host != nil {
		t.locale = host.Navigator().Language
	}
	if t.locale == "" {
		t.locale = defaultLocale
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.transport == nil {
		t.transport = transport.NewHTTP()
	}
	if t.bus == nil {
		t.bus = bus.New()
	}
	if t.gate == nil {
		t.gate = &consent.Gate{}
	}
	if t.identity == nil && host != nil {
		t.identity = identity.New(host.SessionStorage(), host.LocalStorage())
	}
	t.queue = queue.NewRing(t.queueCapacity)
	t.state = newRuntimeState(time.Time{}, "/", true, t.locale)
	return t
}

// Bus returns the bus the tracker listens on.
func (t *Tracker) Bus() *bus.Bus { return t.bus }

// Gate returns the consent gate.
func (t *Tracker) Gate() *consent.Gate { return t.gate }

// Init starts observing the page and records the session opening events. It
// reports false and does nothing when tracking is disabled, there is no page,
// or Init already ran.
func (t *Tracker) Init(ctx context.Context) bool {
	if !t.enabled || t.host == nil {
		return false
	}
	t.mu.Lock()
	if t.initialized || t.closed {
		t.mu.Unlock()
		return false
	}
	t.initialized = true

	h := t.host
	now := h.Now()
	loc := h.Location()
	nav := h.Navigator()
	vp := h.Viewport()
	t.state = newRuntimeState(now, privacy.SanitizePath(loc.Pathname), !h.Hidden(), t.locale)
	st := t.state

	device := signals.DeviceType(nav, vp)
	browserFamily := signals.BrowserFamily(nav.UserAgent)
	osFamily := signals.OSFamily(nav.UserAgent)

	t.track(schema.EventSessionStart, map[string]any{
		"deviceType":     device,
		"browserFamily":  browserFamily,
		"osFamily":       osFamily,
		"isReturning":    t.identity.Returning(),
		"languageBucket": signals.LanguageBucket(t.locale),
	})
	t.track(schema.EventDevicePerformanceClass, signals.DevicePerformance(nav))
	t.track(schema.EventReferralCampaignBucket, signals.ReferralCampaign(h.Referrer(), loc.Href, loc.Host))
	st.recordPageView(st.currentPath)
	t.track(schema.EventPageView, map[string]any{
		"pageViewIndex":  st.pageViews,
		"referrerBucket": signals.ReferrerBucket(h.Referrer(), loc.Host),
		"navigationType": signals.NavigationType(h.NavigationType()),
		"deviceType":     device,
		"browserFamily":  browserFamily,
		"osFamily":       osFamily,
	})
	t.track(schema.EventNetworkChange, signals.NetworkSnapshot(nav))
	st.orientation = signals.Orientation(vp.Width, vp.Height)
	t.trackAccessibilityModes()

	t.attach()
	t.mu.Unlock()

	t.log.Info(ctx, "tracking initialized",
		logger.String("path", st.currentPath),
		logger.Bool("endpoint_configured", t.endpoint != ""),
		logger.Bool("consent", t.gate.Granted()))
	return true
}

// Initialized reports whether Init succeeded.
func (t *Tracker) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// Track records an event. Analytics-only events are dropped silently while
// consent is not granted.
func (t *Tracker) Track(name schema.EventName, data map[string]any) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.track(name, data)
}

// track is Track with mu held.
func (t *Tracker) track(name schema.EventName, data map[string]any) {
	if schema.IsAnalyticsOnly(name) && !t.gate.Granted() {
		metrics.RecordEventGated()
		return
	}
	if !schema.Known(name) {
		t.log.Debug(context.Background(), "unknown event dropped", logger.String("event", string(name)))
		return
	}

	var base map[string]any
	if t.identity != nil {
		base = t.identity.Base()
	}
	clean := privacy.SanitizeEventDataFunc(name, data, base, func(_ string, reason privacy.DropReason) {
		metrics.RecordFieldDropped(string(reason))
	})

	ev := model.AnalyticsEvent{
		Name:      string(name),
		QueryKeys: []string{},
		Locale:    t.state.locale,
		Viewport:  model.ViewportUnknown,
		Path:      "/",
		Data:      clean,
	}
	if t.host != nil {
		loc := t.host.Location()
		ev.Timestamp = t.host.Now().UnixMilli()
		ev.Path = privacy.SanitizePath(loc.Pathname)
		ev.QueryKeys = privacy.SanitizedQueryKeys(loc.Href)
		ev.Viewport = signals.ViewportBucket(t.host.Viewport().Width)
	} else {
		ev.Timestamp = time.Now().UnixMilli()
	}

	if t.queue.Push(ev) {
		metrics.RecordEventEvicted()
	}
	metrics.RecordEventTracked(ev.Name)
	metrics.UpdateTrackerQueueLength(t.queue.Len())

	if t.debug {
		t.console.Debug(context.Background(), "track",
			logger.String("event", ev.Name),
			logger.String("path", ev.Path),
			logger.Any("data", ev.Data))
	}
}

// Pending returns the queued events in FIFO order.
func (t *Tracker) Pending() []model.AnalyticsEvent {
	return t.queue.Snapshot()
}

// Flush drains the queue into one batch and sends it. With useBeacon the
// batch goes through the fire-and-forget beacon, which survives unload;
// otherwise it is posted on a background goroutine. It does nothing without
// an endpoint or with an empty queue.
func (t *Tracker) Flush(useBeacon bool) {
	body, n, ok := t.drain()
	if !ok {
		return
	}
	if useBeacon {
		t.sendBeacon(body, n)
		return
	}
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		t.post(context.Background(), body, n)
	}()
}

func (t *Tracker) drain() ([]byte, int, bool) {
	if t.endpoint == "" || t.queue.Len() == 0 {
		return nil, 0, false
	}
	events := t.queue.Drain()
	metrics.UpdateTrackerQueueLength(0)
	if len(events) == 0 {
		return nil, 0, false
	}
	sentAt := time.Now().UnixMilli()
	if t.host != nil {
		sentAt = t.host.Now().UnixMilli()
	}
	body, err := transport.Encode(model.Batch{SentAt: sentAt, Events: events})
	if err != nil {
		t.log.Warn(context.Background(), "batch encoding failed", logger.Error(err), logger.Int("events", len(events)))
		return nil, 0, false
	}
	return body, len(events), true
}

func (t *Tracker) sendBeacon(body []byte, n int) {
	metrics.RecordFlush(transport.ModeBeacon, n)
	if !t.transport.Beacon(t.endpoint, body) {
		metrics.RecordFlushFailure(transport.ModeBeacon)
		t.log.Debug(context.Background(), "beacon refused", logger.Int("events", n))
	}
}

func (t *Tracker) post(ctx context.Context, body []byte, n int) {
	metrics.RecordFlush(transport.ModeFetch, n)
	if err := t.transport.Post(ctx, t.endpoint, body); err != nil {
		metrics.RecordFlushFailure(transport.ModeFetch)
		t.log.Debug(ctx, "batch dropped", logger.Error(err), logger.Int("events", n))
	}
}

// SnapshotVitals records the current Web Vitals ratings, if any are known.
func (t *Tracker) SnapshotVitals() {
	if t.host == nil {
		return
	}
	data := signals.WebVitals(t.host.Vitals())
	if len(data) == 0 {
		return
	}
	t.Track(schema.EventWebVitals, data)
}

// Run takes the deferred Web Vitals snapshot and then flushes every flush
// interval until ctx is done. Cancelling ctx stops the timer only; a post
// already issued runs to completion.
func (t *Tracker) Run(ctx context.Context) {
	if !t.Initialized() {
		return
	}
	t.SnapshotVitals()

	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Flush(false)
		}
	}
}

// Wait blocks until background posts have finished.
func (t *Tracker) Wait() { t.inflight.Wait() }

// Close detaches the bus handlers and waits for background posts. Page
// listeners cannot be removed from the host; they become no-ops.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	unsubs := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
	t.Wait()
}
