// Package transport delivers encoded batches to the collector endpoint. Every
// send is at-most-once: failed batches are dropped, never retried.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/convtrack/internal/domain/model"
	"github.com/okian/convtrack/pkg/logger"
	"github.com/okian/convtrack/pkg/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Errors returned by Post.
var (
	ErrRejected    = errors.New("endpoint rejected batch")
	ErrCircuitOpen = errors.New("endpoint circuit open")
)

// Header set on batches sent through Beacon, so the collector can tell the
// two delivery modes apart.
const (
	HeaderMode = "X-Convtrack-Mode"
	ModeBeacon = "beacon"
	ModeFetch  = "fetch"
)

// Transport sends encoded batches.
type Transport interface {
	// Beacon hands body to a fire-and-forget sender that outlives the page.
	// It reports whether the send was queued.
	Beacon(url string, body []byte) bool
	// Post sends body and waits for the response status.
	Post(ctx context.Context, url string, body []byte) error
}

// Encode returns the wire body of a batch.
func Encode(b model.Batch) ([]byte, error) {
	if b.Events == nil {
		b.Events = []model.AnalyticsEvent{}
	}
	return json.Marshal(b)
}

// Decode parses a wire body.
func Decode(body []byte) (model.Batch, error) {
	var b model.Batch
	err := json.Unmarshal(body, &b)
	return b, err
}

// Default settings.
const (
	defaultTimeout       = 10 * time.Second
	defaultBreakerWindow = time.Minute
	defaultBreakerOpen   = 30 * time.Second
	defaultTripFailures  = 5
)

// HTTP is a Transport over net/http guarded by a circuit breaker, so an
// unreachable endpoint costs one failed request per open period instead of
// one per flush.
type HTTP struct {
	client  *http.Client
	do      SendFunc
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     logger.Logger
	wg      sync.WaitGroup
}

var _ Transport = (*HTTP)(nil)

// SendFunc performs one request and reports a non-2xx status as ErrRejected.
type SendFunc func(ctx context.Context, url string, body []byte, mode string) error

// Option configures HTTP.
type Option func(*httpConfig)

type httpConfig struct {
	client       *http.Client
	send         SendFunc
	timeout      time.Duration
	tripFailures uint32
	openFor      time.Duration
}

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(cfg *httpConfig) {
		if c != nil {
			cfg.client = c
		}
	}
}

// WithSendFunc replaces the net/http request with fn. The breaker and the
// timeout still apply.
func WithSendFunc(fn SendFunc) Option {
	return func(cfg *httpConfig) { cfg.send = fn }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(cfg *httpConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithBreaker sets how many consecutive failures open the circuit and how
// long it stays open.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(cfg *httpConfig) {
		if failures > 0 {
			cfg.tripFailures = failures
		}
		if openFor > 0 {
			cfg.openFor = openFor
		}
	}
}

// NewHTTP returns an HTTP transport.
func NewHTTP(opts ...Option) *HTTP {
	cfg := httpConfig{
		client:       &http.Client{},
		timeout:      defaultTimeout,
		tripFailures: defaultTripFailures,
		openFor:      defaultBreakerOpen,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := logger.OrNop().Named("transport")
	h := &HTTP{client: cfg.client, do: cfg.send, timeout: cfg.timeout, log: log}
	if h.do == nil {
		h.do = h.request
	}
	h.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:     "collector",
		Interval: defaultBreakerWindow,
		Timeout:  cfg.openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.tripFailures
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name), logger.String("from", from.String()), logger.String("to", to.String()))
		},
	})
	return h
}

// Post sends body and waits for the status.
func (h *HTTP) Post(ctx context.Context, url string, body []byte) error {
	return h.send(ctx, url, body, ModeFetch)
}

func (h *HTTP) send(ctx context.Context, url string, body []byte, mode string) error {
	_, err := h.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		return struct{}{}, h.do(ctx, url, body, mode)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (h *HTTP) request(ctx context.Context, url string, body []byte, mode string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderMode, mode)
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return CheckStatus(resp.StatusCode)
}

// CheckStatus maps a non-2xx response status to ErrRejected.
func CheckStatus(code int) error {
	if code < 200 || code > 299 {
		return fmt.Errorf("%w: status %d", ErrRejected, code)
	}
	return nil
}

// Beacon sends body on a background goroutine that is not tied to any caller
// context. Nothing is queued while the circuit is open.
func (h *HTTP) Beacon(url string, body []byte) bool {
	if h.breaker.State() == gobreaker.StateOpen {
		metrics.RecordFlushFailure(ModeBeacon)
		return false
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.send(context.Background(), url, body, ModeBeacon); err != nil {
			metrics.RecordFlushFailure(ModeBeacon)
			h.log.Debug(context.Background(), "beacon dropped", logger.Error(err))
		}
	}()
	return true
}

// Wait blocks until every queued beacon has finished.
func (h *HTTP) Wait() { h.wg.Wait() }

// Recorder is an in-memory Transport that keeps every batch it receives.
type Recorder struct {
	mu      sync.Mutex
	Fail    error
	beacons [][]byte
	posts   [][]byte
}

var _ Transport = (*Recorder)(nil)

// Beacon records body. It refuses when Fail is set.
func (r *Recorder) Beacon(_ string, body []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return false
	}
	r.beacons = append(r.beacons, append([]byte(nil), body...))
	return true
}

// Post records body or returns Fail.
func (r *Recorder) Post(_ context.Context, _ string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.posts = append(r.posts, append([]byte(nil), body...))
	return nil
}

// Batches decodes every recorded body, beacons first.
func (r *Recorder) Batches() []model.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Batch, 0, len(r.beacons)+len(r.posts))
	for _, raw := range append(append([][]byte{}, r.beacons...), r.posts...) {
		if b, err := Decode(raw); err == nil {
			out = append(out, b)
		}
	}
	return out
}

// Counts returns how many beacons and posts were recorded.
func (r *Recorder) Counts() (beacons, posts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.beacons), len(r.posts)
}
