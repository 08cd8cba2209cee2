package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/convtrack/internal/adapters/transport"
	"github.com/okian/convtrack/internal/domain/dedupe"
	"github.com/okian/convtrack/internal/domain/model"
	"github.com/okian/convtrack/internal/domain/privacy"
	"github.com/okian/convtrack/internal/domain/schema"
	"github.com/okian/convtrack/pkg/logger"
	"github.com/okian/convtrack/pkg/metrics"
)

// MaxBodyBytes is the default cap on a posted batch.
const MaxBodyBytes int64 = 256 << 10

const unknownLocale = "unknown"

// EventsHandler handles batch ingestion.
type EventsHandler struct {
	deps    Dependencies
	maxBody int64
	now     func() time.Time
	newID   func() string
	logger  logger.Logger
}

type handlerOption func(*EventsHandler)

func withBodyLimit(n int64) handlerOption { return func(h *EventsHandler) { h.maxBody = n } }
func withClock(now func() time.Time) handlerOption { return func(h *EventsHandler) { h.now = now } }
func withIDs(fn func() string) handlerOption { return func(h *EventsHandler) { h.newID = fn } }
func withHandlerLogger(l logger.Logger) handlerOption {
	return func(h *EventsHandler) { h.logger = l }
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies, opts ...handlerOption) *EventsHandler {
	h := &EventsHandler{
		deps:    deps,
		maxBody: MaxBodyBytes,
		now:     time.Now,
		newID:   newBatchID,
		logger:  logger.OrNop().Named("api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func newBatchID() string { return uuid.NewString() }

// HandlePostEvents handles POST /events. Beacons arrive as text/plain, fetch
// posts as application/json; both carry the same {sentAt, events} body.
func (h *EventsHandler) HandlePostEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_events"
	ctx := r.Context()

	if !acceptedMediaType(r.Header.Get("Content-Type")) {
		metrics.RecordBatchRejected("media_type")
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", NewKind(op, ErrUnsupportedMedia))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RecordBatchRejected("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", NewKind(op, ErrPayloadTooLarge))
			return
		}
		metrics.RecordBatchRejected("read")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	batch, err := transport.Decode(body)
	if err != nil {
		metrics.RecordBatchRejected("decode")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := schema.Validator().Struct(&batch); err != nil {
		metrics.RecordBatchRejected("invalid")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := sanitizeBatch(&batch); err != nil {
		metrics.RecordBatchRejected("unknown_event")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	metrics.RecordBatchReceived()

	key := dedupe.BatchKey(&batch)
	if h.deps.SeenAndRecord(ctx, key) {
		metrics.RecordBatchDuplicate()
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	env := model.Envelope{
		ID:         h.newID(),
		ReceivedAt: h.now(),
		Origin:     origin(r),
		Batch:      batch,
	}
	if ok := h.deps.Enqueue(ctx, env); !ok {
		h.deps.Unrecord(ctx, key)
		metrics.RecordBatchRejected("backpressure")
		h.logger.Warn(ctx, "batch rejected on backpressure", logger.Int("events", len(batch.Events)))
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", BatchID: env.ID, Events: len(batch.Events)})
}

func acceptedMediaType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || mt == "text/plain"
}

// origin reports how the batch was sent. The tracker marks it in a header;
// a plain-text body without the header is treated as a beacon.
func origin(r *http.Request) string {
	switch m := r.Header.Get(transport.HeaderMode); m {
	case transport.ModeBeacon, transport.ModeFetch:
		return m
	}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "text/plain" {
		return transport.ModeBeacon
	}
	return transport.ModeFetch
}

// sanitizeBatch re-applies the tracker's privacy rules to every event so a
// hand-crafted post cannot store more than the tracker would have sent.
func sanitizeBatch(b *model.Batch) error {
	for i := range b.Events {
		e := &b.Events[i]
		name := schema.EventName(e.Name)
		if !schema.Known(name) {
			return fmt.Errorf("event %d: unknown name %q", i, e.Name)
		}
		base, raw := splitBase(e.Data)
		e.Data = privacy.SanitizeEventDataFunc(name, raw, base, func(_ string, reason privacy.DropReason) {
			metrics.RecordFieldDropped(string(reason))
		})
		e.Path = privacy.SanitizePath(e.Path)
		e.QueryKeys = privacy.SanitizeKeyList(e.QueryKeys)
		e.Viewport = viewport(e.Viewport)
		e.Locale = locale(e.Locale)
	}
	return nil
}

// splitBase separates the identity keys from the event fields. Identity
// values must be opaque tokens; anything else is discarded.
func splitBase(data model.Data) (base, raw map[string]any) {
	base = make(map[string]any, len(schema.BaseKeys))
	raw = make(map[string]any, len(data))
	for k, v := range data {
		if !isBaseKey(k) {
			raw[k] = v
			continue
		}
		if s, ok := v.(string); ok && schema.Validator().Var(s, "token") == nil {
			base[k] = s
		}
	}
	return base, raw
}

func isBaseKey(k string) bool {
	for _, b := range schema.BaseKeys {
		if k == b {
			return true
		}
	}
	return false
}

func viewport(v model.Viewport) model.Viewport {
	switch v {
	case model.ViewportXS, model.ViewportSM, model.ViewportMD, model.ViewportLG:
		return v
	default:
		return model.ViewportUnknown
	}
}

func locale(l string) string {
	if k, ok := privacy.SanitizeKey(l); ok && len(k) <= 16 {
		return k
	}
	return unknownLocale
}
