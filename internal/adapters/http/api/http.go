// Package api serves the collector's HTTP surface: batch ingestion, stats,
// health and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"github.com/okian/convtrack/internal/adapters/http/swagger"
	"github.com/okian/convtrack/internal/adapters/transport"
	"github.com/okian/convtrack/internal/domain/dedupe"
	"github.com/okian/convtrack/internal/domain/model"
	"github.com/okian/convtrack/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue hands an accepted batch to the store workers. Returns false on backpressure.
	Enqueue(ctx context.Context, env model.Envelope) bool
}

const (
	defaultRateLimit   = 600
	defaultCORSMaxAge  = 300
	rateLimitWindow    = time.Minute
	rateLimitRetryHint = "60"
)

// Server wires HTTP routes for the collector API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	eventsHandler *EventsHandler

	allowedOrigins []string
	ratePerMinute  int
	maxBodyBytes   int64
	now            func() time.Time
	newID          func() string
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		allowedOrigins: []string{"*"},
		ratePerMinute:  defaultRateLimit,
		maxBodyBytes:   MaxBodyBytes,
		now:            time.Now,
		newID:          newBatchID,
		logger:         logger.OrNop().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider, s.logger)
	s.eventsHandler = NewEventsHandler(deps,
		withBodyLimit(s.maxBodyBytes), withClock(s.now), withIDs(s.newID), withHandlerLogger(s.logger))
	return s
}

// Routes builds the chi router for the collector.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", transport.HeaderMode},
		MaxAge:         defaultCORSMaxAge,
	}))

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.With(httprate.Limit(s.ratePerMinute, rateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded),
	)).Post("/events", s.eventsHandler.HandlePostEvents)
	swagger.Register(r)
	return r
}

func limitExceeded(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Retry-After", rateLimitRetryHint)
	writeError(w, http.StatusTooManyRequests, "rate_limited", nil)
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	BatchID   string `json:"batch_id,omitempty"`
	Events    int    `json:"events,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
