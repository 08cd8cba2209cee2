// Package service is the collector's composition root: it owns the event
// store, the batch queue, the deduper and the worker pool, and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	eventqueue "github.com/okian/convtrack/internal/adapters/mq/queue"
	workerpool "github.com/okian/convtrack/internal/adapters/mq/worker"
	"github.com/okian/convtrack/internal/adapters/repository"
	"github.com/okian/convtrack/internal/domain/dedupe"
	"github.com/okian/convtrack/internal/domain/model"
	"github.com/okian/convtrack/pkg/logger"
	"github.com/okian/convtrack/pkg/metrics"
)

// Service implements the API dependencies for the collector.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	ownsStore  bool
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	cancel     context.CancelFunc

	// Configuration
	dbPath      string
	workerCount int
	queueSize   int
	dedupeSize  int
	saveTimeout time.Duration

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDBPath sets the sqlite file the service opens on Start.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithStore injects an already opened store. The service does not close it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithWorkerCount sets the number of store workers. Zero lets the pool pick.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count >= 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of batches waiting for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSaveTimeout bounds a single batch save.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:      repository.MemoryPath,
		queueSize:   10_000,
		dedupeSize:  50_000,
		saveTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.OrNop().Named("collector")
	}
	s.logger.Info(ctx, "starting collector service...")

	if s.store == nil {
		store, err := repository.OpenSQLite(ctx, s.dbPath)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		s.store = store
		s.ownsStore = true
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.dbPath))
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)

	// Workers outlive the request context so Stop can drain what is queued.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.store,
		workerpool.WithSaveTimeout(s.saveTimeout))
	s.workerPool.Start(runCtx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "collector service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the queue into the store and releases resources.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping collector service...")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event store: %w", err))
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "collector service stopped")
	return errors.Join(errs...)
}

// SeenAndRecord atomically checks if a batch key was seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	return s.deduper.SeenAndRecord(ctx, key)
}

// Unrecord removes a batch key so the batch can be retried.
func (s *Service) Unrecord(ctx context.Context, key string) {
	s.deduper.Unrecord(ctx, key)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue hands an accepted batch to the workers. It reports false when the
// queue is full or the service is not running.
func (s *Service) Enqueue(ctx context.Context, env model.Envelope) bool { //nolint:gocritic // hugeParam: envelopes travel by value through the queue
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return false
	}
	ok := s.eventQueue.Enqueue(ctx, env)
	if ok {
		s.logger.Debug(ctx, "batch enqueued",
			logger.String("batch_id", env.ID),
			logger.String("origin", env.Origin),
			logger.Int("events", len(env.Batch.Events)))
	}
	return ok
}

// GetStats returns service statistics and the stored event counts.
func (s *Service) GetStats(ctx context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":    s.started,
		"queueSize":  s.queueSize,
		"dedupeSize": s.dedupeSize,
	}
	if !s.started {
		return stats, nil
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	byName, err := s.store.CountByName(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events by name: %w", err)
	}
	if byName == nil {
		byName = []model.NameCount{}
	}

	queueLen := s.eventQueue.Len(ctx)
	stats["workerCount"] = s.workerPool.Size()
	stats["queueLength"] = queueLen
	stats["dedupeEntries"] = s.deduper.Size()
	stats["storedEvents"] = total
	stats["eventsByName"] = byName
	stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())

	metrics.UpdateQueueSize(queueLen)
	return stats, nil
}
