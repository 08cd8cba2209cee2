// Package worker drains accepted batches from the collector queue into the
// event store.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/convtrack/internal/adapters/mq/queue"
	"github.com/okian/convtrack/pkg/logger"
	"github.com/okian/convtrack/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultSaveTimeout      = 10 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Envelope is what workers read off the queue.
type Envelope = queue.Item

// Saver persists one accepted batch.
type Saver interface {
	SaveBatch(ctx context.Context, env Envelope) (int, error)
}

// Queue defines how workers receive batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Envelope
}

// Worker processes batches until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the batch in hand is saved.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for one queue consumer.
type InMemoryWorker struct {
	queue       Queue
	saver       Saver
	name        string
	saveTimeout time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, saver Saver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		saver:       saver,
		name:        "worker",
		saveTimeout: defaultSaveTimeout,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.OrNop().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	batches := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case env, ok := <-batches:
			if !ok {
				return
			}
			if err := w.process(ctx, env); err != nil {
				w.logger.Error(ctx, "error storing batch", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process saves one envelope. The save gets its own deadline so a shutdown
// in progress does not abort a half-written transaction.
func (w *InMemoryWorker) process(ctx context.Context, env Envelope) error { //nolint:gocritic // hugeParam: envelopes travel by value through the queue
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.saveTimeout)
	defer cancel()

	n, err := w.saver.SaveBatch(saveCtx, env)
	if err != nil {
		metrics.RecordWorkerError()
		return fmt.Errorf("save batch %s: %w", env.ID, err)
	}
	w.logger.Debug(ctx, "batch stored",
		logger.String("batch_id", env.ID),
		logger.Int("events", n))
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a worker pool. A count below one uses a multiple of the CPU count.
func NewPool(workerCount int, q Queue, saver Saver, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.OrNop().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, saver, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue so workers drain what is buffered, then waits
// for them to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d: %w", i, shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
