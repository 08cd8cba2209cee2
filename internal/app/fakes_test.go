package service_test

import (
	"context"
	"sync"

	"github.com/okian/convtrack/internal/domain/model"
)

// blockingStore holds every save until release is closed.
type blockingStore struct {
	release chan struct{}

	mu      sync.Mutex
	ids     []string
	waiting bool
	closed  bool
}

func (b *blockingStore) SaveBatch(_ context.Context, env model.Envelope) (int, error) { //nolint:gocritic // matches repository.Store
	b.mu.Lock()
	b.waiting = true
	b.mu.Unlock()
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, env.ID)
	return len(env.Batch.Events), nil
}

func (b *blockingStore) busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting
}

func (b *blockingStore) saved() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ids...)
}

func (b *blockingStore) CountByName(context.Context) ([]model.NameCount, error) { return nil, nil }
func (b *blockingStore) Count(context.Context) (int64, error)                   { return 0, nil }

func (b *blockingStore) Close() error {
	b.closed = true
	return nil
}
