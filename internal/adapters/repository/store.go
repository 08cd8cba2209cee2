// Package repository persists the analytics batches accepted by the collector.
package repository

import (
	"context"

	"github.com/okian/convtrack/internal/domain/model"
)

// Store provides write access to accepted batches and the aggregate reads
// served by the stats endpoint.
type Store interface {
	// SaveBatch stores every event of env in one transaction and returns how
	// many events were written. Saving the same envelope ID twice writes
	// nothing the second time.
	SaveBatch(ctx context.Context, env model.Envelope) (int, error)

	// CountByName returns stored event counts per event name, most frequent first.
	CountByName(ctx context.Context) ([]model.NameCount, error)

	// Count returns the number of stored events.
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying database.
	Close() error
}
