package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/okian/convtrack/pkg/logger"
)

// Badger is a persistent storage backed by BadgerDB.
type Badger struct {
	db *badger.DB
}

// BadgerOption configures OpenBadger.
type BadgerOption func(*badger.Options)

// WithInMemory keeps the database in memory. Used by tests.
func WithInMemory() BadgerOption {
	return func(o *badger.Options) {
		*o = o.WithInMemory(true).WithDir("").WithValueDir("")
	}
}

// WithSyncWrites toggles synchronous writes.
func WithSyncWrites(sync bool) BadgerOption {
	return func(o *badger.Options) { *o = o.WithSyncWrites(sync) }
}

// badgerLogger routes badger's internal logging to the named logger.
type badgerLogger struct{ log logger.Logger }

func (l badgerLogger) Errorf(f string, a ...any) {
	l.log.Error(context.Background(), strings.TrimSpace(fmt.Sprintf(f, a...)))
}

func (l badgerLogger) Warningf(f string, a ...any) {
	l.log.Warn(context.Background(), strings.TrimSpace(fmt.Sprintf(f, a...)))
}

func (l badgerLogger) Infof(f string, a ...any) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(f, a...)))
}

func (l badgerLogger) Debugf(f string, a ...any) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(f, a...)))
}

// OpenBadger opens (or creates) a database in dir.
func OpenBadger(dir string, opts ...BadgerOption) (*Badger, error) {
	o := badger.DefaultOptions(dir).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{log: logger.OrNop().Named("badger")})
	for _, opt := range opts {
		opt(&o)
	}
	if !o.InMemory {
		if dir == "" {
			return nil, fmt.Errorf("%w: badger directory is required", ErrStorageUnavailable)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", dir, err)
		}
	}
	db, err := badger.Open(o)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(key string) (string, bool, error) {
	var out string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			out = string(v)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return out, true, nil
}

func (b *Badger) Set(key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (b *Badger) Remove(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Count returns the number of keys with the given prefix.
func (b *Badger) Count(prefix string) (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}
