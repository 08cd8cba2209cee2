package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/okian/convtrack/internal/domain/model"
	"github.com/okian/convtrack/pkg/logger"
	"github.com/okian/convtrack/pkg/metrics"
)

const (
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	defaultBusyTimeout  = 5 * time.Second
	defaultMaxOpenConns = 4
)

const schema = `
CREATE TABLE IF NOT EXISTS batches(
  id          TEXT    PRIMARY KEY,
  received_at INTEGER NOT NULL,
  origin      TEXT    NOT NULL,
  sent_at     INTEGER NOT NULL,
  session_id  TEXT    NOT NULL,
  event_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events(
  id         INTEGER PRIMARY KEY,
  batch_id   TEXT    NOT NULL REFERENCES batches(id),
  name       TEXT    NOT NULL,
  ts         INTEGER NOT NULL,
  path       TEXT    NOT NULL,
  query_keys TEXT    NOT NULL CHECK (json_valid(query_keys)),
  locale     TEXT    NOT NULL,
  viewport   TEXT    NOT NULL,
  data_json  TEXT    NOT NULL CHECK (json_valid(data_json))
);
CREATE INDEX IF NOT EXISTS idx_events_name ON events(name);
CREATE INDEX IF NOT EXISTS idx_events_ts   ON events(ts);
`

// SQLiteStore is a Store backed by modernc.org/sqlite.
type SQLiteStore struct {
	db           *sql.DB
	busyTimeout  time.Duration
	maxOpenConns int
	closed       atomic.Bool
	logger       logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the event database at path.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		busyTimeout:  defaultBusyTimeout,
		maxOpenConns: defaultMaxOpenConns,
		logger:       logger.OrNop().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if path == "" {
		path = MemoryPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenStore, err)
	}
	if path == MemoryPath {
		s.maxOpenConns = 1
	}
	db.SetMaxOpenConns(s.maxOpenConns)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=" + strconv.FormatInt(s.busyTimeout.Milliseconds(), 10),
		"PRAGMA synchronous=NORMAL",
	}
	if path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrOpenStore, p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create tables: %v", ErrOpenStore, err)
	}
	s.db = db
	return s, nil
}

// SaveBatch implements Store.
func (s *SQLiteStore) SaveBatch(ctx context.Context, env model.Envelope) (n int, err error) { //nolint:gocritic // hugeParam: envelopes travel by value through the queue
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	if len(env.Batch.Events) == 0 {
		return 0, ErrEmptyBatch
	}

	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(float64(time.Since(start).Milliseconds()))
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO batches(id, received_at, origin, sent_at, session_id, event_count) VALUES(?,?,?,?,?,?)`,
		env.ID, env.ReceivedAt.UnixMilli(), env.Origin, env.Batch.SentAt, env.Batch.SessionID(), len(env.Batch.Events))
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		s.logger.Debug(ctx, "batch already stored", logger.String("batch_id", env.ID))
		err = tx.Commit()
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events(batch_id, name, ts, path, query_keys, locale, viewport, data_json) VALUES(?,?,?,?,json(?),?,?,json(?))`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range env.Batch.Events {
		e := &env.Batch.Events[i]
		keys, err := json.Marshal(nonNil(e.QueryKeys))
		if err != nil {
			return 0, fmt.Errorf("encode query keys: %w", err)
		}
		data, err := json.Marshal(e.Data)
		if err != nil {
			return 0, fmt.Errorf("encode event data: %w", err)
		}
		if e.Data == nil {
			data = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, env.ID, e.Name, e.Timestamp, e.Path, string(keys), e.Locale, string(e.Viewport), string(data)); err != nil {
			return 0, fmt.Errorf("insert event %q: %w", e.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	metrics.RecordEventsStored(len(env.Batch.Events))
	return len(env.Batch.Events), nil
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}

// CountByName implements Store.
func (s *SQLiteStore) CountByName(ctx context.Context) ([]model.NameCount, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, COUNT(*) FROM events GROUP BY name ORDER BY COUNT(*) DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("count by name: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.NameCount
	for rows.Next() {
		var nc model.NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
