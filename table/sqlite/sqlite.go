// Package sqlite is the on-disk table.Table, backed by modernc.org/sqlite
// (pure Go, no cgo).
//
// Layout (shared with other readers of a deployed database):
//
//	CREATE TABLE store_cache (
//	    store_id     TEXT    NOT NULL,
//	    key          TEXT    NOT NULL,
//	    data         TEXT    NOT NULL,
//	    last_fetched INTEGER NOT NULL, -- unix millis, 0 = stale
//	    PRIMARY KEY (store_id, key)
//	)
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/flowstore/table"
)

const schema = `CREATE TABLE IF NOT EXISTS store_cache (
	store_id     TEXT    NOT NULL,
	key          TEXT    NOT NULL,
	data         TEXT    NOT NULL,
	last_fetched INTEGER NOT NULL,
	PRIMARY KEY (store_id, key)
)`

const (
	qGet            = `SELECT data, last_fetched FROM store_cache WHERE store_id = ? AND key = ?`
	qPut            = `INSERT INTO store_cache (store_id, key, data, last_fetched) VALUES (?, ?, ?, ?) ON CONFLICT(store_id, key) DO UPDATE SET data = excluded.data, last_fetched = excluded.last_fetched`
	qMarkStale      = `UPDATE store_cache SET last_fetched = ? WHERE store_id = ? AND key = ?`
	qMarkStoreStale = `UPDATE store_cache SET last_fetched = ? WHERE store_id = ?`
	qDeleteAll      = `DELETE FROM store_cache`
)

type Config struct {
	// Path of the database file. ":memory:" gives a private in-memory database.
	Path string
	// BusyTimeout makes writers wait for locks instead of failing; 0 => 5s.
	BusyTimeout time.Duration
	// MaxOpenConns bounds the pool; 0 => 1 (single writer, which SQLite prefers).
	MaxOpenConns int
}

type Table struct {
	db     *sql.DB
	closed atomic.Bool
}

var _ table.Table = (*Table)(nil)

// Open opens (and creates when needed) the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Table, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite table: path is required")
	}
	busy := cfg.BusyTimeout
	if busy == 0 {
		busy = 5 * time.Second
	}
	conns := cfg.MaxOpenConns
	if conns <= 0 {
		conns = 1
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", cfg.Path, busy.Milliseconds())
	if cfg.Path == ":memory:" {
		dsn = fmt.Sprintf("file::memory:?_pragma=busy_timeout(%d)", busy.Milliseconds())
		conns = 1 // every connection would otherwise see its own database
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite table: open: %w", err)
	}
	db.SetMaxOpenConns(conns)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite table: schema: %w", err)
	}
	return &Table{db: db}, nil
}

// New wraps an existing handle. The schema is created when missing.
func New(ctx context.Context, db *sql.DB) (*Table, error) {
	if db == nil {
		return nil, errors.New("sqlite table: nil db")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlite table: schema: %w", err)
	}
	return &Table{db: db}, nil
}

func (t *Table) Get(ctx context.Context, storeID, key string) (table.Row, bool, error) {
	if t.closed.Load() {
		return table.Row{}, false, table.ErrClosed
	}
	var (
		data string
		ts   int64
	)
	err := t.db.QueryRowContext(ctx, qGet, storeID, key).Scan(&data, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return table.Row{}, false, nil
	}
	if err != nil {
		return table.Row{}, false, fmt.Errorf("sqlite table: get %s/%s: %w", storeID, key, err)
	}
	return table.Row{Key: key, Value: []byte(data), LastFetched: ts}, true, nil
}

func (t *Table) Put(ctx context.Context, storeID string, row table.Row) error {
	if t.closed.Load() {
		return table.ErrClosed
	}
	if _, err := t.db.ExecContext(ctx, qPut, storeID, row.Key, string(row.Value), row.LastFetched); err != nil {
		return fmt.Errorf("sqlite table: put %s/%s: %w", storeID, row.Key, err)
	}
	return nil
}

func (t *Table) MarkStale(ctx context.Context, storeID, key string) error {
	if t.closed.Load() {
		return table.ErrClosed
	}
	if _, err := t.db.ExecContext(ctx, qMarkStale, table.StaleMillis, storeID, key); err != nil {
		return fmt.Errorf("sqlite table: mark stale %s/%s: %w", storeID, key, err)
	}
	return nil
}

func (t *Table) MarkStoreStale(ctx context.Context, storeID string) error {
	if t.closed.Load() {
		return table.ErrClosed
	}
	if _, err := t.db.ExecContext(ctx, qMarkStoreStale, table.StaleMillis, storeID); err != nil {
		return fmt.Errorf("sqlite table: mark store stale %s: %w", storeID, err)
	}
	return nil
}

func (t *Table) DeleteAll(ctx context.Context) error {
	if t.closed.Load() {
		return table.ErrClosed
	}
	if _, err := t.db.ExecContext(ctx, qDeleteAll); err != nil {
		return fmt.Errorf("sqlite table: delete all: %w", err)
	}
	return nil
}

// Close closes the database handle. Safe to call multiple times.
func (t *Table) Close(context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.db.Close()
}
