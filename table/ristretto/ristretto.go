// Package ristretto decorates a table.Table with a bounded read-through row
// memo on dgraph-io/ristretto. Writes go to the inner table first and then
// refresh or drop the memo entry; store-wide operations clear the memo.
package ristretto

import (
	"context"
	"errors"
	"sync"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/flowstore/internal/util"
	"github.com/unkn0wn-root/flowstore/table"
)

const memoPrefix = "memo"

type Table struct {
	inner table.Table
	c     *rc.Cache

	// Readers fill the memo under RLock; writers hold Lock across the inner
	// write and the memo update so a slow reader cannot re-insert an old row.
	mu sync.RWMutex
}

var _ table.Table = (*Table)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // sum of len(key)+len(value) of memoized rows
	BufferItems int64
	Metrics     bool
}

func New(inner table.Table, cfg Config) (*Table, error) {
	if inner == nil {
		return nil, errors.New("ristretto: nil inner table")
	}
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Table{inner: inner, c: c}, nil
}

func (t *Table) Get(ctx context.Context, storeID, key string) (table.Row, bool, error) {
	mk := util.RowKey(memoPrefix, storeID, key)

	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.c.Get(mk); ok {
		if r, ok := v.(table.Row); ok {
			return cloneRow(r), true, nil
		}
		t.c.Del(mk)
	}
	r, ok, err := t.inner.Get(ctx, storeID, key)
	if err != nil || !ok {
		return r, ok, err
	}
	t.remember(mk, r)
	return r, true, nil
}

func (t *Table) Put(ctx context.Context, storeID string, row table.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	mk := util.RowKey(memoPrefix, storeID, row.Key)
	t.c.Del(mk)
	if err := t.inner.Put(ctx, storeID, row); err != nil {
		return err
	}
	t.remember(mk, row)
	return nil
}

func (t *Table) MarkStale(ctx context.Context, storeID, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.inner.MarkStale(ctx, storeID, key)
	t.c.Del(util.RowKey(memoPrefix, storeID, key))
	return err
}

// MarkStoreStale clears the whole memo; ristretto has no prefix scan.
func (t *Table) MarkStoreStale(ctx context.Context, storeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.inner.MarkStoreStale(ctx, storeID)
	t.c.Clear()
	return err
}

func (t *Table) DeleteAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.inner.DeleteAll(ctx)
	t.c.Clear()
	return err
}

func (t *Table) Close(ctx context.Context) error {
	t.c.Wait()
	t.c.Close()
	return t.inner.Close(ctx)
}

// Metrics exposes ristretto counters when Config.Metrics is set.
func (t *Table) Metrics() *rc.Metrics { return t.c.Metrics }

func (t *Table) remember(mk string, r table.Row) {
	cost := int64(len(mk) + len(r.Value))
	if t.c.Set(mk, cloneRow(r), cost) {
		t.c.Wait()
	}
}

func cloneRow(r table.Row) table.Row {
	r.Value = append([]byte(nil), r.Value...)
	return r
}
