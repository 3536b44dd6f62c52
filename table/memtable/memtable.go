// Package memtable is a map-backed table.Table. It lives for the process
// lifetime and is mostly useful in tests and for ephemeral deployments.
package memtable

import (
	"context"
	"sort"
	"sync"

	"github.com/unkn0wn-root/flowstore/table"
)

type Table struct {
	mu     sync.RWMutex
	stores map[string]map[string]table.Row
	closed bool
}

var _ table.Table = (*Table)(nil)

func New() *Table {
	return &Table{stores: make(map[string]map[string]table.Row)}
}

func (t *Table) Get(_ context.Context, storeID, key string) (table.Row, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return table.Row{}, false, table.ErrClosed
	}
	r, ok := t.stores[storeID][key]
	if !ok {
		return table.Row{}, false, nil
	}
	r.Value = append([]byte(nil), r.Value...)
	return r, true, nil
}

func (t *Table) Put(_ context.Context, storeID string, row table.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return table.ErrClosed
	}
	rows, ok := t.stores[storeID]
	if !ok {
		rows = make(map[string]table.Row)
		t.stores[storeID] = rows
	}
	row.Value = append([]byte(nil), row.Value...)
	rows[row.Key] = row
	return nil
}

func (t *Table) MarkStale(_ context.Context, storeID, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return table.ErrClosed
	}
	if r, ok := t.stores[storeID][key]; ok {
		r.LastFetched = table.StaleMillis
		t.stores[storeID][key] = r
	}
	return nil
}

func (t *Table) MarkStoreStale(_ context.Context, storeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return table.ErrClosed
	}
	for k, r := range t.stores[storeID] {
		r.LastFetched = table.StaleMillis
		t.stores[storeID][k] = r
	}
	return nil
}

func (t *Table) DeleteAll(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return table.ErrClosed
	}
	t.stores = make(map[string]map[string]table.Row)
	return nil
}

func (t *Table) Close(_ context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Keys lists the encoded keys of storeID in ascending order.
func (t *Table) Keys(storeID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.stores[storeID]))
	for k := range t.stores[storeID] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
