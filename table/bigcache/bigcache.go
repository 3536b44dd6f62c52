// Package bigcache is a process-local table.Table on allegro/bigcache: rows
// live off the Go heap and disappear with the process. Useful when a
// persisted-cache topology is wanted without a disk.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/flowstore/internal/util"
	"github.com/unkn0wn-root/flowstore/internal/wire"
	"github.com/unkn0wn-root/flowstore/table"
)

const rowPrefix = "row"

type Table struct {
	c *bc.BigCache

	// mu makes read-modify-write stale marks atomic with respect to Put.
	mu sync.Mutex
}

var _ table.Table = (*Table)(nil)

type Config struct {
	// LifeWindow bounds row lifetime; 0 => effectively unbounded (10 years).
	LifeWindow         time.Duration
	Shards             int
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(ctx context.Context, cfg Config) (*Table, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 10 * 365 * 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = 0 // rows only leave on DeleteAll or LifeWindow
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Table{c: c}, nil
}

func (t *Table) Get(_ context.Context, storeID, key string) (table.Row, bool, error) {
	b, err := t.c.Get(util.RowKey(rowPrefix, storeID, key))
	if errors.Is(err, bc.ErrEntryNotFound) {
		return table.Row{}, false, nil
	}
	if err != nil {
		return table.Row{}, false, err
	}
	ts, payload, err := wire.DecodeRow(b)
	if err != nil {
		return table.Row{}, false, fmt.Errorf("%w: %s/%s", table.ErrCorruptRow, storeID, key)
	}
	return table.Row{Key: key, Value: payload, LastFetched: ts}, true, nil
}

func (t *Table) Put(_ context.Context, storeID string, row table.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c.Set(util.RowKey(rowPrefix, storeID, row.Key), wire.EncodeRow(row.LastFetched, row.Value))
}

func (t *Table) MarkStale(_ context.Context, storeID, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rk := util.RowKey(rowPrefix, storeID, key)
	b, err := t.c.Get(rk)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	stale, err := wire.WithLastFetched(b, table.StaleMillis)
	if err != nil {
		return nil
	}
	return t.c.Set(rk, stale)
}

// MarkStoreStale walks every shard; cost is linear in the table size.
func (t *Table) MarkStoreStale(_ context.Context, storeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	type update struct {
		key string
		val []byte
	}
	var updates []update
	it := t.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			continue // entry evicted mid-iteration
		}
		if id, _, err := util.SplitRowKey(rowPrefix, e.Key()); err != nil || id != storeID {
			continue
		}
		stale, err := wire.WithLastFetched(e.Value(), table.StaleMillis)
		if err != nil {
			continue
		}
		updates = append(updates, update{key: e.Key(), val: stale})
	}
	for _, u := range updates {
		if err := t.c.Set(u.key, u.val); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) DeleteAll(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c.Reset()
}

func (t *Table) Close(context.Context) error {
	return t.c.Close()
}
