// Package redis is a table.Table shared across processes: one redis hash per
// store id, one hash field per encoded key, each field a wire-framed row.
//
// Keys:
//
//	<ns>:store:<storeID>  - hash of rows
//	<ns>:stores           - set of store ids, used by DeleteAll
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flowstore/internal/wire"
	"github.com/unkn0wn-root/flowstore/table"
)

var ErrNilClient = errors.New("redis table: nil client")

const defaultNamespace = "flowstore"

// maxTxRetries bounds optimistic WATCH retries under contention.
const maxTxRetries = 8

type Table struct {
	rdb         goredis.UniversalClient
	ns          string
	closeClient bool
}

var _ table.Table = (*Table)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Namespace   string // key prefix; "" => "flowstore"
	CloseClient bool   // set true only if this table exclusively owns the client
}

func New(cfg Config) (*Table, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	return &Table{rdb: cfg.Client, ns: ns, closeClient: cfg.CloseClient}, nil
}

func (t *Table) storeKey(storeID string) string { return t.ns + ":store:" + storeID }
func (t *Table) indexKey() string               { return t.ns + ":stores" }

func (t *Table) Get(ctx context.Context, storeID, key string) (table.Row, bool, error) {
	b, err := t.rdb.HGet(ctx, t.storeKey(storeID), key).Bytes()
	if err == goredis.Nil {
		return table.Row{}, false, nil // miss
	}
	if err != nil {
		return table.Row{}, false, err // transport/server error
	}
	ts, payload, err := wire.DecodeRow(b)
	if err != nil {
		return table.Row{}, false, fmt.Errorf("%w: %s/%s", table.ErrCorruptRow, storeID, key)
	}
	return table.Row{Key: key, Value: payload, LastFetched: ts}, true, nil
}

func (t *Table) Put(ctx context.Context, storeID string, row table.Row) error {
	_, err := t.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, t.storeKey(storeID), row.Key, wire.EncodeRow(row.LastFetched, row.Value))
		p.SAdd(ctx, t.indexKey(), storeID)
		return nil
	})
	return err
}

func (t *Table) MarkStale(ctx context.Context, storeID, key string) error {
	hk := t.storeKey(storeID)
	return t.watch(ctx, func(tx *goredis.Tx) error {
		b, err := tx.HGet(ctx, hk, key).Bytes()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		stale, err := wire.WithLastFetched(b, table.StaleMillis)
		if err != nil {
			return nil // corrupt rows are left for readers to treat as misses
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSet(ctx, hk, key, stale)
			return nil
		})
		return err
	}, hk)
}

func (t *Table) MarkStoreStale(ctx context.Context, storeID string) error {
	hk := t.storeKey(storeID)
	return t.watch(ctx, func(tx *goredis.Tx) error {
		rows, err := tx.HGetAll(ctx, hk).Result()
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		updates := make([]any, 0, 2*len(rows))
		for field, raw := range rows {
			stale, err := wire.WithLastFetched([]byte(raw), table.StaleMillis)
			if err != nil {
				continue
			}
			updates = append(updates, field, stale)
		}
		if len(updates) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSet(ctx, hk, updates...)
			return nil
		})
		return err
	}, hk)
}

func (t *Table) DeleteAll(ctx context.Context) error {
	ids, err := t.rdb.SMembers(ctx, t.indexKey()).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, t.storeKey(id))
	}
	keys = append(keys, t.indexKey())
	return t.rdb.Del(ctx, keys...).Err()
}

// Close releases the underlying redis client only when this table owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (t *Table) Close(context.Context) error {
	if t.closeClient {
		if err := t.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (t *Table) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = t.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return err
}
