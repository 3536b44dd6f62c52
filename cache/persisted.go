package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/flowstore/codec"
	"github.com/unkn0wn-root/flowstore/hooks"
	"github.com/unkn0wn-root/flowstore/internal/broadcast"
	"github.com/unkn0wn-root/flowstore/logging"
	"github.com/unkn0wn-root/flowstore/notify"
	"github.com/unkn0wn-root/flowstore/table"
)

const defaultOpTimeout = 5 * time.Second

type PersistedOptions[K comparable, V any] struct {
	// Required
	KeyCodec codec.Codec[K] // must be deterministic

	ValueCodec codec.Codec[V] // nil => codec.JSON[V]
	Logger     logging.Logger // nil => registry logger
	Hooks      hooks.Hooks    // nil => registry hooks
	OpTimeout  time.Duration  // per table call; 0 => 5s
}

// PersistedCache is backed by a table.Table row per key. Rows that cannot be
// decoded read as absent.
//
// A key's row is read from the table on its first Read and then served from
// memory. Writes made to a shared table by another registry are not observed
// for keys already loaded; stale marks and wipes reach them through the
// registry's notify.Bus.
type PersistedCache[K comparable, V any] struct {
	reg        *Registry
	storeID    string
	tbl        table.Table
	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]
	log        logging.Logger
	hooks      hooks.Hooks
	opTimeout  time.Duration

	// writeMu funnels every table mutation and first load of this store id.
	writeMu sync.Mutex

	mu     sync.Mutex
	topics map[string]*broadcast.Topic[*CachedData[K, V]] // by encoded key
}

var _ Cache[string, int] = (*PersistedCache[string, int])(nil)

// Persisted returns the registry's persisted cache for storeID over tbl,
// creating it on first use. A store id is bound to one table.
func Persisted[K comparable, V any](reg *Registry, storeID string, tbl table.Table, opts PersistedOptions[K, V]) (*PersistedCache[K, V], error) {
	if tbl == nil {
		return nil, fmt.Errorf("flowstore: table is required")
	}
	if opts.KeyCodec == nil {
		return nil, fmt.Errorf("flowstore: key codec is required")
	}
	p, err := register(reg, storeID, func() (*PersistedCache[K, V], error) {
		var vc codec.Codec[V] = codec.JSON[V]{}
		if opts.ValueCodec != nil {
			vc = opts.ValueCodec
		}
		reg.addTable(tbl)
		return &PersistedCache[K, V]{
			reg:        reg,
			storeID:    storeID,
			tbl:        tbl,
			keyCodec:   opts.KeyCodec,
			valueCodec: vc,
			log:        coalesce[logging.Logger](opts.Logger, reg.log),
			hooks:      coalesce[hooks.Hooks](opts.Hooks, reg.hooks),
			opTimeout:  coalesce(opts.OpTimeout, defaultOpTimeout),
			topics:     make(map[string]*broadcast.Topic[*CachedData[K, V]]),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if p.tbl != tbl {
		return nil, fmt.Errorf("%w: store %q is bound to another table", ErrIncompatible, storeID)
	}
	return p, nil
}

func (p *PersistedCache[K, V]) StoreID() string { return p.storeID }

func (p *PersistedCache[K, V]) Read(ctx context.Context, key K) (*Subscription[K, V], error) {
	ek, err := p.encodeKey(key)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	t, ok := p.topics[ek]
	if !ok {
		t = broadcast.Empty[*CachedData[K, V]]()
		p.topics[ek] = t
	}
	sub := t.Subscribe()
	p.mu.Unlock()

	if _, has := t.Latest(); !has {
		p.fill(ctx, ek, t)
	}
	return newSubscription(ctx, sub), nil
}

// fill loads the row behind an empty topic. A failed table read is sent to
// the waiting subscribers as absent but not retained, so the next Read
// retries the table.
func (p *PersistedCache[K, V]) fill(ctx context.Context, ek string, t *broadcast.Topic[*CachedData[K, V]]) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, has := t.Latest(); has {
		return
	}

	loaded, err := p.load(context.WithoutCancel(ctx), ek)
	if err != nil {
		p.log.Error("persisted read failed; serving absent until the next read", logging.Fields{"store": p.storeID, "key": ek, "err": err})
		t.Send(nil)
		return
	}
	t.Update(func(cur *CachedData[K, V], has bool) (*CachedData[K, V], bool) {
		if has {
			return cur, false
		}
		return loaded, true
	})
}

func (p *PersistedCache[K, V]) Write(ctx context.Context, d CachedData[K, V]) error {
	ek, err := p.encodeKey(d.Key)
	if err != nil {
		return err
	}
	ev, err := p.valueCodec.Encode(d.Data)
	if err != nil {
		return fmt.Errorf("flowstore: encode value of %s/%s: %w", p.storeID, ek, err)
	}
	ms := toMillis(d.LastFetched)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	octx, cancel := p.opContext(ctx)
	defer cancel()
	if err := p.tbl.Put(octx, p.storeID, table.Row{Key: ek, Value: ev, LastFetched: ms}); err != nil {
		p.hooks.WriteFailed(p.storeID, err)
		p.log.Error("persisted write failed", logging.Fields{"store": p.storeID, "key": ek, "err": err})
		return fmt.Errorf("flowstore: persist %s/%s: %w", p.storeID, ek, err)
	}

	snap := &CachedData[K, V]{Key: d.Key, Data: d.Data, LastFetched: fromMillis(ms), Version: p.reg.nextVersion()}
	p.mu.Lock()
	if t, ok := p.topics[ek]; ok {
		t.Publish(snap)
	} else {
		p.topics[ek] = broadcast.New(snap)
	}
	p.mu.Unlock()
	return nil
}

func (p *PersistedCache[K, V]) MarkAsStale(ctx context.Context, key K) error {
	ek, err := p.encodeKey(key)
	if err != nil {
		return err
	}
	if err := p.applyStale(ctx, ek); err != nil {
		return err
	}
	p.reg.publish(ctx, notify.Event{Kind: notify.Stale, StoreID: p.storeID, Key: ek})
	return nil
}

func (p *PersistedCache[K, V]) MarkStoreAsStale(ctx context.Context) error {
	if err := p.applyStoreStale(ctx); err != nil {
		return err
	}
	p.reg.publish(ctx, notify.Event{Kind: notify.StoreStale, StoreID: p.storeID})
	return nil
}

func (p *PersistedCache[K, V]) applyStale(ctx context.Context, ek string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	octx, cancel := p.opContext(ctx)
	defer cancel()
	if err := p.tbl.MarkStale(octx, p.storeID, ek); err != nil {
		return fmt.Errorf("flowstore: mark stale %s/%s: %w", p.storeID, ek, err)
	}
	p.mu.Lock()
	if t, ok := p.topics[ek]; ok {
		t.Update(markStale[K, V])
	}
	p.mu.Unlock()
	return nil
}

func (p *PersistedCache[K, V]) applyStoreStale(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	octx, cancel := p.opContext(ctx)
	defer cancel()
	if err := p.tbl.MarkStoreStale(octx, p.storeID); err != nil {
		return fmt.Errorf("flowstore: mark store stale %s: %w", p.storeID, err)
	}
	p.mu.Lock()
	for _, t := range p.topics {
		t.Update(markStale[K, V])
	}
	p.mu.Unlock()
	p.hooks.StoreMarkedStale(p.storeID)
	return nil
}

// reset drops every in-memory snapshot after the table was wiped.
func (p *PersistedCache[K, V]) reset() {
	p.writeMu.Lock()
	p.mu.Lock()
	for _, t := range p.topics {
		t.Update(wiped[K, V])
	}
	p.mu.Unlock()
	p.writeMu.Unlock()
}

// load reads one row. Missing and undecodable rows read as absent; a table
// error is returned.
func (p *PersistedCache[K, V]) load(ctx context.Context, ek string) (*CachedData[K, V], error) {
	octx, cancel := p.opContext(ctx)
	defer cancel()

	row, ok, err := p.tbl.Get(octx, p.storeID, ek)
	switch {
	case errors.Is(err, table.ErrCorruptRow):
		p.decodeFailed(ek, "corrupt_row", err)
		return nil, nil
	case err != nil:
		return nil, err
	case !ok:
		return nil, nil
	}

	key, err := p.keyCodec.Decode([]byte(row.Key))
	if err != nil {
		p.decodeFailed(ek, "key_decode", err)
		return nil, nil
	}
	v, err := p.valueCodec.Decode(row.Value)
	if err != nil {
		p.decodeFailed(ek, "value_decode", err)
		return nil, nil
	}
	return &CachedData[K, V]{Key: key, Data: v, LastFetched: fromMillis(row.LastFetched), Version: p.reg.nextVersion()}, nil
}

func (p *PersistedCache[K, V]) decodeFailed(ek, reason string, err error) {
	p.hooks.DecodeFailed(p.storeID, reason)
	p.log.Warn("persisted row undecodable; treating as absent", logging.Fields{"store": p.storeID, "key": ek, "reason": reason, "err": err})
}

func (p *PersistedCache[K, V]) encodeKey(key K) (string, error) {
	b, err := p.keyCodec.Encode(key)
	if err != nil {
		return "", fmt.Errorf("flowstore: encode key of %s: %w", p.storeID, err)
	}
	return string(b), nil
}

func (p *PersistedCache[K, V]) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.opTimeout)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return table.StaleMillis
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == table.StaleMillis {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
