package flowstore

import (
	"context"
	"time"

	"github.com/unkn0wn-root/flowstore/cache"
	"github.com/unkn0wn-root/flowstore/fetcher"
	"github.com/unkn0wn-root/flowstore/hooks"
	"github.com/unkn0wn-root/flowstore/mediator"
	"github.com/unkn0wn-root/flowstore/table"
)

// KeyedStore is the engine for one store id: a cache, a fetcher and a
// mediator behind Stream.
type KeyedStore[K comparable, V any] interface {
	StoreID() string

	// Stream emits the state of key until ctx is done, then closes.
	Stream(ctx context.Context, key K, req Request) <-chan Response[V]

	MarkAsStale(ctx context.Context, key K) error
	MarkStoreAsStale(ctx context.Context) error

	// Warm fetches every key the mediator considers due, sharing flights with
	// concurrent streams. It returns the first fetch error.
	Warm(ctx context.Context, keys ...K) error
}

// Store is a KeyedStore with a single implicit key.
type Store[V any] interface {
	StoreID() string
	Stream(ctx context.Context, req Request) <-chan Response[V]
	MarkAsStale(ctx context.Context) error
	Warm(ctx context.Context) error
}

// Epochs guards fetch results against concurrent wipes. *cache.Registry implements it.
type Epochs interface {
	Epoch(ctx context.Context) (uint64, error)
	WriteIfEpoch(ctx context.Context, epoch uint64, write func() error) (bool, error)
}

var _ Epochs = (*cache.Registry)(nil)

// Options tune a store. Only Fetcher is required.
type Options[K comparable, V any] struct {
	// Required
	Fetcher fetcher.Fetcher[K, V]

	StoreID               string                  // must match the cache's id when set; builders require it
	Mediator              mediator.Mediator[K, V] // nil => Freshness(1h)
	Logger                Logger                  // if nil, NopLogger is used
	Hooks                 hooks.Hooks             // nil => NopHooks
	Now                   func() time.Time        // nil => time.Now
	Epochs                Epochs                  // nil => results are written even across wipes
	CancelOrphanedFetches bool                    // default false => orphaned fetches complete
	MaxConcurrentFetches  int64                   // 0 => unbounded
	WarmConcurrency       int                     // 0 => 4
}

// NewKeyed builds a store over c.
func NewKeyed[K comparable, V any](c cache.Cache[K, V], opts Options[K, V]) (KeyedStore[K, V], error) {
	return newKeyed(c, opts)
}

// New builds an unkeyed store over c. Use fetcher.Unkeyed to adapt a key-less fetch function.
func New[V any](c cache.Cache[struct{}, V], opts Options[struct{}, V]) (Store[V], error) {
	s, err := newKeyed(c, opts)
	if err != nil {
		return nil, err
	}
	return &unkeyed[V]{s: s}, nil
}

// NewInMemory builds a store over the registry's volatile cache for opts.StoreID.
func NewInMemory[K comparable, V any](reg *cache.Registry, opts Options[K, V]) (KeyedStore[K, V], error) {
	c, err := cache.Volatile[K, V](reg, opts.StoreID, cache.VolatileOptions[K]{})
	if err != nil {
		return nil, err
	}
	if opts.Epochs == nil {
		opts.Epochs = reg
	}
	return newKeyed(c, opts)
}

// NewPersisted builds a store over the registry's persisted cache for opts.StoreID on tbl.
func NewPersisted[K comparable, V any](reg *cache.Registry, tbl table.Table, copts cache.PersistedOptions[K, V], opts Options[K, V]) (KeyedStore[K, V], error) {
	c, err := cache.Persisted[K, V](reg, opts.StoreID, tbl, copts)
	if err != nil {
		return nil, err
	}
	if opts.Epochs == nil {
		opts.Epochs = reg
	}
	return newKeyed(c, opts)
}
