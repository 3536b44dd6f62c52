// Package cache holds the observable key/value caches behind a store.
//
// A Cache exposes every key as a last-value stream: Read emits the current
// snapshot (nil when absent) immediately, then every later write or staleness
// change of that key in write order. Snapshots are immutable; a write or
// stale mark publishes a new one.
//
// Caches are created through a Registry, which keeps one instance per store
// id so independent stores over the same id observe each other's writes.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/flowstore/internal/broadcast"
)

var (
	// ErrIncompatible reports a store id already registered with other key/value types or backing.
	ErrIncompatible = errors.New("flowstore: store id registered with incompatible cache")
	ErrClosed       = errors.New("flowstore: registry closed")
)

// CachedData is one immutable snapshot of a key.
type CachedData[K comparable, V any] struct {
	Key         K
	Data        V
	LastFetched time.Time // zero when marked stale

	// Version identifies the write that produced the snapshot. Stale marks
	// keep it, so consumers can tell a new value from a new freshness state.
	Version uint64
}

// IsStale reports whether the entry was explicitly invalidated.
func (d *CachedData[K, V]) IsStale() bool { return d.LastFetched.IsZero() }

func (d *CachedData[K, V]) stale() *CachedData[K, V] {
	cp := *d
	cp.LastFetched = time.Time{}
	return &cp
}

type Cache[K comparable, V any] interface {
	StoreID() string

	// Read subscribes to key. The subscription ends on Close or when ctx is done.
	Read(ctx context.Context, key K) (*Subscription[K, V], error)

	// Write upserts d.Key. d.Version is ignored and assigned by the cache.
	Write(ctx context.Context, d CachedData[K, V]) error

	// MarkAsStale resets the freshness of key, keeping its data. Absent keys stay absent.
	MarkAsStale(ctx context.Context, key K) error

	// MarkStoreAsStale stale-marks every key of this store id.
	MarkStoreAsStale(ctx context.Context) error
}

type Subscription[K comparable, V any] struct {
	sub  *broadcast.Sub[*CachedData[K, V]]
	stop func() bool
}

func newSubscription[K comparable, V any](ctx context.Context, sub *broadcast.Sub[*CachedData[K, V]]) *Subscription[K, V] {
	return &Subscription[K, V]{sub: sub, stop: context.AfterFunc(ctx, sub.Close)}
}

// C delivers snapshots; nil means absent. Closed after Close.
func (s *Subscription[K, V]) C() <-chan *CachedData[K, V] { return s.sub.C() }

func (s *Subscription[K, V]) Close() {
	s.stop()
	s.sub.Close()
}

// markStale is the Update step shared by both caches.
func markStale[K comparable, V any](cur *CachedData[K, V], has bool) (*CachedData[K, V], bool) {
	if !has || cur == nil || cur.IsStale() {
		return cur, false
	}
	return cur.stale(), true
}

// wiped is the Update step of a wipe. Topics still loading are left to their loader.
func wiped[K comparable, V any](cur *CachedData[K, V], has bool) (*CachedData[K, V], bool) {
	return nil, has && cur != nil
}
