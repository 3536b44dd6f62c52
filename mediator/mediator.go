// Package mediator decides, from the latest cache snapshot, whether a store
// must fetch. A mediator is consulted once when a stream subscribes; it never
// schedules refreshes on its own.
package mediator

import (
	"time"

	"github.com/unkn0wn-root/flowstore/cache"
)

type Mediator[K comparable, V any] interface {
	// ShouldFetch receives nil when the key has no entry.
	ShouldFetch(d *cache.CachedData[K, V]) bool
}

// Func adapts a plain function to Mediator.
type Func[K comparable, V any] func(d *cache.CachedData[K, V]) bool

func (f Func[K, V]) ShouldFetch(d *cache.CachedData[K, V]) bool { return f(d) }

// IsCached fetches only when no usable entry exists: the key is absent or was
// explicitly marked stale. Age is ignored.
func IsCached[K comparable, V any]() Mediator[K, V] {
	return Func[K, V](func(d *cache.CachedData[K, V]) bool {
		return d == nil || d.IsStale()
	})
}

// Freshness fetches when the key is absent, stale, or older than window.
// now defaults to time.Now.
func Freshness[K comparable, V any](window time.Duration, now func() time.Time) Mediator[K, V] {
	if now == nil {
		now = time.Now
	}
	return &freshness[K, V]{window: window, now: now}
}

type freshness[K comparable, V any] struct {
	window time.Duration
	now    func() time.Time
}

func (m *freshness[K, V]) ShouldFetch(d *cache.CachedData[K, V]) bool {
	if d == nil || d.IsStale() {
		return true
	}
	return m.now().Sub(d.LastFetched) > m.window
}
