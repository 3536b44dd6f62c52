// Package fetcher wraps remote fetch functions so that concurrent callers of
// the same key share one in-flight call.
package fetcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Fetcher loads the remote value of key.
type Fetcher[K comparable, V any] func(ctx context.Context, key K) (V, error)

// PanicError is returned to every caller of a fetch that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("fetcher: panic: %v", e.Value) }

type Option func(*config)

type config struct {
	cancelOrphans bool
	maxInFlight   int64
}

// CancelOrphans cancels a shared fetch once its last caller detaches.
// By default an orphaned fetch runs to completion so its side effects land.
func CancelOrphans() Option { return func(c *config) { c.cancelOrphans = true } }

// MaxConcurrent bounds fetches running at once across all keys. n <= 0 means unbounded.
func MaxConcurrent(n int64) Option { return func(c *config) { c.maxInFlight = n } }

// Multicaster guarantees at most one fetch in flight per key. Callers that
// arrive while a fetch runs attach to it and receive its result.
type Multicaster[K comparable, V any] struct {
	fn            Fetcher[K, V]
	cancelOrphans bool
	sem           *semaphore.Weighted

	mu      sync.Mutex
	flights map[K]*flight[V]
}

type flight[V any] struct {
	done   chan struct{}
	val    V
	err    error
	refs   int
	cancel context.CancelFunc
}

func NewMulticaster[K comparable, V any](fn Fetcher[K, V], opts ...Option) *Multicaster[K, V] {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	m := &Multicaster[K, V]{
		fn:            fn,
		cancelOrphans: cfg.cancelOrphans,
		flights:       make(map[K]*flight[V]),
	}
	if cfg.maxInFlight > 0 {
		m.sem = semaphore.NewWeighted(cfg.maxInFlight)
	}
	return m
}

// Fetch returns the result of the flight for key, starting one when none is
// running. The flight does not inherit ctx cancellation: a caller whose ctx
// ends detaches and gets ctx.Err() while the flight continues for the others.
func (m *Multicaster[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	m.mu.Lock()
	f, ok := m.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight[V]{done: make(chan struct{}), cancel: cancel}
		m.flights[key] = f
		go m.run(fctx, key, f)
	}
	f.refs++
	m.mu.Unlock()

	select {
	case <-f.done:
		m.detach(key, f, false)
		return f.val, f.err
	case <-ctx.Done():
		m.detach(key, f, true)
		var zero V
		return zero, ctx.Err()
	}
}

// InFlight reports the number of keys with a running fetch.
func (m *Multicaster[K, V]) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flights)
}

func (m *Multicaster[K, V]) run(ctx context.Context, key K, f *flight[V]) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			f.val, f.err = zero, &PanicError{Value: r, Stack: debug.Stack()}
		}
		m.mu.Lock()
		if m.flights[key] == f {
			delete(m.flights, key)
		}
		m.mu.Unlock()
		f.cancel()
		close(f.done)
	}()

	if m.sem != nil {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			f.err = err
			return
		}
		defer m.sem.Release(1)
	}
	f.val, f.err = m.fn(ctx, key)
}

func (m *Multicaster[K, V]) detach(key K, f *flight[V], abandoned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.refs--
	if !abandoned || f.refs > 0 || !m.cancelOrphans {
		return
	}
	// Unpublish so the next caller starts a fresh flight instead of joining a cancelled one.
	if m.flights[key] == f {
		delete(m.flights, key)
	}
	f.cancel()
}

// Unkeyed adapts a key-less fetch function to unkeyed stores.
func Unkeyed[V any](fn func(ctx context.Context) (V, error)) Fetcher[struct{}, V] {
	return func(ctx context.Context, _ struct{}) (V, error) { return fn(ctx) }
}
