// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    DecodeFailedEvery:    10, // sample logs: ~every 10th decode failure
//	    ErrorSuppressedEvery: 1,  // log every suppressed error
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := flowstore.NewInMemory[string, Price](reg, flowstore.Options[string, Price]{
//	    StoreID: "prices",
//	    Fetcher: fetchPrice,
//	    Hooks:   hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/flowstore/hooks"
)

type Hooks struct {
	inner hooks.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ hooks.Hooks = (*Hooks)(nil)

func New(inner hooks.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: hooks.OrNop(inner), q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers.
// Events reported after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) FetchFailed(id string, err error) { h.try(func() { h.inner.FetchFailed(id, err) }) }
func (h *Hooks) FetchDiscarded(id string)         { h.try(func() { h.inner.FetchDiscarded(id) }) }
func (h *Hooks) WriteFailed(id string, err error) { h.try(func() { h.inner.WriteFailed(id, err) }) }
func (h *Hooks) StoreMarkedStale(id string)       { h.try(func() { h.inner.StoreMarkedStale(id) }) }
func (h *Hooks) Wiped()                           { h.try(func() { h.inner.Wiped() }) }
func (h *Hooks) ErrorSuppressed(id string, err error) {
	h.try(func() { h.inner.ErrorSuppressed(id, err) })
}
func (h *Hooks) DecodeFailed(id, reason string) {
	h.try(func() { h.inner.DecodeFailed(id, reason) })
}
