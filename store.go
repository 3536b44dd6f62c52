package flowstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/flowstore/cache"
	"github.com/unkn0wn-root/flowstore/fetcher"
	"github.com/unkn0wn-root/flowstore/hooks"
	"github.com/unkn0wn-root/flowstore/mediator"
)

const (
	defaultFreshness       = time.Hour
	defaultWarmConcurrency = 4
)

type keyedStore[K comparable, V any] struct {
	storeID  string
	cache    cache.Cache[K, V]
	fetch    fetcher.Fetcher[K, V]
	flights  *fetcher.Multicaster[K, V]
	mediator mediator.Mediator[K, V]
	log      Logger
	hooks    hooks.Hooks
	now      func() time.Time
	epochs   Epochs
	warmN    int
}

func newKeyed[K comparable, V any](c cache.Cache[K, V], opts Options[K, V]) (*keyedStore[K, V], error) {
	if c == nil {
		return nil, fmt.Errorf("flowstore: cache is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("flowstore: fetcher is required")
	}
	if opts.StoreID != "" && opts.StoreID != c.StoreID() {
		return nil, fmt.Errorf("flowstore: store id %q does not match cache %q", opts.StoreID, c.StoreID())
	}

	s := &keyedStore[K, V]{
		storeID: c.StoreID(),
		cache:   c,
		fetch:   opts.Fetcher,
		epochs:  opts.Epochs,
	}

	// defaults
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = hooks.OrNop(opts.Hooks)
	s.warmN = coalesce(opts.WarmConcurrency, defaultWarmConcurrency)
	if opts.Now != nil {
		s.now = opts.Now
	} else {
		s.now = time.Now
	}
	if opts.Mediator != nil {
		s.mediator = opts.Mediator
	} else {
		s.mediator = mediator.Freshness[K, V](defaultFreshness, s.now)
	}

	var mopts []fetcher.Option
	if opts.CancelOrphanedFetches {
		mopts = append(mopts, fetcher.CancelOrphans())
	}
	if opts.MaxConcurrentFetches > 0 {
		mopts = append(mopts, fetcher.MaxConcurrent(opts.MaxConcurrentFetches))
	}
	s.flights = fetcher.NewMulticaster(s.fetchAndWrite, mopts...)
	return s, nil
}

func (s *keyedStore[K, V]) StoreID() string { return s.storeID }

func (s *keyedStore[K, V]) MarkAsStale(ctx context.Context, key K) error {
	return s.cache.MarkAsStale(ctx, key)
}

func (s *keyedStore[K, V]) MarkStoreAsStale(ctx context.Context) error {
	return s.cache.MarkStoreAsStale(ctx)
}

// fetchAndWrite is the shared flight: one remote call and one cache write per
// flight, however many streams wait on it.
func (s *keyedStore[K, V]) fetchAndWrite(ctx context.Context, key K) (V, error) {
	var zero V
	var epoch uint64
	if s.epochs != nil {
		e, err := s.epochs.Epoch(ctx)
		if err != nil {
			return zero, fmt.Errorf("flowstore: read wipe epoch: %w", err)
		}
		epoch = e
	}

	v, err := s.fetch(ctx, key)
	if err != nil {
		s.hooks.FetchFailed(s.storeID, err)
		return zero, &FetchError{StoreID: s.storeID, Err: err}
	}

	write := func() error {
		return s.cache.Write(ctx, cache.CachedData[K, V]{Key: key, Data: v, LastFetched: s.now()})
	}
	if s.epochs == nil {
		err = write()
	} else {
		var ran bool
		ran, err = s.epochs.WriteIfEpoch(ctx, epoch, write)
		if err == nil && !ran {
			s.hooks.FetchDiscarded(s.storeID)
			s.log.Debug("fetch result discarded after wipe", Fields{"store": s.storeID, "key": key})
			return zero, ErrFetchDiscarded
		}
	}
	if err != nil {
		return zero, &WriteError{StoreID: s.storeID, Err: err}
	}
	return v, nil
}

func (s *keyedStore[K, V]) shouldFetch(req Request, d *cache.CachedData[K, V]) bool {
	switch {
	case req.mode == modeFresh, req.forceRefresh:
		return true
	case req.maxAge > 0:
		return d == nil || d.IsStale() || s.now().Sub(d.LastFetched) > req.maxAge
	default:
		return s.mediator.ShouldFetch(d)
	}
}

func (s *keyedStore[K, V]) Stream(ctx context.Context, key K, req Request) <-chan Response[V] {
	out := make(chan Response[V])
	go s.stream(ctx, key, req, out)
	return out
}

// stream drives one subscription:
//
//	first snapshot present, not Fresh -> Data(snapshot)
//	otherwise                         -> Loading (a Fresh request skips the old snapshot)
//	every later snapshot revision     -> Data
//	fetch failure                     -> Error, unless Data was already emitted
func (s *keyedStore[K, V]) stream(ctx context.Context, key K, req Request, out chan<- Response[V]) {
	defer close(out)
	f := Fields{"store": s.storeID, "key": key, "sub": uuid.NewString(), "req": req.String()}

	emit := func(r Response[V]) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	sub, err := s.cache.Read(ctx, key)
	if err != nil {
		s.log.Warn("cache read failed", withErr(f, err))
		emit(Error[V](err))
		return
	}
	defer sub.Close()

	var first *cache.CachedData[K, V]
	select {
	case d, ok := <-sub.C():
		if !ok {
			return
		}
		first = d
	case <-ctx.Done():
		return
	}

	var (
		version  uint64 // revision last emitted or skipped
		hasData  bool
		loading  bool
		fetchErr <-chan error
	)
	if first != nil {
		version = first.Version
	}
	if first != nil && req.mode != modeFresh {
		hasData = true
		if !emit(Data(first.Data)) {
			return
		}
	} else {
		loading = true
		if !emit(Loading[V]()) {
			return
		}
	}

	if s.shouldFetch(req, first) {
		ch := make(chan error, 1)
		go func() {
			_, err := s.flights.Fetch(ctx, key)
			ch <- err
		}()
		fetchErr = ch
	}

	for {
		select {
		case <-ctx.Done():
			return

		case d, ok := <-sub.C():
			if !ok {
				return
			}
			if d == nil {
				// wiped: the last value is gone
				hasData, version = false, 0
				if !loading {
					loading = true
					if !emit(Loading[V]()) {
						return
					}
				}
				continue
			}
			if d.Version == version {
				continue // freshness change only
			}
			version, hasData, loading = d.Version, true, false
			if !emit(Data(d.Data)) {
				return
			}

		case err := <-fetchErr:
			fetchErr = nil
			if err == nil {
				continue // the write reaches us through sub
			}
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return
			}
			if hasData {
				s.hooks.ErrorSuppressed(s.storeID, err)
				s.log.Debug("fetch failed; serving last value", withErr(f, err))
				continue
			}
			s.log.Warn("fetch failed", withErr(f, err))
			loading = false
			if !emit(Error[V](err)) {
				return
			}
		}
	}
}

// Warm fetches, at most warmN at a time, every key the mediator considers due.
func (s *keyedStore[K, V]) Warm(ctx context.Context, keys ...K) error {
	var g errgroup.Group
	g.SetLimit(s.warmN)
	for _, key := range keys {
		g.Go(func() error {
			d, err := s.snapshot(ctx, key)
			if err != nil {
				return err
			}
			if !s.mediator.ShouldFetch(d) {
				return nil
			}
			_, err = s.flights.Fetch(ctx, key)
			return err
		})
	}
	return g.Wait()
}

func (s *keyedStore[K, V]) snapshot(ctx context.Context, key K) (*cache.CachedData[K, V], error) {
	sub, err := s.cache.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer sub.Close()
	select {
	case d, ok := <-sub.C():
		if !ok {
			return nil, ctx.Err()
		}
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func withErr(f Fields, err error) Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out["err"] = err
	return out
}

// unkeyed pins a keyed store to the single struct{} key.
type unkeyed[V any] struct {
	s *keyedStore[struct{}, V]
}

func (u *unkeyed[V]) StoreID() string { return u.s.StoreID() }

func (u *unkeyed[V]) Stream(ctx context.Context, req Request) <-chan Response[V] {
	return u.s.Stream(ctx, struct{}{}, req)
}

func (u *unkeyed[V]) MarkAsStale(ctx context.Context) error {
	return u.s.MarkAsStale(ctx, struct{}{})
}

func (u *unkeyed[V]) Warm(ctx context.Context) error { return u.s.Warm(ctx, struct{}{}) }
