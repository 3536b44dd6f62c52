package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/flowstore/genstore"
	"github.com/unkn0wn-root/flowstore/hooks"
	"github.com/unkn0wn-root/flowstore/logging"
	"github.com/unkn0wn-root/flowstore/notify"
	"github.com/unkn0wn-root/flowstore/table"
)

// wipeEpoch names the genstore counter bumped by every wipe.
const wipeEpoch = "wipe"

type RegistryOptions struct {
	Logger logging.Logger // nil => NopLogger
	Hooks  hooks.Hooks    // nil => NopHooks
	Epochs genstore.Store // nil => genstore.NewLocal()

	// Bus receives local stale marks and wipes. nil disables publishing.
	Bus notify.Bus
}

// member is what the registry needs from every cache it owns.
type member interface {
	StoreID() string
	applyStale(ctx context.Context, encodedKey string) error
	applyStoreStale(ctx context.Context) error
	reset()
}

// Registry owns the caches of a process: one per store id. Construct it once
// at startup and hand it to every store.
type Registry struct {
	log    logging.Logger
	hooks  hooks.Hooks
	epochs genstore.Store
	bus    notify.Bus
	origin uuid.UUID

	version atomic.Uint64

	// Epoch-guarded writes hold wipeMu shared; a wipe holds it exclusively.
	wipeMu sync.RWMutex

	mu      sync.Mutex
	members map[string]member
	tables  []table.Table
	closed  bool
}

func NewRegistry(opts RegistryOptions) *Registry {
	r := &Registry{
		log:     logging.OrNop(opts.Logger),
		hooks:   hooks.OrNop(opts.Hooks),
		epochs:  opts.Epochs,
		bus:     opts.Bus,
		origin:  uuid.New(),
		members: make(map[string]member),
	}
	if r.epochs == nil {
		r.epochs = genstore.NewLocal()
	}
	return r
}

// Origin identifies this registry in published events.
func (r *Registry) Origin() uuid.UUID { return r.origin }

// Epoch returns the current wipe epoch.
func (r *Registry) Epoch(ctx context.Context) (uint64, error) {
	return r.epochs.Snapshot(ctx, wipeEpoch)
}

// WriteIfEpoch runs write only while the wipe epoch still equals epoch.
// Within this process the check and write are atomic with respect to WipeAll.
// It reports whether write ran.
func (r *Registry) WriteIfEpoch(ctx context.Context, epoch uint64, write func() error) (bool, error) {
	r.wipeMu.RLock()
	defer r.wipeMu.RUnlock()
	cur, err := r.epochs.Snapshot(ctx, wipeEpoch)
	if err != nil {
		return false, fmt.Errorf("flowstore: read wipe epoch: %w", err)
	}
	if cur != epoch {
		return false, nil
	}
	return true, write()
}

// WipeAll clears every cache of the registry: backing tables are emptied
// (DeleteAll), snapshots reset to absent, and the wipe epoch bumped so fetches
// started before the wipe never write.
func (r *Registry) WipeAll(ctx context.Context) error {
	if err := r.wipe(ctx); err != nil {
		return err
	}
	r.publish(ctx, notify.Event{Kind: notify.Wipe})
	return nil
}

func (r *Registry) wipe(ctx context.Context) error {
	r.wipeMu.Lock()
	defer r.wipeMu.Unlock()

	if _, err := r.epochs.Bump(ctx, wipeEpoch); err != nil {
		return fmt.Errorf("flowstore: bump wipe epoch: %w", err)
	}

	r.mu.Lock()
	members := make([]member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	tables := append([]table.Table(nil), r.tables...)
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tables {
		g.Go(func() error { return t.DeleteAll(gctx) })
	}
	err := g.Wait()

	for _, m := range members {
		m.reset()
	}
	r.hooks.Wiped()
	r.log.Info("caches wiped", logging.Fields{"stores": len(members), "tables": len(tables)})
	if err != nil {
		return fmt.Errorf("flowstore: wipe tables: %w", err)
	}
	return nil
}

// Listen applies events published by other registries until ctx is done or
// the bus subscription ends. Events from this registry are ignored.
func (r *Registry) Listen(ctx context.Context, bus notify.Bus) error {
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	for ev := range ch {
		if ev.Origin == r.origin {
			continue
		}
		if err := r.apply(ctx, ev); err != nil {
			r.log.Warn("applying remote invalidation failed", logging.Fields{"kind": ev.Kind.String(), "store": ev.StoreID, "err": err})
		}
	}
	return ctx.Err()
}

func (r *Registry) apply(ctx context.Context, ev notify.Event) error {
	if ev.Kind == notify.Wipe {
		return r.wipe(ctx)
	}
	r.mu.Lock()
	m, ok := r.members[ev.StoreID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	switch ev.Kind {
	case notify.Stale:
		return m.applyStale(ctx, ev.Key)
	case notify.StoreStale:
		return m.applyStoreStale(ctx)
	default:
		return fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

func (r *Registry) publish(ctx context.Context, ev notify.Event) {
	if r.bus == nil {
		return
	}
	ev.Origin = r.origin
	if err := r.bus.Publish(ctx, ev); err != nil {
		r.log.Warn("publishing invalidation failed", logging.Fields{"kind": ev.Kind.String(), "store": ev.StoreID, "err": err})
	}
}

// Close closes every registered table and the epoch store.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	tables := r.tables
	r.tables = nil
	r.mu.Unlock()

	var errs []error
	for _, t := range tables {
		if err := t.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.epochs.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Registry) nextVersion() uint64 { return r.version.Add(1) }

func (r *Registry) addTable(t table.Table) {
	for _, have := range r.tables {
		if have == t {
			return
		}
	}
	r.tables = append(r.tables, t)
}

// register returns the member of storeID, building it on first use.
// build runs with r.mu held.
func register[T member](r *Registry, storeID string, build func() (T, error)) (T, error) {
	var zero T
	if r == nil {
		return zero, fmt.Errorf("flowstore: registry is required")
	}
	if storeID == "" {
		return zero, fmt.Errorf("flowstore: store id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return zero, ErrClosed
	}
	if m, ok := r.members[storeID]; ok {
		t, ok := m.(T)
		if !ok {
			return zero, fmt.Errorf("%w: store %q is %T", ErrIncompatible, storeID, m)
		}
		return t, nil
	}
	t, err := build()
	if err != nil {
		return zero, err
	}
	r.members[storeID] = t
	return t, nil
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
