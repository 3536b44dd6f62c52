// Package notify carries cache invalidation events between registries,
// typically one per process. A registry publishes its local stale marks and
// wipes, and applies the events other registries publish.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/flowstore/internal/broadcast"
)

var ErrClosed = errors.New("notify: bus closed")

type Kind uint8

const (
	// Stale marks one encoded key of a store.
	Stale Kind = iota + 1
	// StoreStale marks every key of a store.
	StoreStale
	// Wipe clears every cache of the receiving registry.
	Wipe
)

func (k Kind) String() string {
	switch k {
	case Stale:
		return "stale"
	case StoreStale:
		return "store_stale"
	case Wipe:
		return "wipe"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind    Kind
	StoreID string // empty for Wipe
	Key     string // encoded key; Stale only
	Origin  uuid.UUID
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe delivers events published after it returns. The channel is
	// closed when ctx is done or the bus is closed.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

// Local is an in-process Bus.
type Local struct {
	topic *broadcast.Topic[Event]

	mu     sync.Mutex
	closed bool
	subs   map[*broadcast.Sub[Event]]struct{}
}

var _ Bus = (*Local)(nil)

func NewLocal() *Local {
	return &Local{
		topic: broadcast.Empty[Event](),
		subs:  make(map[*broadcast.Sub[Event]]struct{}),
	}
}

func (b *Local) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.topic.Send(ev)
	return nil
}

func (b *Local) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	sub := b.topic.Subscribe()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { b.drop(sub) })
	return sub.C(), nil
}

func (b *Local) drop(sub *broadcast.Sub[Event]) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.Close()
}

func (b *Local) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for s := range subs {
		s.Close()
	}
	return nil
}
