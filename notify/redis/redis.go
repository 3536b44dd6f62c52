// Package redis is a notify.Bus over redis pub/sub. Events are msgpack
// encoded on a single channel; delivery is at-most-once, as with any pub/sub.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/flowstore/logging"
	"github.com/unkn0wn-root/flowstore/notify"
)

const defaultChannel = "flowstore:invalidate"

type Config struct {
	Client  goredis.UniversalClient
	Channel string // default "flowstore:invalidate"
	Logger  logging.Logger
}

type Bus struct {
	rdb     goredis.UniversalClient
	channel string
	log     logging.Logger
	closed  atomic.Bool
	done    chan struct{}
}

var _ notify.Bus = (*Bus)(nil)

type message struct {
	Kind    uint8  `msgpack:"k"`
	StoreID string `msgpack:"s,omitempty"`
	Key     string `msgpack:"key,omitempty"`
	Origin  string `msgpack:"o"`
}

func New(cfg Config) (*Bus, error) {
	if cfg.Client == nil {
		return nil, errors.New("notify/redis: nil client")
	}
	ch := cfg.Channel
	if ch == "" {
		ch = defaultChannel
	}
	return &Bus{
		rdb:     cfg.Client,
		channel: ch,
		log:     logging.OrNop(cfg.Logger),
		done:    make(chan struct{}),
	}, nil
}

func (b *Bus) Publish(ctx context.Context, ev notify.Event) error {
	if b.closed.Load() {
		return notify.ErrClosed
	}
	payload, err := msgpack.Marshal(message{
		Kind:    uint8(ev.Kind),
		StoreID: ev.StoreID,
		Key:     ev.Key,
		Origin:  ev.Origin.String(),
	})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan notify.Event, error) {
	if b.closed.Load() {
		return nil, notify.ErrClosed
	}
	ps := b.rdb.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so events published after
	// Subscribe returns are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("notify/redis: subscribe %s: %w", b.channel, err)
	}

	out := make(chan notify.Event)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decode([]byte(m.Payload))
				if err != nil {
					b.log.Warn("dropping undecodable invalidation event", logging.Fields{"channel": b.channel, "err": err})
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				case <-b.done:
					return
				}
			}
		}
	}()
	return out, nil
}

// Close ends every subscription. The client belongs to the caller.
func (b *Bus) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
	return nil
}

func decode(b []byte) (notify.Event, error) {
	var m message
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return notify.Event{}, err
	}
	origin, err := uuid.Parse(m.Origin)
	if err != nil {
		return notify.Event{}, err
	}
	kind := notify.Kind(m.Kind)
	if kind < notify.Stale || kind > notify.Wipe {
		return notify.Event{}, fmt.Errorf("unknown event kind %d", m.Kind)
	}
	return notify.Event{Kind: kind, StoreID: m.StoreID, Key: m.Key, Origin: origin}, nil
}
