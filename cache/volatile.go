package cache

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/flowstore/codec"
	"github.com/unkn0wn-root/flowstore/internal/broadcast"
	"github.com/unkn0wn-root/flowstore/logging"
	"github.com/unkn0wn-root/flowstore/notify"
)

type VolatileOptions[K comparable] struct {
	// KeyCodec addresses single keys in invalidation events exchanged with
	// other registries. Without it, a key mark travels as a store-wide mark.
	KeyCodec codec.Codec[K]
}

// VolatileCache lives for the process lifetime.
type VolatileCache[K comparable, V any] struct {
	reg      *Registry
	storeID  string
	keyCodec codec.Codec[K]

	mu     sync.Mutex
	topics map[K]*broadcast.Topic[*CachedData[K, V]]
}

var _ Cache[string, int] = (*VolatileCache[string, int])(nil)

// Volatile returns the registry's volatile cache for storeID, creating it on first use.
func Volatile[K comparable, V any](reg *Registry, storeID string, opts VolatileOptions[K]) (*VolatileCache[K, V], error) {
	return register(reg, storeID, func() (*VolatileCache[K, V], error) {
		return &VolatileCache[K, V]{
			reg:      reg,
			storeID:  storeID,
			keyCodec: opts.KeyCodec,
			topics:   make(map[K]*broadcast.Topic[*CachedData[K, V]]),
		}, nil
	})
}

func (c *VolatileCache[K, V]) StoreID() string { return c.storeID }

func (c *VolatileCache[K, V]) Read(ctx context.Context, key K) (*Subscription[K, V], error) {
	c.mu.Lock()
	sub := c.topicLocked(key).Subscribe()
	c.mu.Unlock()
	return newSubscription(ctx, sub), nil
}

func (c *VolatileCache[K, V]) Write(_ context.Context, d CachedData[K, V]) error {
	c.mu.Lock()
	d.Version = c.reg.nextVersion()
	c.topicLocked(d.Key).Publish(&d)
	c.mu.Unlock()
	return nil
}

func (c *VolatileCache[K, V]) MarkAsStale(ctx context.Context, key K) error {
	c.markKey(key)
	if c.keyCodec == nil {
		c.reg.publish(ctx, notify.Event{Kind: notify.StoreStale, StoreID: c.storeID})
		return nil
	}
	ek, err := c.keyCodec.Encode(key)
	if err != nil {
		c.reg.log.Warn("volatile key encode failed; announcing store-wide stale", logging.Fields{"store": c.storeID, "err": err})
		c.reg.publish(ctx, notify.Event{Kind: notify.StoreStale, StoreID: c.storeID})
		return nil
	}
	c.reg.publish(ctx, notify.Event{Kind: notify.Stale, StoreID: c.storeID, Key: string(ek)})
	return nil
}

func (c *VolatileCache[K, V]) MarkStoreAsStale(ctx context.Context) error {
	c.markAll()
	c.reg.hooks.StoreMarkedStale(c.storeID)
	c.reg.publish(ctx, notify.Event{Kind: notify.StoreStale, StoreID: c.storeID})
	return nil
}

func (c *VolatileCache[K, V]) topicLocked(key K) *broadcast.Topic[*CachedData[K, V]] {
	t, ok := c.topics[key]
	if !ok {
		t = broadcast.New[*CachedData[K, V]](nil)
		c.topics[key] = t
	}
	return t
}

func (c *VolatileCache[K, V]) markKey(key K) {
	c.mu.Lock()
	if t, ok := c.topics[key]; ok {
		t.Update(markStale[K, V])
	}
	c.mu.Unlock()
}

func (c *VolatileCache[K, V]) markAll() {
	c.mu.Lock()
	for _, t := range c.topics {
		t.Update(markStale[K, V])
	}
	c.mu.Unlock()
}

func (c *VolatileCache[K, V]) applyStale(_ context.Context, encodedKey string) error {
	if c.keyCodec == nil {
		c.markAll()
		return nil
	}
	key, err := c.keyCodec.Decode([]byte(encodedKey))
	if err != nil {
		c.reg.log.Warn("remote stale key undecodable; marking store", logging.Fields{"store": c.storeID, "err": err})
		c.markAll()
		return nil
	}
	c.markKey(key)
	return nil
}

func (c *VolatileCache[K, V]) applyStoreStale(context.Context) error {
	c.markAll()
	c.reg.hooks.StoreMarkedStale(c.storeID)
	return nil
}

func (c *VolatileCache[K, V]) reset() {
	c.mu.Lock()
	for _, t := range c.topics {
		t.Update(wiped[K, V])
	}
	c.mu.Unlock()
}
