package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/flowstore/notify"
)

func next(t *testing.T, ch <-chan notify.Event) notify.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return notify.Event{}
}

func TestLocalFanOutInOrder(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewLocal()
	t.Cleanup(func() { _ = bus.Close() })

	a, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	origin := uuid.New()
	require.NoError(t, bus.Publish(ctx, notify.Event{Kind: notify.Stale, StoreID: "s", Key: "k1", Origin: origin}))
	require.NoError(t, bus.Publish(ctx, notify.Event{Kind: notify.StoreStale, StoreID: "s", Origin: origin}))

	for _, ch := range []<-chan notify.Event{a, b} {
		first := next(t, ch)
		assert.Equal(t, notify.Stale, first.Kind)
		assert.Equal(t, "k1", first.Key)
		assert.Equal(t, origin, first.Origin)
		assert.Equal(t, notify.StoreStale, next(t, ch).Kind)
	}
}

func TestLocalLateSubscriberSeesOnlyNewEvents(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewLocal()
	t.Cleanup(func() { _ = bus.Close() })

	require.NoError(t, bus.Publish(ctx, notify.Event{Kind: notify.Wipe}))
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	select {
	case ev := <-ch:
		t.Fatalf("unexpected replay %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestLocalSubscriptionEndsWithContext(t *testing.T) {
	bus := notify.NewLocal()
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestLocalClosed(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewLocal()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.ErrorIs(t, bus.Publish(ctx, notify.Event{Kind: notify.Wipe}), notify.ErrClosed)
	_, err = bus.Subscribe(ctx)
	assert.ErrorIs(t, err, notify.ErrClosed)
	assert.NoError(t, bus.Close())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "stale", notify.Stale.String())
	assert.Equal(t, "store_stale", notify.StoreStale.String())
	assert.Equal(t, "wipe", notify.Wipe.String())
	assert.Equal(t, "unknown", notify.Kind(0).String())
}
