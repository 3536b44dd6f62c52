package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func next[K comparable, V any](t *testing.T, s *Subscription[K, V]) *CachedData[K, V] {
	t.Helper()
	select {
	case d, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return nil
}

func quiet[K comparable, V any](t *testing.T, s *Subscription[K, V]) {
	t.Helper()
	select {
	case d := <-s.C():
		t.Fatalf("unexpected snapshot %+v", d)
	case <-time.After(30 * time.Millisecond):
	}
}

type recordingHooks struct {
	mu     sync.Mutex
	decode []string
	stale  []string
	wiped  int
	writes int
}

func (h *recordingHooks) FetchFailed(string, error)     {}
func (h *recordingHooks) ErrorSuppressed(string, error) {}
func (h *recordingHooks) FetchDiscarded(string)         {}

func (h *recordingHooks) DecodeFailed(_ string, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.decode = append(h.decode, reason)
}

func (h *recordingHooks) WriteFailed(string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes++
}

func (h *recordingHooks) StoreMarkedStale(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stale = append(h.stale, id)
}

func (h *recordingHooks) Wiped() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wiped++
}

func (h *recordingHooks) snapshot() (decode, stale []string, wiped, writes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.decode...), append([]string(nil), h.stale...), h.wiped, h.writes
}
