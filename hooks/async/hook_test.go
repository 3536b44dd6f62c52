package asynchook

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/flowstore/hooks"
)

type recorder struct {
	hooks.NopHooks
	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (r *recorder) add(ev string) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) FetchFailed(id string, _ error)     { r.add("fetch_failed:" + id) }
func (r *recorder) ErrorSuppressed(id string, _ error) { r.add("suppressed:" + id) }
func (r *recorder) Wiped()                             { r.add("wiped") }

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestForwardsAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 1, 16)
	h.FetchFailed("a", errors.New("boom"))
	h.ErrorSuppressed("b", errors.New("boom"))
	h.Wiped()
	h.Close()

	got := rec.list()
	want := []string{"fetch_failed:a", "suppressed:b", "wiped"}
	if len(got) != len(want) {
		t.Fatalf("events=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events=%v want %v", got, want)
		}
	}
}

func TestDropsWhenQueueFull(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	h := New(rec, 1, 1)

	h.Wiped() // taken by the worker, which blocks
	deadline := time.Now().Add(time.Second)
	for len(h.q) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Wiped() // queued
	h.Wiped() // dropped

	close(rec.block)
	h.Close()
	if n := len(rec.list()); n != 2 {
		t.Fatalf("delivered=%d want 2", n)
	}
}

func TestAfterCloseIsDropped(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 2, 0)
	h.Close()
	h.Close()
	h.Wiped()
	if n := len(rec.list()); n != 0 {
		t.Fatalf("delivered=%d want 0", n)
	}
}

func TestNilInnerIsNop(t *testing.T) {
	h := New(nil, 0, 0)
	h.FetchDiscarded("x")
	h.DecodeFailed("x", "corrupt_row")
	h.Close()
}
