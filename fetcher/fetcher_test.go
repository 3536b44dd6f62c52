package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	m := NewMulticaster(func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "v:" + key, nil
	})

	const n = 20
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := m.Fetch(context.Background(), "a")
			if err != nil {
				t.Errorf("fetch: %v", err)
			}
			results <- v
		}()
	}
	waitFor(t, func() bool { return m.InFlight() == 1 })
	time.Sleep(20 * time.Millisecond) // let the callers attach
	close(release)
	wg.Wait()
	close(results)

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls=%d want 1", got)
	}
	for v := range results {
		if v != "v:a" {
			t.Fatalf("got %q", v)
		}
	}
	if m.InFlight() != 0 {
		t.Fatalf("flight not cleared")
	}
}

func TestSharedFailureReachesEveryCaller(t *testing.T) {
	boom := errors.New("boom")
	release := make(chan struct{})
	m := NewMulticaster(func(context.Context, int) (int, error) {
		<-release
		return 0, boom
	})

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := m.Fetch(context.Background(), 1)
			errs <- err
		}()
	}
	waitFor(t, func() bool { return m.InFlight() == 1 })
	time.Sleep(20 * time.Millisecond)
	close(release)
	for i := 0; i < 2; i++ {
		if err := <-errs; !errors.Is(err, boom) {
			t.Fatalf("err=%v want boom", err)
		}
	}
}

func TestDistinctKeysDoNotShare(t *testing.T) {
	var calls atomic.Int32
	m := NewMulticaster(func(_ context.Context, key string) (string, error) {
		calls.Add(1)
		return key, nil
	})
	for _, k := range []string{"a", "b", "a"} {
		if v, err := m.Fetch(context.Background(), k); err != nil || v != k {
			t.Fatalf("fetch %q: v=%q err=%v", k, v, err)
		}
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls=%d want 3 (sequential calls never share)", got)
	}
}

func TestCancelledCallerDoesNotCancelSharedFetch(t *testing.T) {
	release := make(chan struct{})
	var fetchCtxErr atomic.Value
	m := NewMulticaster(func(ctx context.Context, _ string) (string, error) {
		<-release
		if err := ctx.Err(); err != nil {
			fetchCtxErr.Store(err)
		}
		return "ok", nil
	}, CancelOrphans())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := m.Fetch(ctxA, "k")
		errA <- err
	}()
	waitFor(t, func() bool { return m.InFlight() == 1 })

	resB := make(chan string, 1)
	go func() {
		v, _ := m.Fetch(context.Background(), "k")
		resB <- v
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("caller A err=%v want Canceled", err)
	}
	close(release)
	if v := <-resB; v != "ok" {
		t.Fatalf("caller B got %q", v)
	}
	if err := fetchCtxErr.Load(); err != nil {
		t.Fatalf("shared fetch saw cancellation: %v", err)
	}
}

func TestLastDetachCancelsWhenConfigured(t *testing.T) {
	cancelled := make(chan struct{})
	m := NewMulticaster(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	}, CancelOrphans())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _, _ = m.Fetch(ctx, "k") }()
	waitFor(t, func() bool { return m.InFlight() == 1 })
	cancel()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("orphaned fetch not cancelled")
	}
}

func TestOrphanedFetchCompletesByDefault(t *testing.T) {
	finished := make(chan struct{})
	release := make(chan struct{})
	m := NewMulticaster(func(ctx context.Context, _ string) (string, error) {
		<-release
		if ctx.Err() == nil {
			close(finished)
		}
		return "v", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Fetch(ctx, "k")
	}()
	waitFor(t, func() bool { return m.InFlight() == 1 })
	cancel()
	<-done
	close(release)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("orphaned fetch did not complete")
	}
}

func TestPanicBecomesError(t *testing.T) {
	m := NewMulticaster(func(context.Context, string) (int, error) {
		panic("kaboom")
	})
	_, err := m.Fetch(context.Background(), "k")
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err=%v want *PanicError", err)
	}
	if pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Fatalf("panic error %+v", pe)
	}
	if m.InFlight() != 0 {
		t.Fatal("flight not cleared after panic")
	}
}

func TestMaxConcurrentBoundsFetches(t *testing.T) {
	var running, peak atomic.Int32
	m := NewMulticaster(func(_ context.Context, _ int) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return 0, nil
	}, MaxConcurrent(2))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			_, _ = m.Fetch(context.Background(), k)
		}(i)
	}
	wg.Wait()
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency=%d want <= 2", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}
