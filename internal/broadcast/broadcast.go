// Package broadcast is a last-value topic: a late subscriber first receives
// the current value, then every later publish in publish order.
//
// Publish never blocks on slow subscribers. Each subscription owns an
// unbounded queue drained by its own goroutine, so no value is dropped.
package broadcast

import "sync"

type Topic[T any] struct {
	mu     sync.Mutex
	latest T
	has    bool
	subs   map[*Sub[T]]struct{}
}

// New returns a topic that already holds v.
func New[T any](v T) *Topic[T] {
	return &Topic[T]{latest: v, has: true, subs: make(map[*Sub[T]]struct{})}
}

// Empty returns a topic without a current value; subscribers wait for the first publish.
func Empty[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[*Sub[T]]struct{})}
}

// Publish replaces the current value and fans it out.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	t.latest = v
	t.has = true
	for s := range t.subs {
		s.push(v)
	}
	t.mu.Unlock()
}

// Send fans v out to the current subscribers without retaining it, so late
// subscribers never see it. Use on topics that serve as event streams.
func (t *Topic[T]) Send(v T) {
	t.mu.Lock()
	for s := range t.subs {
		s.push(v)
	}
	t.mu.Unlock()
}

// Update applies fn to the current value under the topic lock and publishes
// the result when fn reports a change. The read-modify-publish is atomic with
// respect to other Publish/Update calls.
func (t *Topic[T]) Update(fn func(cur T, has bool) (T, bool)) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next, ok := fn(t.latest, t.has)
	if !ok {
		return t.latest, false
	}
	t.latest = next
	t.has = true
	for s := range t.subs {
		s.push(next)
	}
	return next, true
}

// Latest returns the current value.
func (t *Topic[T]) Latest() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.has
}

// Subscribers reports the number of open subscriptions.
func (t *Topic[T]) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Subscribe registers a subscription. The current value, if any, is queued
// before any later publish can be.
func (t *Topic[T]) Subscribe() *Sub[T] {
	s := &Sub[T]{
		topic:  t,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan T),
	}
	t.mu.Lock()
	if t.has {
		s.push(t.latest)
	}
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	go s.pump()
	return s
}

// Sub is one subscription to a Topic.
type Sub[T any] struct {
	topic *Topic[T]

	mu    sync.Mutex
	queue []T

	notify chan struct{}
	done   chan struct{}
	out    chan T
	once   sync.Once
}

// C delivers values in publish order. It is closed after Close.
func (s *Sub[T]) C() <-chan T { return s.out }

// Close detaches the subscription. Undelivered values are discarded.
func (s *Sub[T]) Close() {
	s.once.Do(func() {
		s.topic.mu.Lock()
		delete(s.topic.subs, s)
		s.topic.mu.Unlock()
		close(s.done)
	})
}

func (s *Sub[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Sub[T]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, v := range batch {
			select {
			case s.out <- v:
			case <-s.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-s.notify:
		case <-s.done:
			return
		}
	}
}
