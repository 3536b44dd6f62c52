package flowstore

import (
	"fmt"
	"time"
)

type requestMode uint8

const (
	modeCached requestMode = iota
	modeFresh
)

// Request selects how Stream treats the cache. The zero value is Cached(false).
type Request struct {
	mode         requestMode
	forceRefresh bool
	maxAge       time.Duration
}

// Fresh ignores cached state: Stream emits Loading and always fetches.
func Fresh() Request { return Request{mode: modeFresh} }

// Cached serves cached state first. forceRefresh fetches even when the
// mediator would not.
func Cached(forceRefresh bool) Request {
	return Request{mode: modeCached, forceRefresh: forceRefresh}
}

// CachedIfOlderThan serves cached state and refreshes when it is absent,
// stale, or older than maxAge, regardless of the store's mediator.
func CachedIfOlderThan(maxAge time.Duration) Request {
	return Request{mode: modeCached, maxAge: maxAge}
}

func (r Request) String() string {
	switch {
	case r.mode == modeFresh:
		return "fresh"
	case r.forceRefresh:
		return "cached(force)"
	case r.maxAge > 0:
		return fmt.Sprintf("cached(older_than=%s)", r.maxAge)
	default:
		return "cached"
	}
}
