package flowstore

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchDiscarded is returned when caches were wiped while a fetch was
	// in flight; its result is dropped instead of resurrecting wiped data.
	ErrFetchDiscarded = errors.New("flowstore: fetch discarded by wipe")
	ErrStreamClosed   = errors.New("flowstore: stream closed")
)

// FetchError wraps an error returned by a store's fetcher.
type FetchError struct {
	StoreID string
	Err     error
}

func (e *FetchError) Error() string { return fmt.Sprintf("flowstore: fetch %s: %v", e.StoreID, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a fetched value that could not be written to the cache.
type WriteError struct {
	StoreID string
	Err     error
}

func (e *WriteError) Error() string { return fmt.Sprintf("flowstore: write %s: %v", e.StoreID, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }
