// Package table defines the physical storage behind persisted caches: one
// logical table keyed by (storeID, encodedKey) holding (encodedValue,
// lastFetched). Many stores are multiplexed over one table.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the value bytes previously passed to Put for the same (storeID, key).
//
// Implementations must be safe for concurrent use. The persisted cache funnels
// all writes of one store id through a single serialized path, so an
// implementation only needs atomicity per call, not across calls.
package table

import (
	"context"
	"errors"
)

var (
	ErrClosed = errors.New("flowstore: table closed")
	// ErrCorruptRow is returned by Get when a stored row cannot be unframed.
	// Persisted caches treat it as a miss.
	ErrCorruptRow = errors.New("flowstore: corrupt row")
)

// StaleMillis is the lastFetched value of a stale-marked row.
const StaleMillis int64 = 0

// Row is one physical record of a store.
type Row struct {
	Key         string // encoded key
	Value       []byte // encoded value
	LastFetched int64  // unix millis; StaleMillis when marked stale
}

type Table interface {
	// Get returns (row, true, nil) on hit; (Row{}, false, nil) on miss.
	Get(ctx context.Context, storeID, key string) (Row, bool, error)

	// Put upserts a row.
	Put(ctx context.Context, storeID string, row Row) error

	// MarkStale resets lastFetched of one row to StaleMillis, keeping its value.
	// Missing rows are left missing.
	MarkStale(ctx context.Context, storeID, key string) error

	// MarkStoreStale resets lastFetched of every row under storeID.
	MarkStoreStale(ctx context.Context, storeID string) error

	// DeleteAll clears the whole physical table across all store ids.
	DeleteAll(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
