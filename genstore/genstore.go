// Package genstore keeps named, monotonically increasing epoch counters.
//
// The engine snapshots an epoch before a fetch and compares it after; a
// changed epoch means the data the fetch would write was wiped meanwhile.
// Use Local for a single process or Redis to share epochs across processes.
package genstore

import "context"

type Store interface {
	// Snapshot returns the current epoch of name; missing => 0.
	Snapshot(ctx context.Context, name string) (uint64, error)
	// Bump atomically increments and returns the new epoch.
	Bump(ctx context.Context, name string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
