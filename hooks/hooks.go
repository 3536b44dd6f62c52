// Package hooks defines lightweight callbacks for high-signal store events.
package hooks

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Stores and caches call them on hot paths.
type Hooks interface {
	// A fetch finished with an error.
	FetchFailed(storeID string, err error)

	// A fetch error was hidden from a subscriber that already had data.
	ErrorSuppressed(storeID string, err error)

	// A fetch result was dropped because the caches were wiped while it was in flight.
	FetchDiscarded(storeID string)

	// A persisted row could not be decoded and was treated as absent.
	// reason ∈ {"corrupt_row", "key_decode", "value_decode"}
	DecodeFailed(storeID, reason string)

	// Writing a fetched value into the cache failed.
	WriteFailed(storeID string, err error)

	// Every entry under storeID was marked stale.
	StoreMarkedStale(storeID string)

	// All caches of a registry were wiped.
	Wiped()
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchFailed(string, error)     {}
func (NopHooks) ErrorSuppressed(string, error) {}
func (NopHooks) FetchDiscarded(string)         {}
func (NopHooks) DecodeFailed(string, string)   {}
func (NopHooks) WriteFailed(string, error)     {}
func (NopHooks) StoreMarkedStale(string)       {}
func (NopHooks) Wiped()                        {}

// OrNop returns h, or NopHooks when h is nil.
func OrNop(h Hooks) Hooks {
	if h == nil {
		return NopHooks{}
	}
	return h
}
