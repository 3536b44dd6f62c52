// Package flowstore implements a key-addressed data caching and refresh engine
// between expensive remote sources and consumers that need deduplicated,
// observable data.
//
// Components:
//   - cache: observable key/value caches (volatile or table-backed), one per
//     store id, owned by a Registry.
//   - fetcher: the remote fetch function and a Multicaster that keeps at most
//     one fetch in flight per key.
//   - mediator: freshness policy deciding whether a subscription must fetch.
//   - KeyedStore / Store: the engine, emitting Loading, Data and Error.
//
// Emissions of Stream:
//
//	cached value present  -> Data(cached), refresh in background if needed
//	no cached value       -> Loading, then Data(fetched) or Error
//	fetch fails w/ data   -> nothing; the last good value stands
//
// Every later write of the key (by any store over the same cache) is emitted
// as Data until ctx is done.
package flowstore
