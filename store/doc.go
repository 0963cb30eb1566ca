// Package store is the entry store underneath the cache: a sharded,
// concurrency-safe map from key to value with a per-entry expiry deadline.
//
// Each shard is a map guarded by its own RWMutex, selected by an FNV-1a hash
// of the key, so single-key reads and writes are atomic and operations on
// keys in different shards do not contend. The store knows nothing about
// loading or per-key serialization; that lives in package cache.
//
// Expiry is enforced two ways: lazily, when a read finds an entry past its
// deadline, and by an optional background scan (Options.ScanInterval).
// Every entry that leaves the store is reported exactly once to
// Options.OnEvict together with the reason (removed, expired, unreferenced).
// Callbacks run outside shard locks and may call back into the store.
package store
