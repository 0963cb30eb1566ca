package cache

import (
	"context"
	"time"
)

// Cache is a loading key/value cache that runs at most one population per
// key at a time. All methods are safe for concurrent use.
//
// Operations on a single key are serialized through a per-key lock;
// operations on different keys never wait for each other. Reads of already
// cached entries take no per-key lock at all.
//
// K may be any comparable type. Pointer keys are matched by identity.
type Cache[K comparable, V any] interface {
	// BindPolicy sets the expiration policy and eviction callback.
	// A second call returns ErrConfiguration.
	BindPolicy(p ItemPolicy[K, V]) error

	// BindLoader sets the single-key loader. A second call returns ErrConfiguration.
	BindLoader(fn Loader[K, V]) error

	// BindBatchLoader sets the batch loader. A second call returns ErrConfiguration.
	BindBatchLoader(fn BatchLoader[K, V]) error

	// Get returns the cached value for k, loading it on a miss. Concurrent
	// misses for the same key share one Loader call. Loader errors are
	// returned unchanged and nothing is cached.
	Get(ctx context.Context, k K) (V, error)

	// BatchAdd loads every key of keys that is not cached yet with a single
	// BatchLoader call and returns how many entries were added.
	// If the BatchLoader fails nothing from this call is cached.
	BatchAdd(ctx context.Context, keys []K) (int, error)

	// BatchGet runs BatchAdd and then returns the values of all keys that
	// are resident afterwards.
	BatchGet(ctx context.Context, keys []K) (map[K]V, error)

	// GetForKeysAlreadyInCache returns, in request order, the values of keys
	// that are already cached. It never loads.
	GetForKeysAlreadyInCache(ctx context.Context, keys []K) ([]V, error)

	// ContainsKey reports whether k is cached, waiting for any in-flight
	// population of k to finish first.
	ContainsKey(ctx context.Context, k K) (bool, error)

	// ContainsKeyWithTimeout is ContainsKey with a bound on the lock wait.
	// If the lock is not acquired within timeout it returns ErrTimeout.
	// A timeout <= 0 tries the lock once without waiting.
	ContainsKeyWithTimeout(ctx context.Context, k K, timeout time.Duration) (bool, error)

	// Remove deletes k and reports whether it was cached. The eviction
	// callback sees EvictRemoved.
	Remove(ctx context.Context, k K) (bool, error)

	// Evict is Remove with reason EvictUnreferenced; used by reference-count
	// sweeps so consumers can tell the causes apart.
	Evict(ctx context.Context, k K) (bool, error)

	// EvictIf is Evict guarded by cond. cond runs while k's lock and its
	// store shard are held, so no Get can read the entry after cond returned
	// true. It runs even when k is not cached. Returns whether an entry was
	// removed.
	EvictIf(ctx context.Context, k K, cond func() bool) (bool, error)

	// Len returns the number of resident entries.
	Len() int

	// Stats returns a snapshot of the cache counters.
	Stats() Stats

	// Close stops background expiry. Operations started afterwards return ErrClosed.
	Close() error
}
