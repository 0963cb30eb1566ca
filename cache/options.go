package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/flightcache/policy"
	"github.com/IvanBrykalov/flightcache/store"
)

// EvictReason explains why an entry was removed.
type EvictReason = store.EvictReason

const (
	// EvictRemoved: explicit Remove.
	EvictRemoved = store.EvictRemoved
	// EvictExpired: the expiration policy deadline passed.
	EvictExpired = store.EvictExpired
	// EvictUnreferenced: dropped by a reference-count sweep (see package refcount).
	EvictUnreferenced = store.EvictUnreferenced
)

// Entry is the resident key/value pair passed to eviction callbacks.
type Entry[K comparable, V any] = store.Entry[K, V]

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock = store.Clock

// Loader fetches a single value on a miss. Returning ErrNotFound (or any
// other error) leaves nothing in the cache.
type Loader[K comparable, V any] func(ctx context.Context, k K) (V, error)

// BatchLoader fetches many values in one call. Keys missing from the
// returned map are simply not cached. An error fails the whole batch.
type BatchLoader[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// ItemPolicy is the per-cache expiration configuration.
type ItemPolicy[K comparable, V any] struct {
	// Expiration decides entry deadlines; nil => policy.Never().
	Expiration policy.Policy

	// OnEvict is called exactly once for every entry that leaves the cache,
	// whatever the cause. It runs outside store locks; keep it lightweight.
	OnEvict func(e Entry[K, V], reason EvictReason)
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
	// ObserveLoad records the duration of one Loader call.
	ObserveLoad(d time.Duration)
	// ObserveBatch records the number of keys sent to the BatchLoader and
	// how long it took.
	ObserveBatch(size int, d time.Duration)
}

// Options configures the cache behavior. Zero values are safe;
// defaults are applied in New():
//   - Shards <= 0              => auto (power of two from GOMAXPROCS)
//   - ExpiryScanInterval == 0  => 20s; < 0 disables the background scan
//   - Parallelism <= 0         => GOMAXPROCS
//   - nil Metrics              => NoopMetrics
//   - nil Logger               => zap.NewNop()
//
// Policy, Loader and BatchLoader may be left nil here and bound later with
// the Bind* methods. Either way each can be bound only once.
type Options[K comparable, V any] struct {
	// Shards is the number of entry store partitions.
	Shards int

	// ExpiryScanInterval is how often expired entries are swept out of the
	// store even if nobody reads them.
	ExpiryScanInterval time.Duration

	// Policy is the expiration policy plus eviction callback.
	Policy *ItemPolicy[K, V]

	// Loader fetches a value on a Get miss.
	Loader Loader[K, V]

	// BatchLoader fetches the missing subset of a BatchAdd/BatchGet.
	BatchLoader BatchLoader[K, V]

	// Parallelism bounds the fan-out of GetForKeysAlreadyInCache.
	Parallelism int

	// Observability
	Metrics Metrics
	Logger  *zap.Logger

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}

// DefaultSlidingExpiration is the window used by NewWithDefaultSlidingPolicy.
const DefaultSlidingExpiration = 5 * time.Minute

const defaultExpiryScanInterval = 20 * time.Second
