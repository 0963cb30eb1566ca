// Package cache provides a generic, in-process loading cache that guarantees
// at most one concurrent population per key, batch population that skips
// keys already cached, and once-only configuration.
//
// Design
//
//   - Storage: entries live in a sharded store (package store) whose
//     single-key reads and writes are atomic. Reads of cached entries go
//     straight to the store without any per-key lock.
//
//   - Singleflight: on a miss, Get takes the key's lock from a lock table
//     (internal/keylock), re-reads the store, and only then calls the
//     Loader. Everyone who queued behind the loader finds the entry on the
//     re-read. Lock handles exist only while a key is contended.
//
//   - Batches: BatchAdd locks each requested key, releases the ones already
//     cached, and sends the rest to the BatchLoader in one call. Failure is
//     all-or-nothing for the call and every lock is released on every path.
//
//   - Expiration: an ItemPolicy is bound once per cache. policy/sliding and
//     policy/absolute cover the usual modes; policy.Never keeps entries
//     until removed. Expired entries are dropped lazily and by a periodic
//     background scan.
//
//   - Callbacks: ItemPolicy.OnEvict(entry, reason) fires exactly once per
//     entry that leaves the cache (EvictRemoved, EvictExpired,
//     EvictUnreferenced).
//
//   - Metrics: Options.Metrics receives hit/miss/evict/size/latency signals;
//     Stats returns counters and running averages.
//
// Basic usage
//
//	c := cache.New[string, *User](cache.Options[string, *User]{
//	    Policy: &cache.ItemPolicy[string, *User]{Expiration: sliding.New(time.Minute)},
//	    Loader: func(ctx context.Context, id string) (*User, error) {
//	        return db.LoadUser(ctx, id)
//	    },
//	})
//	defer c.Close()
//
//	u, err := c.Get(ctx, "12")
//
// Batches
//
//	_ = c.BindBatchLoader(func(ctx context.Context, ids []string) (map[string]*User, error) {
//	    return db.LoadUsers(ctx, ids)
//	})
//	users, err := c.BatchGet(ctx, []string{"1", "2", "3"})
//
// Bounded waits
//
//	ok, err := c.ContainsKeyWithTimeout(ctx, "12", 2*time.Second)
//	if errors.Is(err, cache.ErrTimeout) {
//	    // "12" is still being populated; try again later
//	}
//
// Loaders own retries: the cache never retries a failed population and never
// caches a failure.
package cache
