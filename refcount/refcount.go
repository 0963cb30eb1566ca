// Package refcount layers reference-counted eviction over a cache.Cache.
//
// Every successful retrieval through the overlay takes a reference on the
// key; EntryNoLongerUsed gives one back. Entries are not removed the moment
// their count drops: a background sweep runs once per retention period and
// evicts every key whose count is zero or below. Evictions go through the
// underlying cache with reason cache.EvictUnreferenced, so the cache's
// eviction callback is the single notification path for both expiry and
// sweeps.
//
// Counts have no floor. Releasing more often than retrieving drives a count
// negative; such a key is simply eligible for the next sweep and a later
// retrieval starts counting from wherever the count stands.
package refcount

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/flightcache/cache"
)

// DefaultRetention is used when Options.Retention is zero.
const DefaultRetention = time.Minute

// Options configures the overlay. Zero values are safe.
type Options struct {
	// Retention is the sweep period: an unreferenced entry stays resident
	// for at most about one Retention before it is evicted.
	Retention time.Duration

	// Logger receives sweep summaries at debug level. Nil => no-op.
	Logger *zap.Logger

	// Clock stamps eviction statistics. Nil => time.Now().
	Clock cache.Clock
}

// Stats extends cache.Stats with sweep bookkeeping.
type Stats struct {
	cache.Stats

	// Tracked is the number of keys in the reference table.
	Tracked int

	// LastEvictionSize is how many keys the most recent sweep dropped from
	// the reference table; LastEvictionTime is zero before the first sweep.
	LastEvictionSize int
	LastEvictionTime time.Time
	NextEvictionTime time.Time
}

// Cache is a reference-counting view over a cache.Cache.
// All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	core cache.Cache[K, V]

	mu   sync.Mutex
	refs map[K]int

	sweepMu   sync.Mutex
	retention time.Duration
	lastSize  atomic.Int64
	lastSweep atomic.Int64 // UnixNano, 0 = never
	nextSweep atomic.Int64 // UnixNano

	clock     cache.Clock
	log       *zap.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New wraps core and starts the periodic sweep. The overlay owns core from
// here on: Close closes both.
func New[K comparable, V any](core cache.Cache[K, V], opt Options) *Cache[K, V] {
	if opt.Retention <= 0 {
		opt.Retention = DefaultRetention
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[K, V]{
		core:      core,
		refs:      make(map[K]int),
		retention: opt.Retention,
		clock:     opt.Clock,
		log:       opt.Logger.Named("refcount"),
		cancel:    cancel,
	}
	c.nextSweep.Store(c.now().Add(c.retention).UnixNano())

	c.wg.Add(1)
	go c.sweepLoop(ctx)
	return c
}

// Get retrieves k through the underlying cache and takes a reference on it.
// The reference is taken before the read, so a sweep that runs concurrently
// either sees it or has already evicted the entry that the read would find.
// Failed retrievals give the reference back.
func (c *Cache[K, V]) Get(ctx context.Context, k K) (V, error) {
	created := c.acquire(k)
	v, err := c.core.Get(ctx, k)
	if err != nil {
		c.undo(k, created)
		return v, err
	}
	return v, nil
}

// BatchGet retrieves keys through the underlying cache and takes one
// reference per distinct key present in the result.
func (c *Cache[K, V]) BatchGet(ctx context.Context, keys []K) (map[K]V, error) {
	created := make(map[K]bool, len(keys))
	for _, k := range keys {
		if _, dup := created[k]; !dup {
			created[k] = c.acquire(k)
		}
	}

	res, err := c.core.BatchGet(ctx, keys)
	for k, fresh := range created {
		if _, ok := res[k]; err != nil || !ok {
			c.undo(k, fresh)
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EntryNoLongerUsed gives back one reference on k. Unknown keys are ignored.
func (c *Cache[K, V]) EntryNoLongerUsed(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.refs[k]; ok {
		c.refs[k]--
	}
}

// RefCount returns the current count for k and whether k is tracked.
func (c *Cache[K, V]) RefCount(k K) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.refs[k]
	return n, ok
}

// ContainsKey reports whether k is resident in the underlying cache.
func (c *Cache[K, V]) ContainsKey(ctx context.Context, k K) (bool, error) {
	return c.core.ContainsKey(ctx, k)
}

// Remove deletes k immediately and forgets its references.
func (c *Cache[K, V]) Remove(ctx context.Context, k K) (bool, error) {
	removed, err := c.core.Remove(ctx, k)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	delete(c.refs, k)
	c.mu.Unlock()
	return removed, nil
}

// Stats returns the underlying cache statistics plus sweep bookkeeping.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	tracked := len(c.refs)
	c.mu.Unlock()

	s := Stats{
		Stats:            c.core.Stats(),
		Tracked:          tracked,
		LastEvictionSize: int(c.lastSize.Load()),
		NextEvictionTime: time.Unix(0, c.nextSweep.Load()),
	}
	if ns := c.lastSweep.Load(); ns != 0 {
		s.LastEvictionTime = time.Unix(0, ns)
	}
	return s
}

// Close stops the sweep, waits for a running one to finish, and closes the
// underlying cache.
func (c *Cache[K, V]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		err = c.core.Close()
	})
	return err
}

// acquire takes a reference on k and reports whether k was untracked.
func (c *Cache[K, V]) acquire(k K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, tracked := c.refs[k]
	c.refs[k]++
	return !tracked
}

// undo gives back a reference taken by a failed retrieval. A key that the
// retrieval started tracking is dropped again once its count is back to 0.
func (c *Cache[K, V]) undo(k K, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.refs[k]
	if !ok {
		return
	}
	n--
	if created && n == 0 {
		delete(c.refs, k)
		return
	}
	c.refs[k] = n
}

func (c *Cache[K, V]) now() time.Time {
	if c.clock != nil {
		return time.Unix(0, c.clock.NowUnixNano())
	}
	return time.Now()
}
