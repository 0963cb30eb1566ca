package cache

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/flightcache/internal/keylock"
	"github.com/IvanBrykalov/flightcache/policy"
	"github.com/IvanBrykalov/flightcache/policy/sliding"
	"github.com/IvanBrykalov/flightcache/store"
)

// cache couples an entry store with a per-key lock table.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K comparable, V any] struct {
	store store.Store[K, V]
	locks keylock.Table[K]

	// bound once, read lock-free
	pol    atomic.Pointer[ItemPolicy[K, V]]
	loader atomic.Pointer[Loader[K, V]]
	batch  atomic.Pointer[BatchLoader[K, V]]

	stats  counters
	closed atomic.Bool

	opt Options[K, V]
	log *zap.Logger
}

// New constructs a cache with the provided Options.
// See Options for defaults.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Parallelism <= 0 {
		opt.Parallelism = runtime.GOMAXPROCS(0)
	}
	scan := opt.ExpiryScanInterval
	switch {
	case scan == 0:
		scan = defaultExpiryScanInterval
	case scan < 0:
		scan = 0
	}

	c := &cache[K, V]{
		opt: opt,
		log: opt.Logger.Named("cache"),
	}
	c.store = store.New[K, V](store.Options[K, V]{
		Shards:       opt.Shards,
		ScanInterval: scan,
		OnEvict:      c.onEvict,
		Clock:        opt.Clock,
		Logger:       opt.Logger,
	})

	// Options-provided values count as the one allowed binding.
	if opt.Policy != nil {
		_ = c.BindPolicy(*opt.Policy)
	}
	if opt.Loader != nil {
		_ = c.BindLoader(opt.Loader)
	}
	if opt.BatchLoader != nil {
		_ = c.BindBatchLoader(opt.BatchLoader)
	}
	return c
}

// NewWithDefaultSlidingPolicy builds a cache whose entries expire after
// DefaultSlidingExpiration without access, with loader already bound.
func NewWithDefaultSlidingPolicy[K comparable, V any](loader Loader[K, V], opt Options[K, V]) Cache[K, V] {
	opt.Policy = &ItemPolicy[K, V]{Expiration: sliding.New(DefaultSlidingExpiration)}
	opt.Loader = loader
	return New[K, V](opt)
}

// ---- configuration ----

func (c *cache[K, V]) BindPolicy(p ItemPolicy[K, V]) error {
	if p.Expiration == nil {
		p.Expiration = policy.Never()
	}
	if !c.pol.CompareAndSwap(nil, &p) {
		return configErr("expiration policy can only be bound once")
	}
	return nil
}

func (c *cache[K, V]) BindLoader(fn Loader[K, V]) error {
	if fn == nil {
		return configErr("loader must not be nil")
	}
	if !c.loader.CompareAndSwap(nil, &fn) {
		return configErr("loader can only be bound once")
	}
	return nil
}

func (c *cache[K, V]) BindBatchLoader(fn BatchLoader[K, V]) error {
	if fn == nil {
		return configErr("batch loader must not be nil")
	}
	if !c.batch.CompareAndSwap(nil, &fn) {
		return configErr("batch loader can only be bound once")
	}
	return nil
}

// ---- Cache[K,V] implementation ----

// Get is a double-checked load: an unlocked store read, then the per-key
// lock, then a second read, and only then the Loader. Callers that queued
// on the lock while another caller loaded see the fresh entry on the
// second read and count as hits.
func (c *cache[K, V]) Get(ctx context.Context, k K) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, ErrClosed
	}
	p := c.pol.Load()
	if p == nil {
		return zero, configErr("expiration policy has not been bound")
	}
	load := c.loader.Load()
	if load == nil {
		return zero, configErr("loader has not been bound")
	}

	start := time.Now()
	c.stats.requests.Add(1)
	defer func() { c.stats.observeSingle(time.Since(start)) }()

	// fast path
	if v, ok := c.store.Get(k); ok {
		c.hit()
		return v, nil
	}

	l, err := c.locks.Acquire(ctx, k)
	if err != nil {
		return zero, lockErr(err)
	}
	defer l.Release()

	// double-check after waiting for an in-flight population
	if v, ok := c.store.Get(k); ok {
		c.hit()
		return v, nil
	}

	c.opt.Metrics.Miss()
	loadStart := time.Now()
	v, err := (*load)(ctx, k)
	c.opt.Metrics.ObserveLoad(time.Since(loadStart))
	if err != nil {
		c.log.Debug("population failed", zap.Any("key", k), zap.Error(err))
		return zero, err
	}

	c.store.Add(k, v, p.Expiration)
	c.opt.Metrics.Size(c.store.Len())
	return v, nil
}

func (c *cache[K, V]) ContainsKey(ctx context.Context, k K) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	l, err := c.locks.Acquire(ctx, k)
	if err != nil {
		return false, lockErr(err)
	}
	defer l.Release()
	return c.store.Contains(k), nil
}

func (c *cache[K, V]) ContainsKeyWithTimeout(ctx context.Context, k K, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		if c.closed.Load() {
			return false, ErrClosed
		}
		l, ok := c.locks.TryAcquire(k)
		if !ok {
			return false, ErrTimeout
		}
		defer l.Release()
		return c.store.Contains(k), nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.ContainsKey(ctx, k)
}

func (c *cache[K, V]) Remove(ctx context.Context, k K) (bool, error) {
	return c.remove(ctx, k, EvictRemoved)
}

func (c *cache[K, V]) Evict(ctx context.Context, k K) (bool, error) {
	return c.remove(ctx, k, EvictUnreferenced)
}

func (c *cache[K, V]) EvictIf(ctx context.Context, k K, cond func() bool) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	l, err := c.locks.Acquire(ctx, k)
	if err != nil {
		return false, lockErr(err)
	}
	defer l.Release()

	_, removed := c.store.RemoveIf(k, EvictUnreferenced, cond)
	if removed {
		c.opt.Metrics.Size(c.store.Len())
	}
	return removed, nil
}

func (c *cache[K, V]) remove(ctx context.Context, k K, reason EvictReason) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	l, err := c.locks.Acquire(ctx, k)
	if err != nil {
		return false, lockErr(err)
	}
	defer l.Release()

	removed := c.store.Remove(k, reason)
	if removed {
		c.opt.Metrics.Size(c.store.Len())
	}
	return removed, nil
}

// GetForKeysAlreadyInCache checks keys concurrently, each under its own
// lock, so keys that are being populated right now are waited for but
// never loaded by this call.
func (c *cache[K, V]) GetForKeysAlreadyInCache(ctx context.Context, keys []K) ([]V, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	type slot struct {
		v  V
		ok bool
	}
	slots := make([]slot, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opt.Parallelism)
	for i, k := range keys {
		g.Go(func() error {
			l, err := c.locks.Acquire(gctx, k)
			if err != nil {
				return lockErr(err)
			}
			defer l.Release()
			slots[i].v, slots[i].ok = c.store.Get(k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]V, 0, len(keys))
	for _, s := range slots {
		if s.ok {
			out = append(out, s.v)
		}
	}
	return out, nil
}

func (c *cache[K, V]) Len() int { return c.store.Len() }

func (c *cache[K, V]) Stats() Stats { return c.stats.snapshot(c.store.Len()) }

// Close marks the cache closed and stops the background expiry scan.
// Operations already running finish normally.
func (c *cache[K, V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.store.Close()
}

// ---- helpers ----

func (c *cache[K, V]) hit() {
	c.stats.hits.Add(1)
	c.opt.Metrics.Hit()
}

// onEvict is the store's single eviction sink: it keeps counters current and
// forwards to the bound policy's callback.
func (c *cache[K, V]) onEvict(e Entry[K, V], reason EvictReason) {
	c.stats.evictions.Add(1)
	c.opt.Metrics.Evict(reason)
	if p := c.pol.Load(); p != nil && p.OnEvict != nil {
		p.OnEvict(e, reason)
	}
}
