package cache

import (
	"cmp"
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/flightcache/internal/keylock"
	"github.com/IvanBrykalov/flightcache/internal/util"
)

func (c *cache[K, V]) BatchAdd(ctx context.Context, keys []K) (int, error) {
	p, load, err := c.batchConfig()
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := c.batchAdd(ctx, p, load, keys)
	c.stats.observeBatch(len(keys), time.Since(start))
	return n, err
}

func (c *cache[K, V]) BatchGet(ctx context.Context, keys []K) (map[K]V, error) {
	p, load, err := c.batchConfig()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { c.stats.observeBatch(len(keys), time.Since(start)) }()

	if _, err := c.batchAdd(ctx, p, load, keys); err != nil {
		return nil, err
	}

	out := make(map[K]V, len(keys))
	for _, k := range keys {
		if v, ok := c.store.Get(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// batchAdd locks every requested key, keeps the locks of keys that are not
// cached, hands exactly that subset to the BatchLoader in one call and
// inserts what comes back. Held locks are released on every exit path; on
// loader failure nothing is inserted.
//
// Locks are taken in hash order so two overlapping batches cannot each hold
// a key the other is waiting for.
func (c *cache[K, V]) batchAdd(ctx context.Context, p *ItemPolicy[K, V], load BatchLoader[K, V], keys []K) (added int, err error) {
	held := make(map[K]keylock.Guard[K], len(keys))
	defer func() {
		for _, l := range held {
			l.Release()
		}
	}()

	missing := make([]K, 0, len(keys))
	for _, k := range lockOrder(keys) {
		l, err := c.locks.Acquire(ctx, k)
		if err != nil {
			return 0, lockErr(err)
		}
		if c.store.Contains(k) {
			l.Release()
			continue
		}
		held[k] = l
		missing = append(missing, k)
	}

	loadStart := time.Now()
	res, err := load(ctx, missing)
	c.opt.Metrics.ObserveBatch(len(missing), time.Since(loadStart))
	if err != nil {
		c.log.Debug("batch population failed", zap.Int("keys", len(missing)), zap.Error(err))
		return 0, err
	}

	for k, v := range res {
		l, ok := held[k]
		if !ok {
			// not requested, or already cached when we looked
			continue
		}
		c.store.Add(k, v, p.Expiration)
		l.Release()
		delete(held, k)
		added++
	}
	if added > 0 {
		c.opt.Metrics.Size(c.store.Len())
	}
	c.log.Debug("batch populated",
		zap.Int("requested", len(keys)), zap.Int("missing", len(missing)), zap.Int("added", added))
	return added, nil
}

func (c *cache[K, V]) batchConfig() (*ItemPolicy[K, V], BatchLoader[K, V], error) {
	if c.closed.Load() {
		return nil, nil, ErrClosed
	}
	p := c.pol.Load()
	if p == nil {
		return nil, nil, configErr("expiration policy has not been bound")
	}
	load := c.batch.Load()
	if load == nil {
		return nil, nil, configErr("batch loader has not been bound")
	}
	return p, *load, nil
}

// lockOrder returns keys deduplicated and sorted by hash.
func lockOrder[K comparable](keys []K) []K {
	type hk struct {
		h uint64
		k K
	}
	seen := make(map[K]struct{}, len(keys))
	ordered := make([]hk, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		ordered = append(ordered, hk{h: util.Hash64(k), k: k})
	}
	slices.SortFunc(ordered, func(a, b hk) int { return cmp.Compare(a.h, b.h) })

	out := make([]K, len(ordered))
	for i, e := range ordered {
		out[i] = e.k
	}
	return out
}
