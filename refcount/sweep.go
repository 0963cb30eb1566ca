package refcount

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/flightcache/cache"
)

// sweepLoop fires once per retention period. Each tick runs a sweep in its
// own goroutine, like a timer callback; sweepMu keeps a slow sweep from
// overlapping the next one.
func (c *Cache[K, V]) sweepLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.retention)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.sweep(ctx)
			}()
		}
	}
}

// sweep evicts every key whose count is <= 0. Each candidate is re-checked
// and dropped from the reference table inside core.EvictIf, which holds the
// key's lock and store shard; retrievals take their reference before
// reading, so one that raced the snapshot either keeps its entry or misses
// and reloads it.
func (c *Cache[K, V]) sweep(ctx context.Context) {
	if !c.sweepMu.TryLock() {
		c.log.Debug("previous sweep still running, skipping tick")
		return
	}
	defer c.sweepMu.Unlock()

	now := c.now()
	c.lastSweep.Store(now.UnixNano())
	c.nextSweep.Store(now.Add(c.retention).UnixNano())

	var candidates []K
	c.mu.Lock()
	for k, n := range c.refs {
		if n <= 0 {
			candidates = append(candidates, k)
		}
	}
	c.mu.Unlock()

	dropped, evicted := 0, 0
	for _, k := range candidates {
		forgotten := false
		removed, err := c.core.EvictIf(ctx, k, func() bool {
			forgotten = c.forget(k)
			return forgotten
		})
		if forgotten {
			dropped++
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, cache.ErrClosed) {
				break
			}
			c.log.Warn("sweep eviction failed", zap.Any("key", k), zap.Error(err))
			continue
		}
		if removed {
			evicted++
		}
	}
	c.lastSize.Store(int64(dropped))

	if dropped > 0 {
		c.log.Debug("reference sweep",
			zap.Int("unreferenced", dropped), zap.Int("evicted", evicted), zap.Time("next", now.Add(c.retention)))
	}
}

// forget removes k from the reference table if it is still unreferenced.
func (c *Cache[K, V]) forget(k K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.refs[k]
	if !ok || n > 0 {
		return false
	}
	delete(c.refs, k)
	return true
}
