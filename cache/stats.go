package cache

import (
	"time"

	"github.com/IvanBrykalov/flightcache/internal/util"
)

// Stats is a point-in-time snapshot of cache counters. Counters only grow
// for the lifetime of a cache instance.
type Stats struct {
	// Requests counts Get calls; Hits counts those served from the store,
	// including callers that waited for another caller's population.
	Requests int64
	Hits     int64

	// ItemsInCache is the number of resident entries.
	ItemsInCache int

	// BatchRequests counts BatchAdd/BatchGet calls; AverageBatchSize is the
	// mean number of keys requested per call.
	BatchRequests    int64
	AverageBatchSize int

	AverageSingleRetrieval time.Duration
	AverageBatchRetrieval  time.Duration

	// Evictions counts entries that left the cache for any reason.
	Evictions int64
}

// HitRatio returns Hits/Requests, or 0 before the first request.
func (s Stats) HitRatio() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Requests)
}

// counters are updated concurrently from every cache operation; each sits
// on its own cache line.
type counters struct {
	requests    util.PaddedAtomicInt64
	hits        util.PaddedAtomicInt64
	singleNanos util.PaddedAtomicInt64

	batches    util.PaddedAtomicInt64
	batchKeys  util.PaddedAtomicInt64
	batchNanos util.PaddedAtomicInt64

	evictions util.PaddedAtomicInt64
}

func (c *counters) observeSingle(d time.Duration) { c.singleNanos.Add(int64(d)) }

func (c *counters) observeBatch(keys int, d time.Duration) {
	c.batches.Add(1)
	c.batchKeys.Add(int64(keys))
	c.batchNanos.Add(int64(d))
}

func (c *counters) snapshot(items int) Stats {
	s := Stats{
		Requests:      c.requests.Load(),
		Hits:          c.hits.Load(),
		ItemsInCache:  items,
		BatchRequests: c.batches.Load(),
		Evictions:     c.evictions.Load(),
	}
	if s.Requests > 0 {
		s.AverageSingleRetrieval = time.Duration(c.singleNanos.Load() / s.Requests)
	}
	if s.BatchRequests > 0 {
		s.AverageBatchSize = int(c.batchKeys.Load() / s.BatchRequests)
		s.AverageBatchRetrieval = time.Duration(c.batchNanos.Load() / s.BatchRequests)
	}
	return s
}
