// Package keylock provides a table of per-key mutual-exclusion handles.
//
// Handles are created lazily on first use of a key and dropped from the table
// as soon as no goroutine holds or waits for them, so the table size tracks
// the number of keys currently in contention rather than every key ever seen.
//
// Each handle is a weighted semaphore of size one, which gives context-aware
// acquisition: a caller with a deadline stops waiting when it expires and
// leaves no state behind.
//
// The table is split into shards by key hash, each with its own mutex, so
// handle bookkeeping for unrelated keys rarely contends.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/flightcache/internal/util"
)

const tableShards = 64

// Table maps keys to lock handles. The zero value is ready to use.
type Table[K comparable] struct {
	shards [tableShards]tableShard[K]
}

type tableShard[K comparable] struct {
	mu sync.Mutex
	m  map[K]*handle
	_  util.CacheLinePad
}

type handle struct {
	sem *semaphore.Weighted
	// refs counts holders plus waiters; guarded by the owning shard's mu.
	refs int
}

// Guard is a held lock. Release must be called exactly once.
type Guard[K comparable] struct {
	t *Table[K]
	k K
	h *handle
}

// Acquire blocks until the lock for k is held or ctx is done. On ctx expiry
// it returns ctx.Err() and the lock is not held.
func (t *Table[K]) Acquire(ctx context.Context, k K) (Guard[K], error) {
	h := t.ref(k)
	if err := h.sem.Acquire(ctx, 1); err != nil {
		t.unref(k, h)
		return Guard[K]{}, err
	}
	return Guard[K]{t: t, k: k, h: h}, nil
}

// TryAcquire takes the lock for k only if it is free right now.
func (t *Table[K]) TryAcquire(k K) (Guard[K], bool) {
	h := t.ref(k)
	if !h.sem.TryAcquire(1) {
		t.unref(k, h)
		return Guard[K]{}, false
	}
	return Guard[K]{t: t, k: k, h: h}, true
}

// Release unlocks and drops the handle from the table once uncontended.
func (g Guard[K]) Release() {
	g.h.sem.Release(1)
	g.t.unref(g.k, g.h)
}

// Key returns the key this guard locks.
func (g Guard[K]) Key() K { return g.k }

// Len reports how many handles are currently issued.
func (t *Table[K]) Len() int {
	total := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		total += len(sh.m)
		sh.mu.Unlock()
	}
	return total
}

func (t *Table[K]) shardFor(k K) *tableShard[K] {
	return &t.shards[util.ShardIndex(util.Hash64(k), tableShards)]
}

func (t *Table[K]) ref(k K) *handle {
	sh := t.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.m == nil {
		sh.m = make(map[K]*handle)
	}
	h, ok := sh.m[k]
	if !ok {
		h = &handle{sem: semaphore.NewWeighted(1)}
		sh.m[k] = h
	}
	h.refs++
	return h
}

func (t *Table[K]) unref(k K, h *handle) {
	sh := t.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	h.refs--
	if h.refs == 0 && sh.m[k] == h {
		delete(sh.m, k)
	}
}
