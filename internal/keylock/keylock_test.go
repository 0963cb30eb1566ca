package keylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// Holders of the same key are strictly serialized.
func TestTable_SerializesSameKey(t *testing.T) {
	t.Parallel()

	var tbl Table[string]
	var inside, maxInside int32

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			l, err := tbl.Acquire(context.Background(), "k")
			if err != nil {
				return err
			}
			defer l.Release()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&inside, -1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
}

// Disjoint keys never block each other.
func TestTable_DisjointKeysIndependent(t *testing.T) {
	t.Parallel()

	var tbl Table[int]
	a, err := tbl.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()

	b, ok := tbl.TryAcquire(2)
	if !ok {
		t.Fatal("key 2 must be free while key 1 is held")
	}
	b.Release()

	if _, ok := tbl.TryAcquire(1); ok {
		t.Fatal("key 1 must be busy")
	}
}

// A waiter whose deadline passes gives up without holding the lock and
// without leaking a handle.
func TestTable_AcquireDeadline(t *testing.T) {
	t.Parallel()

	var tbl Table[string]
	held, err := tbl.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := tbl.Acquire(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
	if n := tbl.Len(); n != 1 {
		t.Fatalf("only the holder's handle should remain, got %d", n)
	}

	held.Release()
	if n := tbl.Len(); n != 0 {
		t.Fatalf("handles must be reclaimed once uncontended, got %d", n)
	}
}

// After heavy contention on many keys the table drains back to empty.
func TestTable_ReclaimsHandles(t *testing.T) {
	t.Parallel()

	var tbl Table[int]
	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l, err := tbl.Acquire(context.Background(), (id+i)%8)
				if err != nil {
					t.Error(err)
					return
				}
				l.Release()
			}
		}(w)
	}
	wg.Wait()

	if n := tbl.Len(); n != 0 {
		t.Fatalf("Len = %d after all releases, want 0", n)
	}
}

// Handles spread over the table shards are all counted and all reclaimed.
func TestTable_ShardedBookkeeping(t *testing.T) {
	t.Parallel()

	var tbl Table[int]
	guards := make([]Guard[int], 0, 256)
	shards := map[*tableShard[int]]bool{}
	for k := 0; k < 256; k++ {
		g, ok := tbl.TryAcquire(k)
		if !ok {
			t.Fatalf("TryAcquire(%d) failed on a fresh table", k)
		}
		guards = append(guards, g)
		shards[tbl.shardFor(k)] = true
	}
	if len(shards) < 2 {
		t.Fatalf("256 keys landed in %d shard(s)", len(shards))
	}
	if n := tbl.Len(); n != 256 {
		t.Fatalf("Len = %d, want 256", n)
	}
	if _, ok := tbl.TryAcquire(42); ok {
		t.Fatal("TryAcquire on a held key must fail")
	}

	for _, g := range guards {
		g.Release()
	}
	if n := tbl.Len(); n != 0 {
		t.Fatalf("Len = %d after release, want 0", n)
	}
}
