package cache

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkGet measures Get against a warm cache where hitPct of lookups
// land on resident keys and the rest go through the per-key lock and loader.
func benchmarkGet(b *testing.B, hitPct int) {
	c := New[int, string](Options[int, string]{
		Policy:             never[int, string](),
		Loader:             func(_ context.Context, k int) (string, error) { return strconv.Itoa(k), nil },
		ExpiryScanInterval: -1,
	})
	b.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	const warm = 1 << 16
	for i := 0; i < warm; i++ {
		_, _ = c.Get(ctx, i)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var next atomic.Int64
	next.Store(warm)
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			k := i & (warm - 1)
			if i%100 >= hitPct {
				k = int(next.Add(1)) // fresh key => miss
			}
			_, _ = c.Get(ctx, k)
			i++
		}
	})
}

func BenchmarkGet_AllHits(b *testing.B) { benchmarkGet(b, 100) }
func BenchmarkGet_90Hits(b *testing.B)  { benchmarkGet(b, 90) }

func BenchmarkBatchGet_16(b *testing.B) {
	c := New[int, int](Options[int, int]{
		Policy: never[int, int](),
		BatchLoader: func(_ context.Context, keys []int) (map[int]int, error) {
			out := make(map[int]int, len(keys))
			for _, k := range keys {
				out[k] = k
			}
			return out, nil
		},
		ExpiryScanInterval: -1,
	})
	b.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	keys := make([]int, 16)
	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		for i := range keys {
			keys[i] = (n*16 + i) % 4096
		}
		_, _ = c.BatchGet(ctx, keys)
	}
}
