package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/flightcache/policy"
	"github.com/IvanBrykalov/flightcache/policy/absolute"
	"github.com/IvanBrykalov/flightcache/policy/sliding"
)

type fakeClock struct{ t atomic.Int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

type evictLog[K comparable, V any] struct {
	mu      sync.Mutex
	entries []Entry[K, V]
	reasons []EvictReason
}

func (l *evictLog[K, V]) record(e Entry[K, V], r EvictReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	l.reasons = append(l.reasons, r)
}

func (l *evictLog[K, V]) snapshot() ([]Entry[K, V], []EvictReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry[K, V](nil), l.entries...), append([]EvictReason(nil), l.reasons...)
}

// Add inserts only when absent; Remove reports the reason it was given.
func TestStore_AddGetRemove(t *testing.T) {
	t.Parallel()

	var log evictLog[string, int]
	s := New[string, int](Options[string, int]{Shards: 4, OnEvict: log.record})
	t.Cleanup(func() { _ = s.Close() })

	if !s.Add("a", 1, policy.Never()) {
		t.Fatal("Add a must succeed")
	}
	if s.Add("a", 2, policy.Never()) {
		t.Fatal("Add over a live entry must fail")
	}
	if v, ok := s.Get("a"); !ok || v != 1 {
		t.Fatalf("Get a = %v,%v want 1,true", v, ok)
	}
	if !s.Remove("a", EvictUnreferenced) {
		t.Fatal("Remove a must succeed")
	}
	if s.Remove("a", EvictRemoved) {
		t.Fatal("second Remove must report false")
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}

	entries, reasons := log.snapshot()
	if len(entries) != 1 || entries[0].Key != "a" || entries[0].Value != 1 || reasons[0] != EvictUnreferenced {
		t.Fatalf("unexpected callbacks: %+v %v", entries, reasons)
	}
}

// Sliding entries survive as long as they are read within the window.
func TestStore_SlidingRefreshOnGet(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[string, string](Options[string, string]{Clock: clk})
	t.Cleanup(func() { _ = s.Close() })

	s.Add("k", "v", sliding.New(100*time.Millisecond))
	for i := 0; i < 5; i++ {
		clk.add(80 * time.Millisecond)
		if _, ok := s.Get("k"); !ok {
			t.Fatalf("read %d: sliding entry expired despite access", i)
		}
	}

	// Contains does not refresh the window.
	clk.add(80 * time.Millisecond)
	if !s.Contains("k") {
		t.Fatal("still inside window")
	}
	clk.add(30 * time.Millisecond)
	if s.Contains("k") {
		t.Fatal("window passed, entry must be gone")
	}
}

// Absolute entries expire on schedule no matter how often they are read,
// and the callback fires exactly once.
func TestStore_AbsoluteExpiryFiresOnce(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var log evictLog[int, string]
	s := New[int, string](Options[int, string]{Clock: clk, OnEvict: log.record})
	t.Cleanup(func() { _ = s.Close() })

	s.Add(1, "x", absolute.After(50*time.Millisecond))
	clk.add(40 * time.Millisecond)
	if _, ok := s.Get(1); !ok {
		t.Fatal("fresh miss")
	}
	clk.add(20 * time.Millisecond)
	if _, ok := s.Get(1); ok {
		t.Fatal("expired hit")
	}
	if s.Contains(1) || s.Remove(1, EvictRemoved) {
		t.Fatal("expired entry must not be visible")
	}

	_, reasons := log.snapshot()
	if len(reasons) != 1 || reasons[0] != EvictExpired {
		t.Fatalf("want one EvictExpired callback, got %v", reasons)
	}

	// An expired slot can be reused.
	if !s.Add(1, "y", policy.Never()) {
		t.Fatal("Add after expiry must succeed")
	}
}

// The background scan drops entries that are never read again.
func TestStore_BackgroundScan(t *testing.T) {
	t.Parallel()

	var evicted atomic.Int32
	s := New[string, int](Options[string, int]{
		ScanInterval: 10 * time.Millisecond,
		OnEvict:      func(Entry[string, int], EvictReason) { evicted.Add(1) },
	})
	t.Cleanup(func() { _ = s.Close() })

	for i, k := range []string{"a", "b", "c"} {
		s.Add(k, i, absolute.After(5*time.Millisecond))
	}
	s.Add("keep", 9, policy.Never())

	deadline := time.Now().Add(2 * time.Second)
	for evicted.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := evicted.Load(); got != 3 {
		t.Fatalf("evicted = %d, want 3", got)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

// A panicking callback does not break the store.
func TestStore_CallbackPanicRecovered(t *testing.T) {
	t.Parallel()

	s := New[string, int](Options[string, int]{
		OnEvict: func(Entry[string, int], EvictReason) { panic("boom") },
	})
	t.Cleanup(func() { _ = s.Close() })

	s.Add("a", 1, policy.Never())
	if !s.Remove("a", EvictRemoved) {
		t.Fatal("Remove must still succeed")
	}
	if !s.Add("a", 2, policy.Never()) {
		t.Fatal("store must stay usable")
	}
}

// Concurrent expiry detection never reports the same entry twice.
func TestStore_ConcurrentExpiryExactlyOnce(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var evicted atomic.Int32
	s := New[int, int](Options[int, int]{
		Clock:   clk,
		OnEvict: func(Entry[int, int], EvictReason) { evicted.Add(1) },
	})
	t.Cleanup(func() { _ = s.Close() })

	const keys = 64
	for i := 0; i < keys; i++ {
		s.Add(i, i, absolute.After(time.Millisecond))
	}
	clk.add(time.Second)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				switch w % 3 {
				case 0:
					s.Get(i)
				case 1:
					s.Contains(i)
				default:
					s.ScanExpired()
				}
			}
		}(w)
	}
	wg.Wait()

	if got := evicted.Load(); got != keys {
		t.Fatalf("callbacks = %d, want %d", got, keys)
	}
}

// RemoveIf evaluates its condition even for absent keys and removes only
// when the condition holds.
func TestStore_RemoveIf(t *testing.T) {
	t.Parallel()

	var log evictLog[string, int]
	s := New[string, int](Options[string, int]{Shards: 2, OnEvict: log.record})
	t.Cleanup(func() { _ = s.Close() })

	s.Add("a", 1, policy.Never())

	if held, removed := s.RemoveIf("a", EvictUnreferenced, func() bool { return false }); held || removed {
		t.Fatalf("false condition: held=%v removed=%v", held, removed)
	}
	if _, ok := s.Get("a"); !ok {
		t.Fatal("entry must survive a false condition")
	}

	calls := 0
	if held, removed := s.RemoveIf("missing", EvictUnreferenced, func() bool { calls++; return true }); !held || removed {
		t.Fatalf("absent key: held=%v removed=%v", held, removed)
	}
	if calls != 1 {
		t.Fatalf("condition ran %d times for an absent key, want 1", calls)
	}

	if held, removed := s.RemoveIf("a", EvictUnreferenced, func() bool { return true }); !held || !removed {
		t.Fatalf("true condition: held=%v removed=%v", held, removed)
	}
	if _, reasons := log.snapshot(); len(reasons) != 1 || reasons[0] != EvictUnreferenced {
		t.Fatalf("reasons = %v, want [unreferenced]", reasons)
	}
}
