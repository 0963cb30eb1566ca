package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/flightcache/internal/util"
	"github.com/IvanBrykalov/flightcache/policy"
)

// EvictReason explains why an entry left the store.
type EvictReason int

const (
	// EvictRemoved: explicit removal by a caller.
	EvictRemoved EvictReason = iota
	// EvictExpired: the entry's policy deadline passed.
	EvictExpired
	// EvictUnreferenced: dropped by a reference-count sweep.
	EvictUnreferenced
)

// String returns a stable lowercase label, suitable for metrics.
func (r EvictReason) String() string {
	switch r {
	case EvictRemoved:
		return "removed"
	case EvictExpired:
		return "expired"
	case EvictUnreferenced:
		return "unreferenced"
	default:
		return "unknown"
	}
}

// Entry is a resident key/value pair as reported to eviction callbacks.
type Entry[K comparable, V any] struct {
	Key        K
	Value      V
	InsertedAt time.Time
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Store is an associative map with per-entry expiry. Single-key operations
// are atomic; Store does no multi-key coordination.
type Store[K comparable, V any] interface {
	// Get returns the value for k. A hit moves the entry's deadline according
	// to the policy it was inserted with; an expired entry is evicted and
	// reported as a miss.
	Get(k K) (V, bool)

	// Contains reports whether k is resident and unexpired without
	// refreshing its deadline.
	Contains(k K) bool

	// Add inserts k→v under p if k is absent (or present but expired).
	// Returns false if a live entry already exists.
	Add(k K, v V, p policy.Policy) bool

	// Remove deletes k and reports it to OnEvict with reason.
	// Returns false if k was not resident or had already expired (the
	// latter is reported to OnEvict as EvictExpired).
	Remove(k K, reason EvictReason) bool

	// RemoveIf runs cond under the lock of k's shard and, if it returns
	// true, removes k like Remove. cond runs whether or not k is resident,
	// and no Get of k can observe the entry once cond has returned true.
	// Returns whether cond held and whether a live entry was removed.
	RemoveIf(k K, reason EvictReason, cond func() bool) (held, removed bool)

	// ScanExpired evicts every expired entry and returns how many were dropped.
	ScanExpired() int

	// Len returns the number of resident entries (expired entries that have
	// not been scanned yet included).
	Len() int

	// Close stops the background expiry scan.
	Close() error
}

// Options configures a sharded store. Zero values are safe.
type Options[K comparable, V any] struct {
	// Shards is rounded up to a power of two; 0 picks a value from GOMAXPROCS.
	Shards int

	// ScanInterval is the period of the background expiry scan.
	// 0 disables the scan; expired entries are then dropped lazily on read.
	ScanInterval time.Duration

	// OnEvict is called once per entry leaving the store, after the shard
	// lock is released.
	OnEvict func(e Entry[K, V], reason EvictReason)

	// Clock overrides the time source. Nil => time.Now().
	Clock Clock

	// Logger receives debug output from the expiry scan. Nil => no-op.
	Logger *zap.Logger
}

type sharded[K comparable, V any] struct {
	shards []*shard[K, V]
	opt    Options[K, V]
	log    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds an in-memory sharded Store and starts its expiry scan if
// opt.ScanInterval is positive.
func New[K comparable, V any](opt Options[K, V]) Store[K, V] {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	n := util.ShardCount(opt.Shards)
	s := &sharded[K, V]{
		shards: make([]*shard[K, V], n),
		opt:    opt,
		log:    opt.Logger.Named("store"),
	}
	for i := range s.shards {
		s.shards[i] = newShard[K, V]()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if opt.ScanInterval > 0 {
		s.wg.Add(1)
		go s.expiryLoop(ctx, opt.ScanInterval)
	}
	return s
}

func (s *sharded[K, V]) Get(k K) (V, bool) {
	now := s.now()
	v, ok, expired := s.shardFor(k).get(k, now)
	if expired != nil {
		s.notify(expired, EvictExpired)
	}
	return v, ok
}

func (s *sharded[K, V]) Contains(k K) bool {
	ok, expired := s.shardFor(k).contains(k, s.now())
	if expired != nil {
		s.notify(expired, EvictExpired)
	}
	return ok
}

func (s *sharded[K, V]) Add(k K, v V, p policy.Policy) bool {
	if p == nil {
		p = policy.Never()
	}
	now := s.now()
	n := &node[K, V]{key: k, val: v, pol: p, inserted: now, exp: p.Deadline(now)}
	added, expired := s.shardFor(k).add(n, now)
	if expired != nil {
		s.notify(expired, EvictExpired)
	}
	return added
}

func (s *sharded[K, V]) Remove(k K, reason EvictReason) bool {
	n, expired := s.shardFor(k).remove(k, s.now())
	switch {
	case n == nil:
		return false
	case expired:
		s.notify(n, EvictExpired)
		return false
	}
	s.notify(n, reason)
	return true
}

func (s *sharded[K, V]) RemoveIf(k K, reason EvictReason, cond func() bool) (bool, bool) {
	n, expired, held := s.shardFor(k).removeIf(k, s.now(), cond)
	switch {
	case n == nil:
		return held, false
	case expired:
		s.notify(n, EvictExpired)
		return held, false
	}
	s.notify(n, reason)
	return held, true
}

func (s *sharded[K, V]) ScanExpired() int {
	now := s.now()
	total := 0
	for _, sh := range s.shards {
		for _, n := range sh.collectExpired(now) {
			s.notify(n, EvictExpired)
			total++
		}
	}
	return total
}

func (s *sharded[K, V]) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.size()
	}
	return total
}

func (s *sharded[K, V]) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// expiryLoop periodically evicts expired entries so that entries nobody reads
// again still leave the store and fire their callbacks.
func (s *sharded[K, V]) expiryLoop(ctx context.Context, every time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.ScanExpired(); n > 0 {
				s.log.Debug("expired entries scanned", zap.Int("evicted", n), zap.Int("resident", s.Len()))
			}
		}
	}
}

func (s *sharded[K, V]) shardFor(k K) *shard[K, V] {
	return s.shards[util.ShardIndex(util.Hash64(k), len(s.shards))]
}

func (s *sharded[K, V]) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// notify runs OnEvict outside shard locks. A panicking callback is logged and
// swallowed so it cannot take down a sweep or a caller's Get.
func (s *sharded[K, V]) notify(n *node[K, V], reason EvictReason) {
	cb := s.opt.OnEvict
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("eviction callback panicked",
				zap.Any("key", n.key), zap.Stringer("reason", reason), zap.Any("panic", r))
		}
	}()
	cb(n.entry(), reason)
}
