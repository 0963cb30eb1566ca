package store

import "sync"

// shard is an independent partition of the store with its own lock and map.
// Methods that drop an entry return it so the caller can fire callbacks
// after the lock is released.
type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]*node[K, V]
}

func newShard[K comparable, V any]() *shard[K, V] {
	return &shard[K, V]{m: make(map[K]*node[K, V])}
}

// get returns the value and refreshes the deadline. An expired entry is
// deleted and returned as the third result.
func (s *shard[K, V]) get(k K, now int64) (v V, ok bool, expired *node[K, V]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return v, false, nil
	}
	if n.expired(now) {
		delete(s.m, k)
		return v, false, n
	}
	n.exp = n.pol.Touch(now, n.exp)
	return n.val, true, nil
}

func (s *shard[K, V]) contains(k K, now int64) (bool, *node[K, V]) {
	s.mu.RLock()
	n, ok := s.m[k]
	live := ok && !n.expired(now)
	s.mu.RUnlock()
	if !ok || live {
		return live, nil
	}

	// Expired: upgrade and delete unless someone replaced it meanwhile.
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[k]; ok && cur == n {
		delete(s.m, k)
		return false, n
	}
	return false, nil
}

// add inserts n unless a live entry exists for its key.
func (s *shard[K, V]) add(n *node[K, V], now int64) (bool, *node[K, V]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.m[n.key]
	if exists && !old.expired(now) {
		return false, nil
	}
	s.m[n.key] = n
	if exists {
		return true, old
	}
	return true, nil
}

// remove deletes k. The second result reports that the entry had already
// expired, in which case it does not count as a removal.
func (s *shard[K, V]) remove(k K, now int64) (*node[K, V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return nil, false
	}
	delete(s.m, k)
	return n, n.expired(now)
}

// removeIf is remove guarded by cond, evaluated under the write lock.
func (s *shard[K, V]) removeIf(k K, now int64, cond func() bool) (n *node[K, V], expired, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cond() {
		return nil, false, false
	}
	n, ok := s.m[k]
	if !ok {
		return nil, false, true
	}
	delete(s.m, k)
	return n, n.expired(now), true
}

func (s *shard[K, V]) collectExpired(now int64) []*node[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*node[K, V]
	for k, n := range s.m {
		if n.expired(now) {
			delete(s.m, k)
			out = append(out, n)
		}
	}
	return out
}

func (s *shard[K, V]) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
