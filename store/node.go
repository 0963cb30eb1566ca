package store

import (
	"time"

	"github.com/IvanBrykalov/flightcache/policy"
)

// node is a resident entry plus the bookkeeping needed for expiry.
type node[K comparable, V any] struct {
	key K
	val V

	// Absolute expiration deadline in UnixNano. Zero means "never".
	exp int64
	// Insertion time in UnixNano.
	inserted int64

	// pol moves exp forward on hits (sliding) or leaves it alone.
	pol policy.Policy
}

func (n *node[K, V]) expired(now int64) bool {
	return n.exp != 0 && now >= n.exp
}

func (n *node[K, V]) entry() Entry[K, V] {
	return Entry[K, V]{Key: n.key, Value: n.val, InsertedAt: time.Unix(0, n.inserted)}
}
