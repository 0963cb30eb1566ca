// Package sliding implements sliding expiration: an entry expires ttl after
// its last access.
package sliding

import (
	"time"

	"github.com/IvanBrykalov/flightcache/policy"
)

type sliding struct {
	ttl int64
}

// New returns a sliding expiration policy. A non-positive ttl disables
// expiration, matching policy.Never.
func New(ttl time.Duration) policy.Policy {
	if ttl <= 0 {
		return policy.Never()
	}
	return sliding{ttl: int64(ttl)}
}

// Deadline starts the window at insertion.
func (p sliding) Deadline(now int64) int64 { return now + p.ttl }

// Touch restarts the window on every hit.
func (p sliding) Touch(now, _ int64) int64 { return now + p.ttl }
