// Package absolute implements absolute expiration: the deadline is fixed when
// the entry is inserted and reads never extend it.
package absolute

import (
	"time"

	"github.com/IvanBrykalov/flightcache/policy"
)

type at struct{ deadline int64 }

type after struct{ ttl int64 }

// At expires every entry at the fixed instant t, regardless of when it was
// inserted. Entries inserted after t are already expired.
func At(t time.Time) policy.Policy { return at{deadline: t.UnixNano()} }

// After expires each entry ttl after its own insertion. A non-positive ttl
// disables expiration.
func After(ttl time.Duration) policy.Policy {
	if ttl <= 0 {
		return policy.Never()
	}
	return after{ttl: int64(ttl)}
}

func (p at) Deadline(int64) int64     { return p.deadline }
func (p at) Touch(_, cur int64) int64 { return cur }

func (p after) Deadline(now int64) int64 { return now + p.ttl }
func (p after) Touch(_, cur int64) int64 { return cur }
