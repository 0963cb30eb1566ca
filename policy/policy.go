// Package policy defines how long a cached entry stays resident.
//
// A Policy turns the current time into an absolute deadline (UnixNano) when an
// entry is inserted and may push that deadline forward when the entry is read.
// The store owns the deadline and compares it against its clock; the policy
// only computes it. A deadline of 0 means the entry never expires.
//
// Implementations live in sub-packages:
//   - sliding:  the deadline moves to now+ttl on every hit
//   - absolute: the deadline is fixed at insertion and never moves
package policy

// Policy computes entry deadlines. Implementations must be safe for
// concurrent use; they are called under store shard locks, so keep them cheap.
type Policy interface {
	// Deadline returns the deadline for an entry inserted at now.
	Deadline(now int64) int64
	// Touch returns the deadline for an entry read at now whose current
	// deadline is cur.
	Touch(now, cur int64) int64
}

// Never returns a Policy whose entries never expire; they leave the cache
// only through explicit removal or a reference-count sweep.
func Never() Policy { return never{} }

type never struct{}

func (never) Deadline(int64) int64     { return 0 }
func (never) Touch(_, cur int64) int64 { return cur }
