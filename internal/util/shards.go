package util

import "runtime"

// maxShards caps the automatic shard count; more shards stop paying off
// long before this and only cost memory.
const maxShards = 256

// ReasonableShardCount returns nextPow2(2*GOMAXPROCS) clamped to [1..256].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	return ShardCount(2 * p)
}

// ShardCount rounds a requested shard count up to a power of two and clamps
// it to [1..256]. Non-positive input selects ReasonableShardCount.
func ShardCount(n int) int {
	if n <= 0 {
		return ReasonableShardCount()
	}
	s := int(NextPow2(uint64(n)))
	if s > maxShards {
		s = maxShards
	}
	return s
}

// ShardIndex maps a hash onto one of shards slots. shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int(hash & uint64(shards-1))
}

// NextPow2 returns the smallest power of two >= x (1 for x == 0,
// clamped to 1<<63 on overflow).
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	if x == 0 {
		return 1 << 63
	}
	return x
}
