package util

import (
	"math"
	"testing"
)

func TestNextPow2(t *testing.T) {
	t.Parallel()

	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 17: 32, 1 << 40: 1 << 40}
	for in, want := range cases {
		if got := NextPow2(in); got != want {
			t.Fatalf("NextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestShardCount_ClampsAndRounds(t *testing.T) {
	t.Parallel()

	if got := ShardCount(5); got != 8 {
		t.Fatalf("ShardCount(5) = %d, want 8", got)
	}
	if got := ShardCount(10_000); got != maxShards {
		t.Fatalf("ShardCount(10000) = %d, want %d", got, maxShards)
	}
	if got := ShardCount(0); got != ReasonableShardCount() {
		t.Fatalf("ShardCount(0) = %d, want auto %d", got, ReasonableShardCount())
	}
}

// Equal keys hash equally across the string and integer fast paths.
func TestHash64_Stable(t *testing.T) {
	t.Parallel()

	if Hash64("12") != Hash64("12") {
		t.Fatal("string hash not stable")
	}
	if Hash64(12) == Hash64(13) {
		t.Fatal("adjacent ints collide")
	}
	if Hash64(int64(7)) != Hash64(uint64(7)) {
		t.Fatal("int64/uint64 of the same value must hash the same bytes")
	}
	if idx := ShardIndex(Hash64("k"), 16); idx < 0 || idx >= 16 {
		t.Fatalf("ShardIndex out of range: %d", idx)
	}
}

type point struct {
	X, Y int
	Tag  string
}

// Keys outside the fast paths hash by value (structs, floats) or identity
// (pointers) instead of panicking.
func TestHash64_OtherComparableKeys(t *testing.T) {
	t.Parallel()

	if Hash64(point{1, 2, "a"}) != Hash64(point{1, 2, "a"}) {
		t.Fatal("equal structs must hash equally")
	}
	if Hash64(point{1, 2, "a"}) == Hash64(point{2, 1, "a"}) {
		t.Fatal("different structs collide")
	}
	if Hash64(1.5) == Hash64(2.5) {
		t.Fatal("different floats collide")
	}
	if Hash64(0.0) != Hash64(math.Copysign(0, -1)) {
		t.Fatal("+0 and -0 are equal keys and must hash equally")
	}
	if Hash64([2]int{1, 2}) != Hash64([2]int{1, 2}) {
		t.Fatal("equal arrays must hash equally")
	}

	p := &point{X: 1}
	before := Hash64(p)
	p.X = 2
	if Hash64(p) != before {
		t.Fatal("pointer keys must hash by identity")
	}

	var k any
	if Hash64(k) != Hash64(k) {
		t.Fatal("nil interface key must hash")
	}
}
