// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Hash64 hashes a key with 64-bit FNV-1a. It is used both to pick a store
// shard and to order per-key locks when a batch acquires many of them.
//
// Strings, integers, floats and pointers are hashed without allocation.
// fmt.Stringer keys hash their String form. Any other comparable key
// (structs, arrays, channels) hashes its %#v rendering; pointers inside
// such keys render as addresses, so equal keys hash equally. The one
// exception is a float field holding -0, which renders apart from +0.
func Hash64[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return fnvString(v)
	case int:
		return fnvUint64(uint64(v))
	case int8:
		return fnvUint64(uint64(uint8(v)))
	case int16:
		return fnvUint64(uint64(uint16(v)))
	case int32:
		return fnvUint64(uint64(uint32(v)))
	case int64:
		return fnvUint64(uint64(v))
	case uint:
		return fnvUint64(uint64(v))
	case uint8:
		return fnvUint64(uint64(v))
	case uint16:
		return fnvUint64(uint64(v))
	case uint32:
		return fnvUint64(uint64(v))
	case uint64:
		return fnvUint64(v)
	case uintptr:
		return fnvUint64(uint64(v))
	case float32:
		return fnvFloat(float64(v))
	case float64:
		return fnvFloat(v)
	case bool:
		return fnvString(strconv.FormatBool(v))
	case fmt.Stringer:
		return fnvString(v.String())
	case nil:
		return fnvOffset64
	}

	rv := reflect.ValueOf(k)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		// identity, not the pointee: the pointee may change
		return fnvUint64(uint64(rv.Pointer()))
	default:
		return fnvString(fmt.Sprintf("%#v", k))
	}
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

func fnvString(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

// fnvFloat hashes the bits of f with -0 folded into +0, since they compare equal.
func fnvFloat(f float64) uint64 {
	if f == 0 {
		f = 0
	}
	return fnvUint64(math.Float64bits(f))
}

// fnvUint64 hashes the 8 little-endian bytes of u.
func fnvUint64(u uint64) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}
