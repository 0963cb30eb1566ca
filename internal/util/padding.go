package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is the assumed CPU cache line width.
const CacheLineSize = 64

// CacheLinePad separates groups of hot fields onto distinct cache lines.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// PaddedAtomicInt64 is an atomic int64 occupying a full cache line, so
// counters bumped by different goroutines do not false-share.
type PaddedAtomicInt64 struct {
	atomic.Int64
	_ [CacheLineSize - 8]byte
}

// compile-time size check
var _ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicInt64{}))]byte
