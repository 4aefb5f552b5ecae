// Package memsys implements the pinned, reference-counted memory pool (C2) and the
// tuple buffer handle (C1) that rides on top of it, generalizing the teacher's
// memsys.Slab/cluster.T.PageMM() pool-of-pages idiom (referenced from
// xact/xs/tcb.go: cluster.T.PageMM().GetSlab(memsys.MaxPageSlabSize)) to NebulaStream's
// fixed-size tuple buffer pool.
package memsys

import (
	"golang.org/x/sys/unix"
)

// pageSize bounds the alignment invariant (§4.2: alignment is a power of two ≤ page
// size).
var pageSize = unix.Getpagesize()

// recycler is invoked exactly once, when a buffer's refcount reaches zero. Pooled
// segments recycle back to their owning pool; unpooled segments recycle to the
// unpooled arena.
type recycler interface {
	recycle(seg *segment)
}

// segment is a contiguous, aligned byte region owned by a pool (§3 "Memory
// segment"): created once at pool initialization, destroyed only when the pool is
// destroyed, never per-buffer. Its refcount and recycler live alongside the bytes so
// that a TupleBuffer handle is just a pointer to one of these plus metadata.
type segment struct {
	data     []byte
	refcount int32 // managed exclusively via atomic ops in buffer.go
	owner    recycler
	pooled   bool
}

func newSegment(size, alignment int, owner recycler, pooled bool) *segment {
	buf := alignedAlloc(size, alignment)
	return &segment{data: buf, owner: owner, pooled: pooled}
}

// alignedAlloc returns a byte slice of len==size whose first element's address is a
// multiple of alignment. alignment must be a power of two no larger than the page
// size; Config.Validate enforces the former, NewBufferManager the latter.
func alignedAlloc(size, alignment int) []byte {
	if alignment <= 1 {
		return make([]byte, size)
	}
	raw := make([]byte, size+alignment)
	off := alignmentOffset(raw, alignment)
	return raw[off : off+size : off+size]
}

func alignmentOffset(b []byte, alignment int) int {
	if len(b) == 0 {
		return 0
	}
	addr := uintptrOf(b)
	rem := addr % uintptr(alignment)
	if rem == 0 {
		return 0
	}
	return int(uintptr(alignment) - rem)
}
