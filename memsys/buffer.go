package memsys

import (
	"sync/atomic"
	"time"

	"github.com/nebulastream/nes-runtime/cmn/debug"
	"github.com/nebulastream/nes-runtime/cmn/mono"
)

// TupleBuffer is the reference-counted handle to a pinned memory segment plus its
// per-buffer metadata (§3 "Tuple buffer"). Copying raises the refcount (Retain);
// dropping lowers it (Release); at zero the owning segment's recycler runs exactly
// once. While refcount > 0 the backing address never moves.
type TupleBuffer struct {
	seg *segment

	payloadSize    int
	numberOfTuples uint64

	originID       uint64
	sequenceNumber uint64
	chunkNumber    uint64
	lastChunk      bool
	watermark      uint64 // ms
	creationTS     int64  // mono ns, for ordering only; wire format carries µs wall-clock

	children []*TupleBuffer
}

// newTupleBuffer wraps seg as a fresh, singly-referenced buffer. The caller (a pool)
// is the sole owner of seg at this point and is responsible for clearing it first if
// the allocation contract requires a cleared buffer (getBufferBlocking et al. do).
func newTupleBuffer(seg *segment) *TupleBuffer {
	atomic.StoreInt32(&seg.refcount, 1)
	return &TupleBuffer{seg: seg, creationTS: mono.NanoTime(), chunkNumber: 1}
}

// Retain increments the refcount; §3's "copy raises count" primitive. Every holder
// of a *TupleBuffer that wants to outlive the caller's scope (a worker enqueuing a
// buffer to two downstream pipelines, say) must Retain before handing out a second
// reference.
func (b *TupleBuffer) Retain() {
	n := atomic.AddInt32(&b.seg.refcount, 1)
	debug.Assert(n > 1, "retain on a buffer with refcount <= 0")
}

// Release decrements the refcount; at zero it invokes the owning segment's recycler
// exactly once (§3 invariant).
func (b *TupleBuffer) Release() {
	n := atomic.AddInt32(&b.seg.refcount, -1)
	debug.Assert(n >= 0, "refcount underflow")
	if n == 0 {
		b.seg.owner.recycle(b.seg)
	}
}

// RefCount reports the current reference count; used by pool destruction checks
// (P1) and tests, never for control flow on the hot path.
func (b *TupleBuffer) RefCount() int32 { return atomic.LoadInt32(&b.seg.refcount) }

// Capacity returns the fixed size of the backing segment.
func (b *TupleBuffer) Capacity() int { return len(b.seg.data) }

// PayloadPtr returns the writable payload region, sized to the buffer's declared
// PayloadSize if set, else the full segment.
func (b *TupleBuffer) PayloadPtr() []byte {
	if b.payloadSize == 0 {
		return b.seg.data
	}
	return b.seg.data[:b.payloadSize]
}

// Allocate reserves n bytes of the segment as this buffer's payload; it never fails
// after construction (§4.1) because the segment is already sized and owned.
func (b *TupleBuffer) Allocate(n int) {
	debug.Assert(n <= len(b.seg.data), "allocate exceeds segment capacity")
	b.payloadSize = n
}

func (b *TupleBuffer) PayloadSize() int           { return b.payloadSize }
func (b *TupleBuffer) NumberOfTuples() uint64      { return b.numberOfTuples }
func (b *TupleBuffer) SetNumberOfTuples(n uint64)  { b.numberOfTuples = n }
func (b *TupleBuffer) OriginID() uint64            { return b.originID }
func (b *TupleBuffer) SetOriginID(id uint64)        { b.originID = id }
func (b *TupleBuffer) SequenceNumber() uint64       { return b.sequenceNumber }
func (b *TupleBuffer) SetSequenceNumber(n uint64)   { b.sequenceNumber = n }
func (b *TupleBuffer) ChunkNumber() uint64          { return b.chunkNumber }
func (b *TupleBuffer) SetChunkNumber(n uint64)      { debug.Assert(n >= 1, "chunkNumber must be >= 1"); b.chunkNumber = n }
func (b *TupleBuffer) LastChunk() bool              { return b.lastChunk }
func (b *TupleBuffer) SetLastChunk(v bool)           { b.lastChunk = v }
func (b *TupleBuffer) Watermark() uint64             { return b.watermark }
func (b *TupleBuffer) SetWatermark(ms uint64)        { b.watermark = ms }
func (b *TupleBuffer) CreationTimestamp() int64      { return b.creationTS }

// AddChildBuffer attaches a nested buffer handle (variable-length payload spillover,
// §3) and returns its index for later retrieval. The child's own refcount is
// retained for the lifetime of the parent.
func (b *TupleBuffer) AddChildBuffer(child *TupleBuffer) int {
	child.Retain()
	b.children = append(b.children, child)
	return len(b.children) - 1
}

// ChildBuffer returns the child buffer registered at index, or nil if out of range.
func (b *TupleBuffer) ChildBuffer(index int) *TupleBuffer {
	if index < 0 || index >= len(b.children) {
		return nil
	}
	return b.children[index]
}

func (b *TupleBuffer) ChildBufferCount() int { return len(b.children) }

// creationWallClock is recomputed at wire-serialization time since the monotonic
// creationTS above is only comparable within one process.
func creationWallClock() uint64 {
	return uint64(time.Now().UnixMicro())
}
