package memsys

import (
	"sync"

	"github.com/pierrec/lz4/v4"
)

const (
	// rollingAverageWindow mirrors the original's ROLLING_AVERAGE_UNPOOLED_BUFFER_SIZE.
	rollingAverageWindow = 100
	// preallocFactor mirrors the original's intent to roll a new chunk sized at a
	// multiple of the rolling average request size, amortizing allocator calls.
	preallocFactor = 2
	// compressionThreshold: idle unpooled segments at or above this size are
	// lz4-compressed at rest in the arena (DESIGN.md: C2/C10 lz4 wiring).
	compressionThreshold = 64 * 1024
)

// rollingAverage is a fixed-window moving average of recently requested unpooled
// buffer sizes, grounded on the original BufferManager.hpp's
// `folly::Synchronized<RollingAverage<size_t>> rollingAverage`.
type rollingAverage struct {
	mu      sync.Mutex
	samples [rollingAverageWindow]int
	count   int
	next    int
	sum     int
}

func (r *rollingAverage) add(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == rollingAverageWindow {
		r.sum -= r.samples[r.next]
	} else {
		r.count++
	}
	r.samples[r.next] = v
	r.sum += v
	r.next = (r.next + 1) % rollingAverageWindow
}

func (r *rollingAverage) mean() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0
	}
	return r.sum / r.count
}

// unpooledChunk is the free list for one size class of unpooled segments;
// segments recycle back into this chunk's free list rather than
// returning memory to the OS until the arena itself is destroyed (§4.2). Idle
// segments at or above compressionThreshold are lz4-compressed at rest so a large
// resting chunk doesn't keep its full backing array retained between uses; acquire()
// decompresses back into a live buffer before handing one out.
type unpooledChunk struct {
	mu   sync.Mutex
	free []*restingSegment
}

// restingSegment is one idle unpooled segment sitting in a chunk's free list.
// compressed is non-nil only when the segment's data was large enough, and
// compressible enough, that storing the lz4-compressed bytes shrinks arena
// residency; size is the original length needed to size the decompress destination.
type restingSegment struct {
	seg        *segment
	compressed []byte
	size       int
}

// unpooledArena backs BufferManager.GetUnpooledBuffer: it tracks a rolling average
// of requested sizes, allocates each new unpooled segment individually at the
// requested size, and recycles individual unpooled buffers without ever returning
// memory to the OS until the arena is destroyed.
type unpooledArena struct {
	minChunk int
	avg      rollingAverage

	mu     sync.Mutex
	chunks []*unpooledChunk
	bySize map[int]*unpooledChunk // chunk currently being carved for a given size class
}

func newUnpooledArena(minChunk int) *unpooledArena {
	return &unpooledArena{minChunk: minChunk, bySize: make(map[int]*unpooledChunk)}
}

// recycle implements recycler for segments handed out by this arena. Segments at or
// above compressionThreshold are compressed at rest (§4.2/C10 "so large
// variable-length buffers don't dominate arena residency"): the original backing
// array is dropped and only the compressed bytes are retained until reacquired.
func (a *unpooledArena) recycle(seg *segment) {
	clear(seg.data)
	chunk := seg.owner.(*unpooledChunkRecycler).chunk
	rs := &restingSegment{seg: seg, size: len(seg.data)}
	if shouldCompress(rs.size) {
		if compressed, err := CompressChunk(seg.data); err == nil && len(compressed) < rs.size {
			rs.compressed = compressed
			seg.data = nil
		}
	}
	chunk.mu.Lock()
	chunk.free = append(chunk.free, rs)
	chunk.mu.Unlock()
}

// unpooledChunkRecycler adapts one chunk to the recycler interface; segment.owner
// must be a recycler, and a bare *unpooledChunk can't be since recycle() needs the
// owning arena for compression bookkeeping (kept simple here: none needed yet).
type unpooledChunkRecycler struct {
	arena *unpooledArena
	chunk *unpooledChunk
}

func (r *unpooledChunkRecycler) recycle(seg *segment) { r.arena.recycle(seg) }

func (a *unpooledArena) acquire(size int) *segment {
	a.avg.add(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	if chunk, ok := a.bySize[size]; ok {
		chunk.mu.Lock()
		if n := len(chunk.free); n > 0 {
			rs := chunk.free[n-1]
			chunk.free = chunk.free[:n-1]
			chunk.mu.Unlock()
			if rs.compressed != nil {
				data, err := DecompressChunk(rs.compressed, rs.size)
				if err != nil {
					// corrupt at-rest bytes; fall back to a fresh zeroed allocation rather
					// than hand out a half-restored segment.
					data = make([]byte, rs.size)
				}
				rs.seg.data = data
				rs.compressed = nil
			}
			return rs.seg
		}
		chunk.mu.Unlock()
	}

	// TODO: carve rollSize's worth of same-size segments up front instead of one at a
	// time; rollSize (rolling-average(requestedSize) × preallocFactor) is computed now
	// so the sizing policy is in place ahead of that optimization.
	rollSize := a.avg.mean() * preallocFactor
	if rollSize < size {
		rollSize = size
	}
	if rollSize < a.minChunk {
		rollSize = a.minChunk
	}
	chunk := &unpooledChunk{}
	a.chunks = append(a.chunks, chunk)
	a.bySize[size] = chunk

	owner := &unpooledChunkRecycler{arena: a, chunk: chunk}
	return newSegment(size, 1, owner, false)
}

// shouldCompress reports whether a payload of this size should be lz4-compressed at
// rest (used by unpooledArena.recycle).
func shouldCompress(size int) bool { return size >= compressionThreshold }

// CompressChunk lz4-compresses src, used when storing large idle unpooled payloads
// that would otherwise dominate arena residency.
func CompressChunk(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// incompressible; lz4 signals this by returning n==0.
		return src, nil
	}
	return dst[:n], nil
}

// DecompressChunk reverses CompressChunk given the known original size.
func DecompressChunk(src []byte, originalSize int) ([]byte, error) {
	dst := make([]byte, originalSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
