package memsys

import (
	"sync"
	"time"

	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/cmn/debug"
	"github.com/nebulastream/nes-runtime/cmn/nlog"
	"golang.org/x/sync/singleflight"
)

// BufferManager is the process-wide pool of pinned, pre-allocated segments (§4.2),
// generalizing the teacher's memsys.Slab/PageMM pool-of-pages to NebulaStream's
// fixed-size tuple buffer pool. The free list is a buffered channel, giving the
// lock-free-MPMC-plus-blocking-wait shape §5 calls for: a channel receive is the
// condition wait, a channel send is the lock-free push.
type BufferManager struct {
	bufferSize int
	alignment  int

	free chan *segment
	all  []*segment

	unpooled *unpooledArena

	mu          sync.Mutex
	subpools    []*FixedSizeBufferPool // weak in spirit: manager outlives them, see Destroy
	destroyed   bool
	subpoolSF   singleflight.Group // collapses concurrent createFixedSizeBufferPool(sameKey)
}

// NewBufferManager builds and fully pre-allocates the pool per cfg. Every pooled
// segment is carved once here and never again until Destroy.
func NewBufferManager(cfg *cmn.Config) (*BufferManager, error) {
	if cfg.Alignment > pageSize {
		return nil, cmn.NewErrConfiguration("alignment %d exceeds page size %d", cfg.Alignment, pageSize)
	}
	bm := &BufferManager{
		bufferSize: cfg.BufferSize,
		alignment:  cfg.Alignment,
		free:       make(chan *segment, cfg.NumberOfBuffers),
		all:        make([]*segment, 0, cfg.NumberOfBuffers),
	}
	for i := 0; i < cfg.NumberOfBuffers; i++ {
		seg := newSegment(cfg.BufferSize, cfg.Alignment, bm, true)
		bm.all = append(bm.all, seg)
		bm.free <- seg
	}
	bm.unpooled = newUnpooledArena(cfg.BufferSize)
	return bm, nil
}

// recycle implements recycler: a released pooled segment returns to the free list.
func (bm *BufferManager) recycle(seg *segment) {
	clear(seg.data)
	bm.free <- seg
}

func clear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GetBufferBlocking waits indefinitely for a free segment (§4.2).
func (bm *BufferManager) GetBufferBlocking() *TupleBuffer {
	seg := <-bm.free
	return newTupleBuffer(seg)
}

// GetBufferWithTimeout waits up to d, returning (nil, false) on timeout.
func (bm *BufferManager) GetBufferWithTimeout(d time.Duration) (*TupleBuffer, bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case seg := <-bm.free:
		return newTupleBuffer(seg), true
	case <-t.C:
		return nil, false
	}
}

// GetBufferNoBlocking returns (nil, false) immediately if the pool is empty.
func (bm *BufferManager) GetBufferNoBlocking() (*TupleBuffer, bool) {
	select {
	case seg := <-bm.free:
		return newTupleBuffer(seg), true
	default:
		return nil, false
	}
}

// GetUnpooledBuffer returns a buffer whose payload is at least size bytes, backed by
// the rolling-chunk arena (§4.2).
func (bm *BufferManager) GetUnpooledBuffer(size int) *TupleBuffer {
	seg := bm.unpooled.acquire(size)
	return newTupleBuffer(seg)
}

// CreateFixedSizeBufferPool carves out n exclusive buffers for one pipeline/thread
// (§4.2). subpoolKey de-duplicates concurrent callers asking for the same carve-out
// (e.g. two workers racing to materialize the same pipeline's sub-pool) via
// singleflight, so concurrent calls for one key share a single reservation; a later
// call with the same key carves out a new sub-pool.
func (bm *BufferManager) CreateFixedSizeBufferPool(subpoolKey string, n int) (*FixedSizeBufferPool, error) {
	v, err, _ := bm.subpoolSF.Do(subpoolKey, func() (any, error) {
		bm.mu.Lock()
		if bm.destroyed {
			bm.mu.Unlock()
			return nil, cmn.NewErrResourceExhausted("manager destroyed")
		}
		bm.mu.Unlock()

		reserved := make(chan *segment, n)
		for i := 0; i < n; i++ {
			select {
			case seg := <-bm.free:
				reserved <- seg
			default:
				// drain back what we grabbed; the global pool cannot satisfy this
				// reservation right now without blocking global consumers (§4.2
				// invariant: sub-pool carve-out must never block global callers).
				close(reserved)
				for seg := range reserved {
					bm.free <- seg
				}
				return nil, cmn.NewErrResourceExhausted("insufficient free buffers for sub-pool")
			}
		}
		sp := &FixedSizeBufferPool{parent: bm, free: reserved, capacity: n}
		bm.mu.Lock()
		bm.subpools = append(bm.subpools, sp)
		bm.mu.Unlock()
		return sp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*FixedSizeBufferPool), nil
}

// NumOfPooledBuffers is the configured pool size.
func (bm *BufferManager) NumOfPooledBuffers() int { return len(bm.all) }

// AvailableBuffers reports the current free-list depth.
func (bm *BufferManager) AvailableBuffers() int { return len(bm.free) }

// BufferSize is the fixed pooled-buffer size.
func (bm *BufferManager) BufferSize() int { return bm.bufferSize }

// Destroy releases the pool. Every buffer must have refcount 0; if not, this is a
// process bug per §4.2 and is reported rather than silently leaked.
func (bm *BufferManager) Destroy() error {
	bm.mu.Lock()
	bm.destroyed = true
	subpools := bm.subpools
	bm.mu.Unlock()

	// drain every sub-pool's private reservation first: segments idle there are not
	// outstanding, just parked under a different free list than bm.free. invalidate()
	// runs first so no further reservation can be recycled into sp.free after this
	// point; draining without closing avoids a send-on-closed-channel race against
	// any in-flight recycle that slipped past the invalid check a moment earlier.
	drained := 0
	for _, sp := range subpools {
		sp.invalidate()
		for {
			select {
			case <-sp.free:
				drained++
			default:
				goto nextPool
			}
		}
	nextPool:
	}

	// drain the free list; anything still outstanding at this point is a leak.
	close(bm.free)
	for range bm.free {
		drained++
	}
	if drained < len(bm.all) {
		err := cmn.NewErrResourceExhausted("buffer manager destroyed with outstanding references")
		nlog.Errorln("memsys: destroy found outstanding buffers:", err)
		debug.Assert(false, "buffer manager destroyed with outstanding references")
		return err
	}
	return nil
}

// FixedSizeBufferPool is a sub-pool reserving n exclusive buffers from the global
// manager (§4.2), handed to a single pipeline/thread. It holds only a conceptually
// weak reference to the parent: the parent outlives it and, on Destroy, invalidates
// it rather than deallocating while outstanding buffers exist.
type FixedSizeBufferPool struct {
	parent    *BufferManager
	free      chan *segment
	capacity  int
	invalid   bool
	invalidMu sync.RWMutex
}

func (sp *FixedSizeBufferPool) recycle(seg *segment) {
	clear(seg.data)
	sp.invalidMu.RLock()
	invalid := sp.invalid
	sp.invalidMu.RUnlock()
	if invalid {
		// reservation invalidated; recycle directly to the parent to avoid stranding
		// the segment instead of dropping it on the floor.
		sp.parent.recycle(seg)
		return
	}
	sp.free <- seg
}

func (sp *FixedSizeBufferPool) invalidate() {
	sp.invalidMu.Lock()
	sp.invalid = true
	sp.invalidMu.Unlock()
}

func (sp *FixedSizeBufferPool) isInvalid() bool {
	sp.invalidMu.RLock()
	defer sp.invalidMu.RUnlock()
	return sp.invalid
}

// GetBufferBlocking behaves like BufferManager.GetBufferBlocking but only ever draws
// from this sub-pool's private reservation.
func (sp *FixedSizeBufferPool) GetBufferBlocking() (*TupleBuffer, error) {
	if sp.isInvalid() {
		return nil, cmn.NewErrResourceExhausted("sub-pool invalidated")
	}
	seg := <-sp.free
	return newTupleBuffer(seg), nil
}

func (sp *FixedSizeBufferPool) GetBufferWithTimeout(d time.Duration) (*TupleBuffer, bool, error) {
	if sp.isInvalid() {
		return nil, false, cmn.NewErrResourceExhausted("sub-pool invalidated")
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case seg := <-sp.free:
		return newTupleBuffer(seg), true, nil
	case <-t.C:
		return nil, false, nil
	}
}

func (sp *FixedSizeBufferPool) GetBufferNoBlocking() (*TupleBuffer, bool, error) {
	if sp.isInvalid() {
		return nil, false, cmn.NewErrResourceExhausted("sub-pool invalidated")
	}
	select {
	case seg := <-sp.free:
		return newTupleBuffer(seg), true, nil
	default:
		return nil, false, nil
	}
}

func (sp *FixedSizeBufferPool) Capacity() int { return sp.capacity }
