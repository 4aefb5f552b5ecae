// Package source implements the source/sink lifecycle contracts of C8 (§4.8):
// start/stop/fail, successor fan-out, and buffer emission labeled with
// monotonically increasing per-origin sequence numbers. Concrete sources
// (RecordSource) and sinks (CollectingSink) are minimal in-process
// implementations for driving and observing the runtime end to end; network
// transport is out of scope (§4.8's non-goal on RPC/network plugins).
package source

import (
	"sync"
	"sync/atomic"

	"github.com/nebulastream/nes-runtime/cmn/debug"
	"github.com/nebulastream/nes-runtime/cmn/nlog"
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
)

// Base implements the bookkeeping every concrete source shares: operator/origin
// identity, its fixed sub-pool, its downstream successors, and the monotonic
// per-origin sequence counter (§4.8 "begins producing buffers labeled with
// monotonically increasing sequence numbers per origin").
type Base struct {
	operatorID uint64
	originID   uint64
	pool       *memsys.FixedSizeBufferPool
	successors []pipeline.Successor
	network    bool

	seq     atomic.Uint64
	mu      sync.Mutex
	running bool
	stopped bool
}

// NewBase wires a source's identity, its buffer sub-pool, and its executable
// successors (the pipelines or sinks it feeds directly).
func NewBase(operatorID, originID uint64, pool *memsys.FixedSizeBufferPool, successors []pipeline.Successor, network bool) *Base {
	return &Base{operatorID: operatorID, originID: originID, pool: pool, successors: successors, network: network}
}

func (b *Base) OperatorID() uint64                          { return b.operatorID }
func (b *Base) IsNetwork() bool                              { return b.network }
func (b *Base) ExecutableSuccessors() []pipeline.Successor   { return b.successors }

func (b *Base) isRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Base) setRunning(v bool) {
	b.mu.Lock()
	b.running = v
	b.mu.Unlock()
}

// nextBuffer acquires a buffer from the sub-pool and stamps it with this origin's
// identity and next sequence number, chunk 1, last-chunk initially false.
func (b *Base) nextBuffer() (*memsys.TupleBuffer, error) {
	buf, err := b.pool.GetBufferBlocking()
	if err != nil {
		return nil, err
	}
	buf.SetOriginID(b.originID)
	buf.SetSequenceNumber(b.seq.Add(1))
	buf.SetChunkNumber(1)
	return buf, nil
}

// emit hands buf to every successor, retaining once per successor beyond the
// first so ownership transfers cleanly regardless of fan-out width — the same
// discipline pipeline.ExecutionContext.EmitBuffer uses.
func (b *Base) emit(buf *memsys.TupleBuffer) error {
	if len(b.successors) == 0 {
		buf.Release()
		return nil
	}
	for i, succ := range b.successors {
		if i > 0 {
			buf.Retain()
		}
		if err := succ.Accept(buf); err != nil {
			return err
		}
	}
	return nil
}

// stopGraceful implements §4.8's graceful stop: emit one final buffer with
// lastChunk=true (zero tuples if none are pending), then the caller propagates
// soft-EOS via reconfiguration (queryengine.QEP.AddEndOfStream does that part).
func (b *Base) stopGraceful(final *memsys.TupleBuffer) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.running = false
	b.mu.Unlock()

	if final == nil {
		buf, err := b.nextBuffer()
		if err != nil {
			return err
		}
		final = buf
	}
	final.SetLastChunk(true)
	return b.emit(final)
}

// stopHard implements §4.8's hard stop: no draining, no final buffer.
func (b *Base) stopHard() {
	b.mu.Lock()
	b.stopped = true
	b.running = false
	b.mu.Unlock()
}

func (b *Base) fail() {
	debug.Assert(b.pool != nil, "source failed with no sub-pool attached")
	nlog.Warningln("source: origin", b.originID, "entering failed state")
	b.stopHard()
}
