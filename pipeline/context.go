package pipeline

import (
	"sync/atomic"

	"github.com/nebulastream/nes-runtime/emit"
	"github.com/nebulastream/nes-runtime/memsys"
)

// BufferProvider is the minimal surface a stage needs from a buffer pool (the global
// BufferManager satisfies it; a FixedSizeBufferPool does not, since its
// GetBufferBlocking also returns an error); decoupling from memsys's concrete types
// keeps pipeline free to be exercised with fakes in tests.
type BufferProvider interface {
	GetBufferBlocking() *memsys.TupleBuffer
}

// Successor is either a downstream pipeline or a sink, dispatched dynamically
// without a deep interface hierarchy (§9). queryengine supplies both concrete
// implementations: PipelineSuccessor enqueues a Task, SinkSuccessor writes to a sink.
type Successor interface {
	Accept(buf *memsys.TupleBuffer) error
	Name() string
}

// WorkerContext carries the identity of the worker thread currently running a stage
// (§4.3 "worker id, worker count").
type WorkerContext struct {
	WorkerID    int
	WorkerCount int
}

// ExecutionContext is the PipelineExecutionContext of §6: what a stage receives on
// every Execute call.
type ExecutionContext struct {
	PipelineID uint64
	Handlers   *HandlerTable
	Buffers    BufferProvider
	EmitHandler *emit.Handler

	successors []Successor
	running    int32
}

func NewExecutionContext(pipelineID uint64, handlers *HandlerTable, buffers BufferProvider, successors []Successor) *ExecutionContext {
	return &ExecutionContext{
		PipelineID:  pipelineID,
		Handlers:    handlers,
		Buffers:     buffers,
		EmitHandler: emit.NewHandler(),
		successors:  successors,
	}
}

// SetRunning flips the running flag a pipeline carries (§3); used by reconfiguration
// (start/stop) rather than by stages themselves.
func (ctx *ExecutionContext) SetRunning(v bool) {
	var n int32
	if v {
		n = 1
	}
	atomic.StoreInt32(&ctx.running, n)
}

func (ctx *ExecutionContext) Running() bool { return atomic.LoadInt32(&ctx.running) != 0 }

func (ctx *ExecutionContext) Successors() []Successor { return ctx.successors }

// EmitBuffer stamps the buffer's chunk metadata (§4.5) and hands it to every
// successor (Emit policy) or keeps it inside this pipeline for another pass (Repeat
// policy) — §4.3's emitBuffer(buffer, continuationPolicy).
func (ctx *ExecutionContext) EmitBuffer(buf *memsys.TupleBuffer, policy ContinuationPolicy, isLastChunkOfInput bool) error {
	chunk := ctx.EmitHandler.NextChunkNumber(buf.OriginID(), buf.SequenceNumber())
	buf.SetChunkNumber(chunk)
	if isLastChunkOfInput {
		buf.SetLastChunk(true)
	}

	switch policy {
	case Repeat:
		// the caller (scan loop) is expected to re-drive Execute on the same buffer;
		// EmitBuffer under Repeat only stamps metadata and returns.
		return nil
	case Emit:
		// the caller's own reference transfers to the successors: retain once per
		// successor, then drop the caller's reference so ownership nets out even when
		// there are zero, one, or many successors (e.g. a terminal sink pipeline).
		for _, s := range ctx.successors {
			buf.Retain()
			s.Accept(buf)
		}
		buf.Release()
		return nil
	}
	return nil
}
