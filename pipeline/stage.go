// Package pipeline implements the executable pipeline (C3, §4.3): a compiled stage
// wrapping scan→op→emit, generalizing the teacher's capability-trait dispatch used for
// cluster.Xact (setup/run/finish) and xreg.Renewable (New/Start) into the three-method
// stage contract §9 calls for, with no deep interface hierarchy.
package pipeline

import "github.com/nebulastream/nes-runtime/memsys"

// Result is the outcome of one Stage.Execute call (§4.3, §9 "result enums with an
// error taxonomy" replacing exceptions for control flow).
type Result int

const (
	ResultOk Result = iota
	ResultFinished
	ResultError
	// ResultAllFinished is returned only by a poison-task stage (§4.4 "poison task");
	// it is the signal a worker uses to exit its loop.
	ResultAllFinished
)

func (r Result) String() string {
	switch r {
	case ResultOk:
		return "Ok"
	case ResultFinished:
		return "Finished"
	case ResultError:
		return "Error"
	case ResultAllFinished:
		return "AllFinished"
	default:
		return "Unknown"
	}
}

// ContinuationPolicy tells the execution context what to do with a buffer that a
// stage's emit operator just filled (§4.3).
type ContinuationPolicy int

const (
	// Repeat keeps the buffer in the same pipeline (e.g. mid-chunk emission):
	// EmitBuffer only stamps its chunk metadata and does not enqueue it anywhere.
	Repeat ContinuationPolicy = iota
	// Emit enqueues the buffer into successor pipelines/sinks.
	Emit
)

// Stage is the fixed three-method contract every compiled pipeline stage implements
// (§4.3, §6 "Pipeline stage contract"). The code generator is the only producer of
// Stage values in a real deployment; tests construct them directly from closures via
// FuncStage.
type Stage interface {
	Setup(ctx *ExecutionContext) error
	Execute(buf *memsys.TupleBuffer, ctx *ExecutionContext, workerCtx *WorkerContext) Result
	Stop(ctx *ExecutionContext) error
}

// FuncStage adapts three closures to the Stage interface, the way tests and the
// end-to-end scenario harness build ad-hoc stages without a real code generator.
type FuncStage struct {
	SetupFn   func(*ExecutionContext) error
	ExecuteFn func(*memsys.TupleBuffer, *ExecutionContext, *WorkerContext) Result
	StopFn    func(*ExecutionContext) error
}

func (f *FuncStage) Setup(ctx *ExecutionContext) error {
	if f.SetupFn == nil {
		return nil
	}
	return f.SetupFn(ctx)
}

func (f *FuncStage) Execute(buf *memsys.TupleBuffer, ctx *ExecutionContext, wctx *WorkerContext) Result {
	return f.ExecuteFn(buf, ctx, wctx)
}

func (f *FuncStage) Stop(ctx *ExecutionContext) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}

// PoisonStage is the stage every poison task carries (§4.4): its Execute always
// returns AllFinished, terminating the worker loop that runs it.
type PoisonStage struct{}

func (PoisonStage) Setup(*ExecutionContext) error { return nil }
func (PoisonStage) Execute(*memsys.TupleBuffer, *ExecutionContext, *WorkerContext) Result {
	return ResultAllFinished
}
func (PoisonStage) Stop(*ExecutionContext) error { return nil }
