package e2e

import (
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
	"github.com/nebulastream/nes-runtime/source"
	"github.com/nebulastream/nes-runtime/window"
)

const windowHandlerIdx pipeline.HandlerIndex = 0

// windowStoreStage adapts a window.Store into the Stage a code generator would
// emit for a windowBy(...).apply(...) query: decode the incoming buffer's
// rows, fold each into the store, advance the watermark, and forward every
// slice that fires to the pipeline's successors as a fresh buffer.
func windowStoreStage(store *window.Store, keyed bool) pipeline.Stage {
	return &pipeline.FuncStage{
		ExecuteFn: func(buf *memsys.TupleBuffer, ctx *pipeline.ExecutionContext, _ *pipeline.WorkerContext) pipeline.Result {
			rows, err := source.DecodeRecords(buf.PayloadPtr()[:buf.PayloadSize()])
			if err != nil {
				buf.Release()
				return pipeline.ResultError
			}

			var maxTS int64
			for _, r := range rows {
				ts, _ := r["ts"].(float64)
				value, _ := r["value"].(float64)
				var key uint64
				if keyed {
					id, _ := r["id"].(float64)
					key = uint64(id)
				}
				store.Process(int64(ts), key, keyed, value)
				if int64(ts) > maxTS {
					maxTS = int64(ts)
				}
			}
			store.AdvanceWatermark(buf.OriginID(), maxTS)

			var out []source.Record
			store.Fire(func(iv window.Interval, key uint64, hasKey bool, value float64) {
				rec := source.Record{"start": float64(iv.Start), "end": float64(iv.End), "value": value}
				if hasKey {
					rec["id"] = float64(key)
				}
				out = append(out, rec)
			})

			last := buf.LastChunk()
			buf.Release()

			if len(out) == 0 {
				if last {
					return pipeline.ResultFinished
				}
				return pipeline.ResultOk
			}
			payload, err := source.EncodeRecords(out)
			if err != nil {
				return pipeline.ResultError
			}
			result := pipeline.ResultOk
			if last {
				result = pipeline.ResultFinished
			}
			emitOut := ctx.Buffers.GetBufferBlocking()
			if len(payload) > emitOut.Capacity() {
				payload = payload[:emitOut.Capacity()]
			}
			copy(emitOut.PayloadPtr(), payload)
			emitOut.Allocate(len(payload))
			emitOut.SetNumberOfTuples(uint64(len(out)))
			if err := ctx.EmitBuffer(emitOut, pipeline.Emit, last); err != nil {
				return pipeline.ResultError
			}
			return result
		},
	}
}

// drainSource calls Drain repeatedly until the source reports completion, the
// same loop a production driver goroutine would run over a real transport.
func drainSource(d interface{ Drain() error }) {
	for {
		if err := d.Drain(); err != nil {
			return
		}
	}
}
