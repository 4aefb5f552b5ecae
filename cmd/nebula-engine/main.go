// Command nebula-engine is the process entry point for the execution core: it
// loads configuration, constructs the buffer manager and query manager, and wires
// one illustrative query (a keyed tumbling-window sum over an in-process CSV
// source) end to end. It does not expose RPC, REST, or gRPC surfaces — §1 places
// coordinator wiring out of scope, so this binary only demonstrates construction.
package main

import (
	"flag"
	"os"

	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/cmn/nlog"
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
	"github.com/nebulastream/nes-runtime/queryengine"
	"github.com/nebulastream/nes-runtime/source"
	"github.com/nebulastream/nes-runtime/stats"
	"github.com/nebulastream/nes-runtime/window"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML engine config; defaults applied when empty")
	csvPath := flag.String("csv", "", "path to a CSV source file (value,id,ts columns) to replay")
	flag.Parse()

	cfg := cmn.Default()
	if *configPath != "" {
		loaded, err := cmn.LoadFile(*configPath)
		if err != nil {
			nlog.Fatalln("nebula-engine: config:", err)
		}
		cfg = loaded
	}

	if err := run(cfg, *csvPath); err != nil {
		nlog.Errorln("nebula-engine:", err)
		os.Exit(1)
	}
}

// run constructs the buffer manager, the query manager, one windowed-sum pipeline,
// a CSV source, and a collecting sink, then drives the source to completion. It is
// the minimal illustration of the data flow in §1: source -> task -> pipeline
// (invoking the window operator handler) -> sink.
func run(cfg *cmn.Config, csvPath string) error {
	bm, err := memsys.NewBufferManager(cfg)
	if err != nil {
		return err
	}
	defer bm.Destroy()

	mgr := queryengine.NewManager(cfg)
	mgr.StartWorkers()
	defer mgr.StopWorkers()

	metrics := stats.NewMetrics()
	const pipelineID = 1

	queryID, err := queryengine.NewQueryID()
	if err != nil {
		return err
	}
	nlog.Infoln("nebula-engine: constructed query", queryID)

	sink := source.NewCollectingSink("stdout-sink")

	handlers := pipeline.NewHandlerTable()
	store := window.NewStore(window.Tumbling{Size: 1000}, window.Sum, true, 0, window.EventTime)
	handlers.Register(windowHandlerIdx, store)

	sinkSuccessor := &queryengine.SinkSuccessor{SinkName: sink.Name(), WriteFn: sink.WriteData}
	ctx := pipeline.NewExecutionContext(pipelineID, handlers, bm, []pipeline.Successor{sinkSuccessor})
	stage := windowSumStage(metrics, pipelineID)
	p := pipeline.NewPipeline(pipelineID, stage, ctx)

	// register(qep) (§4.4): this is the sole qep the demo drives, registered under
	// id 0 so that worker.runData's automatic statistics reporting (§4.9) has a
	// QueryStats to report into — no stage-local bookkeeping needed.
	qep := queryengine.NewQEP(0, mgr.Scheduler(), []*pipeline.Pipeline{p}, nil, nil)
	qep.SLA = stats.SLA{MinThroughput: 0, MaxLatency: 1}
	mgr.Register(qep)

	subpool, err := bm.CreateFixedSizeBufferPool("nebula-engine-source", 8)
	if err != nil {
		return err
	}

	successor := &queryengine.PipelineSuccessor{Scheduler: mgr.Scheduler(), QueryID: qep.ID, Target: p}
	base := source.NewBase(1, 1, subpool, []pipeline.Successor{successor}, false)

	var rows []source.Record
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()
		rows, err = source.LoadCSV(f)
		if err != nil {
			return err
		}
	}

	rs := source.NewRecordSource(base, rows, 64)
	if err := rs.Start(); err != nil {
		return err
	}
	for {
		if err := rs.Drain(); err != nil {
			break
		}
	}

	// the source only submits tasks; stop the workers to drain every submitted
	// task to completion before reading the sink's final row count. Submit()
	// pushes onto a FIFO queue and Stop()'s poison tasks go in after, so every
	// already-submitted data task runs before a worker observes its poison task.
	mgr.StopWorkers()

	if snap, ok := mgr.Statistics(qep.ID); ok {
		nlog.Infoln("nebula-engine: statistics(qep)", snap.QueryID, "tuplesPerTask", snap.TuplesPerTask, "meetingSLA", snap.MeetingSLA)
	}
	nlog.Infoln("nebula-engine: sink collected", len(sink.Rows()), "rows")
	return nil
}

const windowHandlerIdx pipeline.HandlerIndex = 0

// windowSumStage builds the FuncStage a code generator would otherwise emit for a
// `windowByKey(id, Tumbling(1s)).apply(Sum(value))` query: decode the incoming
// buffer's rows, fold each into the window operator handler, advance the
// watermark, and emit every slice that fires as a fresh output buffer. Per-task
// statistics (§4.9) are no longer this stage's concern — worker.runData reports
// every completed task to the qep's QueryStats automatically, for every pipeline,
// not only one a stage author remembers to instrument.
func windowSumStage(metrics *stats.Metrics, pipelineID uint64) pipeline.Stage {
	pipelineLabel := itoaStats(pipelineID)
	return &pipeline.FuncStage{
		ExecuteFn: func(buf *memsys.TupleBuffer, ctx *pipeline.ExecutionContext, _ *pipeline.WorkerContext) pipeline.Result {
			store := pipeline.Get[*window.Store](ctx.Handlers, windowHandlerIdx)
			rows, err := source.DecodeRecords(buf.PayloadPtr()[:buf.PayloadSize()])
			if err != nil {
				buf.Release()
				return pipeline.ResultError
			}

			var maxTS int64
			for _, r := range rows {
				ts, _ := r["ts"].(float64)
				id, _ := r["id"].(float64)
				value, _ := r["value"].(float64)
				store.Process(int64(ts), uint64(id), true, value)
				if int64(ts) > maxTS {
					maxTS = int64(ts)
				}
			}
			store.AdvanceWatermark(buf.OriginID(), maxTS)

			var out []source.Record
			store.Fire(func(iv window.Interval, key uint64, hasKey bool, value float64) {
				out = append(out, source.Record{"start": float64(iv.Start), "end": float64(iv.End), "id": float64(key), "value": value})
			})

			last := buf.LastChunk()
			buf.Release()

			metrics.TasksExecuted.WithLabelValues(pipelineLabel).Inc()

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
			return emitFired(ctx, payload, uint64(len(out)), last)
		},
	}
}

func itoaStats(id uint64) string {
	if id == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}

// emitFired stands in for the code generator's real emit operator: acquire an
// output buffer from the worker's buffer provider, fill it with the fired slices'
// rows, and hand it to the pipeline's successors via EmitBuffer's Emit policy.
func emitFired(ctx *pipeline.ExecutionContext, payload []byte, numTuples uint64, lastChunk bool) pipeline.Result {
	out := ctx.Buffers.GetBufferBlocking()
	if len(payload) > out.Capacity() {
		payload = payload[:out.Capacity()]
	}
	copy(out.PayloadPtr(), payload)
	out.Allocate(len(payload))
	out.SetNumberOfTuples(numTuples)
	if err := ctx.EmitBuffer(out, pipeline.Emit, lastChunk); err != nil {
		return pipeline.ResultError
	}
	if lastChunk {
		return pipeline.ResultFinished
	}
	return pipeline.ResultOk
}
