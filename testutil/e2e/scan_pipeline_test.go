package e2e

import (
	"strconv"
	"strings"

	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
	"github.com/nebulastream/nes-runtime/queryengine"
	"github.com/nebulastream/nes-runtime/source"
	"github.com/nebulastream/nes-runtime/window"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// parseScanLine decodes one "value,id,ts" CSV record into its three numeric fields,
// the format the raw-text scan source below streams.
func parseScanLine(line string) (value float64, id uint64, ts int64, err error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return 0, 0, 0, cmn.NewErrConfiguration("expected 3 fields, got %d in %q", len(fields), line)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, 0, err
	}
	idF, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, 0, err
	}
	tsF, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, 0, 0, err
	}
	return v, uint64(idF), int64(tsF), nil
}

// scanDecodeStage builds the ScanStage a raw-text source's compiled pipeline runs
// first (C10): Scanner/RingBuffer reassembles any record split across two arriving
// network buffers. RecordFn folds every complete or reassembled CSV line straight
// into the window store; FinalizeFn runs once per buffer afterward, advancing the
// watermark only once every row this buffer contributed has already been folded in
// (so a late row within the same buffer is never dropped by its own sibling's
// watermark advance), then firing and forwarding closed slices downstream.
func scanDecodeStage(store *window.Store) pipeline.Stage {
	stage := pipeline.NewScanStage(8, '\n', func(rec []byte, _ *pipeline.ExecutionContext, _ *pipeline.WorkerContext) (int64, error) {
		value, id, ts, err := parseScanLine(string(rec))
		if err != nil {
			return 0, err
		}
		store.Process(ts, id, true, value)
		return ts, nil
	})
	stage.FinalizeFn = func(ctx *pipeline.ExecutionContext, _ *pipeline.WorkerContext, maxEventTime int64, recordCount int, last bool) pipeline.Result {
		if recordCount > 0 {
			store.AdvanceWatermark(1, maxEventTime)
		}

		var emitErr error
		store.Fire(func(iv window.Interval, key uint64, hasKey bool, fireValue float64) {
			if emitErr != nil {
				return
			}
			rec := source.Record{"start": float64(iv.Start), "end": float64(iv.End), "id": float64(key), "value": fireValue}
			payload, encErr := source.EncodeRecords([]source.Record{rec})
			if encErr != nil {
				emitErr = encErr
				return
			}
			out := ctx.Buffers.GetBufferBlocking()
			copy(out.PayloadPtr(), payload)
			out.Allocate(len(payload))
			out.SetNumberOfTuples(1)
			if err := ctx.EmitBuffer(out, pipeline.Emit, false); err != nil {
				emitErr = err
			}
		})
		if emitErr != nil {
			return pipeline.ResultError
		}
		if last {
			return pipeline.ResultFinished
		}
		return pipeline.ResultOk
	}
	return stage
}

var _ = Describe("Raw-text scan stage reassembling spanning records ahead of a keyed window", func() {
	It("reassembles a record split across two network buffers before folding it into the window", func() {
		cfg := cmn.Default()
		cfg.NumberOfWorkerThreads = 1
		cfg.BufferSize = 256
		cfg.NumberOfBuffers = 16

		bm, err := memsys.NewBufferManager(cfg)
		Expect(err).NotTo(HaveOccurred())
		defer bm.Destroy()

		mgr := queryengine.NewManager(cfg)
		mgr.StartWorkers()
		defer mgr.StopWorkers()

		sink := source.NewCollectingSink("sink")
		store := window.NewStore(window.Tumbling{Size: 10}, window.Sum, true, 0, window.EventTime)

		sinkSucc := &queryengine.SinkSuccessor{SinkName: sink.Name(), WriteFn: sink.WriteData}
		ctx := pipeline.NewExecutionContext(2, pipeline.NewHandlerTable(), bm, []pipeline.Successor{sinkSucc})
		p := pipeline.NewPipeline(2, scanDecodeStage(store), ctx)

		successor := &queryengine.PipelineSuccessor{Scheduler: mgr.Scheduler(), QueryID: 5, Target: p}

		// "5,1,2\n" straddles two arriving chunks: "5,1," in the first buffer
		// (no trailing delimiter after it) and "2\n21,2,21\n" in the second,
		// whose own leading span ("2") completes the first's trailing span.
		// The second buffer's own complete record (sentinel id=2, ts=21) pushes
		// the watermark past window [0,10)'s end so it fires.
		b1 := bm.GetBufferBlocking()
		copy(b1.PayloadPtr(), "row\n5,1,")
		b1.Allocate(len("row\n5,1,"))
		b1.SetSequenceNumber(0)
		Expect(successor.Accept(b1)).To(Succeed())

		b2 := bm.GetBufferBlocking()
		copy(b2.PayloadPtr(), "2\n21,2,21\n")
		b2.Allocate(len("2\n21,2,21\n"))
		b2.SetSequenceNumber(1)
		b2.SetLastChunk(true)
		Expect(successor.Accept(b2)).To(Succeed())

		mgr.StopWorkers()

		// "row" has no predecessor to reassemble against, so it reaches RecordFn
		// as a standalone record, fails to parse (1 field), and ends the first
		// buffer's task with ResultError; only the reassembled "5,1,2" and the
		// sentinel "21,2,21" are valid CSV lines.
		var gotValue float64
		found := false
		for _, r := range sink.Rows() {
			if int64(r["start"].(float64)) == 0 && uint64(r["id"].(float64)) == 1 {
				gotValue += r["value"].(float64)
				found = true
			}
		}
		Expect(found).To(BeTrue(), "expected the reassembled record 5,1,2 to land in window [0,10) for id 1")
		Expect(gotValue).To(Equal(5.0))
	})
})
