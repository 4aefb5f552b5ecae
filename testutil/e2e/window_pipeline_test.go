package e2e

import (
	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
	"github.com/nebulastream/nes-runtime/queryengine"
	"github.com/nebulastream/nes-runtime/source"
	"github.com/nebulastream/nes-runtime/window"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Keyed tumbling-window sum, single source through the scheduler", func() {
	It("fires only the windows the watermark has closed, with the correct per-key sums", func() {
		cfg := cmn.Default()
		cfg.NumberOfWorkerThreads = 2
		cfg.BufferSize = 4096
		cfg.NumberOfBuffers = 64

		bm, err := memsys.NewBufferManager(cfg)
		Expect(err).NotTo(HaveOccurred())
		defer bm.Destroy()

		mgr := queryengine.NewManager(cfg)
		mgr.StartWorkers()
		defer mgr.StopWorkers()

		sink := source.NewCollectingSink("sink")
		handlers := pipeline.NewHandlerTable()
		store := window.NewStore(window.Tumbling{Size: 10}, window.Sum, true, 0, window.EventTime)
		handlers.Register(windowHandlerIdx, store)

		sinkSucc := &queryengine.SinkSuccessor{SinkName: sink.Name(), WriteFn: sink.WriteData}
		ctx := pipeline.NewExecutionContext(1, handlers, bm, []pipeline.Successor{sinkSucc})
		p := pipeline.NewPipeline(1, windowStoreStage(store, true), ctx)

		successor := &queryengine.PipelineSuccessor{Scheduler: mgr.Scheduler(), QueryID: 1, Target: p}
		sp, err := bm.CreateFixedSizeBufferPool("src", 4)
		Expect(err).NotTo(HaveOccurred())
		base := source.NewBase(1, 1, sp, []pipeline.Successor{successor}, false)

		// ts in [0,10) for id 1 and 2, ts in [10,20) for id 1, plus a sentinel
		// record at ts=21 to push the watermark past the second window's end.
		rows := []source.Record{
			{"id": 1.0, "ts": 1.0, "value": 5.0},
			{"id": 1.0, "ts": 2.0, "value": 3.0},
			{"id": 2.0, "ts": 1.0, "value": 4.0},
			{"id": 1.0, "ts": 11.0, "value": 7.0},
			{"id": 2.0, "ts": 21.0, "value": 0.0}, // sentinel: falls in [20,30), never asserted on
		}
		rs := source.NewRecordSource(base, rows, 2)
		Expect(rs.Start()).To(Succeed())
		drainSource(rs)

		mgr.StopWorkers()

		// oracle: brute-force the same rows into (windowStart, id) -> sum,
		// independent of window.Store's own bucketing code.
		expected := map[[2]int64]float64{}
		for _, r := range rows {
			ts := int64(r["ts"].(float64))
			id := int64(r["id"].(float64))
			start := (ts / 10) * 10
			expected[[2]int64{start, id}] += r["value"].(float64)
		}
		// watermark after the sentinel is 21, so only windows ending <=21 fired:
		// [0,10) and [10,20). [20,30) stays open. A slice can fire in more than one
		// episode if a worker folds a late-arriving row in after an earlier episode
		// already flushed and deleted it, so sum rather than overwrite per key.
		got := map[[2]int64]float64{}
		for _, r := range sink.Rows() {
			start := int64(r["start"].(float64))
			id := int64(r["id"].(float64))
			got[[2]int64{start, id}] += r["value"].(float64)
		}

		Expect(got).To(HaveKeyWithValue([2]int64{0, 1}, expected[[2]int64{0, 1}]))
		Expect(got).To(HaveKeyWithValue([2]int64{0, 2}, expected[[2]int64{0, 2}]))
		Expect(got).To(HaveKeyWithValue([2]int64{10, 1}, expected[[2]int64{10, 1}]))
		Expect(got).NotTo(HaveKey([2]int64{20, 2}), "window [20,30) must stay open: its end exceeds the watermark")
	})
})
