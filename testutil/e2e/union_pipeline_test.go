package e2e

import (
	"sync"

	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
	"github.com/nebulastream/nes-runtime/queryengine"
	"github.com/nebulastream/nes-runtime/source"
	"github.com/nebulastream/nes-runtime/window"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Two-source union feeding one global window, through the full QEP lifecycle", func() {
	It("advances the watermark as the min across both origins and closes windows once both sources gracefully stop", func() {
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
		store := window.NewStore(window.Tumbling{Size: 10}, window.Sum, false, 0, window.EventTime)
		handlers.Register(windowHandlerIdx, store)

		sinkSucc := &queryengine.SinkSuccessor{SinkName: sink.Name(), WriteFn: sink.WriteData}
		ctx := pipeline.NewExecutionContext(1, handlers, bm, []pipeline.Successor{sinkSucc})
		p := pipeline.NewPipeline(1, windowStoreStage(store, false), ctx)
		successor := &queryengine.PipelineSuccessor{Scheduler: mgr.Scheduler(), QueryID: 9, Target: p}

		sp1, err := bm.CreateFixedSizeBufferPool("src1", 4)
		Expect(err).NotTo(HaveOccurred())
		sp2, err := bm.CreateFixedSizeBufferPool("src2", 4)
		Expect(err).NotTo(HaveOccurred())

		// source 1's last record (ts=21) and source 2's last record (ts=22) are
		// sentinels pushing each origin's max timestamp far enough that
		// min(21,22)=21 closes both [0,10) and [10,20), but not [20,30).
		rows1 := []source.Record{
			{"ts": 1.0, "value": 1.0},
			{"ts": 2.0, "value": 1.0},
			{"ts": 3.0, "value": 1.0},
			{"ts": 11.0, "value": 1.0},
			{"ts": 12.0, "value": 1.0},
			{"ts": 21.0, "value": 0.0},
		}
		rows2 := []source.Record{
			{"ts": 4.0, "value": 1.0},
			{"ts": 5.0, "value": 1.0},
			{"ts": 13.0, "value": 1.0},
			{"ts": 22.0, "value": 0.0},
		}

		base1 := source.NewBase(1, 1, sp1, []pipeline.Successor{successor}, false)
		rs1 := source.NewRecordSource(base1, rows1, len(rows1))
		base2 := source.NewBase(2, 2, sp2, []pipeline.Successor{successor}, false)
		rs2 := source.NewRecordSource(base2, rows2, len(rows2))

		qep := queryengine.NewQEP(9, mgr.Scheduler(),
			[]*pipeline.Pipeline{p},
			[]queryengine.SourceContract{rs1, rs2},
			[]queryengine.SinkContract{sink})

		Expect(qep.Start()).To(Succeed())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); drainSource(rs1) }()
		go func() { defer wg.Done(); drainSource(rs2) }()
		wg.Wait()

		// Stop() waits on the qep's completion future, which only resolves once
		// every previously submitted data task has executed (reconfiguration
		// tasks travel the same FIFO queue behind them), so the sink is fully
		// populated by the time this returns.
		Expect(qep.Stop(true, cfg)).To(Succeed())
		Expect(qep.Status()).To(Equal(queryengine.StatusFinished))

		// oracle: brute-force bucket every (non-sentinel-weighted) row by
		// floor(ts/10)*10, independent of window.Store's own slicing code.
		expected := map[int64]float64{}
		for _, r := range append(append([]source.Record{}, rows1...), rows2...) {
			ts := int64(r["ts"].(float64))
			start := (ts / 10) * 10
			expected[start] += r["value"].(float64)
		}

		// a window can fire in more than one episode when a worker folds a
		// late-arriving row in after an earlier episode already flushed and
		// deleted that slice, so sum rather than overwrite per window start.
		got := map[int64]float64{}
		for _, r := range sink.Rows() {
			start := int64(r["start"].(float64))
			got[start] += r["value"].(float64)
		}

		Expect(got).To(HaveKeyWithValue(int64(0), expected[0]))
		Expect(got).To(HaveKeyWithValue(int64(10), expected[10]))
		Expect(got).NotTo(HaveKey(int64(20)), "window [20,30) must stay open: watermark 21 < its end 30")
	})
})
