package queryengine

import (
	"sync"
	"testing"
	"time"

	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/cmn/atomic"
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
	"github.com/nebulastream/nes-runtime/testutil/tassert"
)

func dynamicConfig(workers int) *cmn.Config {
	cfg := cmn.Default()
	cfg.NumberOfWorkerThreads = workers
	cfg.QueryManagerMode = cmn.ModeDynamic
	return cfg
}

// TestReconfigurationBarrierExactCounts verifies P5: for K worker threads servicing
// a pipeline, reconfigure is invoked exactly K times and postCallback exactly once.
func TestReconfigurationBarrierExactCounts(t *testing.T) {
	for _, k := range []int{1, 2, 3, 4, 8} {
		k := k
		t.Run("", func(t *testing.T) {
			cfg := dynamicConfig(k)
			sched := NewScheduler(cfg)
			sched.Start()
			defer sched.Stop()

			var reconfigureCalls atomic.Int64
			var postCalls atomic.Int64
			subject := reconfigurableFunc(func(msg *ReconfigurationMessage, workerID int) error {
				reconfigureCalls.Inc()
				return nil
			})

			sched.PostReconfiguration(ReconfigDestroy, 1, 1, subject, func() {
				postCalls.Inc()
			})

			tassert.Fatalf(t, reconfigureCalls.Load() == int64(k), "expected %d reconfigure calls, got %d", k, reconfigureCalls.Load())
			tassert.Fatalf(t, postCalls.Load() == 1, "expected exactly 1 postReconfigurationCallback, got %d", postCalls.Load())
		})
	}
}

type reconfigurableFunc func(msg *ReconfigurationMessage, workerID int) error

func (f reconfigurableFunc) Reconfigure(msg *ReconfigurationMessage, workerID int) error {
	return f(msg, workerID)
}

func TestPoisonTaskStopsWorker(t *testing.T) {
	cfg := dynamicConfig(2)
	sched := NewScheduler(cfg)
	sched.Start()

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop within deadline")
	}
}

func TestDataTaskExecutesAndMarksComplete(t *testing.T) {
	cfg := dynamicConfig(1)
	sched := NewScheduler(cfg)
	sched.Start()
	defer sched.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	stage := &pipeline.FuncStage{
		ExecuteFn: func(buf *memsys.TupleBuffer, ctx *pipeline.ExecutionContext, wctx *pipeline.WorkerContext) pipeline.Result {
			wg.Done()
			return pipeline.ResultOk
		},
	}
	p := pipeline.NewPipeline(5, stage, pipeline.NewExecutionContext(5, pipeline.NewHandlerTable(), nil, nil))
	sched.Submit(&Task{PipelineID: 5, Pipeline: p, OnComplete: func(*Task) { wg.Done() }})

	waitOrTimeout(t, &wg, time.Second)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(d):
		t.Fatal("timed out waiting for task execution")
	}
}
