package queryengine

import (
	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/cmn/mono"
	"github.com/nebulastream/nes-runtime/cmn/nlog"
	"github.com/nebulastream/nes-runtime/pipeline"
	"github.com/nebulastream/nes-runtime/stats"
)

// worker is one OS-thread-backed goroutine running the cooperative loop of §4.4:
// blocking-read a task, execute it, repeat until a poison task is observed. No
// coroutines or cooperative yielding beyond blocking on the task queue's condition
// (§5 "Suspension points").
type worker struct {
	id    int
	queue *TaskQueue
	stats *stats.Listener
	done  chan struct{}
}

func newWorker(id int, queue *TaskQueue, listener *stats.Listener) *worker {
	return &worker{id: id, queue: queue, stats: listener, done: make(chan struct{})}
}

func (w *worker) run() {
	defer close(w.done)
	wctx := &pipeline.WorkerContext{WorkerID: w.id}
	for {
		task, ok := w.queue.Pop()
		if !ok {
			return
		}
		if task.IsReconfiguration() {
			w.runReconfiguration(task)
			continue
		}
		if stop := w.runData(task, wctx); stop {
			return
		}
	}
}

// runReconfiguration executes the barrier protocol of §4.4 steps (a)-(c): await the
// countdown implicitly by simply participating (the countdown itself is the
// barrier — there is nothing else to await before calling Reconfigure), invoke
// Reconfigure, then decrement+signal via arrive().
func (w *worker) runReconfiguration(task *Task) {
	if task.Subject != nil {
		if err := task.Subject.Reconfigure(task.Reconfig, w.id); err != nil {
			nlog.Errorln("queryengine: reconfigure failed:", err)
		}
	}
	task.Reconfig.arrive()
}

// runData executes one data task's pipeline stage; it returns true if this task was
// the poison task signalling the worker to exit.
func (w *worker) runData(task *Task, wctx *pipeline.WorkerContext) bool {
	var tuples uint64
	if task.Buffer != nil {
		tuples = task.Buffer.NumberOfTuples()
	}
	start := mono.NanoTime()
	result := task.Pipeline.Stage.Execute(task.Buffer, task.Pipeline.Ctx, wctx)
	elapsed := float64(mono.Since(start)) / 1e9

	switch result {
	case pipeline.ResultAllFinished:
		return true
	case pipeline.ResultOk:
		completedTasks.Inc()
		w.reportStats(task, tuples, elapsed)
		if task.OnComplete != nil {
			task.OnComplete(task)
		}
	case pipeline.ResultFinished:
		completedTasks.Inc()
		w.reportStats(task, tuples, elapsed)
		if task.OnComplete != nil {
			task.OnComplete(task)
		}
		// no more work is re-enqueued for this pipeline (§4.4).
	case pipeline.ResultError:
		err := cmn.NewErrPipelineExecutionFailed(task.PipelineID, nil)
		if task.OnFailure != nil {
			task.OnFailure(task, err)
		}
		// execution continues for other tasks/pipelines (§4.4 "On Error... execution
		// continues").
	}
	return false
}

// reportStats implements §4.9's "on each completed task, a statistics listener..."
// for every pipeline of every query, not only a stage author who remembers to call
// it themselves from inside their own ExecuteFn.
func (w *worker) reportStats(task *Task, tuples uint64, elapsedSeconds float64) {
	if w.stats == nil {
		return
	}
	throughput := float64(tuples)
	if elapsedSeconds > 0 {
		throughput = float64(tuples) / elapsedSeconds
	}
	w.stats.OnTaskCompleted(task.QueryID, task.PipelineID, stats.TaskStatistics{
		Throughput: throughput,
		Latency:    elapsedSeconds,
		Tuples:     tuples,
	})
}

// poisonPipeline builds the sentinel pipeline a poison task carries: its Execute
// always returns AllFinished regardless of the buffer/context passed in.
func poisonPipeline() *pipeline.Pipeline {
	return pipeline.NewPipeline(0, pipeline.PoisonStage{}, nil)
}
