package stats

import "sync"

// Listener is the §4.9 "statistics listener": the object a worker notifies when a
// task completes. It only routes updates to the right QueryStats; the rolling
// averages live in PipelineStats and the adaptive decision lives in
// TuplePerTaskComputer, kept apart so either can be replaced independently (e.g. a
// latency-based computer instead of throughput-based, without touching the rolling
// average bookkeeping).
type Listener struct {
	mu      sync.RWMutex
	queries map[uint64]*QueryStats
	window  int
}

// NewListener constructs a listener tracking a rolling window of windowSize samples
// per pipeline (§6 default adaptive.windowSize=10).
func NewListener(windowSize int) *Listener {
	return &Listener{queries: make(map[uint64]*QueryStats), window: windowSize}
}

// Register attaches a query's SLA and adaptive computer so OnTaskCompleted can
// route completions for its pipelines.
func (l *Listener) Register(queryID uint64, sla SLA, computer TuplePerTaskComputer, initialTuplesPerTask int) *QueryStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := NewQueryStats(sla, computer, initialTuplesPerTask)
	l.queries[queryID] = q
	return q
}

// OnTaskCompleted implements §4.9: update the pipeline rolling average, aggregate
// query-level SLA compliance, and recompute tuples-per-task exactly once for this
// task. Returns the new target, or ok=false if queryID was never registered.
func (l *Listener) OnTaskCompleted(queryID, pipelineID uint64, ts TaskStatistics) (next int, ok bool) {
	l.mu.RLock()
	q, found := l.queries[queryID]
	l.mu.RUnlock()
	if !found {
		return 0, false
	}
	return q.OnTaskCompleted(pipelineID, l.window, ts), true
}

// Snapshot returns the current aggregated snapshot for queryID.
func (l *Listener) Snapshot(queryID uint64) (Snapshot, bool) {
	l.mu.RLock()
	q, found := l.queries[queryID]
	l.mu.RUnlock()
	if !found {
		return Snapshot{}, false
	}
	return q.Snapshot(queryID), true
}

// Unregister drops a finished query's tracked state.
func (l *Listener) Unregister(queryID uint64) {
	l.mu.Lock()
	delete(l.queries, queryID)
	l.mu.Unlock()
}
