package queryengine

import "sync"

// TaskQueue is an unbounded, FIFO, multi-producer/multi-consumer task queue (§4.4,
// §5 "Task queues are MPMC"). Push never blocks; Pop blocks until a task is
// available or the queue is closed.
type TaskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Task
	closed bool
}

func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues t at the tail; FIFO within this queue (§4.4 "Task admission
// ordering").
func (q *TaskQueue) Push(t *Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until a task is available, returning (nil, false) only once the queue
// has been closed and drained.
func (q *TaskQueue) Pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

// Len reports the current queue depth (used by stats/metrics).
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed; blocked Pop callers wake and, once drained, return
// false. Closing does not discard already-queued tasks (§4.4 "drains reconfiguration
// tasks... before a worker exits").
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
