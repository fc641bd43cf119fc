// Package timer implements the kernel's monotonic timer queue: a
// min-heap keyed by absolute deadline, with one-shot and interval timers
// and lazy cancellation.
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/axeberg/axebergos/kernel/ids"
)

type entry struct {
	id        ids.TimerId
	deadline  time.Time
	interval  time.Duration // zero for one-shot
	taskID    ids.TaskId
	cancelled bool
	index     int
}

// entryHeap is a container/heap min-heap ordered by deadline.
type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue is the kernel's timer queue.
type Queue struct {
	mu      sync.Mutex
	heap    entryHeap
	byID    map[ids.TimerId]*entry
	gen     *ids.Timers
	lastFire time.Time
}

// NewQueue returns an empty timer queue.
func NewQueue() *Queue {
	return &Queue{byID: make(map[ids.TimerId]*entry), gen: ids.NewTimers()}
}

// Set schedules a one-shot timer firing at now+delay for task.
func (q *Queue) Set(now time.Time, delay time.Duration, task ids.TaskId) ids.TimerId {
	return q.schedule(now.Add(delay), 0, task)
}

// Interval schedules a repeating timer with the given period, firing its
// first tick at now+period.
func (q *Queue) Interval(now time.Time, period time.Duration, task ids.TaskId) ids.TimerId {
	return q.schedule(now.Add(period), period, task)
}

func (q *Queue) schedule(deadline time.Time, interval time.Duration, task ids.TaskId) ids.TimerId {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.gen.Next()
	e := &entry{id: id, deadline: deadline, interval: interval, taskID: task}
	q.byID[id] = e
	heap.Push(&q.heap, e)
	return id
}

// Cancel marks id as cancelled. A cancelled timer is lazily dropped the
// next time it would otherwise fire (T3: it never appears in the fired
// log).
func (q *Queue) Cancel(id ids.TimerId) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.byID[id]; ok {
		e.cancelled = true
	}
}

// Fired is one timer-queue entry that fired on a Tick.
type Fired struct {
	TimerId ids.TimerId
	TaskId  ids.TaskId
}

// Tick extracts every non-cancelled entry with deadline ≤ now, in
// non-decreasing deadline order (T1). Interval timers are reinserted
// with deadline+interval before the extraction continues, which is what
// guarantees T2: an interval timer's next occurrence cannot be skipped
// ahead of a still-pending timer with a later original deadline, because
// the reinsertion happens through the same heap ordering as everything
// else.
func (q *Queue) Tick(now time.Time) []Fired {
	q.mu.Lock()
	defer q.mu.Unlock()

	var fired []Fired
	for q.heap.Len() > 0 && !q.heap[0].deadline.After(now) {
		e := heap.Pop(&q.heap).(*entry)
		if e.cancelled {
			delete(q.byID, e.id)
			continue
		}
		fired = append(fired, Fired{TimerId: e.id, TaskId: e.taskID})
		if e.interval > 0 {
			e.deadline = e.deadline.Add(e.interval)
			heap.Push(&q.heap, e)
		} else {
			delete(q.byID, e.id)
		}
	}
	if len(fired) > 0 {
		q.lastFire = now
	}
	return fired
}

// Len reports how many timer entries (fired or not) remain scheduled.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}
