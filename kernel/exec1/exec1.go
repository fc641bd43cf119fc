// Package exec1 implements the single-threaded cooperative executor:
// priority-ordered ready queues, a waker protocol, task groups,
// cancellation, and deadline-based timeouts.
package exec1

import (
	"sync"

	"github.com/axeberg/axebergos/kernel/ids"
)

// Poll is the result of polling a future once.
type Poll int

const (
	Pending Poll = iota
	Ready
)

// Future is a resumable unit of work. Poll is called once per tick while
// the task is in the ready set; returning Pending suspends it until its
// Waker is invoked.
type Future interface {
	Poll(w *Waker) Poll
}

// Priority is one of the three scheduling classes: all of
// Critical drains before any Normal, all of Normal before any Background.
type Priority int

const (
	Critical Priority = iota
	Normal
	Background

	numPriorities
)

// Waker lets a suspended future re-ready its own task from anywhere
// (another task's poll, an IPC completion, a timer fire).
type Waker struct {
	ex   *Executor
	task ids.TaskId
}

// Wake re-adds the owning task to its priority's ready queue, if it is
// still registered (a cancelled task's waker is inert).
func (w *Waker) Wake() {
	w.ex.wake(w.task)
}

type taskEntry struct {
	id       ids.TaskId
	future   Future
	priority Priority
	group    ids.TaskId // 0 means root (no group)
}

// Executor is the single-threaded cooperative scheduler.
type Executor struct {
	mu       sync.Mutex
	tasks    map[ids.TaskId]*taskEntry
	ready    [numPriorities][]ids.TaskId
	inReady  map[ids.TaskId]bool
	children map[ids.TaskId][]ids.TaskId
	gen      *ids.Tasks
}

// NewExecutor returns an empty cooperative executor.
func NewExecutor() *Executor {
	return &Executor{
		tasks:    make(map[ids.TaskId]*taskEntry),
		inReady:  make(map[ids.TaskId]bool),
		children: make(map[ids.TaskId][]ids.TaskId),
		gen:      ids.NewTasks(),
	}
}

// Spawn registers future under the given priority and group (0 for no
// group) and marks it ready for the next tick.
func (e *Executor) Spawn(future Future, priority Priority, group ids.TaskId) ids.TaskId {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.gen.Next()
	e.tasks[id] = &taskEntry{id: id, future: future, priority: priority, group: group}
	e.readyLocked(id, priority)
	if group != 0 {
		e.children[group] = append(e.children[group], id)
	}
	return id
}

func (e *Executor) readyLocked(id ids.TaskId, priority Priority) {
	if e.inReady[id] {
		return
	}
	e.inReady[id] = true
	e.ready[priority] = append(e.ready[priority], id)
}

func (e *Executor) wake(id ids.TaskId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	if !ok {
		return
	}
	e.readyLocked(id, t.priority)
}

// NewGroup allocates a group identifier (itself a TaskId) with no future
// attached. It exists purely to be a cancellation scope.
func (e *Executor) NewGroup(parent ids.TaskId) ids.TaskId {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.gen.Next()
	if parent != 0 {
		e.children[parent] = append(e.children[parent], id)
	}
	return id
}

// Tick polls every task that was ready at the start of this call, in
// priority order (all Critical before any Normal, all Normal before any
// Background), FIFO within a class. A task that re-readies itself during
// its own poll (via its own waker, synchronously) runs again next tick,
// not within this one — this is the "observationally atomic" ordering
// guarantee: no task observes a side effect published after this tick
// began.
func (e *Executor) Tick() {
	for prio := Priority(0); prio < numPriorities; prio++ {
		e.mu.Lock()
		batch := e.ready[prio]
		e.ready[prio] = nil
		for _, id := range batch {
			delete(e.inReady, id)
		}
		e.mu.Unlock()

		for _, id := range batch {
			e.pollOne(id)
		}
	}
}

func (e *Executor) pollOne(id ids.TaskId) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return // cancelled before it could be polled
	}

	w := &Waker{ex: e, task: id}
	if t.future.Poll(w) == Ready {
		e.mu.Lock()
		delete(e.tasks, id)
		e.mu.Unlock()
	}
}

// Cancel removes task id from the ready set and the task table and drops
// its future without polling it again. Cancellation is not delivered
// into the future as an exception; the task simply stops being
// scheduled.
func (e *Executor) Cancel(id ids.TaskId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked(id)
}

func (e *Executor) cancelLocked(id ids.TaskId) {
	delete(e.tasks, id)
	delete(e.inReady, id)
	for _, child := range e.children[id] {
		e.cancelLocked(child)
	}
	delete(e.children, id)
}

// CancelGroup cancels every descendant of group transitively, in no
// particular order.
func (e *Executor) CancelGroup(group ids.TaskId) {
	e.Cancel(group)
}

// Len reports how many tasks are currently registered (ready or
// suspended), for diagnostics and tests.
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}
