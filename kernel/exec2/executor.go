package exec2

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/axeberg/axebergos/kernel/ids"
)

// backoff parks a worker for a short, increasing delay once it has found
// no work anywhere (own deque, injector, or a random peer), capped low
// enough that new work arriving via Spawn or a Waker is picked up
// promptly.
func backoff(spins int) {
	d := time.Duration(spins) * 10 * time.Microsecond
	if d > time.Millisecond {
		d = time.Millisecond
	}
	time.Sleep(d)
}

// Poll mirrors kernel/exec1.Poll: a task's unit of progress returns
// Pending to suspend (re-readied later via a Waker) or Ready when done.
type Poll int

const (
	Pending Poll = iota
	Ready
)

// Future is the work-stealing executor's schedulable unit, structurally
// identical to kernel/exec1.Future so the same task bodies run under
// either scheduling mode, whichever one boot selects.
type Future interface {
	Poll(w *Waker) Poll
}

// Waker re-readies a task from any goroutine.
type Waker struct {
	ex   *Executor
	task ids.TaskId
}

// Wake re-injects the owning task (via the global injector — a woken
// task's prior deque affinity is not preserved, matching the injector's
// role as the catch-all re-entry point).
func (w *Waker) Wake() {
	w.ex.wakeTask(w.task)
}

type taskEntry struct {
	id     ids.TaskId
	future Future
}

// Executor is the work-stealing scheduler: N worker goroutines, each
// owning a Chase-Lev deque, draining a shared injector when their own
// deque empties, then stealing from a random peer.
type Executor struct {
	mu       sync.Mutex
	tasks    map[ids.TaskId]*taskEntry
	inReady  map[ids.TaskId]bool
	gen      *ids.Tasks
	n        int
	deques   []*deque
	inj      *injector
	execLog  execLog
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// execLog records every task id ever executed, used to verify W1/W2
// ("every spawned task appears exactly once, no duplicates").
type execLog struct {
	mu  sync.Mutex
	ids []ids.TaskId
}

func (l *execLog) record(id ids.TaskId) {
	l.mu.Lock()
	l.ids = append(l.ids, id)
	l.mu.Unlock()
}

// NewExecutor returns a work-stealing executor with n worker deques.
func NewExecutor(n int) *Executor {
	if n < 1 {
		n = 1
	}
	deques := make([]*deque, n)
	for i := range deques {
		deques[i] = newDeque(8)
	}
	return &Executor{
		tasks:   make(map[ids.TaskId]*taskEntry),
		inReady: make(map[ids.TaskId]bool),
		gen:     ids.NewTasks(),
		n:       n,
		deques:  deques,
		inj:     newInjector(),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// Spawn registers future and enqueues it into the global injector — an
// external spawn has no worker affinity yet.
func (e *Executor) Spawn(future Future) ids.TaskId {
	e.mu.Lock()
	id := e.gen.Next()
	e.tasks[id] = &taskEntry{id: id, future: future}
	e.mu.Unlock()
	e.inj.push(id)
	return id
}

func (e *Executor) wakeTask(id ids.TaskId) {
	e.mu.Lock()
	_, ok := e.tasks[id]
	already := e.inReady[id]
	if ok && !already {
		e.inReady[id] = true
	}
	e.mu.Unlock()
	if ok && !already {
		e.inj.push(id)
	}
}

func (e *Executor) randPeer(self int) int {
	if e.n <= 1 {
		return self
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	for {
		p := e.rng.Intn(e.n)
		if p != self {
			return p
		}
	}
}

// Run starts n worker goroutines via errgroup and blocks until every
// worker has returned. A worker returns nil as soon as it observes ctx
// done, whether or not work is still queued, so Run returns once ctx is
// cancelled.
func (e *Executor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.n; i++ {
		i := i
		g.Go(func() error { return e.workerLoop(gctx, i) })
	}
	return g.Wait()
}

func (e *Executor) workerLoop(ctx context.Context, self int) error {
	own := e.deques[self]
	idleSpins := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var id ids.TaskId
		var ok bool

		if v, got := own.popBottom(); got {
			id, ok = v.(ids.TaskId), true
		} else if v, got := e.inj.pop(); got {
			id, ok = v.(ids.TaskId), true
		} else if v, got := e.deques[e.randPeer(self)].steal(); got {
			id, ok = v.(ids.TaskId), true
		}

		if !ok {
			idleSpins++
			// Park briefly rather than busy-spin; backoff caps the sleep
			// at 1ms, after which the worker rechecks ctx and the queues
			// (new work from Spawn/Wake lands in the injector).
			backoff(idleSpins)
			continue
		}
		idleSpins = 0
		e.runOne(own, id)
	}
}

func (e *Executor) runOne(own *deque, id ids.TaskId) {
	e.mu.Lock()
	t, exists := e.tasks[id]
	delete(e.inReady, id)
	e.mu.Unlock()
	if !exists {
		return
	}

	w := &Waker{ex: e, task: id}
	if t.future.Poll(w) == Ready {
		e.mu.Lock()
		delete(e.tasks, id)
		e.mu.Unlock()
		e.execLog.record(id)
		return
	}
	// Still pending: stays off every deque until its Waker fires; if it
	// re-readies itself synchronously during this poll, push it back onto
	// the owner's own deque for LIFO cache locality.
	e.mu.Lock()
	readied := e.inReady[id]
	e.mu.Unlock()
	if readied {
		own.pushBottom(id)
	}
}

// ExecLog returns every task id that reached Ready, in completion order,
// for W1/W2 verification ("exactly once", "no duplicates").
func (e *Executor) ExecLog() []ids.TaskId {
	e.execLog.mu.Lock()
	defer e.execLog.mu.Unlock()
	out := make([]ids.TaskId, len(e.execLog.ids))
	copy(out, e.execLog.ids)
	return out
}

// Len reports how many tasks are currently registered.
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}
