// Package sem implements System-V style counting semaphore sets with
// SEM_UNDO crash-recovery semantics. Waiters are tracked as a kernel
// waker list in both scheduling modes. A table built for the
// work-stealing (parallel) mode also gives each semaphore a
// golang.org/x/sync/semaphore.Weighted gate, reached only through
// TryAcquire; Op does not consult it, and the gate is not tied to the
// semaphore's value.
package sem

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// Waker is the minimal wakeup surface a blocked sem_op caller registers.
type Waker interface {
	Wake()
}

// UndoKey identifies one process's outstanding adjustment against one
// semaphore within a set, for the per-process undo list the kernel
// reverses when the process exits.
type UndoKey struct {
	Set  ids.SemId
	Sem  int
	Proc ids.Pid
}

type semSet struct {
	mu      sync.Mutex
	id      ids.SemId
	values  []int
	waiters [][]Waker
	weighted []*semaphore.Weighted // parallel-mode gate, one per semaphore, nil in cooperative mode
}

// Table is the kernel-wide registry of semaphore sets.
type Table struct {
	mu       sync.Mutex
	sets     map[ids.SemId]*semSet
	gen      *ids.Sem
	undo     map[UndoKey]int
	parallel bool
}

// NewTable returns an empty semaphore table. parallel selects whether
// newly created sets also carry a per-semaphore x/sync/semaphore.Weighted
// gate (work-stealing executor mode); waiters use the waker list either
// way.
func NewTable(parallel bool) *Table {
	return &Table{sets: make(map[ids.SemId]*semSet), gen: ids.NewSem(), undo: make(map[UndoKey]int), parallel: parallel}
}

// Create allocates a new semaphore set of n semaphores, all initialized
// to zero.
func (t *Table) Create(n int) ids.SemId {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.gen.Next()
	s := &semSet{id: id, values: make([]int, n), waiters: make([][]Waker, n)}
	if t.parallel {
		s.weighted = make([]*semaphore.Weighted, n)
		for i := range s.weighted {
			s.weighted[i] = semaphore.NewWeighted(1 << 30)
		}
	}
	t.sets[id] = s
	return id
}

func (t *Table) lookup(id ids.SemId) (*semSet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sets[id]
	if !ok {
		return nil, kerrors.ErrNotFound
	}
	return s, nil
}

// Op atomically applies delta to semaphore idx of set id. A delta that
// would drive the value negative fails with ErrWouldBlock (the caller
// suspends and retries). If undo is true, the adjustment is recorded
// against proc's undo list so a later Exit(proc) reverses it.
func (t *Table) Op(id ids.SemId, idx int, delta int, proc ids.Pid, undo bool) error {
	s, err := t.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if idx < 0 || idx >= len(s.values) {
		s.mu.Unlock()
		return kerrors.ErrInvalidArgument
	}
	if s.values[idx]+delta < 0 {
		s.mu.Unlock()
		return kerrors.ErrWouldBlock
	}
	s.values[idx] += delta
	waiters := s.waiters[idx]
	s.waiters[idx] = nil
	s.mu.Unlock()

	for _, w := range waiters {
		w.Wake()
	}

	if undo {
		t.mu.Lock()
		t.undo[UndoKey{Set: id, Sem: idx, Proc: proc}] -= delta
		t.mu.Unlock()
	}
	return nil
}

// TryAcquire acquires weight 1 on semaphore idx's x/sync/semaphore.Weighted
// gate and releases it at once. The gate's capacity is 1<<30, so the call
// does not wait on the semaphore's value; it fails with ErrInterrupted
// only if the acquire fails on ctx. It is a no-op success in cooperative
// mode or for an out-of-range idx.
func (t *Table) TryAcquire(ctx context.Context, id ids.SemId, idx int) error {
	s, err := t.lookup(id)
	if err != nil {
		return err
	}
	if s.weighted == nil || idx < 0 || idx >= len(s.weighted) {
		return nil
	}
	if err := s.weighted[idx].Acquire(ctx, 1); err != nil {
		return kerrors.ErrInterrupted
	}
	s.weighted[idx].Release(1)
	return nil
}

// Value returns the current value of semaphore idx (semctl GETVAL).
func (t *Table) Value(id ids.SemId, idx int) (int, error) {
	s, err := t.lookup(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.values) {
		return 0, kerrors.ErrInvalidArgument
	}
	return s.values[idx], nil
}

// RegisterWaiter registers w to be woken the next time semaphore idx's
// value changes.
func (t *Table) RegisterWaiter(id ids.SemId, idx int, w Waker) error {
	s, err := t.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.values) {
		return kerrors.ErrInvalidArgument
	}
	s.waiters[idx] = append(s.waiters[idx], w)
	return nil
}

// Remove destroys set id (semctl IPC_RMID).
func (t *Table) Remove(id ids.SemId) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sets[id]; !ok {
		return kerrors.ErrNotFound
	}
	delete(t.sets, id)
	return nil
}

// Exit reverses every outstanding SEM_UNDO adjustment proc holds across
// every semaphore set, then clears its undo list. Adjustments against
// a set that has since been removed are silently dropped.
func (t *Table) Exit(proc ids.Pid) {
	t.mu.Lock()
	var keys []UndoKey
	for k := range t.undo {
		if k.Proc == proc {
			keys = append(keys, k)
		}
	}
	t.mu.Unlock()

	for _, k := range keys {
		t.mu.Lock()
		delta := t.undo[k]
		delete(t.undo, k)
		t.mu.Unlock()
		if delta != 0 {
			t.Op(k.Set, k.Sem, delta, proc, false)
		}
	}
}
