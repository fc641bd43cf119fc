package process

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// Table stores Pid → *Process for every live process in the kernel.
type Table struct {
	mu    sync.RWMutex
	procs map[ids.Pid]*Process
	gen   *ids.Pids
}

// NewTable returns an empty process table. The caller is responsible for
// inserting the init process (pid 1) itself, since it has no parent.
func NewTable() *Table {
	return &Table{
		procs: make(map[ids.Pid]*Process),
		gen:   ids.NewPids(),
	}
}

// Insert registers an already-constructed process record.
func (t *Table) Insert(p *Process) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.procs[p.Pid] = p
}

// NextPid allocates the next unused pid without creating a process record.
func (t *Table) NextPid() ids.Pid { return t.gen.Next() }

// Get returns the process record for pid.
func (t *Table) Get(pid ids.Pid) (*Process, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.procs[pid]
	if !ok {
		return nil, kerrors.ErrNoProcess
	}
	return p, nil
}

// Remove deletes a process record, used once a zombie has been reaped.
func (t *Table) Remove(pid ids.Pid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, pid)
}

// Children returns the pids of every process whose Ppid is parent.
func (t *Table) Children(parent ids.Pid) []ids.Pid {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []ids.Pid
	for pid, p := range t.procs {
		if p.Ppid == parent {
			out = append(out, pid)
		}
	}
	return out
}

// Reparent reassigns every child of old to new, used when a parent exits
// and its children must be adopted by init.
func (t *Table) Reparent(old, new ids.Pid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.procs {
		if p.Ppid == old {
			p.mu.Lock()
			p.Ppid = new
			p.mu.Unlock()
		}
	}
}

// All returns a snapshot slice of every live process record.
func (t *Table) All() []*Process {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Process, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	return out
}

// Len reports the number of live process records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.procs)
}
