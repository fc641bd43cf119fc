// Package process implements the process table and per-process state:
// credentials, capabilities, resource limits, jail confinement, and the
// fd→handle layer.
package process

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// State is a process's scheduling state.
type State int

const (
	Running State = iota
	Sleeping
	Stopped
	Zombie
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Stopped:
		return "stopped"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// permitted holds the process state transition table for P1-P4: Zombie is
// terminal (only left by reaping, which removes the record entirely, not
// by a state transition).
var permitted = map[State]map[State]bool{
	Running:  {Sleeping: true, Stopped: true, Zombie: true},
	Sleeping: {Running: true, Stopped: true, Zombie: true},
	Stopped:  {Running: true, Zombie: true},
	Zombie:   {},
}

const defaultUmask = 0o022

// Process is a single schedulable unit of kernel state: one entry in the
// process table.
type Process struct {
	mu sync.RWMutex

	Pid  ids.Pid
	Ppid ids.Pid
	Pgid ids.Pgid
	Sid  ids.Sid

	state      State
	exitStatus *int32

	Ruid, Euid, Suid ids.Uid
	Rgid, Egid, Sgid ids.Gid
	Groups           []ids.Gid

	caps CapSet

	fds *FdTable

	Cwd      string
	JailRoot string // empty means unconfined
	Environ  map[string]string

	memAllocated uint64
	memPeak      uint64
	memLimit     uint64
	ownedRegions map[ids.RegionId]struct{}
	attachedShm  map[ids.ShmId]struct{}

	Umask uint32
	Nice  int

	rlimits [numResources]Rlimit

	TaskId ids.TaskId
}

// New creates a process record in the Running state with default
// credentials, an empty capability set, default rlimits, and umask 0o022.
func New(pid, ppid ids.Pid, pgid ids.Pgid, sid ids.Sid) *Process {
	return &Process{
		Pid:          pid,
		Ppid:         ppid,
		Pgid:         pgid,
		Sid:          sid,
		state:        Running,
		fds:          NewFdTable(),
		Environ:      make(map[string]string),
		ownedRegions: make(map[ids.RegionId]struct{}),
		attachedShm:  make(map[ids.ShmId]struct{}),
		Umask:        defaultUmask,
		rlimits:      defaultRlimits(),
	}
}

// NewRoot creates the init process (pid 1) with a full capability set,
// like any root-owned process.
func NewRoot() *Process {
	p := New(ids.InitPid, 0, ids.Pgid(ids.InitPid), ids.Sid(ids.InitPid))
	p.caps = FullCapSet()
	return p
}

// State returns the process's current scheduling state.
func (p *Process) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// ExitStatus returns the encoded exit status and whether the process has
// one (i.e. is a Zombie).
func (p *Process) ExitStatus() (int32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.exitStatus == nil {
		return 0, false
	}
	return *p.exitStatus, true
}

// Transition moves the process to next, enforcing the permitted state
// transitions. Pid 1 is never allowed into Zombie.
func (p *Process) Transition(next State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Pid == ids.InitPid && next == Zombie {
		return kerrors.ErrInvalidTransition
	}
	if !permitted[p.state][next] {
		return kerrors.ErrInvalidTransition
	}
	p.state = next
	return nil
}

// SetExitStatus transitions the process to Zombie with the given encoded
// status. Negative statuses encode "killed by signal -status".
func (p *Process) SetExitStatus(status int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Pid == ids.InitPid {
		return kerrors.ErrInvalidTransition
	}
	if !permitted[p.state][Zombie] {
		return kerrors.ErrInvalidTransition
	}
	p.state = Zombie
	p.exitStatus = &status
	return nil
}

// Caps returns a copy of the process's current capability set.
func (p *Process) Caps() CapSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.caps
}

// SetCaps replaces the process's capability set wholesale (used by fork
// and exec, which compute the child/new set themselves).
func (p *Process) SetCaps(c CapSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caps = c
}

// HasCap reports whether euid is root or cap is effective — the standard
// "root or capability" gate used throughout the syscall layer.
func (p *Process) HasCap(cap Capability) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Euid == 0 || p.caps.Has(cap)
}

// Fds returns the process's fd table.
func (p *Process) Fds() *FdTable { return p.fds }

// SetFds installs a replacement fd table, used by fork (CloneForFork) and
// exec (CloneForExec) once the new table has been built.
func (p *Process) SetFds(fds *FdTable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fds = fds
}
