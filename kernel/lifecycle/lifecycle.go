// Package lifecycle implements process creation and termination: fork
// (COW duplicate), the exec family (replace-in-place), waitpid, exit, and
// reaping.
package lifecycle

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/memory"
	"github.com/axeberg/axebergos/kernel/object"
	"github.com/axeberg/axebergos/kernel/process"
	"github.com/axeberg/axebergos/kernel/signal"
	"github.com/axeberg/axebergos/logging"
)

const modeSetuid = 1 << 11
const modeSetgid = 1 << 10

// Manager coordinates the process table, object table, signal table, and
// per-process memory spaces across fork/exec/exit/wait.
type Manager struct {
	procs  *process.Table
	objs   *object.Table
	sigs   *signal.Table
	memSys *memory.System

	mu      sync.Mutex
	spaces  map[ids.Pid]*memory.Space
	waiters map[ids.Pid][]chan struct{} // signaled when a child of pid changes zombie/continued state
}

// NewManager wires a lifecycle manager around already-constructed shared
// tables, then boots pid 1 with a full capability set and its own memory
// space bounded by initSpaceLimit.
func NewManager(procs *process.Table, objs *object.Table, sigs *signal.Table, memSys *memory.System, initSpaceLimit uint64) (*Manager, *process.Process) {
	m := &Manager{
		procs:   procs,
		objs:    objs,
		sigs:    sigs,
		memSys:  memSys,
		spaces:  make(map[ids.Pid]*memory.Space),
		waiters: make(map[ids.Pid][]chan struct{}),
	}
	init := process.NewRoot()
	procs.Insert(init)
	sigs.Register(init.Pid)
	m.spaces[init.Pid] = memory.NewSpace(memSys, initSpaceLimit)
	logging.Info("lifecycle: booted init process", "pid", int(init.Pid))
	return m, init
}

// Space returns pid's memory space.
func (m *Manager) Space(pid ids.Pid) (*memory.Space, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spaces[pid]
	if !ok {
		return nil, kerrors.ErrNoProcess
	}
	return s, nil
}

// Fork duplicates parent into a new child process: COW memory space, a
// cloned fd table with every handle retained in the object table, and a
// copy of credentials/env/cwd/jail/nice/umask.
func (m *Manager) Fork(parent *process.Process) (*process.Process, error) {
	parentSpace, err := m.Space(parent.Pid)
	if err != nil {
		return nil, err
	}
	childSpace, err := parentSpace.Fork()
	if err != nil {
		return nil, err
	}

	childPid := m.procs.NextPid()
	child := process.New(childPid, parent.Pid, parent.Pgid, parent.Sid)

	child.Ruid, child.Euid, child.Suid = parent.Ruid, parent.Euid, parent.Suid
	child.Rgid, child.Egid, child.Sgid = parent.Rgid, parent.Egid, parent.Sgid
	child.Groups = append([]ids.Gid(nil), parent.Groups...)
	child.SetCaps(parent.Caps().Fork())
	child.Cwd = parent.Cwd
	child.JailRoot = parent.JailRoot
	child.Umask = parent.Umask
	child.Nice = parent.Nice
	child.Environ = make(map[string]string, len(parent.Environ))
	for k, v := range parent.Environ {
		child.Environ[k] = v
	}

	cloned := parent.Fds().CloneForFork()
	for _, h := range cloned.All() {
		if err := m.objs.Retain(h); err != nil {
			logging.Warn("lifecycle: fork could not retain inherited handle", "pid", int(childPid), "handle", int(h))
		}
	}
	child.SetFds(cloned)

	m.procs.Insert(child)
	m.sigs.Register(child.Pid)
	m.mu.Lock()
	m.spaces[child.Pid] = childSpace
	m.mu.Unlock()

	logging.Info("lifecycle: fork", "parent", int(parent.Pid), "child", int(child.Pid))
	return child, nil
}

// ExecResult reports the net effect exec had on the process's open files
// and signal dispositions, mirroring what the syscall layer needs to log.
type ExecResult struct {
	ClosedFds []ids.Handle
}

// Exec replaces proc's executable context in place: closes CLOEXEC fds,
// resets every non-Ignore signal disposition to Default, and — if
// fileMode carries the setuid/setgid bit — raises euid/egid to the
// resolved binary's owner, bounded by capability rules. The caller (the
// syscall layer) is responsible for path
// resolution and supplies the resolved binary's owning uid/gid/mode.
func (m *Manager) Exec(proc *process.Process, fileUid ids.Uid, fileGid ids.Gid, fileMode uint32) (ExecResult, error) {
	newFds, dropped := proc.Fds().CloneForExec()
	for _, h := range dropped {
		if _, err := m.objs.Release(h); err != nil {
			logging.Warn("lifecycle: exec could not release cloexec handle", "pid", int(proc.Pid), "handle", int(h))
		}
	}
	proc.SetFds(newFds)

	if st, err := m.sigs.Get(proc.Pid); err == nil {
		for sig := signal.SIGTERM; sig <= signal.SIGPIPE; sig++ {
			if st.Disposition(sig) != signal.Ignore {
				_ = st.SetDisposition(sig, signal.Default)
			}
		}
	}

	if fileMode&modeSetuid != 0 && proc.HasCap(process.CapSetuid) {
		proc.Euid = fileUid
	}
	if fileMode&modeSetgid != 0 && proc.HasCap(process.CapSetgid) {
		proc.Egid = fileGid
	}

	logging.Info("lifecycle: exec", "pid", int(proc.Pid))
	return ExecResult{ClosedFds: dropped}, nil
}

// Exit transitions pid to Zombie, reparents its children to init, wakes
// any parent blocked in waitpid, and enqueues SIGCHLD. The process's fd
// handles and memory space are released
// immediately; only the exit-status stub survives until reaped.
func (m *Manager) Exit(proc *process.Process, status int32) error {
	if err := proc.SetExitStatus(status); err != nil {
		return err
	}

	m.procs.Reparent(proc.Pid, ids.InitPid)

	for fd, h := range proc.Fds().All() {
		if _, err := m.objs.Release(h); err != nil {
			logging.Warn("lifecycle: exit could not release handle", "pid", int(proc.Pid), "fd", int(fd))
		}
	}

	m.mu.Lock()
	if space, ok := m.spaces[proc.Pid]; ok {
		_ = space // the zombie stub keeps no resident memory; the space is dropped
		delete(m.spaces, proc.Pid)
	}
	m.mu.Unlock()

	if parent, err := m.procs.Get(proc.Ppid); err == nil {
		if st, err := m.sigs.Get(parent.Pid); err == nil {
			st.Enqueue(signal.SIGCHLD)
		}
	}
	m.notifyWaiters(proc.Ppid)

	logging.Info("lifecycle: exit", "pid", int(proc.Pid), "status", status)
	return nil
}

// ApplySignal applies a selected delivery to proc's process state: Kill
// and Terminate produce a zombie whose status encodes the signal number
// as -signum, Stop and Continue move the process between Stopped and
// Running, and Ignore/Handle leave it untouched (Handle is recorded by
// the signal state; no user callback runs in the delivering context).
func (m *Manager) ApplySignal(proc *process.Process, del signal.Delivery) error {
	switch del.Action {
	case signal.Kill, signal.Terminate:
		return m.Exit(proc, -int32(del.Signal))
	case signal.Stop:
		if err := proc.Transition(process.Stopped); err != nil {
			return err
		}
		logging.Info("lifecycle: stopped by signal", "pid", int(proc.Pid), "signal", del.Signal.String())
		return nil
	case signal.Continue:
		if proc.State() == process.Stopped {
			if err := proc.Transition(process.Running); err != nil {
				return err
			}
		}
		m.notifyWaiters(proc.Ppid)
		return nil
	default:
		return nil
	}
}

func (m *Manager) notifyWaiters(parent ids.Pid) {
	m.mu.Lock()
	chans := m.waiters[parent]
	delete(m.waiters, parent)
	m.mu.Unlock()
	for _, c := range chans {
		close(c)
	}
}

// WaitOptions mirrors the POSIX waitpid option flags this kernel supports.
type WaitOptions struct {
	NoHang      bool
	Continued   bool
}

// WaitResult is what waitpid reports about the reaped or observed child.
type WaitResult struct {
	Pid       ids.Pid
	Status    int32
	Continued bool
}

// WaitPid waits for a child of parent matching target (0 meaning "any
// child") to change state. A Zombie child is reaped (its process-table
// record removed) and its status returned; with Continued set and no
// zombie available, a child that was resumed since the last wait is
// reported instead. With NoHang, returns ErrNoChild immediately if
// nothing is ready rather than blocking.
func (m *Manager) WaitPid(parent *process.Process, target ids.Pid, opts WaitOptions) (WaitResult, error) {
	for {
		if res, ok, err := m.tryWait(parent, target, opts); err != nil {
			return WaitResult{}, err
		} else if ok {
			return res, nil
		}
		if opts.NoHang {
			return WaitResult{}, kerrors.ErrNoChild
		}

		ch := make(chan struct{})
		m.mu.Lock()
		m.waiters[parent.Pid] = append(m.waiters[parent.Pid], ch)
		m.mu.Unlock()
		<-ch
	}
}

func (m *Manager) tryWait(parent *process.Process, target ids.Pid, opts WaitOptions) (WaitResult, bool, error) {
	children := m.procs.Children(parent.Pid)
	if target != 0 {
		found := false
		for _, c := range children {
			if c == target {
				found = true
				break
			}
		}
		if !found {
			return WaitResult{}, false, kerrors.ErrNoChild
		}
		children = []ids.Pid{target}
	}
	if len(children) == 0 {
		return WaitResult{}, false, kerrors.ErrNoChild
	}

	for _, pid := range children {
		child, err := m.procs.Get(pid)
		if err != nil {
			continue
		}
		if status, ok := child.ExitStatus(); ok {
			m.procs.Remove(pid)
			m.sigs.Remove(pid)
			return WaitResult{Pid: pid, Status: status}, true, nil
		}
	}

	if opts.Continued {
		for _, pid := range children {
			child, err := m.procs.Get(pid)
			if err != nil {
				continue
			}
			st, err := m.sigs.Get(pid)
			if err != nil {
				continue
			}
			if st.WasContinued() {
				return WaitResult{Pid: child.Pid, Continued: true}, true, nil
			}
		}
	}

	return WaitResult{}, false, nil
}
