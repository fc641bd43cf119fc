package process

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

type fdEntry struct {
	handle  ids.Handle
	cloexec bool
}

// FdTable maps a process's small-integer file descriptors to object-table
// handles. Fds 0, 1, and 2 are reserved for stdio and are
// never handed out by AllocFd.
type FdTable struct {
	mu      sync.Mutex
	entries map[ids.Fd]fdEntry
	cap     int
}

// NewFdTable returns an empty fd table with the default NOFILE cap.
func NewFdTable() *FdTable {
	return &FdTable{
		entries: make(map[ids.Fd]fdEntry),
		cap:     1024,
	}
}

// SetCap adjusts the maximum number of simultaneously open fds, mirroring
// a process's NOFILE soft limit.
func (t *FdTable) SetCap(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cap = n
}

// Bind installs handle at the reserved fd n (used to set up stdin/stdout/
// stderr at process creation).
func (t *FdTable) Bind(n ids.Fd, handle ids.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[n] = fdEntry{handle: handle}
}

// AllocFd returns the least fd ≥ 3 not currently in use and binds it to
// handle. Fails with TooManyOpenFiles once the table is at its cap.
func (t *FdTable) AllocFd(handle ids.Handle) (ids.Fd, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) >= t.cap {
		return -1, kerrors.ErrTooManyOpenFiles
	}
	for fd := ids.Fd(3); ; fd++ {
		if _, used := t.entries[fd]; !used {
			t.entries[fd] = fdEntry{handle: handle}
			return fd, nil
		}
	}
}

// Lookup returns the handle bound to fd.
func (t *FdTable) Lookup(fd ids.Fd) (ids.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return 0, kerrors.ErrBadFd
	}
	return e.handle, nil
}

// Close removes fd from the table and returns the handle it was bound to,
// so the caller can release it from the object table.
func (t *FdTable) Close(fd ids.Fd) (ids.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return 0, kerrors.ErrBadFd
	}
	delete(t.entries, fd)
	return e.handle, nil
}

// Dup allocates a new fd bound to the same handle as fd. The caller is
// responsible for retaining the handle in the object table.
func (t *FdTable) Dup(fd ids.Fd) (ids.Fd, ids.Handle, error) {
	t.mu.Lock()
	e, ok := t.entries[fd]
	if !ok {
		t.mu.Unlock()
		return -1, 0, kerrors.ErrBadFd
	}
	t.mu.Unlock()
	newFd, err := t.AllocFd(e.handle)
	return newFd, e.handle, err
}

// SetCloexec sets or clears the close-on-exec flag for fd.
func (t *FdTable) SetCloexec(fd ids.Fd, v bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return kerrors.ErrBadFd
	}
	e.cloexec = v
	t.entries[fd] = e
	return nil
}

// Cloexec reports whether fd is marked close-on-exec.
func (t *FdTable) Cloexec(fd ids.Fd) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return false, kerrors.ErrBadFd
	}
	return e.cloexec, nil
}

// CloneForFork duplicates the table verbatim: every fd retains its
// handle and CLOEXEC flag (the handle retain itself is the caller's
// responsibility in the object table).
func (t *FdTable) CloneForFork() *FdTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	clone := NewFdTable()
	clone.cap = t.cap
	for fd, e := range t.entries {
		clone.entries[fd] = e
	}
	return clone
}

// CloneForExec produces a new fd table omitting any fd with CLOEXEC set.
// It returns both the new table and the handles that were dropped, so
// the caller can release them from the object table.
func (t *FdTable) CloneForExec() (*FdTable, []ids.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	clone := NewFdTable()
	clone.cap = t.cap
	var dropped []ids.Handle
	for fd, e := range t.entries {
		if e.cloexec {
			dropped = append(dropped, e.handle)
			continue
		}
		clone.entries[fd] = e
	}
	return clone, dropped
}

// All returns every (fd, handle) binding currently open, for /proc/<pid>/fd.
func (t *FdTable) All() map[ids.Fd]ids.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[ids.Fd]ids.Handle, len(t.entries))
	for fd, e := range t.entries {
		out[fd] = e.handle
	}
	return out
}
