// Package object implements the kernel object table: a reference-counted
// registry of the long-lived objects a process can hold a handle to.
package object

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// Kind tags the variant a kernel object carries.
type Kind int

const (
	// KindFile is a regular VFS-backed open file.
	KindFile Kind = iota
	// KindPipe is an anonymous pipe endpoint.
	KindPipe
	// KindConsole is the shared console in/out buffer pair.
	KindConsole
	// KindWindow is a compositor window handle.
	KindWindow
	// KindDirIter is an open directory iteration cursor.
	KindDirIter
	// KindUDS is a Unix-domain socket endpoint.
	KindUDS
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindPipe:
		return "pipe"
	case KindConsole:
		return "console"
	case KindWindow:
		return "window"
	case KindDirIter:
		return "diriter"
	case KindUDS:
		return "uds"
	default:
		return "unknown"
	}
}

// Object is anything the table can hold a handle to. Destroy is called
// exactly once, when the refcount reaches zero.
type Object interface {
	Kind() Kind
	Destroy()
}

type entry struct {
	obj      Object
	refcount int32
}

// Table is the kernel's single authoritative registry of long-lived
// objects. A Handle is a non-forgeable index into it; the table enforces
// invariants O1 (refcount accounting) and O2 (no operation succeeds
// through a released handle).
type Table struct {
	mu      sync.RWMutex
	entries map[ids.Handle]*entry
	gen     *ids.Handles
}

// NewTable returns an empty object table.
func NewTable() *Table {
	return &Table{
		entries: make(map[ids.Handle]*entry),
		gen:     ids.NewHandles(),
	}
}

// Insert registers obj with an initial refcount of 1 and returns its handle.
func (t *Table) Insert(obj Object) ids.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.gen.Next()
	t.entries[h] = &entry{obj: obj, refcount: 1}
	return h
}

// Retain pre-increments the refcount of h, used when a new (pid, fd)
// binding is created for an already-open handle (e.g. dup, fork).
func (t *Table) Retain(h ids.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[h]
	if !ok {
		return kerrors.ErrBadFd
	}
	e.refcount++
	return nil
}

// Release decrements the refcount of h, destroying and removing the
// object when it reaches zero. Returns true if the object was destroyed.
func (t *Table) Release(h ids.Handle) (bool, error) {
	t.mu.Lock()
	e, ok := t.entries[h]
	if !ok {
		t.mu.Unlock()
		return false, kerrors.ErrBadFd
	}
	e.refcount--
	destroyed := e.refcount <= 0
	if destroyed {
		delete(t.entries, h)
	}
	t.mu.Unlock()

	if destroyed {
		e.obj.Destroy()
	}
	return destroyed, nil
}

// Get returns the object bound to h. It fails with ErrBadFd for any
// handle that was never inserted or has since been released (O2).
func (t *Table) Get(h ids.Handle) (Object, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[h]
	if !ok {
		return nil, kerrors.ErrBadFd
	}
	return e.obj, nil
}

// Refcount reports the current refcount of h, or (0, false) if unknown.
func (t *Table) Refcount(h ids.Handle) (int32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[h]
	if !ok {
		return 0, false
	}
	return e.refcount, true
}

// Len returns the number of live handles, for diagnostics and tests.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
