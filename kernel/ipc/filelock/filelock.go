// Package filelock implements the two advisory locking APIs: BSD-style
// whole-file flock and POSIX byte-range fcntl locks.
// Both are purely advisory — nothing here blocks concurrent I/O, only
// conflicting lock *requests* against the same file.
package filelock

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// FlockMode is the whole-file lock mode flock(2) accepts.
type FlockMode int

const (
	FlockShared FlockMode = iota
	FlockExclusive
	FlockUnlock
)

// flockState is the whole-file lock state for one kernel object handle.
type flockState struct {
	mode    FlockMode
	holders map[ids.Pid]bool
}

// LockMode is the byte-range lock mode fcntl_lock/fcntl_getlk accept.
type LockMode int

const (
	LockRead LockMode = iota
	LockWrite
	LockUnlock
)

// Range is a byte-range lock request; Length 0 means "to end of file".
type Range struct {
	Start  int64
	Length int64
}

func (r Range) overlaps(o Range) bool {
	rEnd := r.Start + r.Length
	oEnd := o.Start + o.Length
	if r.Length == 0 {
		rEnd = int64(1)<<62
	}
	if o.Length == 0 {
		oEnd = int64(1)<<62
	}
	return r.Start < oEnd && o.Start < rEnd
}

type rangeLock struct {
	Range
	mode  LockMode
	owner ids.Pid
}

// Table tracks advisory locks keyed by object handle (a stand-in for
// inode identity at this layer — two handles referring to the same VFS
// node share locks through the caller resolving to the same handle for
// flock, and the same file path for fcntl, whichever the syscall layer
// uses consistently).
type Table struct {
	mu     sync.Mutex
	flocks map[ids.Handle]*flockState
	ranges map[ids.Handle][]rangeLock
}

// NewTable returns an empty advisory-lock table.
func NewTable() *Table {
	return &Table{flocks: make(map[ids.Handle]*flockState), ranges: make(map[ids.Handle][]rangeLock)}
}

// Flock applies mode to h on behalf of pid. Two shared holders may
// coexist; an exclusive request conflicts with any existing holder other
// than itself; FlockUnlock always succeeds.
func (t *Table) Flock(h ids.Handle, pid ids.Pid, mode FlockMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.flocks[h]
	if !ok {
		st = &flockState{mode: FlockShared, holders: make(map[ids.Pid]bool)}
		t.flocks[h] = st
	}

	if mode == FlockUnlock {
		delete(st.holders, pid)
		if len(st.holders) == 0 {
			delete(t.flocks, h)
		}
		return nil
	}

	if mode == FlockExclusive {
		for holder := range st.holders {
			if holder != pid {
				return kerrors.ErrWouldBlock
			}
		}
	} else if len(st.holders) > 0 && !st.holders[pid] && st.mode == FlockExclusive {
		return kerrors.ErrWouldBlock
	}
	if len(st.holders) == 0 {
		st.mode = mode
	} else if mode == FlockExclusive {
		st.mode = FlockExclusive
	}
	st.holders[pid] = true
	return nil
}

// Lock applies a byte-range lock request on h for pid, enforcing the
// usual read/read-compatible, write-exclusive semantics. LockUnlock
// removes pid's overlapping ranges.
func (t *Table) Lock(h ids.Handle, pid ids.Pid, r Range, mode LockMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mode == LockUnlock {
		var kept []rangeLock
		for _, rl := range t.ranges[h] {
			if rl.owner == pid && rl.Range.overlaps(r) {
				continue
			}
			kept = append(kept, rl)
		}
		t.ranges[h] = kept
		return nil
	}

	for _, rl := range t.ranges[h] {
		if rl.owner == pid || !rl.Range.overlaps(r) {
			continue
		}
		if mode == LockWrite || rl.mode == LockWrite {
			return kerrors.ErrWouldBlock
		}
	}
	t.ranges[h] = append(t.ranges[h], rangeLock{Range: r, mode: mode, owner: pid})
	return nil
}

// GetLock probes whether r would conflict with an existing lock held by
// another process (fcntl_getlk), returning the first conflicting range
// and its mode without taking a lock itself.
func (t *Table) GetLock(h ids.Handle, pid ids.Pid, r Range, mode LockMode) (conflict Range, conflictMode LockMode, conflictPid ids.Pid, found bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rl := range t.ranges[h] {
		if rl.owner == pid || !rl.Range.overlaps(r) {
			continue
		}
		if mode == LockWrite || rl.mode == LockWrite {
			return rl.Range, rl.mode, rl.owner, true
		}
	}
	return Range{}, 0, 0, false
}

// ReleaseAll drops every lock pid holds on h (used at close(fd) time:
// POSIX byte-range locks are released on any close of the file by the
// owning process, even via a different fd).
func (t *Table) ReleaseAll(h ids.Handle, pid ids.Pid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.flocks[h]; ok {
		delete(st.holders, pid)
		if len(st.holders) == 0 {
			delete(t.flocks, h)
		}
	}
	var kept []rangeLock
	for _, rl := range t.ranges[h] {
		if rl.owner != pid {
			kept = append(kept, rl)
		}
	}
	t.ranges[h] = kept
}
