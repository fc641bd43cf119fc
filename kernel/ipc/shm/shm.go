// Package shm implements System-V style shared memory segments:
// shmget/shmat/shmdt with explicit
// shm_sync/shm_refresh rather than coherent hardware sharing, since this
// kernel has no real MMU behind it.
package shm

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// Segment is a System-V shared memory segment: a single backing byte
// slice every attached process's shadow region syncs against.
type Segment struct {
	mu      sync.Mutex
	id      ids.ShmId
	key     int64
	size    uint64
	store   []byte
	attach  int
}

// Table is the kernel-wide registry of shared memory segments.
type Table struct {
	mu    sync.Mutex
	byKey map[int64]*Segment
	byId  map[ids.ShmId]*Segment
	gen   *ids.Shm
}

// NewTable returns an empty shared-memory table.
func NewTable() *Table {
	return &Table{byKey: make(map[int64]*Segment), byId: make(map[ids.ShmId]*Segment), gen: ids.NewShm()}
}

// Get creates or attaches to the segment named by key (shmget).
func (t *Table) Get(key int64, size uint64, create bool, excl bool) (ids.ShmId, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seg, ok := t.byKey[key]; ok {
		if create && excl {
			return 0, kerrors.ErrExists
		}
		return seg.id, nil
	}
	if !create {
		return 0, kerrors.ErrNotFound
	}
	id := t.gen.Next()
	seg := &Segment{id: id, key: key, size: size, store: make([]byte, size)}
	t.byKey[key] = seg
	t.byId[id] = seg
	return id, nil
}

func (t *Table) lookup(id ids.ShmId) (*Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seg, ok := t.byId[id]
	if !ok {
		return nil, kerrors.ErrNotFound
	}
	return seg, nil
}

// Attach bumps the segment's attach count (shmat) and returns a fresh
// per-process shadow region pre-populated from the segment's current
// contents. Protection is the caller's concern (the region's own Prot
// field, set by whatever memory.Space.Alloc call wraps this).
func (t *Table) Attach(id ids.ShmId) ([]byte, error) {
	seg, err := t.lookup(id)
	if err != nil {
		return nil, err
	}
	seg.mu.Lock()
	defer seg.mu.Unlock()
	seg.attach++
	shadow := make([]byte, len(seg.store))
	copy(shadow, seg.store)
	return shadow, nil
}

// Detach decrements the segment's attach count (shmdt). When it reaches
// zero the segment is destroyed.
func (t *Table) Detach(id ids.ShmId) error {
	t.mu.Lock()
	seg, ok := t.byId[id]
	if !ok {
		t.mu.Unlock()
		return kerrors.ErrNotFound
	}
	t.mu.Unlock()

	seg.mu.Lock()
	seg.attach--
	destroy := seg.attach <= 0
	seg.mu.Unlock()

	if destroy {
		t.mu.Lock()
		delete(t.byId, id)
		delete(t.byKey, seg.key)
		t.mu.Unlock()
	}
	return nil
}

// Sync pushes shadow's contents into the segment's shared store
// (shm_sync): writers call this to publish their local changes.
func (t *Table) Sync(id ids.ShmId, shadow []byte) error {
	seg, err := t.lookup(id)
	if err != nil {
		return err
	}
	seg.mu.Lock()
	defer seg.mu.Unlock()
	n := copy(seg.store, shadow)
	if n < len(shadow) {
		return kerrors.ErrTooBig
	}
	return nil
}

// Refresh copies the segment's shared store into shadow (shm_refresh):
// readers call this to pull in another process's published changes.
// External synchronization (e.g. a semaphore) is the caller's
// responsibility.
func (t *Table) Refresh(id ids.ShmId, shadow []byte) error {
	seg, err := t.lookup(id)
	if err != nil {
		return err
	}
	seg.mu.Lock()
	defer seg.mu.Unlock()
	copy(shadow, seg.store)
	return nil
}

// Size returns the segment's fixed size.
func (t *Table) Size(id ids.ShmId) (uint64, error) {
	seg, err := t.lookup(id)
	if err != nil {
		return 0, err
	}
	return seg.size, nil
}
