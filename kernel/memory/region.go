// Package memory implements tracked memory regions, copy-on-write pages,
// mmap, shared segments, and fixed-size pools.
package memory

import (
	"sync"
	"sync/atomic"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// PageSize is the fixed unit of copy-on-write sharing.
const PageSize = 4096

// cowFaults counts every copy-on-write fault taken anywhere in the
// kernel, the same global-counter shape real kernels expose through
// vmstat's pgfault-family fields rather than per-process accounting.
var cowFaults uint64

// CowFaults reports the number of copy-on-write faults taken so far,
// kernel-wide.
func CowFaults() uint64 { return atomic.LoadUint64(&cowFaults) }

// Prot is a region's protection bitmask.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

// page is a reference-counted PageSize payload. A page with refcount > 1
// is shared copy-on-write between two or more regions: each region's
// first write to it takes a private copy, and the shared page itself is
// never mutated.
type page struct {
	mu   sync.Mutex
	data [PageSize]byte
	refs int32
}

func newPage() *page { return &page{refs: 1} }

func (p *page) retain() {
	p.mu.Lock()
	p.refs++
	p.mu.Unlock()
}

// clone returns a private copy of p with refcount 1, used on first write
// to a shared page (M4's "cow fault"). The caller holds p.mu.
func (p *page) clone() *page {
	np := newPage()
	np.data = p.data
	atomic.AddUint64(&cowFaults, 1)
	return np
}

// Region is a tracked span of process-addressable memory: a fixed size,
// a protection mask, and an array of backing pages.
type Region struct {
	mu        sync.RWMutex
	ID        ids.RegionId
	Size      uint64
	Prot      Prot
	pages     []*page
	sharedTag ids.ShmId // 0 if not a shared-segment shadow
	dirty     map[int]bool
}

func newRegion(id ids.RegionId, size uint64, prot Prot) *Region {
	n := int((size + PageSize - 1) / PageSize)
	pages := make([]*page, n)
	for i := range pages {
		pages[i] = newPage()
	}
	return &Region{ID: id, Size: size, Prot: prot, pages: pages, dirty: make(map[int]bool)}
}

func (r *Region) pageIndex(off uint64) (int, uint64, error) {
	if off >= r.Size {
		return 0, 0, kerrors.ErrMemOutOfBounds
	}
	return int(off / PageSize), off % PageSize, nil
}

// Read copies up to len(buf) bytes starting at off into buf, enforcing M1
// (no access outside [0, size)).
func (r *Region) Read(off uint64, buf []byte) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Prot&ProtRead == 0 {
		return 0, kerrors.ErrMemNotReadable
	}
	n := 0
	for n < len(buf) {
		idx, within, err := r.pageIndex(off + uint64(n))
		if err != nil {
			if n == 0 {
				return 0, err
			}
			break
		}
		pg := r.pages[idx]
		pg.mu.Lock()
		copied := copy(buf[n:], pg.data[within:])
		pg.mu.Unlock()
		n += copied
	}
	return n, nil
}

// Write copies buf into the region starting at off, enforcing M1 and M2
// (write requires W protection) and cloning any copy-on-write page before
// mutating it (M4).
func (r *Region) Write(off uint64, buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Prot&ProtWrite == 0 {
		return 0, kerrors.ErrMemNotWritable
	}
	n := 0
	for n < len(buf) {
		idx, within, err := r.pageIndex(off + uint64(n))
		if err != nil {
			if n == 0 {
				return 0, err
			}
			break
		}
		pg := r.pages[idx]
		pg.mu.Lock()
		if pg.refs > 1 {
			np := pg.clone()
			pg.mu.Unlock()
			r.pages[idx] = np
			pg = np
			pg.mu.Lock()
		}
		copied := copy(pg.data[within:], buf[n:])
		pg.mu.Unlock()
		r.dirty[idx] = true
		n += copied
	}
	return n, nil
}

// ForkClone returns a logical shallow clone of r for use by a forked
// process: every page pointer is shared and its refcount bumped, so
// neither side's first write mutates the other's bytes (M4).
func (r *Region) ForkClone(newID ids.RegionId) *Region {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &Region{
		ID:    newID,
		Size:  r.Size,
		Prot:  r.Prot,
		pages: make([]*page, len(r.pages)),
		dirty: make(map[int]bool),
	}
	for i, pg := range r.pages {
		pg.retain()
		clone.pages[i] = pg
	}
	return clone
}

// DirtyPages returns the set of page indices written since the region
// was mapped or last synced, for msync/shm_sync.
func (r *Region) DirtyPages() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.dirty))
	for idx := range r.dirty {
		out = append(out, idx)
	}
	return out
}

// ClearDirty resets the dirty-page set after a sync.
func (r *Region) ClearDirty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = make(map[int]bool)
}
