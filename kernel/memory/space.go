package memory

import (
	"sync"
	"sync/atomic"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// System tracks the global memory cap shared across every process's
// regions. Shared segments count against one bill.
type System struct {
	limit uint64
	used  int64
}

// NewSystem returns a system-wide memory accountant with the given cap.
func NewSystem(limit uint64) *System { return &System{limit: limit} }

func (s *System) reserve(n uint64) error {
	if s.limit == 0 {
		return nil
	}
	for {
		cur := atomic.LoadInt64(&s.used)
		next := cur + int64(n)
		if uint64(next) > s.limit {
			return kerrors.ErrQuotaExceeded
		}
		if atomic.CompareAndSwapInt64(&s.used, cur, next) {
			return nil
		}
	}
}

func (s *System) release(n uint64) {
	atomic.AddInt64(&s.used, -int64(n))
}

// Used reports current system-wide allocated bytes.
func (s *System) Used() uint64 { return uint64(atomic.LoadInt64(&s.used)) }

// Space is one process's memory accounting and region set.
type Space struct {
	mu       sync.RWMutex
	sys      *System
	limit    uint64
	regions  map[ids.RegionId]*Region
	gen      *ids.Regions
	peak     uint64
}

// NewSpace returns an empty memory space backed by sys and bounded by
// the given per-process resident limit (0 = unlimited).
func NewSpace(sys *System, limit uint64) *Space {
	return &Space{sys: sys, limit: limit, regions: make(map[ids.RegionId]*Region), gen: ids.NewRegions()}
}

func (s *Space) allocated() uint64 {
	var total uint64
	for _, r := range s.regions {
		total += r.Size
	}
	return total
}

// Alloc creates a new zero-initialized region, failing with
// QuotaExceeded if either the per-process or system limit would be
// exceeded.
func (s *Space) Alloc(size uint64, prot Prot) (ids.RegionId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit != 0 && s.allocated()+size > s.limit {
		return 0, kerrors.ErrQuotaExceeded
	}
	if err := s.sys.reserve(size); err != nil {
		return 0, err
	}

	id := s.gen.Next()
	s.regions[id] = newRegion(id, size, prot)
	if total := s.allocated(); total > s.peak {
		s.peak = total
	}
	return id, nil
}

// Free releases a region's backing pages and its quota reservation.
func (s *Space) Free(id ids.RegionId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[id]
	if !ok {
		return kerrors.ErrNotFound
	}
	delete(s.regions, id)
	s.sys.release(r.Size)
	return nil
}

// Get returns the region identified by id.
func (s *Space) Get(id ids.RegionId) (*Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[id]
	if !ok {
		return nil, kerrors.ErrNotFound
	}
	return r, nil
}

// Read reads from region id at offset off, per M1.
func (s *Space) Read(id ids.RegionId, off uint64, buf []byte) (int, error) {
	r, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	return r.Read(off, buf)
}

// Write writes to region id at offset off, per M1/M2.
func (s *Space) Write(id ids.RegionId, off uint64, buf []byte) (int, error) {
	r, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	return r.Write(off, buf)
}

// Stats reports current allocation figures for memstats.
type Stats struct {
	Allocated uint64
	Peak      uint64
	Limit     uint64
	CowFaults uint64
}

// Stats returns the space's current accounting snapshot. CowFaults is a
// kernel-wide counter (see CowFaults), not scoped to this space alone.
func (s *Space) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Allocated: s.allocated(), Peak: s.peak, Limit: s.limit, CowFaults: CowFaults()}
}

// SetLimit adjusts the per-process resident limit (set_memlimit).
func (s *Space) SetLimit(limit uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = limit
}

// Fork produces a child Space that shares every page in every region
// with the parent via copy-on-write (M4). The child reserves its own
// copy of the system-wide quota for the duplicated region sizes.
func (s *Space) Fork() (*Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	child := NewSpace(s.sys, s.limit)
	for id, r := range s.regions {
		if err := s.sys.reserve(r.Size); err != nil {
			// Roll back any regions already reserved for the child.
			for cid, cr := range child.regions {
				s.sys.release(cr.Size)
				delete(child.regions, cid)
			}
			return nil, err
		}
		child.regions[id] = r.ForkClone(id)
	}
	child.gen = s.gen
	child.peak = s.peak
	return child, nil
}
