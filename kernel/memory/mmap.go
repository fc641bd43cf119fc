package memory

import "github.com/axeberg/axebergos/kernel/ids"

// FileBacking is the minimal surface a VFS file object must expose to be
// mmap'd: random-access reads and (for shared mappings) writes. Kept
// narrow so this package never imports the VFS.
type FileBacking interface {
	ReadAt(off int64, buf []byte) (int, error)
	WriteAt(off int64, buf []byte) (int, error)
}

// MapMode distinguishes a private copy-on-write mapping from a shared
// one whose writes are visible to other mappers of the same file.
type MapMode int

const (
	MapPrivate MapMode = iota
	MapShared
)

// Mapping associates a region with the file object it was mapped from.
type Mapping struct {
	RegionId ids.RegionId
	Mode     MapMode
	backing  FileBacking
	offset   int64
}

// Mmap creates a region of the given size backed by file starting at
// offset, populating it from the file's current contents. In
// MapPrivate mode writes to the region never reach the file until (never,
// in this model — private mappings are COW-only and not sync'd). In
// MapShared mode, Msync pushes dirty pages back to the file.
func (s *Space) Mmap(file FileBacking, offset int64, size uint64, prot Prot, mode MapMode) (*Mapping, error) {
	id, err := s.Alloc(size, prot)
	if err != nil {
		return nil, err
	}
	region, _ := s.Get(id)
	buf := make([]byte, size)
	n, _ := file.ReadAt(offset, buf)
	if n > 0 {
		region.mu.Lock()
		for i := 0; i < n; i++ {
			pg := region.pages[i/PageSize]
			pg.mu.Lock()
			pg.data[i%PageSize] = buf[i]
			pg.mu.Unlock()
		}
		region.mu.Unlock()
	}
	region.ClearDirty()
	return &Mapping{RegionId: id, Mode: mode, backing: file, offset: offset}, nil
}

// Msync writes every dirty page of a MapShared mapping back to its file.
// It is a no-op (and clears no dirty bits) for MapPrivate mappings, which
// never propagate writes to the backing file in this model.
func (s *Space) Msync(m *Mapping) error {
	if m.Mode != MapShared {
		return nil
	}
	region, err := s.Get(m.RegionId)
	if err != nil {
		return err
	}
	dirty := region.DirtyPages()
	for _, idx := range dirty {
		pg := region.pages[idx]
		pg.mu.Lock()
		buf := pg.data
		pg.mu.Unlock()
		m.backing.WriteAt(m.offset+int64(idx)*PageSize, buf[:])
	}
	region.ClearDirty()
	return nil
}
