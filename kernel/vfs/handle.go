package vfs

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/object"
)

// OpenFlags mirror the subset of POSIX open(2) flags this kernel
// recognizes.
type OpenFlags uint32

const (
	ORdOnly OpenFlags = 0
	OWrOnly OpenFlags = 1 << iota
	ORdWr
	OAppend
	OCreate
	OExcl
	OTrunc
	ONonBlock
)

// File is an open-file handle: an Inode plus the per-open position,
// read/write flags, and append mode. It implements memory.FileBacking so
// it can be mmap'd directly.
type File struct {
	mu    sync.Mutex
	Inode *Inode
	pos   int64
	flags OpenFlags
}

// NewFileHandle wraps inode in an open-file handle with the given flags.
func NewFileHandle(inode *Inode, flags OpenFlags) *File {
	return &File{Inode: inode, flags: flags}
}

func (f *File) writable() bool { return f.flags&(OWrOnly|ORdWr) != 0 }
func (f *File) readable() bool { return f.flags&OWrOnly == 0 }

// Read reads from the current position and advances it.
func (f *File) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.readable() {
		return 0, kerrors.ErrBadFd
	}
	n, err := f.Inode.ReadAt(f.pos, buf)
	f.pos += int64(n)
	return n, err
}

// Write writes at the current position (or at EOF if O_APPEND) and
// advances it.
func (f *File) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.writable() {
		return 0, kerrors.ErrBadFd
	}
	if f.flags&OAppend != 0 {
		f.pos = f.Inode.Size()
	}
	n, err := f.Inode.WriteAt(f.pos, buf)
	f.pos += int64(n)
	return n, err
}

// ReadAt/WriteAt satisfy memory.FileBacking for mmap, bypassing the
// handle's own cursor.
func (f *File) ReadAt(off int64, buf []byte) (int, error)  { return f.Inode.ReadAt(off, buf) }
func (f *File) WriteAt(off int64, buf []byte) (int, error) { return f.Inode.WriteAt(off, buf) }

// Whence values for Seek, matching io.Seeker's convention.
const (
	SeekSet = iota
	SeekCur
	SeekEnd
)

// Seek repositions the handle's cursor.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = f.pos
	case SeekEnd:
		base = f.Inode.Size()
	default:
		return 0, kerrors.ErrInvalidArgument
	}
	next := base + offset
	if next < 0 {
		return 0, kerrors.ErrInvalidArgument
	}
	f.pos = next
	return next, nil
}

// Position returns the current cursor position.
func (f *File) Position() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// Kind satisfies object.Object: a File is always object.KindFile in the
// object table's tagged variant.
func (f *File) Kind() object.Kind { return object.KindFile }

// Destroy satisfies object.Object. Regular files need no teardown beyond
// what garbage collection already does; the method exists so File can be
// inserted into the object table like any other kernel object.
func (f *File) Destroy() {}
