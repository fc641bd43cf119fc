// Package vfs implements the in-memory virtual filesystem tree: inodes,
// directories, symlinks, path resolution, and the POSIX permission
// model.
package vfs

import (
	"sync"
	"time"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/process"
)

// Kind tags what an Inode represents.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// Mode bits, POSIX-compatible subset.
const (
	ModeSetuid = 1 << 11
	ModeSetgid = 1 << 10
	ModeSticky = 1 << 9

	ModeOwnerR = 1 << 8
	ModeOwnerW = 1 << 7
	ModeOwnerX = 1 << 6
	ModeGroupR = 1 << 5
	ModeGroupW = 1 << 4
	ModeGroupX = 1 << 3
	ModeOtherR = 1 << 2
	ModeOtherW = 1 << 1
	ModeOtherX = 1 << 0
)

// Inode is the kernel's notion of a file system object, kept distinct
// from the directory entries that name it: two directory entries may
// point at the same Inode (a hard link), and nlink tracks exactly how
// many do.
type Inode struct {
	mu sync.RWMutex

	Kind Kind
	Uid  ids.Uid
	Gid  ids.Gid
	Mode uint32
	Nlink int

	Atime, Mtime, Ctime time.Time

	data     []byte            // KindFile
	children map[string]*Inode // KindDir
	target   string            // KindSymlink
}

// NewFile returns a new empty regular-file inode.
func NewFile(uid ids.Uid, gid ids.Gid, mode uint32) *Inode {
	now := clockNow()
	return &Inode{Kind: KindFile, Uid: uid, Gid: gid, Mode: mode, Nlink: 1, Atime: now, Mtime: now, Ctime: now}
}

// NewDir returns a new empty directory inode.
func NewDir(uid ids.Uid, gid ids.Gid, mode uint32) *Inode {
	now := clockNow()
	return &Inode{Kind: KindDir, Uid: uid, Gid: gid, Mode: mode, Nlink: 2, children: make(map[string]*Inode), Atime: now, Mtime: now, Ctime: now}
}

// NewSymlink returns a new symlink inode pointing at target.
func NewSymlink(uid ids.Uid, gid ids.Gid, target string) *Inode {
	now := clockNow()
	return &Inode{Kind: KindSymlink, Uid: uid, Gid: gid, Mode: 0o777, Nlink: 1, target: target, Atime: now, Mtime: now, Ctime: now}
}

// clockNow is indirected so tests can pin timestamps deterministically.
var clockNow = time.Now

// Size returns the content length for a regular file, or 0 otherwise.
func (n *Inode) Size() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return int64(len(n.data))
}

// ReadAt copies content starting at off into buf (regular files only).
func (n *Inode) ReadAt(off int64, buf []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if off < 0 || off >= int64(len(n.data)) {
		if off == int64(len(n.data)) {
			n.Atime = clockNow()
			return 0, nil
		}
		return 0, kerrors.ErrInvalidArgument
	}
	c := copy(buf, n.data[off:])
	n.Atime = clockNow()
	return c, nil
}

// WriteAt writes buf starting at off, growing the file if necessary.
func (n *Inode) WriteAt(off int64, buf []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	end := off + int64(len(buf))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	c := copy(n.data[off:], buf)
	now := clockNow()
	n.Mtime, n.Ctime = now, now
	return c, nil
}

// Truncate sets the file's content length to size.
func (n *Inode) Truncate(size int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if size <= int64(len(n.data)) {
		n.data = n.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, n.data)
		n.data = grown
	}
	now := clockNow()
	n.Mtime, n.Ctime = now, now
}

// Target returns the symlink's target path.
func (n *Inode) Target() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.target
}

// touchCtime marks ctime as now, used by metadata mutations.
func (n *Inode) touchCtime() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Ctime = clockNow()
}

// checkPermission checks access in order: euid==0 or DAC-override
// capability allows outright; else owner, group, other bits.
func checkPermission(n *Inode, creds *process.Process, need uint32) bool {
	n.mu.RLock()
	mode := n.Mode
	owner := n.Uid
	group := n.Gid
	n.mu.RUnlock()

	if creds == nil {
		return true
	}
	if creds.Euid == 0 || creds.HasCap(process.CapDacOverride) {
		return true
	}
	var bits uint32
	switch {
	case creds.Euid == owner:
		bits = (mode >> 6) & 0o7
	case hasGroup(creds, group):
		bits = (mode >> 3) & 0o7
	default:
		bits = mode & 0o7
	}
	return bits&need == need
}

func hasGroup(creds *process.Process, g ids.Gid) bool {
	if creds.Egid == g {
		return true
	}
	for _, gg := range creds.Groups {
		if gg == g {
			return true
		}
	}
	return false
}
