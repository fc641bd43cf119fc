package vfs

import (
	"strings"
	"sync"
	"time"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/process"
)

// Tree is the in-memory filesystem tree: one root Inode plus the
// resolution, mutation, and permission-check machinery layered over it.
type Tree struct {
	mu   sync.RWMutex
	root *Inode
}

// NewTree returns a tree with an empty root directory owned by root:root
// mode 0755.
func NewTree() *Tree {
	return &Tree{root: NewDir(0, 0, 0o755)}
}

// Root returns the tree's root inode.
func (t *Tree) Root() *Inode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Resolve normalizes and resolves an absolute path to its inode, its
// final component name, and its parent directory inode. followSymlink
// controls whether a symlink at the final component is itself followed
// (false is used by lstat/readlink/unlink-style callers).
func (t *Tree) Resolve(absPath string, followSymlink bool) (inode *Inode, name string, parent *Inode, err error) {
	return t.resolveJailed(absPath, followSymlink, nil)
}

// resolveJailed is Resolve's credentialed form: creds's jail root (empty
// for an unconfined resolve) is threaded through walk so that any
// symlink dereferenced mid-path, not just the literal path handed in, is
// confined to it, and walk checks execute permission for creds on every
// directory it searches — including directories reached through an
// intermediate symlink, which a prefix scan over the literal path would
// miss entirely.
func (t *Tree) resolveJailed(absPath string, followSymlink bool, creds *process.Process) (inode *Inode, name string, parent *Inode, err error) {
	components, err := splitClean(absPath)
	if err != nil {
		return nil, "", nil, err
	}
	if len(components) == 0 {
		return t.Root(), "", nil, nil
	}
	budget := maxSymlinks
	return t.walk(t.Root(), components, followSymlink, jailRootOf(creds), &budget, creds)
}

// jailRootOf returns creds's effective jail root in resolveJailed's
// form (no trailing slash, "" when unconfined or creds is nil).
func jailRootOf(creds *process.Process) string {
	if creds == nil || !creds.Jailed() {
		return ""
	}
	return strings.TrimSuffix(creds.JailRoot, "/")
}

// ResolveForCaller resolves absPath for creds: every path-accepting
// syscall goes through it instead of calling Resolve directly, so the
// traversal check (execute permission on every directory searched) and
// jail confinement apply structurally rather than per caller. Both live
// inside walk itself, which is the only place that can see directories
// reached through intermediate symlinks.
func (t *Tree) ResolveForCaller(absPath string, creds *process.Process, followSymlink bool) (*Inode, string, *Inode, error) {
	return t.resolveJailed(absPath, followSymlink, creds)
}

// Mkdir creates a new directory at absPath.
func (t *Tree) Mkdir(absPath string, creds *process.Process, mode uint32) error {
	parentPath, name := splitDirBase(absPath)
	parent, _, _, err := t.resolveJailed(parentPath, true, creds)
	if err != nil {
		return err
	}
	if !checkPermission(parent, creds, 0o2) {
		return kerrors.ErrPermissionDenied
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if parent.Kind != KindDir {
		return kerrors.ErrNotADir
	}
	if _, exists := parent.children[name]; exists {
		return kerrors.ErrExists
	}
	parent.children[name] = NewDir(creds.Euid, creds.Egid, mode&^creds.Umask)
	parent.Mtime = clockNow()
	parent.Ctime = parent.Mtime
	return nil
}

// Create creates a new regular file at absPath.
func (t *Tree) Create(absPath string, creds *process.Process, mode uint32) (*Inode, error) {
	parentPath, name := splitDirBase(absPath)
	parent, _, _, err := t.resolveJailed(parentPath, true, creds)
	if err != nil {
		return nil, err
	}
	if !checkPermission(parent, creds, 0o2) {
		return nil, kerrors.ErrPermissionDenied
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if parent.Kind != KindDir {
		return nil, kerrors.ErrNotADir
	}
	if existing, exists := parent.children[name]; exists {
		return existing, nil
	}
	n := NewFile(creds.Euid, creds.Egid, mode&^creds.Umask)
	parent.children[name] = n
	parent.Mtime = clockNow()
	parent.Ctime = parent.Mtime
	return n, nil
}

// Symlink creates a symlink at absPath pointing at target.
func (t *Tree) Symlink(absPath, target string, creds *process.Process) error {
	parentPath, name := splitDirBase(absPath)
	parent, _, _, err := t.resolveJailed(parentPath, true, creds)
	if err != nil {
		return err
	}
	if !checkPermission(parent, creds, 0o2) {
		return kerrors.ErrPermissionDenied
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if _, exists := parent.children[name]; exists {
		return kerrors.ErrExists
	}
	parent.children[name] = NewSymlink(creds.Euid, creds.Egid, target)
	return nil
}

// Link adds a second directory entry, linkPath, pointing at the same
// inode as targetPath, incrementing nlink — true hard links, not a
// content-copy degraded form.
func (t *Tree) Link(targetPath, linkPath string, creds *process.Process) error {
	target, _, _, err := t.resolveJailed(targetPath, false, creds)
	if err != nil {
		return err
	}
	if target.Kind == KindDir {
		return kerrors.ErrIsADir
	}
	parentPath, name := splitDirBase(linkPath)
	parent, _, _, err := t.resolveJailed(parentPath, true, creds)
	if err != nil {
		return err
	}
	if !checkPermission(parent, creds, 0o2) {
		return kerrors.ErrPermissionDenied
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if _, exists := parent.children[name]; exists {
		return kerrors.ErrExists
	}
	target.mu.Lock()
	target.Nlink++
	target.mu.Unlock()
	parent.children[name] = target
	return nil
}

// Remove deletes a non-directory entry, or a directory entry via
// RemoveDir for directories (distinct error kinds: IsADir vs NotADir).
func (t *Tree) Remove(absPath string, creds *process.Process) error {
	parentPath, name := splitDirBase(absPath)
	parent, _, _, err := t.resolveJailed(parentPath, true, creds)
	if err != nil {
		return err
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	child, ok := parent.children[name]
	if !ok {
		return kerrors.ErrNotFound
	}
	if child.Kind == KindDir {
		return kerrors.ErrIsADir
	}
	if !t.canDeleteInSticky(parent, child, creds) {
		return kerrors.ErrPermissionDenied
	}
	delete(parent.children, name)
	child.mu.Lock()
	child.Nlink--
	child.mu.Unlock()
	return nil
}

// RemoveDir deletes an empty directory entry.
func (t *Tree) RemoveDir(absPath string, creds *process.Process) error {
	parentPath, name := splitDirBase(absPath)
	parent, _, _, err := t.resolveJailed(parentPath, true, creds)
	if err != nil {
		return err
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	child, ok := parent.children[name]
	if !ok {
		return kerrors.ErrNotFound
	}
	if child.Kind != KindDir {
		return kerrors.ErrNotADir
	}
	child.mu.RLock()
	empty := len(child.children) == 0
	child.mu.RUnlock()
	if !empty {
		return kerrors.ErrNotEmpty
	}
	if !t.canDeleteInSticky(parent, child, creds) {
		return kerrors.ErrPermissionDenied
	}
	delete(parent.children, name)
	return nil
}

// canDeleteInSticky implements Invariant V2: deletion in a sticky
// directory is permitted only to the file owner, the directory owner, or
// a process holding fowner.
func (t *Tree) canDeleteInSticky(parent, child *Inode, creds *process.Process) bool {
	// The caller holds parent.mu, so the write check runs on a copy of
	// parent's permission fields instead of locking parent again.
	if !checkPermission(&Inode{Uid: parent.Uid, Gid: parent.Gid, Mode: parent.Mode}, creds, 0o2) {
		return false
	}
	sticky := parent.Mode&ModeSticky != 0
	dirOwner := parent.Uid
	if !sticky {
		return true
	}
	if creds == nil || creds.Euid == 0 || creds.HasCap(process.CapFowner) {
		return true
	}
	child.mu.RLock()
	fileOwner := child.Uid
	child.mu.RUnlock()
	return creds.Euid == dirOwner || creds.Euid == fileOwner
}

// ReadDir lists a directory's entries, minus any in-process whiteout
// handling (left to the overlay layer).
func (t *Tree) ReadDir(absPath string, creds *process.Process) ([]string, error) {
	dir, _, _, err := t.ResolveForCaller(absPath, creds, true)
	if err != nil {
		return nil, err
	}
	if !checkPermission(dir, creds, 0o4) {
		return nil, kerrors.ErrPermissionDenied
	}
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	if dir.Kind != KindDir {
		return nil, kerrors.ErrNotADir
	}
	names := make([]string, 0, len(dir.children))
	for name := range dir.children {
		names = append(names, name)
	}
	return names, nil
}

// Chmod updates an inode's mode bits and ctime.
func (t *Tree) Chmod(absPath string, creds *process.Process, mode uint32) error {
	n, _, _, err := t.ResolveForCaller(absPath, creds, true)
	if err != nil {
		return err
	}
	if creds != nil && creds.Euid != 0 && creds.Euid != n.Uid && !creds.HasCap(process.CapFowner) {
		return kerrors.ErrPermissionDenied
	}
	n.mu.Lock()
	n.Mode = mode
	n.Ctime = clockNow()
	n.mu.Unlock()
	return nil
}

// Chown updates an inode's owner/group and ctime.
func (t *Tree) Chown(absPath string, creds *process.Process, uid ids.Uid, gid ids.Gid) error {
	n, _, _, err := t.ResolveForCaller(absPath, creds, true)
	if err != nil {
		return err
	}
	if creds != nil && creds.Euid != 0 && !creds.HasCap(process.CapChown) {
		return kerrors.ErrPermissionDenied
	}
	n.mu.Lock()
	n.Uid = uid
	n.Gid = gid
	n.Ctime = clockNow()
	n.mu.Unlock()
	return nil
}

// Utimes sets an inode's access and modification times and bumps ctime.
// Only the owner, root, or a CapFowner holder may set explicit times.
func (t *Tree) Utimes(absPath string, creds *process.Process, atime, mtime time.Time) error {
	n, _, _, err := t.ResolveForCaller(absPath, creds, true)
	if err != nil {
		return err
	}
	if creds != nil && creds.Euid != 0 && creds.Euid != n.Uid && !creds.HasCap(process.CapFowner) {
		return kerrors.ErrPermissionDenied
	}
	n.mu.Lock()
	n.Atime = atime
	n.Mtime = mtime
	n.Ctime = clockNow()
	n.mu.Unlock()
	return nil
}

// Rename moves a directory entry from oldPath to newPath, reusing the
// same Inode (no content copy) the way Link does.
func (t *Tree) Rename(oldPath, newPath string, creds *process.Process) error {
	oldParentPath, oldName := splitDirBase(oldPath)
	oldParent, _, _, err := t.resolveJailed(oldParentPath, true, creds)
	if err != nil {
		return err
	}
	if !checkPermission(oldParent, creds, 0o2) {
		return kerrors.ErrPermissionDenied
	}

	newParentPath, newName := splitDirBase(newPath)
	newParent, _, _, err := t.resolveJailed(newParentPath, true, creds)
	if err != nil {
		return err
	}
	if !checkPermission(newParent, creds, 0o2) {
		return kerrors.ErrPermissionDenied
	}

	oldParent.mu.Lock()
	child, ok := oldParent.children[oldName]
	if !ok {
		oldParent.mu.Unlock()
		return kerrors.ErrNotFound
	}
	delete(oldParent.children, oldName)
	oldParent.mu.Unlock()

	newParent.mu.Lock()
	if _, exists := newParent.children[newName]; exists {
		newParent.mu.Unlock()
		oldParent.mu.Lock()
		oldParent.children[oldName] = child
		oldParent.mu.Unlock()
		return kerrors.ErrExists
	}
	newParent.children[newName] = child
	newParent.mu.Unlock()
	return nil
}

// splitDirBase splits "/a/b/c" into ("/a/b", "c").
func splitDirBase(absPath string) (dir, base string) {
	clean := strings.TrimSuffix(absPath, "/")
	idx := strings.LastIndexByte(clean, '/')
	if idx < 0 {
		return "/", clean
	}
	dir = clean[:idx]
	if dir == "" {
		dir = "/"
	}
	return dir, clean[idx+1:]
}
