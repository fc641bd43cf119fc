package vfs

import (
	"strings"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/process"
)

const (
	maxPathLen   = 4096
	maxNameLen   = 255
	maxSymlinks  = 40
)

// splitClean splits an absolute, slash-separated path into its
// components, validating the length and null-byte constraints of
// Invariant V1. "." components are dropped; ".." is left in place for
// the caller to resolve against the walk stack (resolution needs to know
// whether it is crossing a jail boundary).
func splitClean(p string) ([]string, error) {
	if strings.IndexByte(p, 0) >= 0 {
		return nil, kerrors.ErrInvalidArgument
	}
	if len(p) > maxPathLen {
		return nil, kerrors.ErrNameTooLong
	}
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." {
			continue
		}
		if len(part) > maxNameLen {
			return nil, kerrors.ErrNameTooLong
		}
		out = append(out, part)
	}
	return out, nil
}

// walk resolves components against root. ".." never walks above the
// starting root: this is what gives V3 ("no escape") for free for the
// textual path handed in, since there is no parent pointer to climb past
// it. jailRoot is the jailed process's effective root in the tree's real
// coordinate space (empty for an unconfined resolve); every absolute
// symlink target encountered mid-walk is rewritten onto jailRoot before
// being re-resolved, the same prefix-after-clean treatment
// ResolveForProcess gives the caller-supplied path itself, so a symlink
// cannot be used to jump out to the tree's true root.
//
// creds gates the walk itself: searching a directory requires execute
// permission on it, checked here — not as a separate prefix scan — so
// directories reached through a dereferenced symlink are covered too.
// A nil creds walks uncredentialed.
func (t *Tree) walk(root *Inode, components []string, followLastSymlink bool, jailRoot string, derefBudget *int, creds *process.Process) (*Inode, string, *Inode, error) {
	cur := root
	var parent *Inode
	var name string

	for i, comp := range components {
		isLast := i == len(components)-1

		if comp == ".." {
			parent = nil // ".." above root is a no-op; we don't track parent chains here
			continue
		}

		cur.mu.RLock()
		kind := cur.Kind
		cur.mu.RUnlock()
		if kind != KindDir {
			return nil, "", nil, kerrors.ErrNotADir
		}
		if !checkPermission(cur, creds, 0o1) {
			return nil, "", nil, kerrors.ErrPermissionDenied
		}
		cur.mu.RLock()
		child, ok := cur.children[comp]
		cur.mu.RUnlock()

		if !ok {
			if isLast {
				return nil, comp, cur, kerrors.ErrNotFound
			}
			return nil, "", nil, kerrors.ErrNotFound
		}

		if child.Kind == KindSymlink && (!isLast || followLastSymlink) {
			*derefBudget--
			if *derefBudget < 0 {
				return nil, "", nil, kerrors.ErrLoop
			}
			var next *Inode
			var nextParent *Inode
			var nextName string
			var err error
			if strings.HasPrefix(child.Target(), "/") {
				var targetComponents []string
				targetComponents, err = splitClean(jailRewrite(jailRoot, child.Target()))
				if err != nil {
					return nil, "", nil, err
				}
				next, nextName, nextParent, err = t.walk(t.Root(), targetComponents, true, jailRoot, derefBudget, creds)
			} else {
				var targetComponents []string
				targetComponents, err = splitClean(child.Target())
				if err != nil {
					return nil, "", nil, err
				}
				next, nextName, nextParent, err = t.walk(parentOrRoot(parent, cur), targetComponents, true, jailRoot, derefBudget, creds)
			}
			if err != nil {
				return nil, "", nil, err
			}
			cur = next
			parent = nextParent
			name = nextName
			continue
		}

		parent = cur
		name = comp
		cur = child
	}

	return cur, name, parent, nil
}

func parentOrRoot(parent, cur *Inode) *Inode {
	if parent != nil {
		return parent
	}
	return cur
}
