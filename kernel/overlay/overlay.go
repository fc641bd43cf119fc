// Package overlay implements the union/layered filesystem: a read-only
// lower tree composed with a writable upper tree, using whiteout markers
// to hide lower-layer entries.
package overlay

import (
	"strings"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/process"
	"github.com/axeberg/axebergos/kernel/vfs"
)

const (
	whiteoutPrefix = ".wh."
	opaqueMarker   = ".wh..wh..opq"
)

func whiteoutName(name string) string { return whiteoutPrefix + name }

// Layered composes a read-only Lower tree with a writable Upper tree. All
// of the union logic lives here; vfs.Tree itself carries no knowledge of
// layering.
type Layered struct {
	Lower *vfs.Tree
	Upper *vfs.Tree
}

// New returns a layered filesystem over the given lower and upper trees.
func New(lower, upper *vfs.Tree) *Layered {
	return &Layered{Lower: lower, Upper: upper}
}

// Read reads path, consulting the upper layer first and falling back to
// the lower layer when the upper has no entry (and no whiteout hides it).
func (l *Layered) Read(path string, creds *process.Process, off int64, buf []byte) (int, error) {
	if hidden, err := l.whiteoutedInUpper(path); err != nil {
		return 0, err
	} else if hidden {
		return 0, kerrors.ErrNotFound
	}

	if n, _, _, err := l.Upper.Resolve(path, true); err == nil {
		return n.ReadAt(off, buf)
	}
	n, _, _, err := l.Lower.Resolve(path, true)
	if err != nil {
		return 0, err
	}
	return n.ReadAt(off, buf)
}

// Write copies path up into the upper layer (if it is not already there)
// and writes into the upper copy.
func (l *Layered) Write(path string, creds *process.Process, off int64, buf []byte) (int, error) {
	n, err := l.copyUp(path, creds)
	if err != nil {
		return 0, err
	}
	return n.WriteAt(off, buf)
}

// copyUp materializes path in the upper layer, copying lower content on
// first modification.
func (l *Layered) copyUp(path string, creds *process.Process) (*vfs.Inode, error) {
	if n, _, _, err := l.Upper.Resolve(path, true); err == nil {
		return n, nil
	}

	lowerNode, _, _, err := l.Lower.Resolve(path, true)
	if err != nil {
		return nil, err
	}

	if dir, _ := splitDirBase(path); dir != path {
		if err := l.ensureUpperDir(dir, creds); err != nil {
			return nil, err
		}
	}

	switch lowerNode.Kind {
	case vfs.KindDir:
		if err := l.Upper.Mkdir(path, creds, lowerNode.Mode); err != nil && err != kerrors.ErrExists {
			return nil, err
		}
	case vfs.KindSymlink:
		if err := l.Upper.Symlink(path, lowerNode.Target(), creds); err != nil && err != kerrors.ErrExists {
			return nil, err
		}
	default:
		upperNode, err := l.Upper.Create(path, creds, lowerNode.Mode)
		if err != nil {
			return nil, err
		}
		size := lowerNode.Size()
		if size > 0 {
			buf := make([]byte, size)
			lowerNode.ReadAt(0, buf)
			upperNode.WriteAt(0, buf)
		}
	}
	n, _, _, err := l.Upper.Resolve(path, true)
	return n, err
}

// Chmod copies path up (if needed) and applies mode in the upper layer.
func (l *Layered) Chmod(path string, creds *process.Process, mode uint32) error {
	if _, err := l.copyUp(path, creds); err != nil {
		return err
	}
	return l.Upper.Chmod(path, creds, mode)
}

// Remove plants a whiteout in the upper layer's parent directory, hiding
// path from the lower layer without needing to mutate the lower tree.
func (l *Layered) Remove(path string, creds *process.Process) error {
	dir, base := splitDirBase(path)
	if err := l.ensureUpperDir(dir, creds); err != nil {
		return err
	}
	// Remove any existing upper copy first, then plant the whiteout marker
	// as a zero-byte file alongside it.
	l.Upper.Remove(path, creds)
	whPath := joinPath(dir, whiteoutName(base))
	_, err := l.Upper.Create(whPath, creds, 0o000)
	return err
}

// MakeOpaque plants the opaque marker in an upper directory, hiding every
// lower-layer entry beneath it regardless of individual whiteouts.
func (l *Layered) MakeOpaque(dirPath string, creds *process.Process) error {
	if err := l.ensureUpperDir(dirPath, creds); err != nil {
		return err
	}
	_, err := l.Upper.Create(joinPath(dirPath, opaqueMarker), creds, 0o000)
	return err
}

func (l *Layered) ensureUpperDir(dirPath string, creds *process.Process) error {
	if _, _, _, err := l.Upper.Resolve(dirPath, true); err == nil {
		return nil
	}
	_, err := l.copyUp(dirPath, creds)
	return err
}

func (l *Layered) whiteoutedInUpper(path string) (bool, error) {
	dir, base := splitDirBase(path)
	whPath := joinPath(dir, whiteoutName(base))
	if _, _, _, err := l.Upper.Resolve(whPath, true); err == nil {
		return true, nil
	}
	if _, _, _, err := l.Upper.Resolve(joinPath(dir, opaqueMarker), true); err == nil {
		return true, nil
	}
	return false, nil
}

// ReadDir merges upper and lower entries, excluding whiteout markers
// themselves and any lower entry a whiteout (or an opaque directory)
// hides.
func (l *Layered) ReadDir(dirPath string, creds *process.Process) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	opaque := false
	if upperNames, err := l.Upper.ReadDir(dirPath, creds); err == nil {
		for _, name := range upperNames {
			if name == opaqueMarker {
				opaque = true
				continue
			}
			if strings.HasPrefix(name, whiteoutPrefix) {
				seen[strings.TrimPrefix(name, whiteoutPrefix)] = true
				continue
			}
			if !seen[name] {
				out = append(out, name)
				seen[name] = true
			}
		}
	}

	if !opaque {
		if lowerNames, err := l.Lower.ReadDir(dirPath, creds); err == nil {
			for _, name := range lowerNames {
				if seen[name] {
					continue
				}
				out = append(out, name)
				seen[name] = true
			}
		}
	}

	return out, nil
}

func splitDirBase(p string) (string, string) {
	clean := strings.TrimSuffix(p, "/")
	idx := strings.LastIndexByte(clean, '/')
	if idx < 0 {
		return "/", clean
	}
	dir := clean[:idx]
	if dir == "" {
		dir = "/"
	}
	return dir, clean[idx+1:]
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
