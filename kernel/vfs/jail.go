package vfs

import (
	"path"
	"strings"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/process"
)

// JailedPath rewrites an already-canonicalized absolute path (as
// produced by process.Process.AbsolutePath) into the tree's real
// coordinate space for a jailed process, enforcing Invariant V3: the
// jail root is joined onto the front of the already-".."-collapsed path,
// so there is no way for the caller-supplied path to have climbed above
// it — canonicalization happened before this prefix step, not after.
func JailedPath(p *process.Process, canonical string) string {
	if !p.Jailed() {
		return canonical
	}
	return strings.TrimSuffix(p.JailRoot, "/") + canonical
}

// jailRewrite rewrites an absolute symlink target into jailRoot's
// coordinate space, the same clean-then-prefix ordering JailedPath gives
// a user-supplied path, so a symlink dereferenced mid-walk lands inside
// the jail instead of at the tree's true root. jailRoot == "" is the
// unconfined case: the target is returned cleaned but otherwise
// untouched.
func jailRewrite(jailRoot, target string) string {
	canonical := path.Clean("/" + target)
	if jailRoot == "" {
		return canonical
	}
	return strings.TrimSuffix(jailRoot, "/") + canonical
}

// ResolveForProcess resolves a user-supplied path for p, composing
// AbsolutePath (cwd + normalization) with jail rewriting before handing
// the result to the tree. The process's jail root is also threaded
// through the walk itself, so a symlink encountered anywhere along the
// path — not just the literal path supplied here — is confined the same
// way (Invariant V3).
func (t *Tree) ResolveForProcess(p *process.Process, userPath string, followSymlink bool) (*Inode, string, *Inode, error) {
	canonical := p.AbsolutePath(userPath)
	real := JailedPath(p, canonical)
	if err := checkJailBoundary(p, real); err != nil {
		return nil, "", nil, err
	}
	return t.ResolveForCaller(real, p, followSymlink)
}

// checkJailBoundary is a defense-in-depth re-check: even if a caller
// bypasses ResolveForProcess, no syscall may be completed against a path
// outside the jail root.
func checkJailBoundary(p *process.Process, real string) error {
	if !p.Jailed() {
		return nil
	}
	root := strings.TrimSuffix(p.JailRoot, "/")
	if real != root && !strings.HasPrefix(real, root+"/") {
		return kerrors.ErrJailEscape
	}
	return nil
}
