package process

import (
	"path"
	"strings"
)

// Chroot sets the process's jail root. All subsequent path resolutions
// for this process are confined to the subtree rooted there. An empty
// root means unconfined.
func (p *Process) Chroot(root string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.JailRoot = path.Clean(root)
}

// Jailed reports whether the process is currently confined.
func (p *Process) Jailed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.JailRoot != ""
}

// AbsolutePath resolves a (possibly relative) path against the process's
// cwd and, if jailed, rewrites it into the jail's coordinate space. The
// returned path is always absolute, cleaned, and — for a jailed process —
// guaranteed to be a prefix-descendant of "/" within the jail (callers
// join it onto JailRoot before touching the real VFS tree). This is the
// canonicalize-before-prefix-check ordering V3 requires: ".." components
// are collapsed before any containment decision is made, so a resolved
// path can never climb above the jail root regardless of how many ".."
// segments the input path supplies.
func (p *Process) AbsolutePath(in string) string {
	p.mu.RLock()
	cwd := p.Cwd
	p.mu.RUnlock()

	var abs string
	if strings.HasPrefix(in, "/") {
		abs = in
	} else {
		abs = path.Join(cwd, in)
	}
	return path.Clean("/" + abs)
}
