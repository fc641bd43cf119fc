package virtfs

import (
	"crypto/rand"
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
)

// Dev synthesizes /dev: null, zero, random/urandom (backed by the host's
// cryptographic RNG, never a time-seeded PRNG), console, and
// per-terminal tty buffers.
type Dev struct {
	mu      sync.Mutex
	console *ring
	ttys    map[int]*ring
}

// NewDev returns a fresh /dev synthesis with an empty console.
func NewDev() *Dev {
	return &Dev{console: newRing(), ttys: make(map[int]*ring)}
}

// Read services a read from one of the named /dev entries.
func (d *Dev) Read(name string, buf []byte) (int, error) {
	switch name {
	case "null":
		return 0, nil // EOF
	case "zero":
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	case "random", "urandom":
		return rand.Read(buf)
	case "console":
		return d.console.Read(buf)
	default:
		if tty, ok := d.tty(name); ok {
			return tty.Read(buf)
		}
		return 0, kerrors.ErrNotFound
	}
}

// Write services a write to one of the named /dev entries.
func (d *Dev) Write(name string, buf []byte) (int, error) {
	switch name {
	case "null":
		return len(buf), nil // discard
	case "zero", "random", "urandom":
		return 0, kerrors.ErrPermissionDenied
	case "console":
		return d.console.Write(buf)
	default:
		if tty, ok := d.tty(name); ok {
			return tty.Write(buf)
		}
		return 0, kerrors.ErrNotFound
	}
}

func (d *Dev) tty(name string) (*ring, bool) {
	if len(name) < 4 || name[:3] != "tty" {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range name[3:] {
		if c < '0' || c > '9' {
			return nil, false
		}
		n = n*10 + int(c-'0')
	}
	r, ok := d.ttys[n]
	if !ok {
		r = newRing()
		d.ttys[n] = r
	}
	return r, true
}

// ring is a tiny unbounded byte buffer standing in for a terminal's
// shared in/out stream; the real scheduling/suspension semantics for
// "empty" belong to kernel/ipc/pipe, which this intentionally does not
// duplicate.
type ring struct {
	mu  sync.Mutex
	buf []byte
}

func newRing() *ring { return &ring{} }

func (r *ring) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, p...)
	return len(p), nil
}
