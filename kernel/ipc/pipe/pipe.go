// Package pipe implements anonymous pipes and filesystem-visible FIFOs:
// a fixed-capacity byte ring shared between
// a read end and a write end, with the suspension semantics a future-based
// caller needs to block a reader on empty or a writer on full.
package pipe

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/object"
)

// DefaultCapacity is the default ring size (4 KiB).
const DefaultCapacity = 4096

// Waker is the minimal wakeup surface a suspended caller registers. Both
// kernel/exec1.Waker and kernel/exec2's task handle satisfy this with
// their existing Wake() method, so this package depends on neither
// executor.
type Waker interface {
	Wake()
}

// Pipe is the ring buffer shared by a pipe's two endpoints.
type Pipe struct {
	mu       sync.Mutex
	buf      []byte
	capacity int
	readers  int
	writers  int

	readWaiters  []Waker
	writeWaiters []Waker
}

func newPipe(capacity int) *Pipe {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pipe{capacity: capacity}
}

// New creates an anonymous pipe and returns its read and write endpoints,
// each already bound into the object table as object.KindPipe values.
func New(capacity int) (*ReadEnd, *WriteEnd) {
	p := newPipe(capacity)
	p.readers = 1
	p.writers = 1
	return &ReadEnd{p: p}, &WriteEnd{p: p}
}

func (p *Pipe) wakeReaders() {
	waiters := p.readWaiters
	p.readWaiters = nil
	for _, w := range waiters {
		w.Wake()
	}
}

func (p *Pipe) wakeWriters() {
	waiters := p.writeWaiters
	p.writeWaiters = nil
	for _, w := range waiters {
		w.Wake()
	}
}

// RegisterReadWaiter records w to be woken the next time data is written
// or the last writer closes.
func (p *Pipe) RegisterReadWaiter(w Waker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readWaiters = append(p.readWaiters, w)
}

// RegisterWriteWaiter records w to be woken the next time space frees up
// or the last reader closes.
func (p *Pipe) RegisterWriteWaiter(w Waker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeWaiters = append(p.writeWaiters, w)
}

// Read drains up to len(buf) queued bytes. An empty ring with at least
// one writer remaining yields ErrWouldBlock (the caller suspends and
// retries after its waker fires); an empty ring with no writers left
// returns (0, nil) — EOF.
func (p *Pipe) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		if p.writers == 0 {
			return 0, nil
		}
		return 0, kerrors.ErrWouldBlock
	}
	n := copy(buf, p.buf)
	p.buf = p.buf[n:]
	p.wakeWriters()
	return n, nil
}

// Write appends up to len(buf) bytes, truncated to the ring's remaining
// capacity. If no readers remain, it fails with BrokenPipe and writes
// nothing. If no bytes fit but at least one reader remains, it yields
// ErrWouldBlock so the caller suspends until a reader drains the ring.
// A partial write (n < len(buf)) with ErrWouldBlock means "wrote n, the
// rest must be retried": a write one byte past a full ring suspends
// until a reader drains something.
func (p *Pipe) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readers <= 0 {
		return 0, kerrors.ErrBrokenPipe
	}
	room := p.capacity - len(p.buf)
	if room <= 0 {
		if p.readers == 0 {
			return 0, kerrors.ErrBrokenPipe
		}
		return 0, kerrors.ErrWouldBlock
	}
	n := len(buf)
	if n > room {
		n = room
	}
	p.buf = append(p.buf, buf[:n]...)
	p.wakeReaders()
	if n < len(buf) {
		if p.readers == 0 {
			return n, kerrors.ErrBrokenPipe
		}
		return n, kerrors.ErrWouldBlock
	}
	return n, nil
}

func (p *Pipe) closeReader() {
	p.mu.Lock()
	p.readers--
	destroyed := p.readers <= 0
	p.mu.Unlock()
	if destroyed {
		p.mu.Lock()
		p.wakeWriters() // writers observe BrokenPipe on their next call
		p.mu.Unlock()
	}
}

func (p *Pipe) closeWriter() {
	p.mu.Lock()
	p.writers--
	destroyed := p.writers <= 0
	p.mu.Unlock()
	if destroyed {
		p.mu.Lock()
		p.wakeReaders() // readers observe EOF on their next call
		p.mu.Unlock()
	}
}

// ReadEnd is the read side of a pipe, stored in the object table.
type ReadEnd struct{ p *Pipe }

// Kind satisfies object.Object.
func (r *ReadEnd) Kind() object.Kind { return object.KindPipe }

// Destroy satisfies object.Object: dropping the last read-end reference
// retires this side of the pipe and wakes any blocked writer with
// BrokenPipe.
func (r *ReadEnd) Destroy() { r.p.closeReader() }

// Read reads from the pipe.
func (r *ReadEnd) Read(buf []byte) (int, error) { return r.p.Read(buf) }

// RegisterWaiter registers w to be woken when data arrives or EOF occurs.
func (r *ReadEnd) RegisterWaiter(w Waker) { r.p.RegisterReadWaiter(w) }

// WriteEnd is the write side of a pipe, stored in the object table.
type WriteEnd struct{ p *Pipe }

// Kind satisfies object.Object.
func (w *WriteEnd) Kind() object.Kind { return object.KindPipe }

// Destroy satisfies object.Object.
func (w *WriteEnd) Destroy() { w.p.closeWriter() }

// Write writes to the pipe.
func (w *WriteEnd) Write(buf []byte) (int, error) { return w.p.Write(buf) }

// RegisterWaiter registers w to be woken when space frees up or the last
// reader closes.
func (w *WriteEnd) RegisterWaiter(waiter Waker) { w.p.RegisterWriteWaiter(waiter) }
