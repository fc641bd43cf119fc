package pipe

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
)

// fifo tracks the shared ring plus which side(s) have opened it so far,
// used to implement "open for read blocks until a writer opens, and vice
// versa" for a filesystem-visible FIFO.
type fifo struct {
	pipe         *Pipe
	readersOpen  int
	writersOpen  int
	readWaiters  []Waker
	writeWaiters []Waker
}

// FifoTable tracks named pipes by the VFS path they were created at. The
// VFS tree itself stores only a marker inode for the path; the live ring
// buffer and open-side bookkeeping live here.
type FifoTable struct {
	mu    sync.Mutex
	fifos map[string]*fifo
}

// NewFifoTable returns an empty FIFO registry.
func NewFifoTable() *FifoTable {
	return &FifoTable{fifos: make(map[string]*fifo)}
}

// Create registers a new named pipe at path with the default capacity.
// It is a no-op if the path is already a FIFO.
func (t *FifoTable) Create(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.fifos[path]; ok {
		return
	}
	t.fifos[path] = &fifo{pipe: newPipe(DefaultCapacity)}
}

// Exists reports whether path names a registered FIFO.
func (t *FifoTable) Exists(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.fifos[path]
	return ok
}

// Remove deletes the FIFO registration at path.
func (t *FifoTable) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fifos, path)
}

// OpenRead opens path's read side. If no writer has opened yet and the
// call is blocking, it returns ErrWouldBlock for the caller to retry
// (the future registers itself via RegisterOpenReadWaiter in the
// meantime). A non-blocking open succeeds at once even when no writer
// has opened yet.
func (t *FifoTable) OpenRead(path string, nonblock bool) (*Pipe, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.fifos[path]
	if !ok {
		return nil, kerrors.ErrNotFound
	}
	if f.writersOpen == 0 && !nonblock {
		return nil, kerrors.ErrWouldBlock
	}
	f.readersOpen++
	f.pipe.readers = f.readersOpen
	waiters := f.writeWaiters
	f.writeWaiters = nil
	for _, w := range waiters {
		w.Wake()
	}
	return f.pipe, nil
}

// OpenWrite opens path's write side. If no reader has opened yet it
// returns ErrWouldBlock whether or not the call is non-blocking: a
// blocking caller retries after RegisterOpenWriteWaiter fires, a
// non-blocking caller gets the error directly.
func (t *FifoTable) OpenWrite(path string, nonblock bool) (*Pipe, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.fifos[path]
	if !ok {
		return nil, kerrors.ErrNotFound
	}
	if f.readersOpen == 0 {
		return nil, kerrors.ErrWouldBlock
	}
	f.writersOpen++
	f.pipe.writers = f.writersOpen
	waiters := f.readWaiters
	f.readWaiters = nil
	for _, w := range waiters {
		w.Wake()
	}
	return f.pipe, nil
}

// RegisterOpenReadWaiter registers w to be woken the next time a writer
// opens path (used by a reader blocked in a blocking OpenRead).
func (t *FifoTable) RegisterOpenReadWaiter(path string, w Waker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.fifos[path]; ok {
		f.readWaiters = append(f.readWaiters, w)
	}
}

// RegisterOpenWriteWaiter registers w to be woken the next time a reader
// opens path (used by a writer blocked in OpenWrite).
func (t *FifoTable) RegisterOpenWriteWaiter(path string, w Waker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.fifos[path]; ok {
		f.writeWaiters = append(f.writeWaiters, w)
	}
}

// CloseRead records that one reader of path's FIFO closed.
func (t *FifoTable) CloseRead(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.fifos[path]; ok {
		f.readersOpen--
		f.pipe.closeReader()
	}
}

// CloseWrite records that one writer of path's FIFO closed.
func (t *FifoTable) CloseWrite(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.fifos[path]; ok {
		f.writersOpen--
		f.pipe.closeWriter()
	}
}
