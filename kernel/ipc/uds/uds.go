// Package uds implements Unix-domain sockets, stream and datagram, over
// the kernel's own path namespace rather than the host's.
package uds

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/object"
)

// Mode distinguishes stream (connection-oriented, byte stream) from
// datagram (connectionless, message-boundary-preserving) sockets.
type Mode int

const (
	Stream Mode = iota
	Datagram
)

// Endpoint is one socket: either unbound, bound+listening, bound+
// connected, or a datagram endpoint with its own inbound queue.
type Endpoint struct {
	mu         sync.Mutex
	id         ids.SockId
	mode       Mode
	path       string // bound path, empty if unbound
	listening  bool
	backlog    []*Endpoint // pending connections, listener side only
	acceptWake []Waker
	peer       *Endpoint // stream: connected peer
	inbox      [][]byte  // stream: byte-stream chunks; datagram: one entry per sendto
	fromAddr   []string  // datagram: sender path per inbox entry
	readWake   []Waker
	closed     bool
}

// Waker is the minimal wakeup surface a blocked accept/recv caller
// registers.
type Waker interface {
	Wake()
}

// Table is the kernel-wide Unix-domain socket namespace: path → listening
// endpoint, plus the id generator for every endpoint (bound or not).
type Table struct {
	mu       sync.Mutex
	byPath   map[string]*Endpoint
	gen      *ids.Sock
}

// NewTable returns an empty UDS namespace.
func NewTable() *Table {
	return &Table{byPath: make(map[string]*Endpoint), gen: ids.NewSock()}
}

// Socket creates a new, unbound endpoint of the given mode.
func (t *Table) Socket(mode Mode) *Endpoint {
	t.mu.Lock()
	id := t.gen.Next()
	t.mu.Unlock()
	return &Endpoint{id: id, mode: mode}
}

// Kind satisfies object.Object.
func (e *Endpoint) Kind() object.Kind { return object.KindUDS }

// Destroy satisfies object.Object: marks the endpoint closed and wakes
// anyone blocked on it. It does not unbind the path; Table.Close does.
func (e *Endpoint) Destroy() {
	e.mu.Lock()
	e.closed = true
	wake := append(append([]Waker{}, e.acceptWake...), e.readWake...)
	e.acceptWake, e.readWake = nil, nil
	path := e.path
	e.mu.Unlock()
	for _, w := range wake {
		w.Wake()
	}
	_ = path // unbinding from the table is done by Table.Close, which has the lock
}

// Bind associates path with e, failing if the path is already bound.
func (t *Table) Bind(e *Endpoint, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byPath[path]; exists {
		return kerrors.ErrExists
	}
	t.byPath[path] = e
	e.mu.Lock()
	e.path = path
	e.mu.Unlock()
	return nil
}

// Listen marks e as accepting connections (stream mode only).
func (e *Endpoint) Listen() error {
	if e.mode != Stream {
		return kerrors.ErrInvalidArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listening = true
	return nil
}

// Connect queues a fresh client endpoint on the backlog of the listener
// bound at path and wakes its accept waiters; Accept completes the
// connection. The backlog has no limit, so Connect never blocks and never
// returns ErrWouldBlock.
func (t *Table) Connect(client *Endpoint, path string) error {
	t.mu.Lock()
	listener, ok := t.byPath[path]
	t.mu.Unlock()
	if !ok {
		return kerrors.ErrNotFound
	}
	listener.mu.Lock()
	if !listener.listening {
		listener.mu.Unlock()
		return kerrors.ErrInvalidArgument
	}
	listener.backlog = append(listener.backlog, client)
	wake := listener.acceptWake
	listener.acceptWake = nil
	listener.mu.Unlock()
	for _, w := range wake {
		w.Wake()
	}
	return nil
}

// Accept pops the oldest pending connection and wires both sides' peer
// pointers, completing the stream handshake. An empty backlog yields
// ErrWouldBlock for the caller to suspend and retry.
func (e *Endpoint) Accept() (*Endpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.backlog) == 0 {
		return nil, kerrors.ErrWouldBlock
	}
	client := e.backlog[0]
	e.backlog = e.backlog[1:]

	server := &Endpoint{id: client.id, mode: Stream, peer: client}
	client.mu.Lock()
	client.peer = server
	client.mu.Unlock()
	return server, nil
}

// RegisterAcceptWaiter registers w to be woken when a connection arrives.
func (e *Endpoint) RegisterAcceptWaiter(w Waker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.acceptWake = append(e.acceptWake, w)
}

// Send appends buf to the connected peer's inbox (stream mode).
func (e *Endpoint) Send(buf []byte) (int, error) {
	e.mu.Lock()
	peer := e.peer
	mode := e.mode
	e.mu.Unlock()
	if mode != Stream {
		return 0, kerrors.ErrInvalidArgument
	}
	if peer == nil {
		return 0, kerrors.ErrBrokenPipe
	}
	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		return 0, kerrors.ErrBrokenPipe
	}
	peer.inbox = append(peer.inbox, append([]byte(nil), buf...))
	wake := peer.readWake
	peer.readWake = nil
	peer.mu.Unlock()
	for _, w := range wake {
		w.Wake()
	}
	return len(buf), nil
}

// Recv pops the oldest buffered chunk (stream mode); an empty inbox with
// the peer still connected yields ErrWouldBlock, with no peer yields EOF
// (0, nil).
func (e *Endpoint) Recv(buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbox) == 0 {
		if e.peer == nil || e.peer.closed {
			return 0, nil
		}
		return 0, kerrors.ErrWouldBlock
	}
	chunk := e.inbox[0]
	n := copy(buf, chunk)
	if n < len(chunk) {
		e.inbox[0] = chunk[n:]
	} else {
		e.inbox = e.inbox[1:]
	}
	return n, nil
}

// RegisterReadWaiter registers w to be woken when data arrives.
func (e *Endpoint) RegisterReadWaiter(w Waker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readWake = append(e.readWake, w)
}

// SendTo delivers buf to the datagram endpoint bound at destPath, tagged
// with srcPath so RecvFrom can report the sender.
func (t *Table) SendTo(srcPath, destPath string, buf []byte) error {
	t.mu.Lock()
	dest, ok := t.byPath[destPath]
	t.mu.Unlock()
	if !ok {
		return kerrors.ErrNotFound
	}
	if dest.mode != Datagram {
		return kerrors.ErrInvalidArgument
	}
	dest.mu.Lock()
	dest.inbox = append(dest.inbox, append([]byte(nil), buf...))
	dest.fromAddr = append(dest.fromAddr, srcPath)
	wake := dest.readWake
	dest.readWake = nil
	dest.mu.Unlock()
	for _, w := range wake {
		w.Wake()
	}
	return nil
}

// RecvFrom pops the oldest datagram along with its sender's path.
func (e *Endpoint) RecvFrom(buf []byte) (int, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbox) == 0 {
		return 0, "", kerrors.ErrWouldBlock
	}
	chunk := e.inbox[0]
	from := e.fromAddr[0]
	e.inbox = e.inbox[1:]
	e.fromAddr = e.fromAddr[1:]
	n := copy(buf, chunk)
	return n, from, nil
}

// LocalAddr returns the path e is bound to, if any (getsockname).
func (e *Endpoint) LocalAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

// PeerAddr returns the connected peer's bound path, if any (getpeername).
func (e *Endpoint) PeerAddr() string {
	e.mu.Lock()
	peer := e.peer
	e.mu.Unlock()
	if peer == nil {
		return ""
	}
	return peer.LocalAddr()
}

// Close unbinds e's path from the table, if bound.
func (t *Table) Close(e *Endpoint) {
	e.mu.Lock()
	path := e.path
	e.mu.Unlock()
	if path == "" {
		return
	}
	t.mu.Lock()
	delete(t.byPath, path)
	t.mu.Unlock()
}
