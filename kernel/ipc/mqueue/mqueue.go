// Package mqueue implements System-V style tagged message queues:
// msgsnd/msgrcv/msgctl over an ordered
// list of {mtype, data} messages.
package mqueue

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// Waker is the minimal wakeup surface a suspended sender/receiver
// registers (shared shape with kernel/ipc/pipe.Waker).
type Waker interface {
	Wake()
}

// Message is one tagged entry in a queue.
type Message struct {
	Type int64
	Data []byte
}

// Stat is the read-only info IPC_STAT reports.
type Stat struct {
	Id       ids.MsqId
	Uid, Gid uint32
	Mode     uint32
	Count    int
	Bytes    int
}

type queue struct {
	mu       sync.Mutex
	id       ids.MsqId
	key      int64
	messages []Message
	maxBytes int
	curBytes int
	destroyed bool
	uid, gid uint32
	mode     uint32

	sendWaiters []Waker
	recvWaiters []Waker
}

// DefaultMaxBytes bounds a single queue's total buffered payload, a
// sane stand-in for the host's msgmnb sysctl.
const DefaultMaxBytes = 64 << 10

// Table is the kernel-wide registry of message queues, keyed by both a
// System-V style integer key (for msgget's create-or-attach) and the
// MsqId handed back to callers.
type Table struct {
	mu      sync.Mutex
	byKey   map[int64]*queue
	byId    map[ids.MsqId]*queue
	gen     *ids.Msq
}

// NewTable returns an empty message-queue table.
func NewTable() *Table {
	return &Table{byKey: make(map[int64]*queue), byId: make(map[ids.MsqId]*queue), gen: ids.NewMsq()}
}

// Get creates or attaches to the queue named by key (msgget).
func (t *Table) Get(key int64, uid, gid uint32, mode uint32, create bool, excl bool) (ids.MsqId, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if q, ok := t.byKey[key]; ok {
		if create && excl {
			return 0, kerrors.ErrExists
		}
		return q.id, nil
	}
	if !create {
		return 0, kerrors.ErrNotFound
	}
	id := t.gen.Next()
	q := &queue{id: id, key: key, maxBytes: DefaultMaxBytes, uid: uid, gid: gid, mode: mode}
	t.byKey[key] = q
	t.byId[id] = q
	return id, nil
}

func (t *Table) lookup(id ids.MsqId) (*queue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.byId[id]
	if !ok {
		return nil, kerrors.ErrNotFound
	}
	return q, nil
}

// Send appends msg to the queue, failing with ErrWouldBlock if the
// queue's byte budget would be exceeded — the "queue full" suspension
// point. Non-blocking callers get the error directly, blocking callers
// translate it to a retry.
func (t *Table) Send(id ids.MsqId, msg Message) error {
	q, err := t.lookup(id)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return kerrors.ErrNotFound
	}
	if q.curBytes+len(msg.Data) > q.maxBytes {
		return kerrors.ErrWouldBlock
	}
	q.messages = append(q.messages, msg)
	q.curBytes += len(msg.Data)
	waiters := q.recvWaiters
	q.recvWaiters = nil
	for _, w := range waiters {
		w.Wake()
	}
	return nil
}

// Receive pops a message matching mtype's selection rule: mtype=0 pops
// the oldest; mtype>0 pops the oldest exact match; mtype<0 pops the
// message with the lowest type <= |mtype| (the oldest among equals).
func (t *Table) Receive(id ids.MsqId, mtype int64) (Message, error) {
	q, err := t.lookup(id)
	if err != nil {
		return Message{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return Message{}, kerrors.ErrNotFound
	}
	idx := -1
	switch {
	case mtype == 0:
		if len(q.messages) > 0 {
			idx = 0
		}
	case mtype > 0:
		for i, m := range q.messages {
			if m.Type == mtype {
				idx = i
				break
			}
		}
	default:
		limit := -mtype
		best := int64(1<<63 - 1)
		for i, m := range q.messages {
			if m.Type <= limit && m.Type < best {
				best = m.Type
				idx = i
			}
		}
	}
	if idx < 0 {
		waiters := q.sendWaiters // no-op placeholder to keep symmetry; nothing to wake on empty receive
		_ = waiters
		return Message{}, kerrors.ErrWouldBlock
	}
	m := q.messages[idx]
	q.messages = append(q.messages[:idx], q.messages[idx+1:]...)
	q.curBytes -= len(m.Data)
	waiters := q.sendWaiters
	q.sendWaiters = nil
	for _, w := range waiters {
		w.Wake()
	}
	return m, nil
}

// RegisterSendWaiter registers w to be woken the next time the queue
// drains below its byte budget.
func (t *Table) RegisterSendWaiter(id ids.MsqId, w Waker) {
	if q, err := t.lookup(id); err == nil {
		q.mu.Lock()
		q.sendWaiters = append(q.sendWaiters, w)
		q.mu.Unlock()
	}
}

// RegisterRecvWaiter registers w to be woken the next time a message is
// sent.
func (t *Table) RegisterRecvWaiter(id ids.MsqId, w Waker) {
	if q, err := t.lookup(id); err == nil {
		q.mu.Lock()
		q.recvWaiters = append(q.recvWaiters, w)
		q.mu.Unlock()
	}
}

// Stat implements IPC_STAT.
func (t *Table) Stat(id ids.MsqId) (Stat, error) {
	q, err := t.lookup(id)
	if err != nil {
		return Stat{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stat{Id: q.id, Uid: q.uid, Gid: q.gid, Mode: q.mode, Count: len(q.messages), Bytes: q.curBytes}, nil
}

// SetPerm implements IPC_SET, permitted only to the owner or root
// (enforced by the caller, which knows the requester's credentials).
func (t *Table) SetPerm(id ids.MsqId, mode uint32, uid, gid uint32) error {
	q, err := t.lookup(id)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.mode, q.uid, q.gid = mode, uid, gid
	return nil
}

// Remove implements IPC_RMID: destroys the queue and wakes every blocked
// sender/receiver with NotFound.
func (t *Table) Remove(id ids.MsqId) error {
	t.mu.Lock()
	q, ok := t.byId[id]
	if !ok {
		t.mu.Unlock()
		return kerrors.ErrNotFound
	}
	delete(t.byId, id)
	delete(t.byKey, q.key)
	t.mu.Unlock()

	q.mu.Lock()
	q.destroyed = true
	sendW, recvW := q.sendWaiters, q.recvWaiters
	q.sendWaiters, q.recvWaiters = nil, nil
	q.mu.Unlock()
	for _, w := range sendW {
		w.Wake()
	}
	for _, w := range recvW {
		w.Wake()
	}
	return nil
}
