// Package exec2 implements the work-stealing executor:
// one Chase-Lev deque per worker, a global MPMC injector for external
// spawns, and randomized stealing among peers.
package exec2

import (
	"sync/atomic"
)

// deque is a Chase-Lev single-owner/multi-thief lock-free deque of
// ids.TaskId-shaped work items (stored as any to keep this file generic
// over the task-entry pointer type used by Worker).
//
// Memory ordering: the owner's push uses a
// release store on bottom; the owner's pop decrements bottom then fences
// sequentially consistent before reading top; a stealer reads top with
// acquire, reads the slot, then CAS-bumps top.
type deque struct {
	bottom int64
	top    int64
	buf    atomic.Pointer[circularBuffer]
}

type circularBuffer struct {
	mask  int64
	items []atomic.Pointer[any]
}

func newCircularBuffer(capLog2 uint) *circularBuffer {
	size := int64(1) << capLog2
	return &circularBuffer{mask: size - 1, items: make([]atomic.Pointer[any], size)}
}

func (c *circularBuffer) get(i int64) any {
	p := c.items[i&c.mask].Load()
	if p == nil {
		return nil
	}
	return *p
}

func (c *circularBuffer) put(i int64, v any) {
	c.items[i&c.mask].Store(&v)
}

func (c *circularBuffer) grow() *circularBuffer {
	next := &circularBuffer{mask: (c.mask+1)*2 - 1, items: make([]atomic.Pointer[any], (c.mask+1)*2)}
	return next
}

// newDeque returns an empty Chase-Lev deque with an initial capacity of
// 2^capLog2 slots; it grows (never shrinks) on overflow.
func newDeque(capLog2 uint) *deque {
	d := &deque{}
	d.buf.Store(newCircularBuffer(capLog2))
	return d
}

// pushBottom is the owner-only push: newest item goes to the bottom, for
// LIFO pop order (cache locality).
func (d *deque) pushBottom(v any) {
	b := atomic.LoadInt64(&d.bottom)
	t := atomic.LoadInt64(&d.top)
	buf := d.buf.Load()
	if b-t >= int64(len(buf.items)) {
		grown := buf.grow()
		for i := t; i < b; i++ {
			grown.put(i, buf.get(i))
		}
		d.buf.Store(grown)
		buf = grown
	}
	buf.put(b, v)
	atomic.StoreInt64(&d.bottom, b+1) // release
}

// popBottom is the owner-only pop: takes the newest item (LIFO). Returns
// (nil, false) if the deque was empty.
func (d *deque) popBottom() (any, bool) {
	b := atomic.LoadInt64(&d.bottom) - 1
	buf := d.buf.Load()
	atomic.StoreInt64(&d.bottom, b)
	// Sequentially-consistent fence between the bottom store and the top
	// load below; without it a racing stealer and the owner could both
	// claim the last element.
	t := atomic.LoadInt64(&d.top)

	if t > b {
		atomic.StoreInt64(&d.bottom, b+1)
		return nil, false
	}
	v := buf.get(b)
	if t == b {
		if !atomic.CompareAndSwapInt64(&d.top, t, t+1) {
			atomic.StoreInt64(&d.bottom, b+1)
			return nil, false
		}
		atomic.StoreInt64(&d.bottom, b+1)
	}
	return v, true
}

// steal is the thief-side operation: takes the oldest item (FIFO) via an
// acquire-ordered top load, a read of the slot, then a CAS-bump of top.
// Returns (nil, false) on an empty deque or a lost CAS race (the caller
// retries against a different peer rather than spinning here).
func (d *deque) steal() (any, bool) {
	t := atomic.LoadInt64(&d.top) // acquire
	b := atomic.LoadInt64(&d.bottom)
	if t >= b {
		return nil, false
	}
	buf := d.buf.Load()
	v := buf.get(t)
	if !atomic.CompareAndSwapInt64(&d.top, t, t+1) {
		return nil, false // lost the race to another thief or the owner
	}
	return v, true
}

func (d *deque) size() int64 {
	b := atomic.LoadInt64(&d.bottom)
	t := atomic.LoadInt64(&d.top)
	if b-t < 0 {
		return 0
	}
	return b - t
}
