// Package trace implements the kernel's tracing and debug facility: a
// ring-buffered syscall-boundary event log, per-syscall counters, and a
// step/break debugger that can pause dispatch on a named syscall.
package trace

import (
	"sync"
	"time"

	"github.com/axeberg/axebergos/kernel/ids"
)

// Event is one recorded syscall-boundary crossing.
type Event struct {
	Seq    uint64
	At     time.Time
	Pid    ids.Pid
	Name   string
	Args   string
	Err    string
	Micros int64
}

// Ring is a fixed-capacity ring buffer of Events; once full, the oldest
// entry is overwritten.
type Ring struct {
	mu       sync.Mutex
	buf      []Event
	next     int
	filled   bool
	seq      uint64
	counters map[string]uint64

	enabled bool

	breakOn string
	resume  chan struct{}
}

// NewRing returns a disabled trace ring with the given fixed capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Ring{buf: make([]Event, capacity), counters: make(map[string]uint64), resume: make(chan struct{})}
}

// Enable turns on event recording (trace_enable).
func (r *Ring) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
}

// Disable turns off event recording (trace_disable). Already-recorded
// events are left in the ring.
func (r *Ring) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
}

// Enabled reports whether recording is currently on.
func (r *Ring) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Record appends ev to the ring (trace_event), bumping the per-name
// counter and the monotonic sequence number, and blocks the caller if a
// breakpoint is set on ev.Name until Step or Continue releases it.
func (r *Ring) Record(name string, pid ids.Pid, args string, errStr string, micros int64) {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return
	}
	r.seq++
	ev := Event{Seq: r.seq, At: clockNow(), Pid: pid, Name: name, Args: args, Err: errStr, Micros: micros}
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.filled = true
	}
	r.counters[name]++
	brk := r.breakOn == name
	r.mu.Unlock()

	if brk {
		<-r.resume
	}
}

var clockNow = time.Now

// SetBreakpoint pauses every syscall named name that crosses the trace
// boundary until Continue is called from another goroutine.
// ClearBreakpoint stops further pauses but does not release a syscall
// that is already paused.
func (r *Ring) SetBreakpoint(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakOn = name
}

// ClearBreakpoint removes any set breakpoint.
func (r *Ring) ClearBreakpoint() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakOn = ""
}

// Continue releases a syscall paused at a breakpoint.
func (r *Ring) Continue() {
	select {
	case r.resume <- struct{}{}:
	default:
	}
}

// Events returns a snapshot of the ring's contents in chronological
// order (oldest first).
func (r *Ring) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.filled {
		out := make([]Event, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Event, len(r.buf))
	copy(out, r.buf[r.next:])
	copy(out[len(r.buf)-r.next:], r.buf[:r.next])
	return out
}

// Summary is the trace_summary result: per-syscall call counts and the
// total number of events recorded since the ring was created or last
// reset (trace_reset rolls Seq back to zero along with clearing the
// buffer and counters).
type Summary struct {
	TotalEvents uint64
	Counters    map[string]uint64
}

// Summary returns the current counters (trace_summary).
func (r *Ring) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	counters := make(map[string]uint64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	return Summary{TotalEvents: r.seq, Counters: counters}
}

// Reset clears the ring and its counters (trace_reset); recording state
// (enabled/disabled) and any set breakpoint are left untouched.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = make([]Event, len(r.buf))
	r.next = 0
	r.filled = false
	r.seq = 0
	r.counters = make(map[string]uint64)
}
