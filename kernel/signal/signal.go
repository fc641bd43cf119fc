// Package signal implements the per-process pending/blocked/disposition
// model and priority delivery.
package signal

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
)

// Signal is one of the recognized signal numbers.
type Signal int

const (
	SIGTERM Signal = iota + 1
	SIGKILL
	SIGSTOP
	SIGCONT
	SIGINT
	SIGQUIT
	SIGHUP
	SIGUSR1
	SIGUSR2
	SIGCHLD
	SIGALRM
	SIGPIPE

	numSignals
)

func (s Signal) String() string {
	switch s {
	case SIGTERM:
		return "TERM"
	case SIGKILL:
		return "KILL"
	case SIGSTOP:
		return "STOP"
	case SIGCONT:
		return "CONT"
	case SIGINT:
		return "INT"
	case SIGQUIT:
		return "QUIT"
	case SIGHUP:
		return "HUP"
	case SIGUSR1:
		return "USR1"
	case SIGUSR2:
		return "USR2"
	case SIGCHLD:
		return "CHLD"
	case SIGALRM:
		return "ALRM"
	case SIGPIPE:
		return "PIPE"
	default:
		return "UNKNOWN"
	}
}

// Action is the disposition a process has registered for a signal.
type Action int

const (
	Default Action = iota
	Ignore
	Terminate
	Kill
	Stop
	Continue
	Handle
)

// State is one process's complete signal state: what is pending, what is
// blocked, and what action each signal number currently maps to.
type State struct {
	mu            sync.Mutex
	pending       map[Signal]bool
	pendingOrder  []Signal // FIFO insertion order, for S2's "remainder" tie-break
	blocked       map[Signal]bool
	disposition   map[Signal]Action
	wasContinued  bool
}

// NewState returns a signal state with nothing pending or blocked and
// every disposition at Default.
func NewState() *State {
	return &State{
		pending:     make(map[Signal]bool),
		blocked:     make(map[Signal]bool),
		disposition: make(map[Signal]Action),
	}
}

func unblockable(s Signal) bool { return s == SIGKILL || s == SIGSTOP }

// Enqueue adds sig to the pending set. Repeated deliveries of the same
// signal before it is handled collapse into one pending instance
// (coalescing).
func (s *State) Enqueue(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig == SIGCONT {
		delete(s.pending, SIGSTOP)
		s.removeFromOrder(SIGSTOP)
		s.wasContinued = true
	}
	if s.pending[sig] {
		return
	}
	s.pending[sig] = true
	s.pendingOrder = append(s.pendingOrder, sig)
}

func (s *State) removeFromOrder(sig Signal) {
	for i, v := range s.pendingOrder {
		if v == sig {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			return
		}
	}
}

// How selects how SigProcMask applies a signal set to the blocked set:
// Block adds it, Unblock removes it, SetMask replaces the blocked set with
// it. KILL and STOP are silently left out of the result (Invariant S1).
type How int

const (
	Block How = iota
	Unblock
	SetMask
)

// SigProcMask updates the blocked set per how, always leaving KILL and
// STOP unblockable.
func (s *State) SigProcMask(how How, set []Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch how {
	case Block:
		for _, sig := range set {
			if !unblockable(sig) {
				s.blocked[sig] = true
			}
		}
	case Unblock:
		for _, sig := range set {
			delete(s.blocked, sig)
		}
	case SetMask:
		s.blocked = make(map[Signal]bool, len(set))
		for _, sig := range set {
			if !unblockable(sig) {
				s.blocked[sig] = true
			}
		}
	}
}

// Blocked reports the current blocked set.
func (s *State) Blocked() map[Signal]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Signal]bool, len(s.blocked))
	for k, v := range s.blocked {
		out[k] = v
	}
	return out
}

// Pending reports the current pending set.
func (s *State) Pending() map[Signal]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Signal]bool, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

// SetDisposition installs action for sig. KILL and STOP accept only
// Default, Kill or Stop — they always terminate or stop (S1); any other
// action returns ErrSignalUnblockable and leaves the disposition as it was.
func (s *State) SetDisposition(sig Signal, action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unblockable(sig) && action != Default && action != Kill && action != Stop {
		return kerrors.ErrSignalUnblockable
	}
	s.disposition[sig] = action
	return nil
}

// Disposition returns the action currently registered for sig, defaulting
// to each signal's POSIX default action.
func (s *State) Disposition(sig Signal) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.disposition[sig]; ok {
		return a
	}
	return defaultAction(sig)
}

func defaultAction(sig Signal) Action {
	switch sig {
	case SIGKILL:
		return Kill
	case SIGSTOP:
		return Stop
	case SIGCONT:
		return Continue
	case SIGCHLD:
		return Ignore
	default:
		return Terminate
	}
}

// Delivery is the result of selecting the next signal to deliver.
type Delivery struct {
	Signal Signal
	Action Action
}

// Deliver selects and removes the next signal to deliver per S2's
// priority: KILL first, then STOP, then the oldest blockable pending
// signal in FIFO order. Blocked signals (other than KILL/STOP, which can
// never be blocked) are skipped. Returns ok=false if nothing is
// deliverable right now.
func (s *State) Deliver() (Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[SIGKILL] {
		delete(s.pending, SIGKILL)
		s.removeFromOrder(SIGKILL)
		return Delivery{Signal: SIGKILL, Action: Kill}, true
	}
	if s.pending[SIGSTOP] {
		delete(s.pending, SIGSTOP)
		s.removeFromOrder(SIGSTOP)
		return Delivery{Signal: SIGSTOP, Action: Stop}, true
	}
	for i, sig := range s.pendingOrder {
		if s.blocked[sig] {
			continue
		}
		delete(s.pending, sig)
		s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
		action := s.disposition[sig]
		if action == Default {
			action = defaultAction(sig)
		}
		return Delivery{Signal: sig, Action: action}, true
	}
	return Delivery{}, false
}

// WasContinued reports and clears the "was-continued since last wait"
// flag, the observable waitpid's WCONTINUED option reports.
func (s *State) WasContinued() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.wasContinued
	s.wasContinued = false
	return v
}

// Table owns one signal State per process.
type Table struct {
	mu     sync.RWMutex
	states map[ids.Pid]*State
}

// NewTable returns an empty signal state table.
func NewTable() *Table {
	return &Table{states: make(map[ids.Pid]*State)}
}

// Register creates fresh signal state for pid.
func (t *Table) Register(pid ids.Pid) *State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := NewState()
	t.states[pid] = s
	return s
}

// Get returns the signal state for pid.
func (t *Table) Get(pid ids.Pid) (*State, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[pid]
	if !ok {
		return nil, kerrors.ErrNoProcess
	}
	return s, nil
}

// Remove discards pid's signal state, e.g. after it has been reaped.
func (t *Table) Remove(pid ids.Pid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, pid)
}
