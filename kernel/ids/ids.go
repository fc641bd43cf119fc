// Package ids defines the kernel's typed identifiers and the monotonic
// generators that mint them.
package ids

import "sync/atomic"

// Pid identifies a process. Pid 1 is reserved for init.
type Pid int32

// Pgid identifies a process group.
type Pgid int32

// Sid identifies a session.
type Sid int32

// Fd is a per-process small-integer index into a process's fd→handle map.
// Values 0, 1, and 2 are reserved for stdin/stdout/stderr.
type Fd int32

// Handle is a global, never-reused index into the kernel object table.
type Handle uint64

// Uid identifies a user.
type Uid uint32

// Gid identifies a group.
type Gid uint32

// SessionId identifies a login session distinct from Sid's process-group session.
type SessionId uint64

// RegionId identifies a memory region.
type RegionId uint64

// ShmId identifies a System-V style shared memory segment.
type ShmId uint64

// MsqId identifies a message queue.
type MsqId uint64

// SemId identifies a semaphore set.
type SemId uint64

// SockId identifies a Unix-domain socket endpoint.
type SockId uint64

// TaskId identifies a schedulable task (future) inside an executor.
type TaskId uint64

// TimerId identifies a pending or fired timer queue entry.
type TimerId uint64

// Reserved fds every process starts with, never handed out by AllocFd.
const (
	Stdin  Fd = 0
	Stdout Fd = 1
	Stderr Fd = 2
)

// InitPid is the pid reserved for the kernel's first process, which is
// never allowed to exit.
const InitPid Pid = 1

// Generator mints monotonically increasing identifiers of one kind,
// starting at the given floor. Generators never reuse a value once handed
// out; Handle/Pid/TaskId values are never recycled.
type Generator struct {
	next uint64
}

// NewGenerator returns a Generator whose first Next() call returns floor.
func NewGenerator(floor uint64) *Generator {
	if floor == 0 {
		floor = 1
	}
	return &Generator{next: floor - 1}
}

// Next atomically returns the next identifier in the sequence.
func (g *Generator) Next() uint64 {
	return atomic.AddUint64(&g.next, 1)
}

// Pids mints process identifiers starting after InitPid.
type Pids struct{ g *Generator }

// NewPids returns a Pids generator whose first allocation is InitPid+1.
func NewPids() *Pids { return &Pids{g: NewGenerator(uint64(InitPid) + 1)} }

// Next returns the next unused Pid.
func (p *Pids) Next() Pid { return Pid(p.g.Next()) }

// Handles mints object table handles.
type Handles struct{ g *Generator }

// NewHandles returns a fresh Handles generator.
func NewHandles() *Handles { return &Handles{g: NewGenerator(1)} }

// Next returns the next unused Handle.
func (h *Handles) Next() Handle { return Handle(h.g.Next()) }

// Tasks mints scheduler task identifiers.
type Tasks struct{ g *Generator }

// NewTasks returns a fresh Tasks generator.
func NewTasks() *Tasks { return &Tasks{g: NewGenerator(1)} }

// Next returns the next unused TaskId.
func (t *Tasks) Next() TaskId { return TaskId(t.g.Next()) }

// Timers mints timer queue entry identifiers.
type Timers struct{ g *Generator }

// NewTimers returns a fresh Timers generator.
func NewTimers() *Timers { return &Timers{g: NewGenerator(1)} }

// Next returns the next unused TimerId.
func (t *Timers) Next() TimerId { return TimerId(t.g.Next()) }

// Generic resource id generators (RegionId, ShmId, MsqId, SemId, SockId)
// share one shape: a monotonic counter with no reservation scheme.

// Regions mints memory region identifiers.
type Regions struct{ g *Generator }

// NewRegions returns a fresh Regions generator.
func NewRegions() *Regions { return &Regions{g: NewGenerator(1)} }

// Next returns the next unused RegionId.
func (r *Regions) Next() RegionId { return RegionId(r.g.Next()) }

// Shm mints shared memory segment identifiers.
type Shm struct{ g *Generator }

// NewShm returns a fresh Shm generator.
func NewShm() *Shm { return &Shm{g: NewGenerator(1)} }

// Next returns the next unused ShmId.
func (s *Shm) Next() ShmId { return ShmId(s.g.Next()) }

// Msq mints message queue identifiers.
type Msq struct{ g *Generator }

// NewMsq returns a fresh Msq generator.
func NewMsq() *Msq { return &Msq{g: NewGenerator(1)} }

// Next returns the next unused MsqId.
func (m *Msq) Next() MsqId { return MsqId(m.g.Next()) }

// Sem mints semaphore set identifiers.
type Sem struct{ g *Generator }

// NewSem returns a fresh Sem generator.
func NewSem() *Sem { return &Sem{g: NewGenerator(1)} }

// Next returns the next unused SemId.
func (s *Sem) Next() SemId { return SemId(s.g.Next()) }

// Sock mints Unix-domain socket endpoint identifiers.
type Sock struct{ g *Generator }

// NewSock returns a fresh Sock generator.
func NewSock() *Sock { return &Sock{g: NewGenerator(1)} }

// Next returns the next unused SockId.
func (s *Sock) Next() SockId { return SockId(s.g.Next()) }
