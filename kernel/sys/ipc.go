package sys

import (
	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/ipc/filelock"
	"github.com/axeberg/axebergos/kernel/ipc/mqueue"
	"github.com/axeberg/axebergos/kernel/ipc/uds"
)

// Msgget creates or attaches to a message queue named by key (msgget).
func (d *Dispatcher) Msgget(pid ids.Pid, key int64, mode uint32, create, excl bool) (ids.MsqId, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	return d.Msq.Get(key, uint32(p.Euid), uint32(p.Egid), mode, create, excl)
}

// Msgsnd enqueues msg onto id (msgsnd).
func (d *Dispatcher) Msgsnd(pid ids.Pid, id ids.MsqId, mtype int64, data []byte) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	err := d.Msq.Send(id, mqueue.Message{Type: mtype, Data: data})
	d.record("msgsnd", pid, "", err)
	return err
}

// Msgrcv dequeues a message matching mtype from id (msgrcv).
func (d *Dispatcher) Msgrcv(pid ids.Pid, id ids.MsqId, mtype int64) (mqueue.Message, error) {
	if _, err := d.caller(pid); err != nil {
		return mqueue.Message{}, err
	}
	m, err := d.Msq.Receive(id, mtype)
	d.record("msgrcv", pid, "", err)
	return m, err
}

// MsgctlStat reports a queue's IPC_STAT fields.
func (d *Dispatcher) MsgctlStat(pid ids.Pid, id ids.MsqId) (mqueue.Stat, error) {
	if _, err := d.caller(pid); err != nil {
		return mqueue.Stat{}, err
	}
	return d.Msq.Stat(id)
}

// MsgctlSet applies IPC_SET to a queue.
func (d *Dispatcher) MsgctlSet(pid ids.Pid, id ids.MsqId, mode uint32, uid, gid uint32) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	return d.Msq.SetPerm(id, mode, uid, gid)
}

// MsgctlRmid destroys a queue (IPC_RMID).
func (d *Dispatcher) MsgctlRmid(pid ids.Pid, id ids.MsqId) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	err := d.Msq.Remove(id)
	d.record("msgctl_rmid", pid, "", err)
	return err
}

// Semget creates a semaphore set of n semaphores (semget).
func (d *Dispatcher) Semget(pid ids.Pid, n int) (ids.SemId, error) {
	if _, err := d.caller(pid); err != nil {
		return 0, err
	}
	return d.Sems.Create(n), nil
}

// Semop atomically adjusts semaphore idx of set id by delta (semop),
// recording a SEM_UNDO adjustment against the caller when undo is set.
func (d *Dispatcher) Semop(pid ids.Pid, id ids.SemId, idx, delta int, undo bool) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	err := d.Sems.Op(id, idx, delta, pid, undo)
	d.record("semop", pid, "", err)
	return err
}

// SemopUndo is Semop with the undo flag forced on, recording the
// adjustment against the caller's exit-time reversal list.
func (d *Dispatcher) SemopUndo(pid ids.Pid, id ids.SemId, idx, delta int) error {
	return d.Semop(pid, id, idx, delta, true)
}

// Semctl reports the current value of semaphore idx (semctl GETVAL).
func (d *Dispatcher) Semctl(pid ids.Pid, id ids.SemId, idx int) (int, error) {
	if _, err := d.caller(pid); err != nil {
		return 0, err
	}
	return d.Sems.Value(id, idx)
}

// SemctlRmid destroys a semaphore set.
func (d *Dispatcher) SemctlRmid(pid ids.Pid, id ids.SemId) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	return d.Sems.Remove(id)
}

// Shmget creates or attaches to a shared memory segment (shmget).
func (d *Dispatcher) Shmget(pid ids.Pid, key int64, size uint64, create, excl bool) (ids.ShmId, error) {
	if _, err := d.caller(pid); err != nil {
		return 0, err
	}
	return d.Shms.Get(key, size, create, excl)
}

// Shmat attaches id, returning a process-local shadow copy (shmat).
func (d *Dispatcher) Shmat(pid ids.Pid, id ids.ShmId) ([]byte, error) {
	if _, err := d.caller(pid); err != nil {
		return nil, err
	}
	shadow, err := d.Shms.Attach(id)
	d.record("shmat", pid, "", err)
	return shadow, err
}

// Shmdt detaches id (shmdt).
func (d *Dispatcher) Shmdt(pid ids.Pid, id ids.ShmId) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	err := d.Shms.Detach(id)
	d.record("shmdt", pid, "", err)
	return err
}

// ShmSync publishes shadow into id's shared store (shm_sync).
func (d *Dispatcher) ShmSync(pid ids.Pid, id ids.ShmId, shadow []byte) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	return d.Shms.Sync(id, shadow)
}

// ShmRefresh pulls id's shared store into shadow (shm_refresh).
func (d *Dispatcher) ShmRefresh(pid ids.Pid, id ids.ShmId, shadow []byte) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	return d.Shms.Refresh(id, shadow)
}

// Flock applies a whole-file advisory lock to fd's handle.
func (d *Dispatcher) Flock(pid ids.Pid, fd ids.Fd, mode filelock.FlockMode) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	h, err := p.Fds().Lookup(fd)
	if err != nil {
		return err
	}
	err = d.Locks.Flock(h, pid, mode)
	d.record("flock", pid, "", err)
	return err
}

// FcntlLock applies a byte-range advisory lock to fd's handle.
func (d *Dispatcher) FcntlLock(pid ids.Pid, fd ids.Fd, r filelock.Range, mode filelock.LockMode) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	h, err := p.Fds().Lookup(fd)
	if err != nil {
		return err
	}
	err = d.Locks.Lock(h, pid, r, mode)
	d.record("fcntl_lock", pid, "", err)
	return err
}

// FcntlGetlk probes whether r would conflict with an existing lock.
func (d *Dispatcher) FcntlGetlk(pid ids.Pid, fd ids.Fd, r filelock.Range, mode filelock.LockMode) (filelock.Range, filelock.LockMode, ids.Pid, bool, error) {
	p, err := d.caller(pid)
	if err != nil {
		return filelock.Range{}, 0, 0, false, err
	}
	h, err := p.Fds().Lookup(fd)
	if err != nil {
		return filelock.Range{}, 0, 0, false, err
	}
	conflict, cmode, cpid, found := d.Locks.GetLock(h, pid, r, mode)
	return conflict, cmode, cpid, found, nil
}

// --- sockets ---

func (d *Dispatcher) endpointFor(pid ids.Pid, fd ids.Fd) (*uds.Endpoint, error) {
	p, err := d.caller(pid)
	if err != nil {
		return nil, err
	}
	h, err := p.Fds().Lookup(fd)
	if err != nil {
		return nil, err
	}
	obj, err := d.Objs.Get(h)
	if err != nil {
		return nil, err
	}
	ep, ok := obj.(*uds.Endpoint)
	if !ok {
		return nil, kerrors.ErrBadFd
	}
	return ep, nil
}

// Socket creates a new Unix-domain socket endpoint and binds it to a
// fresh fd (socket).
func (d *Dispatcher) Socket(pid ids.Pid, mode uds.Mode) (ids.Fd, error) {
	p, err := d.caller(pid)
	if err != nil {
		return -1, err
	}
	ep := d.UDS.Socket(mode)
	h := d.Objs.Insert(ep)
	fd, err := p.Fds().AllocFd(h)
	if err != nil {
		d.Objs.Release(h)
		return -1, err
	}
	return fd, nil
}

// Bind associates fd's endpoint with path (bind).
func (d *Dispatcher) Bind(pid ids.Pid, fd ids.Fd, path string) error {
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return err
	}
	err = d.UDS.Bind(ep, path)
	d.record("bind", pid, path, err)
	return err
}

// Listen marks fd's endpoint as accepting connections (listen).
func (d *Dispatcher) Listen(pid ids.Pid, fd ids.Fd) error {
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return err
	}
	return ep.Listen()
}

// Accept pops a pending connection off fd's listening endpoint and binds
// it to a fresh fd (accept).
func (d *Dispatcher) Accept(pid ids.Pid, fd ids.Fd) (ids.Fd, error) {
	p, err := d.caller(pid)
	if err != nil {
		return -1, err
	}
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return -1, err
	}
	server, err := ep.Accept()
	if err != nil {
		return -1, err
	}
	h := d.Objs.Insert(server)
	newFd, err := p.Fds().AllocFd(h)
	if err != nil {
		d.Objs.Release(h)
		return -1, err
	}
	d.record("accept", pid, "", nil)
	return newFd, nil
}

// Connect connects fd's endpoint to the listener bound at path (connect).
func (d *Dispatcher) Connect(pid ids.Pid, fd ids.Fd, path string) error {
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return err
	}
	err = d.UDS.Connect(ep, path)
	d.record("connect", pid, path, err)
	return err
}

// Send writes buf to fd's connected peer (send).
func (d *Dispatcher) Send(pid ids.Pid, fd ids.Fd, buf []byte) (int, error) {
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return 0, err
	}
	return ep.Send(buf)
}

// Recv reads the next buffered chunk from fd (recv).
func (d *Dispatcher) Recv(pid ids.Pid, fd ids.Fd, buf []byte) (int, error) {
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return 0, err
	}
	return ep.Recv(buf)
}

// SendTo delivers buf to the datagram endpoint bound at destPath
// (sendto).
func (d *Dispatcher) SendTo(pid ids.Pid, fd ids.Fd, destPath string, buf []byte) error {
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return err
	}
	return d.UDS.SendTo(ep.LocalAddr(), destPath, buf)
}

// RecvFrom pops the oldest datagram along with its sender's path
// (recvfrom).
func (d *Dispatcher) RecvFrom(pid ids.Pid, fd ids.Fd, buf []byte) (int, string, error) {
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return 0, "", err
	}
	return ep.RecvFrom(buf)
}

// GetSockName reports fd's bound local path (getsockname).
func (d *Dispatcher) GetSockName(pid ids.Pid, fd ids.Fd) (string, error) {
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return "", err
	}
	return ep.LocalAddr(), nil
}

// GetPeerName reports fd's connected peer's bound path (getpeername).
func (d *Dispatcher) GetPeerName(pid ids.Pid, fd ids.Fd) (string, error) {
	ep, err := d.endpointFor(pid, fd)
	if err != nil {
		return "", err
	}
	return ep.PeerAddr(), nil
}
