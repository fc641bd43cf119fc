package sys

import (
	"testing"
	"time"

	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/ipc/filelock"
	"github.com/axeberg/axebergos/kernel/ipc/mqueue"
	"github.com/axeberg/axebergos/kernel/ipc/sem"
	"github.com/axeberg/axebergos/kernel/ipc/shm"
	"github.com/axeberg/axebergos/kernel/ipc/uds"
	"github.com/axeberg/axebergos/kernel/lifecycle"
	"github.com/axeberg/axebergos/kernel/memory"
	"github.com/axeberg/axebergos/kernel/object"
	"github.com/axeberg/axebergos/kernel/process"
	"github.com/axeberg/axebergos/kernel/signal"
	"github.com/axeberg/axebergos/kernel/timer"
	"github.com/axeberg/axebergos/kernel/trace"
	"github.com/axeberg/axebergos/kernel/vfs"
)

func newDispatcher(t *testing.T) (*Dispatcher, ids.Pid) {
	t.Helper()
	procs := process.NewTable()
	objs := object.NewTable()
	sigs := signal.NewTable()
	memSys := memory.NewSystem(0)
	life, init := lifecycle.NewManager(procs, objs, sigs, memSys, 0)
	return &Dispatcher{
		Procs:  procs,
		Objs:   objs,
		Sigs:   sigs,
		Tree:   vfs.NewTree(),
		Life:   life,
		Timers: timer.NewQueue(),
		Trace:  trace.NewRing(64),
		Msq:    mqueue.NewTable(),
		Sems:   sem.NewTable(false),
		Shms:   shm.NewTable(),
		Locks:  filelock.NewTable(),
		UDS:    uds.NewTable(),
	}, init.Pid
}

func TestOpenWriteReadCloseRoundTrip(t *testing.T) {
	d, pid := newDispatcher(t)
	fd, err := d.Open(pid, "/greeting.txt", vfs.OCreate|vfs.ORdWr, 0o644)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := d.Write(pid, fd, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := d.Seek(pid, fd, 0, vfs.SeekSet); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 5)
	n, err := d.Read(pid, fd, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("Read = %q, want %q", buf[:n], "hello")
	}
	if err := d.Close(pid, fd); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := d.Read(pid, fd, buf); err == nil {
		t.Fatalf("expected Read after Close to fail")
	}
}

func TestMkdirReadDirAndRemoveDir(t *testing.T) {
	d, pid := newDispatcher(t)
	if err := d.Mkdir(pid, "/etc", 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	names, err := d.ReadDir(pid, "/")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := false
	for _, n := range names {
		if n == "etc" {
			found = true
		}
	}
	if !found {
		t.Fatalf("ReadDir(/) = %v, want to contain etc", names)
	}
	if err := d.RemoveDir(pid, "/etc"); err != nil {
		t.Fatalf("RemoveDir: %v", err)
	}
}

func TestRenameMovesEntry(t *testing.T) {
	d, pid := newDispatcher(t)
	if _, err := d.Open(pid, "/a.txt", vfs.OCreate|vfs.OWrOnly, 0o644); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.Rename(pid, "/a.txt", "/b.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := d.Open(pid, "/a.txt", vfs.ORdOnly, 0); err == nil {
		t.Fatalf("expected /a.txt to no longer resolve after rename")
	}
	if _, err := d.Open(pid, "/b.txt", vfs.ORdOnly, 0); err != nil {
		t.Fatalf("expected /b.txt to resolve after rename: %v", err)
	}
}

func TestChdirAndGetcwd(t *testing.T) {
	d, pid := newDispatcher(t)
	if err := d.Mkdir(pid, "/home", 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := d.Chdir(pid, "/home"); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	cwd, err := d.Getcwd(pid)
	if err != nil {
		t.Fatalf("Getcwd: %v", err)
	}
	if cwd != "/home" {
		t.Fatalf("Getcwd = %q, want /home", cwd)
	}
}

func TestForkExecWaitExit(t *testing.T) {
	d, pid := newDispatcher(t)
	childPid, err := d.Fork(pid)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if err := d.Exit(childPid, 5); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	res, err := d.WaitPid(pid, childPid, lifecycle.WaitOptions{NoHang: true})
	if err != nil {
		t.Fatalf("WaitPid: %v", err)
	}
	if res.Status != 5 {
		t.Fatalf("Status = %d, want 5", res.Status)
	}
}

func TestSetuidRequiresPrivilegeOrIdentityMatch(t *testing.T) {
	d, pid := newDispatcher(t)
	if err := d.Setuid(pid, 0); err != nil {
		t.Fatalf("Setuid as root: %v", err)
	}
	if err := d.Setuid(pid, 1000); err != nil {
		t.Fatalf("Setuid to 1000: %v", err)
	}
	if err := d.Setuid(pid, 2000); err == nil {
		t.Fatalf("expected unprivileged Setuid to an unrelated uid to fail")
	}
}

func TestCapRaiseRespectsPermittedSet(t *testing.T) {
	d, pid := newDispatcher(t)
	if err := d.Setuid(pid, 1000); err != nil {
		t.Fatalf("Setuid: %v", err)
	}
	if err := d.CapDrop(pid, process.CapSysAdmin); err != nil {
		t.Fatalf("CapDrop: %v", err)
	}
	if err := d.CapRaise(pid, process.CapSysAdmin); err == nil {
		t.Fatalf("expected CapRaise of a dropped capability to fail")
	}
}

func TestTraceRecordsSyscalls(t *testing.T) {
	d, pid := newDispatcher(t)
	d.Trace.Enable()
	if err := d.Mkdir(pid, "/tmp", 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	summary := d.Trace.Summary()
	if summary.Counters["mkdir"] == 0 {
		t.Fatalf("expected mkdir to be traced, got %+v", summary.Counters)
	}
}

func TestMessageQueueSendReceiveRoundTrip(t *testing.T) {
	d, pid := newDispatcher(t)
	id, err := d.Msgget(pid, 42, 0o600, true, false)
	if err != nil {
		t.Fatalf("Msgget: %v", err)
	}
	if err := d.Msgsnd(pid, id, 1, []byte("payload")); err != nil {
		t.Fatalf("Msgsnd: %v", err)
	}
	m, err := d.Msgrcv(pid, id, 0)
	if err != nil {
		t.Fatalf("Msgrcv: %v", err)
	}
	if string(m.Data) != "payload" {
		t.Fatalf("Msgrcv data = %q, want %q", m.Data, "payload")
	}
}

func TestSemaphoreCreateOpValue(t *testing.T) {
	d, pid := newDispatcher(t)
	id, err := d.Semget(pid, 1)
	if err != nil {
		t.Fatalf("Semget: %v", err)
	}
	if err := d.Semop(pid, id, 0, 3, false); err != nil {
		t.Fatalf("Semop: %v", err)
	}
	v, err := d.Semctl(pid, id, 0)
	if err != nil {
		t.Fatalf("Semctl: %v", err)
	}
	if v != 3 {
		t.Fatalf("Semctl value = %d, want 3", v)
	}
}

func TestUnixStreamSocketConnectSendRecv(t *testing.T) {
	d, pid := newDispatcher(t)
	serverFd, err := d.Socket(pid, uds.Stream)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := d.Bind(pid, serverFd, "/tmp/sock"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := d.Listen(pid, serverFd); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	clientFd, err := d.Socket(pid, uds.Stream)
	if err != nil {
		t.Fatalf("Socket (client): %v", err)
	}
	if err := d.Connect(pid, clientFd, "/tmp/sock"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	acceptedFd, err := d.Accept(pid, serverFd)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := d.Send(pid, clientFd, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 2)
	n, err := d.Recv(pid, acceptedFd, buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("Recv = %q, want %q", buf[:n], "hi")
	}
}

func TestPipeWriteReadEOF(t *testing.T) {
	d, pid := newDispatcher(t)
	rFd, wFd, err := d.Pipe(pid)
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	if _, err := d.Write(pid, wFd, []byte("X")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := d.Close(pid, wFd); err != nil {
		t.Fatalf("Close(w): %v", err)
	}
	buf := make([]byte, 3)
	n, err := d.Read(pid, rFd, buf)
	if err != nil || string(buf[:n]) != "X" {
		t.Fatalf("Read = (%q, %v), want X", buf[:n], err)
	}
	n, err = d.Read(pid, rFd, buf)
	if err != nil || n != 0 {
		t.Fatalf("Read after writer close = (%d, %v), want EOF", n, err)
	}
}

func TestUtimesSetsTimestamps(t *testing.T) {
	d, pid := newDispatcher(t)
	if _, err := d.Open(pid, "/stamped", vfs.OCreate|vfs.OWrOnly, 0o644); err != nil {
		t.Fatalf("Open: %v", err)
	}
	atime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	mtime := time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC)
	if err := d.Utimes(pid, "/stamped", atime, mtime); err != nil {
		t.Fatalf("Utimes: %v", err)
	}
	n, _, _, err := d.Tree.Resolve("/stamped", true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !n.Atime.Equal(atime) || !n.Mtime.Equal(mtime) {
		t.Fatalf("times = (%v, %v), want (%v, %v)", n.Atime, n.Mtime, atime, mtime)
	}
}

func TestMmapSharedMsyncWritesBack(t *testing.T) {
	d, pid := newDispatcher(t)
	fd, err := d.Open(pid, "/backing", vfs.OCreate|vfs.ORdWr, 0o644)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := d.Write(pid, fd, []byte("orig")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rid, err := d.MemMmap(pid, fd, 0, 4096, memory.ProtRead|memory.ProtWrite, memory.MapShared)
	if err != nil {
		t.Fatalf("MemMmap: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := d.MemRead(pid, rid, 0, buf); err != nil || string(buf) != "orig" {
		t.Fatalf("mapped content = (%q, %v), want orig", buf, err)
	}
	if _, err := d.MemWrite(pid, rid, 0, []byte("edit")); err != nil {
		t.Fatalf("MemWrite: %v", err)
	}
	if err := d.MemMsync(pid, rid); err != nil {
		t.Fatalf("MemMsync: %v", err)
	}
	if _, err := d.Seek(pid, fd, 0, vfs.SeekSet); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := d.Read(pid, fd, buf); err != nil || string(buf) != "edit" {
		t.Fatalf("file after msync = (%q, %v), want edit", buf, err)
	}
}

func TestMsyncUnknownRegionFails(t *testing.T) {
	d, pid := newDispatcher(t)
	if err := d.MemMsync(pid, ids.RegionId(999)); err == nil {
		t.Fatal("MemMsync of an unmapped region should fail")
	}
}

func TestExecvpSearchesPath(t *testing.T) {
	d, pid := newDispatcher(t)
	if err := d.Mkdir(pid, "/bin", 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := d.Open(pid, "/bin/ls", vfs.OCreate|vfs.OWrOnly, 0o755); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := d.Execvp(pid, "ls", []string{"ls", "-l"}); err != nil {
		t.Fatalf("Execvp: %v", err)
	}
	p, err := d.Procs.Get(pid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Environ["_cmdline"] != "ls -l" {
		t.Fatalf("_cmdline = %q", p.Environ["_cmdline"])
	}
	if _, err := d.Execvp(pid, "missing-command", nil); err == nil {
		t.Fatal("Execvp of an unknown command should fail")
	}
}

func TestSemopUndoReversedOnExit(t *testing.T) {
	d, pid := newDispatcher(t)
	id, err := d.Semget(pid, 1)
	if err != nil {
		t.Fatalf("Semget: %v", err)
	}
	childPid, err := d.Fork(pid)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if err := d.SemopUndo(childPid, id, 0, 2); err != nil {
		t.Fatalf("SemopUndo: %v", err)
	}
	if v, _ := d.Semctl(pid, id, 0); v != 2 {
		t.Fatalf("value before exit = %d, want 2", v)
	}
	if err := d.Exit(childPid, 0); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if v, _ := d.Semctl(pid, id, 0); v != 0 {
		t.Fatalf("value after exit = %d, want 0 (undo reversed)", v)
	}
}

func TestDeliverKillWinsAndDiscardsRest(t *testing.T) {
	d, pid := newDispatcher(t)
	child, err := d.Fork(pid)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	for _, sig := range []signal.Signal{signal.SIGINT, signal.SIGUSR1, signal.SIGKILL} {
		if err := d.Kill(pid, child, sig); err != nil {
			t.Fatalf("Kill(%v): %v", sig, err)
		}
	}

	del, ok, err := d.Deliver(child)
	if err != nil || !ok {
		t.Fatalf("Deliver = (%+v, %v, %v)", del, ok, err)
	}
	if del.Signal != signal.SIGKILL {
		t.Fatalf("delivered %v first, want SIGKILL", del.Signal)
	}
	p, err := d.Procs.Get(child)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.State() != process.Zombie {
		t.Fatalf("state after KILL = %v, want Zombie", p.State())
	}

	// The queued INT and USR1 died with the process.
	if _, ok, _ := d.Deliver(child); ok {
		t.Fatal("signals remained deliverable after a fatal delivery")
	}

	res, err := d.WaitPid(pid, child, lifecycle.WaitOptions{NoHang: true})
	if err != nil {
		t.Fatalf("WaitPid: %v", err)
	}
	if res.Status != -int32(signal.SIGKILL) {
		t.Fatalf("Status = %d, want %d (killed-by-signal encoding)", res.Status, -int32(signal.SIGKILL))
	}
}

func TestDeliverStopThenContinue(t *testing.T) {
	d, pid := newDispatcher(t)
	child, err := d.Fork(pid)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if err := d.Kill(pid, child, signal.SIGSTOP); err != nil {
		t.Fatalf("Kill(STOP): %v", err)
	}
	if _, _, err := d.Deliver(child); err != nil {
		t.Fatalf("Deliver(STOP): %v", err)
	}
	p, err := d.Procs.Get(child)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.State() != process.Stopped {
		t.Fatalf("state after STOP = %v, want Stopped", p.State())
	}

	if err := d.Kill(pid, child, signal.SIGCONT); err != nil {
		t.Fatalf("Kill(CONT): %v", err)
	}
	del, ok, err := d.Deliver(child)
	if err != nil || !ok || del.Signal != signal.SIGCONT {
		t.Fatalf("Deliver(CONT) = (%+v, %v, %v)", del, ok, err)
	}
	if p.State() != process.Running {
		t.Fatalf("state after CONT = %v, want Running", p.State())
	}

	res, err := d.WaitPid(pid, child, lifecycle.WaitOptions{NoHang: true, Continued: true})
	if err != nil {
		t.Fatalf("WaitPid(WCONTINUED): %v", err)
	}
	if !res.Continued || res.Pid != child {
		t.Fatalf("WaitPid result = %+v, want continued child %d", res, child)
	}
}

func TestSigsetmaskNeverBlocksKillOrStop(t *testing.T) {
	d, pid := newDispatcher(t)
	if err := d.Sigsetmask(pid, []signal.Signal{signal.SIGKILL, signal.SIGSTOP, signal.SIGUSR1}); err != nil {
		t.Fatalf("Sigsetmask: %v", err)
	}
	st, err := d.Sigs.Get(pid)
	if err != nil {
		t.Fatalf("Sigs.Get: %v", err)
	}
	blocked := st.Blocked()
	if blocked[signal.SIGKILL] || blocked[signal.SIGSTOP] {
		t.Fatal("KILL/STOP must never enter the blocked set")
	}
	if !blocked[signal.SIGUSR1] {
		t.Fatal("USR1 should be blocked after Sigsetmask")
	}
}

func TestTraceEventInterleavesWithSyscalls(t *testing.T) {
	d, pid := newDispatcher(t)
	d.Trace.Enable()
	if err := d.TraceEvent(pid, "marker", "phase=1"); err != nil {
		t.Fatalf("TraceEvent: %v", err)
	}
	if d.Trace.Summary().Counters["marker"] != 1 {
		t.Fatalf("marker not counted: %+v", d.Trace.Summary().Counters)
	}
}

func TestTimerSetAndCancel(t *testing.T) {
	d, pid := newDispatcher(t)
	id, err := d.TimerSet(pid, 0, ids.TaskId(1))
	if err != nil {
		t.Fatalf("TimerSet: %v", err)
	}
	if err := d.TimerCancel(pid, id); err != nil {
		t.Fatalf("TimerCancel: %v", err)
	}
}
