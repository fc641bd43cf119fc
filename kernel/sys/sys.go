// Package sys is the syscall dispatch layer: every entry point resolves
// the caller, validates arguments, resolves any path under cwd+jail+
// symlinks with a traversal check on intermediate directories, performs
// the operation atomically against the named subsystem, and returns a
// typed result or a member of the kernel's error taxonomy.
package sys

import (
	"strings"
	"sync"
	"time"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/ipc/filelock"
	"github.com/axeberg/axebergos/kernel/ipc/mqueue"
	"github.com/axeberg/axebergos/kernel/ipc/pipe"
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

// Dispatcher binds every subsystem table the syscall layer touches. It
// holds no per-call state; one Dispatcher serves every process in the
// kernel.
type Dispatcher struct {
	Procs  *process.Table
	Objs   *object.Table
	Sigs   *signal.Table
	Tree   *vfs.Tree
	Life   *lifecycle.Manager
	Timers *timer.Queue
	Trace  *trace.Ring

	Msq   *mqueue.Table
	Sems  *sem.Table
	Shms  *shm.Table
	Locks *filelock.Table
	UDS   *uds.Table

	mapMu    sync.Mutex
	mappings map[ids.RegionId]*memory.Mapping
}

// caller resolves pid to its process record, failing with NoProcess if
// unset, the first step of every syscall.
func (d *Dispatcher) caller(pid ids.Pid) (*process.Process, error) {
	return d.Procs.Get(pid)
}

// resolvePath composes proc's cwd and jail root with rel, returning the
// tree-coordinate absolute path a Tree method can resolve directly,
// reusing vfs's own jail-rewriting rather than duplicating it here.
func (d *Dispatcher) resolvePath(proc *process.Process, rel string) (string, error) {
	canonical := proc.AbsolutePath(rel)
	return vfs.JailedPath(proc, canonical), nil
}

func (d *Dispatcher) record(name string, pid ids.Pid, args string, err error) {
	if d.Trace == nil {
		return
	}
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	d.Trace.Record(name, pid, args, errStr, 0)
}

// --- fd I/O ---

// Open resolves path and returns a new fd bound to a freshly opened
// vfs.File handle.
func (d *Dispatcher) Open(pid ids.Pid, path string, flags vfs.OpenFlags, mode uint32) (ids.Fd, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return -1, err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		d.record("open", pid, path, err)
		return -1, err
	}

	var inode *vfs.Inode
	if flags&vfs.OCreate != 0 {
		inode, err = d.Tree.Create(abs, proc, mode)
	} else {
		inode, _, _, err = d.Tree.ResolveForCaller(abs, proc, true)
	}
	if err != nil {
		d.record("open", pid, path, err)
		return -1, err
	}

	h := d.Objs.Insert(vfs.NewFileHandle(inode, flags))
	fd, err := proc.Fds().AllocFd(h)
	if err != nil {
		d.Objs.Release(h)
		d.record("open", pid, path, err)
		return -1, err
	}
	d.record("open", pid, path, nil)
	return fd, nil
}

func (d *Dispatcher) fileFor(proc *process.Process, fd ids.Fd) (*vfs.File, error) {
	h, err := proc.Fds().Lookup(fd)
	if err != nil {
		return nil, err
	}
	obj, err := d.Objs.Get(h)
	if err != nil {
		return nil, err
	}
	f, ok := obj.(*vfs.File)
	if !ok {
		return nil, kerrors.ErrBadFd
	}
	return f, nil
}

// objFor resolves fd to whatever kernel object it is bound to, so read
// and write work uniformly across regular files, pipe ends, and console
// endpoints.
func (d *Dispatcher) objFor(proc *process.Process, fd ids.Fd) (object.Object, error) {
	h, err := proc.Fds().Lookup(fd)
	if err != nil {
		return nil, err
	}
	return d.Objs.Get(h)
}

type byteReader interface {
	Read(buf []byte) (int, error)
}

type byteWriter interface {
	Write(buf []byte) (int, error)
}

// Pipe creates an anonymous pipe and binds its read and write ends to
// two fresh fds, read end first.
func (d *Dispatcher) Pipe(pid ids.Pid) (ids.Fd, ids.Fd, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return -1, -1, err
	}
	rEnd, wEnd := pipe.New(pipe.DefaultCapacity)
	rh := d.Objs.Insert(rEnd)
	wh := d.Objs.Insert(wEnd)
	rFd, err := proc.Fds().AllocFd(rh)
	if err != nil {
		d.Objs.Release(rh)
		d.Objs.Release(wh)
		d.record("pipe", pid, "", err)
		return -1, -1, err
	}
	wFd, err := proc.Fds().AllocFd(wh)
	if err != nil {
		proc.Fds().Close(rFd)
		d.Objs.Release(rh)
		d.Objs.Release(wh)
		d.record("pipe", pid, "", err)
		return -1, -1, err
	}
	d.record("pipe", pid, "", nil)
	return rFd, wFd, nil
}

// Close releases fd's handle from the object table.
func (d *Dispatcher) Close(pid ids.Pid, fd ids.Fd) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	h, err := proc.Fds().Close(fd)
	if err != nil {
		d.record("close", pid, "", err)
		return err
	}
	_, err = d.Objs.Release(h)
	d.record("close", pid, "", err)
	return err
}

// Read reads from fd into buf.
func (d *Dispatcher) Read(pid ids.Pid, fd ids.Fd, buf []byte) (int, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	obj, err := d.objFor(proc, fd)
	if err != nil {
		d.record("read", pid, "", err)
		return 0, err
	}
	r, ok := obj.(byteReader)
	if !ok {
		d.record("read", pid, "", kerrors.ErrBadFd)
		return 0, kerrors.ErrBadFd
	}
	n, err := r.Read(buf)
	d.record("read", pid, "", err)
	return n, err
}

// Write writes buf to fd.
func (d *Dispatcher) Write(pid ids.Pid, fd ids.Fd, buf []byte) (int, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	obj, err := d.objFor(proc, fd)
	if err != nil {
		d.record("write", pid, "", err)
		return 0, err
	}
	w, ok := obj.(byteWriter)
	if !ok {
		d.record("write", pid, "", kerrors.ErrBadFd)
		return 0, kerrors.ErrBadFd
	}
	n, err := w.Write(buf)
	d.record("write", pid, "", err)
	return n, err
}

// Seek repositions fd's cursor.
func (d *Dispatcher) Seek(pid ids.Pid, fd ids.Fd, offset int64, whence int) (int64, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	f, err := d.fileFor(proc, fd)
	if err != nil {
		return 0, err
	}
	return f.Seek(offset, whence)
}

// Dup duplicates fd onto the lowest free fd, retaining the shared
// handle's refcount.
func (d *Dispatcher) Dup(pid ids.Pid, fd ids.Fd) (ids.Fd, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return -1, err
	}
	newFd, h, err := proc.Fds().Dup(fd)
	if err != nil {
		return -1, err
	}
	if err := d.Objs.Retain(h); err != nil {
		return -1, err
	}
	d.record("dup", pid, "", nil)
	return newFd, nil
}

// Fstat reports an inode's metadata for fd.
type Stat struct {
	Kind  vfs.Kind
	Mode  uint32
	Uid   ids.Uid
	Gid   ids.Gid
	Nlink int
	Size  int64
}

// Fstat returns fd's inode metadata.
func (d *Dispatcher) Fstat(pid ids.Pid, fd ids.Fd) (Stat, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return Stat{}, err
	}
	f, err := d.fileFor(proc, fd)
	if err != nil {
		return Stat{}, err
	}
	return Stat{Kind: f.Inode.Kind, Mode: f.Inode.Mode, Uid: f.Inode.Uid, Gid: f.Inode.Gid, Nlink: f.Inode.Nlink, Size: f.Inode.Size()}, nil
}

// Chmod updates path's mode bits.
func (d *Dispatcher) Chmod(pid ids.Pid, path string, mode uint32) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		return err
	}
	err = d.Tree.Chmod(abs, proc, mode)
	d.record("chmod", pid, path, err)
	return err
}

// Chown updates path's owner and group.
func (d *Dispatcher) Chown(pid ids.Pid, path string, uid ids.Uid, gid ids.Gid) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		return err
	}
	err = d.Tree.Chown(abs, proc, uid, gid)
	d.record("chown", pid, path, err)
	return err
}

// Utimes sets path's access and modification times.
func (d *Dispatcher) Utimes(pid ids.Pid, path string, atime, mtime time.Time) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		return err
	}
	err = d.Tree.Utimes(abs, proc, atime, mtime)
	d.record("utimes", pid, path, err)
	return err
}

// Rename moves oldPath to newPath.
func (d *Dispatcher) Rename(pid ids.Pid, oldPath, newPath string) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	oldAbs, err := d.resolvePath(proc, oldPath)
	if err != nil {
		return err
	}
	newAbs, err := d.resolvePath(proc, newPath)
	if err != nil {
		return err
	}
	err = d.Tree.Rename(oldAbs, newAbs, proc)
	d.record("rename", pid, oldPath+" -> "+newPath, err)
	return err
}

// Mkdir creates a directory at path.
func (d *Dispatcher) Mkdir(pid ids.Pid, path string, mode uint32) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		return err
	}
	err = d.Tree.Mkdir(abs, proc, mode)
	d.record("mkdir", pid, path, err)
	return err
}

// ReadDir lists path's entries.
func (d *Dispatcher) ReadDir(pid ids.Pid, path string) ([]string, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return nil, err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		return nil, err
	}
	names, err := d.Tree.ReadDir(abs, proc)
	d.record("readdir", pid, path, err)
	return names, err
}

// RemoveFile unlinks a non-directory entry at path.
func (d *Dispatcher) RemoveFile(pid ids.Pid, path string) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		return err
	}
	err = d.Tree.Remove(abs, proc)
	d.record("remove_file", pid, path, err)
	return err
}

// RemoveDir removes an empty directory at path.
func (d *Dispatcher) RemoveDir(pid ids.Pid, path string) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		return err
	}
	err = d.Tree.RemoveDir(abs, proc)
	d.record("remove_dir", pid, path, err)
	return err
}

// Symlink creates a symlink at path pointing at target.
func (d *Dispatcher) Symlink(pid ids.Pid, path, target string) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		return err
	}
	err = d.Tree.Symlink(abs, target, proc)
	d.record("symlink", pid, path, err)
	return err
}

// Readlink returns a symlink's target.
func (d *Dispatcher) Readlink(pid ids.Pid, path string) (string, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return "", err
	}
	abs, err := d.resolvePath(proc, path)
	if err != nil {
		return "", err
	}
	n, _, _, err := d.Tree.ResolveForCaller(abs, proc, false)
	if err != nil {
		return "", err
	}
	if n.Kind != vfs.KindSymlink {
		return "", kerrors.ErrInvalidArgument
	}
	return n.Target(), nil
}

// Link adds a second directory entry pointing at targetPath's inode.
func (d *Dispatcher) Link(pid ids.Pid, targetPath, linkPath string) error {
	proc, err := d.caller(pid)
	if err != nil {
		return err
	}
	targetAbs, err := d.resolvePath(proc, targetPath)
	if err != nil {
		return err
	}
	linkAbs, err := d.resolvePath(proc, linkPath)
	if err != nil {
		return err
	}
	err = d.Tree.Link(targetAbs, linkAbs, proc)
	d.record("link", pid, targetPath+" -> "+linkPath, err)
	return err
}

// --- process ---

// Getpid, Getppid, Getuid, Geteuid, Getgid, Getegid report caller's
// identity fields directly, with no permission gate.
func (d *Dispatcher) Getpid(pid ids.Pid) (ids.Pid, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	return p.Pid, nil
}

func (d *Dispatcher) Getppid(pid ids.Pid) (ids.Pid, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	return p.Ppid, nil
}

func (d *Dispatcher) Getuid(pid ids.Pid) (ids.Uid, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	return p.Ruid, nil
}

func (d *Dispatcher) Geteuid(pid ids.Pid) (ids.Uid, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	return p.Euid, nil
}

func (d *Dispatcher) Getgid(pid ids.Pid) (ids.Gid, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	return p.Rgid, nil
}

func (d *Dispatcher) Getegid(pid ids.Pid) (ids.Gid, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	return p.Egid, nil
}

// Setuid sets real, effective, and saved uid; unprivileged callers may
// only set them to their current real or saved uid.
func (d *Dispatcher) Setuid(pid ids.Pid, uid ids.Uid) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	if p.Euid != 0 && uid != p.Ruid && uid != p.Suid {
		return kerrors.ErrPermissionDenied
	}
	p.Ruid, p.Euid, p.Suid = uid, uid, uid
	return nil
}

// Seteuid sets only the effective uid.
func (d *Dispatcher) Seteuid(pid ids.Pid, uid ids.Uid) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	if p.Euid != 0 && uid != p.Ruid && uid != p.Suid {
		return kerrors.ErrPermissionDenied
	}
	p.Euid = uid
	return nil
}

// Setgid/Setegid mirror Setuid/Seteuid for the group identity.
func (d *Dispatcher) Setgid(pid ids.Pid, gid ids.Gid) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	if p.Euid != 0 && gid != p.Rgid && gid != p.Sgid {
		return kerrors.ErrPermissionDenied
	}
	p.Rgid, p.Egid, p.Sgid = gid, gid, gid
	return nil
}

func (d *Dispatcher) Setegid(pid ids.Pid, gid ids.Gid) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	if p.Euid != 0 && gid != p.Rgid && gid != p.Sgid {
		return kerrors.ErrPermissionDenied
	}
	p.Egid = gid
	return nil
}

func (d *Dispatcher) Getgroups(pid ids.Pid) ([]ids.Gid, error) {
	p, err := d.caller(pid)
	if err != nil {
		return nil, err
	}
	return append([]ids.Gid(nil), p.Groups...), nil
}

func (d *Dispatcher) Setgroups(pid ids.Pid, groups []ids.Gid) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	if p.Euid != 0 {
		return kerrors.ErrPermissionDenied
	}
	p.Groups = append([]ids.Gid(nil), groups...)
	return nil
}

// Umask sets the process's creation mask and returns the previous value.
func (d *Dispatcher) Umask(pid ids.Pid, mask uint32) (uint32, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	old := p.Umask
	p.Umask = mask
	return old, nil
}

// Chdir changes the process's current working directory.
func (d *Dispatcher) Chdir(pid ids.Pid, path string) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	abs, err := d.resolvePath(p, path)
	if err != nil {
		return err
	}
	n, _, _, err := d.Tree.ResolveForCaller(abs, p, true)
	if err != nil {
		return err
	}
	if n.Kind != vfs.KindDir {
		return kerrors.ErrNotADir
	}
	p.Cwd = abs
	return nil
}

func (d *Dispatcher) Getcwd(pid ids.Pid) (string, error) {
	p, err := d.caller(pid)
	if err != nil {
		return "", err
	}
	return p.Cwd, nil
}

// Chroot confines the process's root to path, requiring CapSysChroot.
func (d *Dispatcher) Chroot(pid ids.Pid, path string) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	if !p.HasCap(process.CapSysChroot) {
		return kerrors.ErrPermissionDenied
	}
	abs, err := d.resolvePath(p, path)
	if err != nil {
		return err
	}
	p.JailRoot = abs
	return nil
}

func (d *Dispatcher) Nice(pid ids.Pid, delta int) (int, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	next := p.Nice + delta
	if next > 19 {
		next = 19
	}
	if next < -20 {
		if !p.HasCap(process.CapSysNice) {
			return 0, kerrors.ErrPermissionDenied
		}
		next = -20
	}
	p.Nice = next
	return next, nil
}

func (d *Dispatcher) Getpriority(pid ids.Pid) (int, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	return p.Nice, nil
}

func (d *Dispatcher) Setpriority(pid ids.Pid, nice int) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	if nice < p.Nice && !p.HasCap(process.CapSysNice) {
		return kerrors.ErrPermissionDenied
	}
	p.Nice = nice
	return nil
}

func (d *Dispatcher) Getrlimit(pid ids.Pid, r process.Resource) (process.Rlimit, error) {
	p, err := d.caller(pid)
	if err != nil {
		return process.Rlimit{}, err
	}
	return p.GetRlimit(r)
}

func (d *Dispatcher) Setrlimit(pid ids.Pid, r process.Resource, lim process.Rlimit) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	return p.SetRlimit(r, lim)
}

// Fork duplicates the caller into a new child process.
func (d *Dispatcher) Fork(pid ids.Pid) (ids.Pid, error) {
	p, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	child, err := d.Life.Fork(p)
	d.record("fork", pid, "", err)
	if err != nil {
		return 0, err
	}
	return child.Pid, nil
}

// Exec replaces the caller's executable context, resolving path first.
func (d *Dispatcher) Exec(pid ids.Pid, path string, argv, envp []string) (lifecycle.ExecResult, error) {
	p, err := d.caller(pid)
	if err != nil {
		return lifecycle.ExecResult{}, err
	}
	abs, err := d.resolvePath(p, path)
	if err != nil {
		return lifecycle.ExecResult{}, err
	}
	n, _, _, err := d.Tree.ResolveForCaller(abs, p, true)
	if err != nil {
		return lifecycle.ExecResult{}, err
	}
	res, err := d.Life.Exec(p, n.Uid, n.Gid, n.Mode)
	if err == nil {
		if envp != nil {
			environ := make(map[string]string, len(envp))
			for _, kv := range envp {
				if i := strings.IndexByte(kv, '='); i > 0 {
					environ[kv[:i]] = kv[i+1:]
				}
			}
			p.Environ = environ
		}
		p.Environ["_cmdline"] = strings.Join(argv, " ")
	}
	d.record("exec", pid, path, err)
	return res, err
}

// Execv is Exec with the caller's environment kept as-is.
func (d *Dispatcher) Execv(pid ids.Pid, path string, argv []string) (lifecycle.ExecResult, error) {
	return d.Exec(pid, path, argv, nil)
}

// Execl takes the argument vector as a trailing variadic list.
func (d *Dispatcher) Execl(pid ids.Pid, path string, argv ...string) (lifecycle.ExecResult, error) {
	return d.Exec(pid, path, argv, nil)
}

// Execle is Execl with an explicit replacement environment.
func (d *Dispatcher) Execle(pid ids.Pid, path string, envp []string, argv ...string) (lifecycle.ExecResult, error) {
	return d.Exec(pid, path, argv, envp)
}

// Execvp resolves a bare command name against the caller's PATH before
// delegating to Exec. A name containing a slash bypasses the search.
func (d *Dispatcher) Execvp(pid ids.Pid, file string, argv []string) (lifecycle.ExecResult, error) {
	p, err := d.caller(pid)
	if err != nil {
		return lifecycle.ExecResult{}, err
	}
	path, err := d.searchPath(p, file)
	if err != nil {
		d.record("execvp", pid, file, err)
		return lifecycle.ExecResult{}, err
	}
	return d.Exec(pid, path, argv, nil)
}

// Execlp is Execvp with a variadic argument vector.
func (d *Dispatcher) Execlp(pid ids.Pid, file string, argv ...string) (lifecycle.ExecResult, error) {
	return d.Execvp(pid, file, argv)
}

const defaultPath = "/bin:/usr/bin"

// searchPath finds file in the first PATH directory that holds an
// executable regular file of that name.
func (d *Dispatcher) searchPath(p *process.Process, file string) (string, error) {
	if strings.ContainsRune(file, '/') {
		return file, nil
	}
	dirs := p.Environ["PATH"]
	if dirs == "" {
		dirs = defaultPath
	}
	for _, dir := range strings.Split(dirs, ":") {
		if dir == "" {
			continue
		}
		candidate := dir + "/" + file
		abs, err := d.resolvePath(p, candidate)
		if err != nil {
			continue
		}
		n, _, _, err := d.Tree.ResolveForCaller(abs, p, true)
		if err != nil || n.Kind != vfs.KindFile {
			continue
		}
		if n.Mode&(vfs.ModeOwnerX|vfs.ModeGroupX|vfs.ModeOtherX) == 0 {
			continue
		}
		return candidate, nil
	}
	return "", kerrors.ErrNotFound
}

// WaitPid blocks (unless opts.NoHang) for a child's state change.
func (d *Dispatcher) WaitPid(pid ids.Pid, target ids.Pid, opts lifecycle.WaitOptions) (lifecycle.WaitResult, error) {
	p, err := d.caller(pid)
	if err != nil {
		return lifecycle.WaitResult{}, err
	}
	res, err := d.Life.WaitPid(p, target, opts)
	d.record("waitpid", pid, "", err)
	return res, err
}

// Exit terminates the caller with status.
func (d *Dispatcher) Exit(pid ids.Pid, status int32) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	err = d.Life.Exit(p, status)
	if err == nil && d.Sems != nil {
		d.Sems.Exit(pid)
	}
	d.record("exit", pid, "", err)
	return err
}

// --- signals ---

// Kill enqueues sig into target's pending set, gated on the sender
// sharing a credential predicate with target or holding CapKill.
func (d *Dispatcher) Kill(pid ids.Pid, target ids.Pid, sig signal.Signal) error {
	sender, err := d.caller(pid)
	if err != nil {
		return err
	}
	receiver, err := d.caller(target)
	if err != nil {
		return err
	}
	if sender.Euid != 0 && sender.Euid != receiver.Ruid && !sender.HasCap(process.CapKill) {
		return kerrors.ErrPermissionDenied
	}
	st, err := d.Sigs.Get(target)
	if err != nil {
		return err
	}
	st.Enqueue(sig)
	d.record("kill", pid, "", nil)
	return nil
}

// Signal installs action as target signal's disposition for the caller.
func (d *Dispatcher) Signal(pid ids.Pid, sig signal.Signal, action signal.Action) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	st, err := d.Sigs.Get(pid)
	if err != nil {
		return err
	}
	return st.SetDisposition(sig, action)
}

// SigProcMask updates the caller's blocked set.
func (d *Dispatcher) SigProcMask(pid ids.Pid, how signal.How, set []signal.Signal) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	st, err := d.Sigs.Get(pid)
	if err != nil {
		return err
	}
	st.SigProcMask(how, set)
	return nil
}

// Deliver pops the highest-priority deliverable signal for pid and
// applies its action to the process: KILL (and Terminate dispositions)
// produce a zombie with status -signum and discard whatever else was
// pending, STOP and CONT move the process between Stopped and Running,
// Ignore and Handle leave it untouched. The scheduler calls this between
// tasks; the CLI exposes it as the "deliver" script op. ok=false means
// nothing was deliverable.
func (d *Dispatcher) Deliver(pid ids.Pid) (signal.Delivery, bool, error) {
	p, err := d.caller(pid)
	if err != nil {
		return signal.Delivery{}, false, err
	}
	st, err := d.Sigs.Get(pid)
	if err != nil {
		return signal.Delivery{}, false, err
	}
	del, ok := st.Deliver()
	if !ok {
		return signal.Delivery{}, false, nil
	}
	err = d.Life.ApplySignal(p, del)
	if err == nil && (del.Action == signal.Kill || del.Action == signal.Terminate) {
		for {
			if _, more := st.Deliver(); !more {
				break
			}
		}
	}
	d.record("deliver", pid, del.Signal.String(), err)
	return del, true, err
}

// Sigsetmask replaces the caller's blocked set wholesale.
func (d *Dispatcher) Sigsetmask(pid ids.Pid, set []signal.Signal) error {
	return d.SigProcMask(pid, signal.SetMask, set)
}

// SigPending returns the caller's pending set.
func (d *Dispatcher) SigPending(pid ids.Pid) (map[signal.Signal]bool, error) {
	if _, err := d.caller(pid); err != nil {
		return nil, err
	}
	st, err := d.Sigs.Get(pid)
	if err != nil {
		return nil, err
	}
	return st.Pending(), nil
}

// --- capabilities ---

func (d *Dispatcher) Capget(pid ids.Pid) (process.CapSet, error) {
	p, err := d.caller(pid)
	if err != nil {
		return process.CapSet{}, err
	}
	return p.Caps(), nil
}

func (d *Dispatcher) Capset(pid ids.Pid, set process.CapSet) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	if p.Euid != 0 {
		return kerrors.ErrPermissionDenied
	}
	p.SetCaps(set)
	return nil
}

func (d *Dispatcher) CapRaise(pid ids.Pid, c process.Capability) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	caps := p.Caps()
	if !caps.Raise(c) {
		return kerrors.ErrPermissionDenied
	}
	p.SetCaps(caps)
	return nil
}

func (d *Dispatcher) CapLower(pid ids.Pid, c process.Capability) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	caps := p.Caps()
	caps.Lower(c)
	p.SetCaps(caps)
	return nil
}

func (d *Dispatcher) CapDrop(pid ids.Pid, c process.Capability) error {
	p, err := d.caller(pid)
	if err != nil {
		return err
	}
	caps := p.Caps()
	caps.Drop(c)
	p.SetCaps(caps)
	return nil
}

func (d *Dispatcher) CapCheck(pid ids.Pid, c process.Capability) (bool, error) {
	p, err := d.caller(pid)
	if err != nil {
		return false, err
	}
	return p.HasCap(c), nil
}

// --- memory ---

func (d *Dispatcher) MemAlloc(pid ids.Pid, size uint64, prot memory.Prot) (ids.RegionId, error) {
	if _, err := d.caller(pid); err != nil {
		return 0, err
	}
	space, err := d.Life.Space(pid)
	if err != nil {
		return 0, err
	}
	id, err := space.Alloc(size, prot)
	d.record("mem_alloc", pid, "", err)
	return id, err
}

func (d *Dispatcher) MemFree(pid ids.Pid, id ids.RegionId) error {
	space, err := d.Life.Space(pid)
	if err != nil {
		return err
	}
	return space.Free(id)
}

func (d *Dispatcher) MemRead(pid ids.Pid, id ids.RegionId, off uint64, buf []byte) (int, error) {
	space, err := d.Life.Space(pid)
	if err != nil {
		return 0, err
	}
	return space.Read(id, off, buf)
}

func (d *Dispatcher) MemWrite(pid ids.Pid, id ids.RegionId, off uint64, buf []byte) (int, error) {
	space, err := d.Life.Space(pid)
	if err != nil {
		return 0, err
	}
	return space.Write(id, off, buf)
}

// MemMmap maps fd's file into a fresh region, private (copy-on-write)
// or shared per mode, and remembers the mapping for a later MemMsync.
func (d *Dispatcher) MemMmap(pid ids.Pid, fd ids.Fd, offset int64, size uint64, prot memory.Prot, mode memory.MapMode) (ids.RegionId, error) {
	proc, err := d.caller(pid)
	if err != nil {
		return 0, err
	}
	f, err := d.fileFor(proc, fd)
	if err != nil {
		d.record("mem_mmap", pid, "", err)
		return 0, err
	}
	space, err := d.Life.Space(pid)
	if err != nil {
		return 0, err
	}
	m, err := space.Mmap(f, offset, size, prot, mode)
	d.record("mem_mmap", pid, "", err)
	if err != nil {
		return 0, err
	}
	d.mapMu.Lock()
	if d.mappings == nil {
		d.mappings = make(map[ids.RegionId]*memory.Mapping)
	}
	d.mappings[m.RegionId] = m
	d.mapMu.Unlock()
	return m.RegionId, nil
}

// MemMsync flushes a shared mapping's dirty pages back to its file.
func (d *Dispatcher) MemMsync(pid ids.Pid, id ids.RegionId) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	d.mapMu.Lock()
	m := d.mappings[id]
	d.mapMu.Unlock()
	if m == nil {
		return kerrors.ErrInvalidArgument
	}
	space, err := d.Life.Space(pid)
	if err != nil {
		return err
	}
	err = space.Msync(m)
	d.record("mem_msync", pid, "", err)
	return err
}

func (d *Dispatcher) MemStats(pid ids.Pid) (memory.Stats, error) {
	space, err := d.Life.Space(pid)
	if err != nil {
		return memory.Stats{}, err
	}
	return space.Stats(), nil
}

func (d *Dispatcher) SetMemLimit(pid ids.Pid, limit uint64) error {
	space, err := d.Life.Space(pid)
	if err != nil {
		return err
	}
	space.SetLimit(limit)
	return nil
}

// --- timers ---

// TimerSet schedules a one-shot timer firing after delay, identified by
// task (the scheduler task id that should be woken on Tick).
func (d *Dispatcher) TimerSet(pid ids.Pid, delay time.Duration, task ids.TaskId) (ids.TimerId, error) {
	if _, err := d.caller(pid); err != nil {
		return 0, err
	}
	id := d.Timers.Set(time.Now(), delay, task)
	d.record("timer_set", pid, "", nil)
	return id, nil
}

// TimerInterval schedules a repeating timer with the given period.
func (d *Dispatcher) TimerInterval(pid ids.Pid, period time.Duration, task ids.TaskId) (ids.TimerId, error) {
	if _, err := d.caller(pid); err != nil {
		return 0, err
	}
	id := d.Timers.Interval(time.Now(), period, task)
	d.record("timer_interval", pid, "", nil)
	return id, nil
}

// TimerCancel cancels a pending timer; it is dropped the next time it
// would otherwise fire.
func (d *Dispatcher) TimerCancel(pid ids.Pid, id ids.TimerId) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	d.Timers.Cancel(id)
	d.record("timer_cancel", pid, "", nil)
	return nil
}

// --- tracing ---

func (d *Dispatcher) TraceEnable(pid ids.Pid) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	d.Trace.Enable()
	return nil
}

func (d *Dispatcher) TraceDisable(pid ids.Pid) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	d.Trace.Disable()
	return nil
}

// TraceEvent records a caller-supplied marker event into the ring, so
// user code can interleave its own annotations with the syscall stream.
func (d *Dispatcher) TraceEvent(pid ids.Pid, name, args string) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	d.Trace.Record(name, pid, args, "", 0)
	return nil
}

func (d *Dispatcher) TraceSummary(pid ids.Pid) (trace.Summary, error) {
	if _, err := d.caller(pid); err != nil {
		return trace.Summary{}, err
	}
	return d.Trace.Summary(), nil
}

func (d *Dispatcher) TraceReset(pid ids.Pid) error {
	if _, err := d.caller(pid); err != nil {
		return err
	}
	d.Trace.Reset()
	return nil
}
