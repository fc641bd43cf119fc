// Package kernel wires every subsystem package into one bootable
// instance: the process, object, signal, and memory tables; the VFS
// tree and the virtual filesystems layered over it; the IPC tables; the
// timer queue and trace ring; and whichever executor the boot
// configuration selects.
package kernel

import (
	"fmt"

	"github.com/axeberg/axebergos/kernel/auth"
	"github.com/axeberg/axebergos/kernel/bootcfg"
	"github.com/axeberg/axebergos/kernel/exec1"
	"github.com/axeberg/axebergos/kernel/exec2"
	"github.com/axeberg/axebergos/kernel/ipc/filelock"
	"github.com/axeberg/axebergos/kernel/ipc/mqueue"
	"github.com/axeberg/axebergos/kernel/ipc/pipe"
	"github.com/axeberg/axebergos/kernel/ipc/sem"
	"github.com/axeberg/axebergos/kernel/ipc/shm"
	"github.com/axeberg/axebergos/kernel/ipc/uds"
	"github.com/axeberg/axebergos/kernel/lifecycle"
	"github.com/axeberg/axebergos/kernel/memory"
	"github.com/axeberg/axebergos/kernel/object"
	"github.com/axeberg/axebergos/kernel/overlay"
	"github.com/axeberg/axebergos/kernel/process"
	"github.com/axeberg/axebergos/kernel/signal"
	"github.com/axeberg/axebergos/kernel/snapshot"
	"github.com/axeberg/axebergos/kernel/sys"
	"github.com/axeberg/axebergos/kernel/timer"
	"github.com/axeberg/axebergos/kernel/trace"
	"github.com/axeberg/axebergos/kernel/vfs"
	"github.com/axeberg/axebergos/kernel/virtfs"
	"github.com/axeberg/axebergos/logging"
)

// Version is what /sys/kernel/version reports.
const Version = "axebergos 0.1.0"

// Kernel holds every subsystem table, the two executor models (only one
// of which actually runs, selected by the boot configuration), and the
// syscall dispatcher every external caller goes through.
type Kernel struct {
	cfg *bootcfg.Config

	Procs *process.Table
	Objs  *object.Table
	Sigs  *signal.Table
	MemSys *memory.System
	Tree  *vfs.Tree
	Layers *overlay.Layered
	Dev   *virtfs.Dev
	Proc  *virtfs.Proc
	SysFs *virtfs.Sys
	Timers *timer.Queue
	Trace *trace.Ring
	Life  *lifecycle.Manager

	Fifos *pipe.FifoTable
	Msq   *mqueue.Table
	Sems  *sem.Table
	Shms  *shm.Table
	Locks *filelock.Table
	UDS   *uds.Table

	Exec1 *exec1.Executor
	Exec2 *exec2.Executor

	Sys *sys.Dispatcher

	Init *process.Process
}

// Boot constructs every subsystem table from cfg, restores an initial
// VFS snapshot if one is configured, boots the init process, and selects
// the executor model named by cfg.Scheduling.
func Boot(cfg *bootcfg.Config) (*Kernel, error) {
	if cfg == nil {
		cfg = bootcfg.Default()
	}

	k := &Kernel{
		cfg:    cfg,
		Procs:  process.NewTable(),
		Objs:   object.NewTable(),
		Sigs:   signal.NewTable(),
		MemSys: memory.NewSystem(uint64(cfg.MemoryQuotaBytes)),
		Tree:   vfs.NewTree(),
		Timers: timer.NewQueue(),
		Trace:  trace.NewRing(cfg.TraceRingCapacity),
		Fifos:  pipe.NewFifoTable(),
		Msq:    mqueue.NewTable(),
		Sems:   sem.NewTable(cfg.Scheduling == bootcfg.SchedWorkStealing),
		Shms:   shm.NewTable(),
		Locks:  filelock.NewTable(),
		UDS:    uds.NewTable(),
	}
	k.Dev = virtfs.NewDev()

	if cfg.TraceEnabledAtBoot {
		k.Trace.Enable()
	}

	if cfg.InitialSnapshotPath != "" {
		manifest, err := snapshot.Load(cfg.InitialSnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("kernel: loading initial snapshot: %w", err)
		}
		if err := snapshot.Restore(k.Tree, manifest, cfg.InitialSnapshotPath+".blobs"); err != nil {
			return nil, fmt.Errorf("kernel: restoring initial snapshot: %w", err)
		}
	}

	k.Layers = overlay.New(k.Tree, vfs.NewTree())
	k.Proc = virtfs.NewProc(k.Procs)
	k.SysFs = virtfs.NewSys(Version, string(cfg.Scheduling), k.MemSys, k.Procs)

	memLimit := uint64(cfg.MemoryQuotaBytes)
	life, init := lifecycle.NewManager(k.Procs, k.Objs, k.Sigs, k.MemSys, memLimit)
	k.Life = life
	k.Init = init

	if err := auth.Seed(k.Tree, init); err != nil {
		return nil, fmt.Errorf("kernel: seeding account database: %w", err)
	}

	for _, entry := range cfg.InitRlimits {
		r, ok := entry.Resource()
		if !ok {
			logging.Warn("kernel: ignoring unknown rlimit resource in boot config", "resource", entry.ResourceName)
			continue
		}
		if err := init.SetRlimit(r, process.Rlimit{Soft: entry.Soft, Hard: entry.Hard}); err != nil {
			return nil, fmt.Errorf("kernel: seeding init rlimit %s: %w", entry.ResourceName, err)
		}
	}
	if cfg.SystemNofileCeiling > 0 {
		init.Fds().SetCap(int(cfg.SystemNofileCeiling))
	}

	switch cfg.Scheduling {
	case bootcfg.SchedWorkStealing:
		workers := cfg.Workers
		if workers <= 0 {
			workers = 4
		}
		k.Exec2 = exec2.NewExecutor(workers)
	default:
		k.Exec1 = exec1.NewExecutor()
	}

	k.Sys = &sys.Dispatcher{
		Procs:  k.Procs,
		Objs:   k.Objs,
		Sigs:   k.Sigs,
		Tree:   k.Tree,
		Life:   k.Life,
		Timers: k.Timers,
		Trace:  k.Trace,
		Msq:    k.Msq,
		Sems:   k.Sems,
		Shms:   k.Shms,
		Locks:  k.Locks,
		UDS:    k.UDS,
	}

	logging.Info("kernel: booted", "scheduling", string(cfg.Scheduling), "memoryQuotaBytes", cfg.MemoryQuotaBytes)
	return k, nil
}

// Snapshot persists the current VFS tree to path.
func (k *Kernel) Snapshot(path string) error {
	_, err := snapshot.Save(k.Tree, "/", path)
	return err
}
