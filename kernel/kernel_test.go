package kernel

import (
	"testing"

	"github.com/axeberg/axebergos/kernel/auth"
	"github.com/axeberg/axebergos/kernel/bootcfg"
	"github.com/axeberg/axebergos/kernel/process"
)

func TestBootWithDefaultConfigSelectsCooperativeExecutor(t *testing.T) {
	k, err := Boot(bootcfg.Default())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if k.Exec1 == nil || k.Exec2 != nil {
		t.Fatalf("expected cooperative executor only, got exec1=%v exec2=%v", k.Exec1, k.Exec2)
	}
	if k.Init.Pid != 1 {
		t.Fatalf("Init.Pid = %d, want 1", k.Init.Pid)
	}
	if _, err := k.Sys.Getpid(k.Init.Pid); err != nil {
		t.Fatalf("Sys.Getpid: %v", err)
	}
}

func TestBootWithWorkStealingConfigSelectsExec2(t *testing.T) {
	cfg := bootcfg.Default()
	cfg.Scheduling = bootcfg.SchedWorkStealing
	cfg.Workers = 2
	k, err := Boot(cfg)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if k.Exec2 == nil || k.Exec1 != nil {
		t.Fatalf("expected work-stealing executor only, got exec1=%v exec2=%v", k.Exec1, k.Exec2)
	}
}

func TestBootSeedsAccountDatabase(t *testing.T) {
	k, err := Boot(bootcfg.Default())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	db, err := auth.Load(k.Tree, nil)
	if err != nil {
		t.Fatalf("auth.Load: %v", err)
	}
	u, err := db.User("root")
	if err != nil || u.Uid != 0 {
		t.Fatalf("User(root) = %+v, %v", u, err)
	}
	// Shadow is owner-only.
	n, _, _, err := k.Tree.Resolve("/etc/shadow", true)
	if err != nil {
		t.Fatalf("Resolve(/etc/shadow): %v", err)
	}
	if n.Mode&0o077 != 0 {
		t.Fatalf("/etc/shadow mode = %#o, want no group/other bits", n.Mode)
	}
}

func TestBootSeedsInitRlimitsFromConfig(t *testing.T) {
	k, err := Boot(bootcfg.Default())
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	lim, err := k.Sys.Getrlimit(k.Init.Pid, process.ResNoFile)
	if err != nil {
		t.Fatalf("Getrlimit: %v", err)
	}
	if lim.Soft != 256 || lim.Hard != 4096 {
		t.Fatalf("Getrlimit(NOFILE) = %+v, want soft=256 hard=4096", lim)
	}
}
