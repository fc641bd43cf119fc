package process

import (
	"testing"

	"github.com/axeberg/axebergos/kernel/ids"
)

func TestNewProcessDefaults(t *testing.T) {
	p := New(2, ids.InitPid, 2, 2)
	if p.State() != Running {
		t.Errorf("new process state = %v, want Running", p.State())
	}
	if p.Umask != defaultUmask {
		t.Errorf("Umask = %#o, want %#o", p.Umask, defaultUmask)
	}
}

func TestRootHasFullCaps(t *testing.T) {
	init := NewRoot()
	if !init.Caps().Has(CapSysAdmin) {
		t.Error("init process should start with sys_admin capability")
	}
}

func TestTransitionTable(t *testing.T) {
	p := New(2, ids.InitPid, 2, 2)

	if err := p.Transition(Sleeping); err != nil {
		t.Fatalf("Running->Sleeping: %v", err)
	}
	if err := p.Transition(Running); err != nil {
		t.Fatalf("Sleeping->Running: %v", err)
	}
	if err := p.SetExitStatus(0); err != nil {
		t.Fatalf("Running->Zombie: %v", err)
	}
	if p.State() != Zombie {
		t.Errorf("state = %v, want Zombie", p.State())
	}
	if err := p.Transition(Running); err == nil {
		t.Error("Zombie->Running should be rejected")
	}
}

func TestInitNeverExits(t *testing.T) {
	init := NewRoot()
	if err := init.SetExitStatus(0); err == nil {
		t.Error("pid 1 should never be allowed to become a zombie")
	}
}

func TestCapabilityRaiseRequiresPermitted(t *testing.T) {
	p := New(2, ids.InitPid, 2, 2)
	caps := p.Caps()
	if caps.Raise(CapSysAdmin) {
		t.Error("Raise should fail when the capability is not permitted")
	}

	full := FullCapSet()
	full.Lower(CapSysAdmin)
	if !full.Raise(CapSysAdmin) {
		t.Error("Raise should succeed when the capability is permitted")
	}
}

func TestCapabilityDropIsPermanent(t *testing.T) {
	caps := FullCapSet()
	caps.Drop(CapSysAdmin)
	if caps.Raise(CapSysAdmin) {
		t.Error("Raise should fail after Drop removed the capability from Permitted")
	}
}

func TestFdTableAllocStartsAtThree(t *testing.T) {
	tbl := NewFdTable()
	fd, err := tbl.AllocFd(ids.Handle(1))
	if err != nil {
		t.Fatalf("AllocFd: %v", err)
	}
	if fd < 3 {
		t.Errorf("AllocFd = %d, want >= 3 (0,1,2 reserved)", fd)
	}
}

func TestFdTableCapEnforced(t *testing.T) {
	tbl := NewFdTable()
	tbl.SetCap(2)
	if _, err := tbl.AllocFd(ids.Handle(1)); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if _, err := tbl.AllocFd(ids.Handle(2)); err != nil {
		t.Fatalf("second alloc: %v", err)
	}
	if _, err := tbl.AllocFd(ids.Handle(3)); err == nil {
		t.Error("AllocFd should fail once the cap is reached")
	}
}

func TestFdTableCloseAndReuse(t *testing.T) {
	tbl := NewFdTable()
	fd, _ := tbl.AllocFd(ids.Handle(1))
	h, err := tbl.Close(fd)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h != ids.Handle(1) {
		t.Errorf("Close returned handle %v, want 1", h)
	}
	if _, err := tbl.Lookup(fd); err == nil {
		t.Error("Lookup after Close should fail")
	}
}

func TestFdTableCloneForExecDropsCloexec(t *testing.T) {
	tbl := NewFdTable()
	keep, _ := tbl.AllocFd(ids.Handle(1))
	drop, _ := tbl.AllocFd(ids.Handle(2))
	tbl.SetCloexec(drop, true)

	clone, dropped := tbl.CloneForExec()
	if len(dropped) != 1 || dropped[0] != ids.Handle(2) {
		t.Errorf("dropped = %v, want [2]", dropped)
	}
	if _, err := clone.Lookup(keep); err != nil {
		t.Error("non-cloexec fd should survive CloneForExec")
	}
	if _, err := clone.Lookup(drop); err == nil {
		t.Error("cloexec fd should not survive CloneForExec")
	}
}

func TestRlimitSoftCannotExceedHardWithoutCapability(t *testing.T) {
	p := New(2, ids.InitPid, 2, 2)
	err := p.SetRlimit(ResNoFile, Rlimit{Soft: 100000, Hard: 100000})
	if err == nil {
		t.Error("raising the hard limit without sys_resource should fail")
	}
}

func TestAbsolutePathResolvesRelative(t *testing.T) {
	p := New(2, ids.InitPid, 2, 2)
	p.Cwd = "/home/user"
	if got := p.AbsolutePath("docs/a.txt"); got != "/home/user/docs/a.txt" {
		t.Errorf("AbsolutePath = %q", got)
	}
	if got := p.AbsolutePath("../../etc/shadow"); got != "/etc/shadow" {
		t.Errorf("AbsolutePath = %q, want /etc/shadow", got)
	}
}
