package overlay

import (
	"testing"

	"github.com/axeberg/axebergos/kernel/process"
	"github.com/axeberg/axebergos/kernel/vfs"
)

func setup(t *testing.T) (*Layered, *process.Process) {
	t.Helper()
	lower := vfs.NewTree()
	upper := vfs.NewTree()
	creds := process.NewRoot()

	lower.Mkdir("/etc", creds, 0o755)
	n, err := lower.Create("/etc/passwd", creds, 0o644)
	if err != nil {
		t.Fatalf("seed lower: %v", err)
	}
	n.WriteAt(0, []byte("root:..."))

	return New(lower, upper), creds
}

func TestReadFallsThroughToLower(t *testing.T) {
	l, creds := setup(t)
	buf := make([]byte, 64)
	n, err := l.Read("/etc/passwd", creds, 0, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "root:..." {
		t.Errorf("Read = %q, want root:...", buf[:n])
	}
}

func TestWriteCopiesUpAndLeavesLowerUntouched(t *testing.T) {
	l, creds := setup(t)
	if _, err := l.Write("/etc/passwd", creds, 0, []byte("modified")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 64)
	n, _ := l.Read("/etc/passwd", creds, 0, buf)
	if string(buf[:n]) != "modified" {
		t.Errorf("layered read = %q, want modified", buf[:n])
	}

	lowerNode, _, _, err := l.Lower.Resolve("/etc/passwd", true)
	if err != nil {
		t.Fatalf("resolve lower: %v", err)
	}
	lbuf := make([]byte, 64)
	ln, _ := lowerNode.ReadAt(0, lbuf)
	if string(lbuf[:ln]) != "root:..." {
		t.Errorf("lower content changed: %q", lbuf[:ln])
	}

	if _, _, _, err := l.Upper.Resolve("/etc/passwd", true); err != nil {
		t.Error("upper should now contain the copied-up file")
	}
}

func TestRemovePlantsWhiteout(t *testing.T) {
	l, creds := setup(t)
	if err := l.Remove("/etc/passwd", creds); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	buf := make([]byte, 8)
	if _, err := l.Read("/etc/passwd", creds, 0, buf); err == nil {
		t.Error("reading a whited-out path should fail")
	}
}

func TestReadDirMergesLayersAndHidesWhiteouts(t *testing.T) {
	l, creds := setup(t)
	l.Upper.Mkdir("/etc", creds, 0o755)
	l.Upper.Create("/etc/hosts", creds, 0o644)

	names, err := l.ReadDir("/etc", creds)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["passwd"] || !found["hosts"] {
		t.Errorf("ReadDir = %v, want both passwd and hosts", names)
	}

	l.Remove("/etc/passwd", creds)
	names, _ = l.ReadDir("/etc", creds)
	for _, n := range names {
		if n == "passwd" {
			t.Error("whited-out entry should not appear in merged listing")
		}
	}
}

func TestOpaqueDirectoryHidesAllLowerEntries(t *testing.T) {
	l, creds := setup(t)
	l.Upper.Mkdir("/etc", creds, 0o755)
	if err := l.MakeOpaque("/etc", creds); err != nil {
		t.Fatalf("MakeOpaque: %v", err)
	}
	names, _ := l.ReadDir("/etc", creds)
	for _, n := range names {
		if n == "passwd" {
			t.Error("opaque directory should hide every lower entry")
		}
	}
}
