package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/axeberg/axebergos/kernel/vfs"
)

func TestSaveAndRestoreRoundTrip(t *testing.T) {
	tree := vfs.NewTree()
	if err := tree.Mkdir("/etc", nil, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	n, err := tree.Create("/etc/hostname", nil, 0o644)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := []byte("kernel-lab\n")
	if _, err := n.WriteAt(0, payload); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := tree.Symlink("/etc/hostname.link", "/etc/hostname", nil); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	dir := t.TempDir()
	snapPath := filepath.Join(dir, "boot.snap")
	gen, err := Save(tree, "/", snapPath)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if gen.String() == "" {
		t.Fatalf("expected non-empty generation id")
	}

	m, err := Load(snapPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Generation != gen {
		t.Fatalf("Generation mismatch: got %s, want %s", m.Generation, gen)
	}

	restored := vfs.NewTree()
	if err := Restore(restored, m, snapPath+".blobs"); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	rn, _, _, err := restored.Resolve("/etc/hostname", true)
	if err != nil {
		t.Fatalf("Resolve restored file: %v", err)
	}
	got := make([]byte, rn.Size())
	if _, err := rn.ReadAt(0, got); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("restored content = %q, want %q", got, payload)
	}

	ln, _, _, err := restored.Resolve("/etc/hostname.link", false)
	if err != nil {
		t.Fatalf("Resolve restored symlink: %v", err)
	}
	if ln.Kind != vfs.KindSymlink || ln.Target() != "/etc/hostname" {
		t.Fatalf("restored symlink target = %q, want /etc/hostname", ln.Target())
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.snap")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to reject a file without the axebergos magic header")
	}
}
