package vfs

import (
	"strings"
	"testing"

	"github.com/axeberg/axebergos/kernel/process"
)

func rootCreds() *process.Process {
	p := process.NewRoot()
	return p
}

func TestCreateAndReadWrite(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()

	n, err := tree.Create("/a.txt", creds, 0o644)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f := NewFileHandle(n, ORdWr)
	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Seek(0, SeekSet)
	buf := make([]byte, 5)
	if _, err := f.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("Read = %q, want hello", buf)
	}
}

func TestMkdirAndReadDir(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()
	if err := tree.Mkdir("/etc", creds, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := tree.Create("/etc/passwd", creds, 0o644); err != nil {
		t.Fatalf("Create: %v", err)
	}
	names, err := tree.ReadDir("/etc", creds)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(names) != 1 || names[0] != "passwd" {
		t.Errorf("ReadDir = %v, want [passwd]", names)
	}
}

func TestHardLinkSharesInodeAndNlink(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()
	tree.Create("/a.txt", creds, 0o644)

	if err := tree.Link("/a.txt", "/b.txt", creds); err != nil {
		t.Fatalf("Link: %v", err)
	}
	a, _, _, _ := tree.Resolve("/a.txt", true)
	b, _, _, _ := tree.Resolve("/b.txt", true)
	if a != b {
		t.Error("hard link should resolve to the same inode")
	}
	if a.Nlink != 2 {
		t.Errorf("Nlink = %d, want 2", a.Nlink)
	}

	if err := tree.Remove("/a.txt", creds); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if b.Nlink != 1 {
		t.Errorf("Nlink after unlinking one entry = %d, want 1", b.Nlink)
	}
}

func TestRemoveDirRequiresEmpty(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()
	tree.Mkdir("/d", creds, 0o755)
	tree.Create("/d/f", creds, 0o644)

	if err := tree.RemoveDir("/d", creds); err == nil {
		t.Error("RemoveDir on a non-empty directory should fail")
	}
	tree.Remove("/d/f", creds)
	if err := tree.RemoveDir("/d", creds); err != nil {
		t.Errorf("RemoveDir on now-empty directory: %v", err)
	}
}

func TestSymlinkLoopBounded(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()
	if err := tree.Symlink("/loop", "/loop", creds); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	if _, _, _, err := tree.Resolve("/loop", true); err == nil {
		t.Error("a self-referential symlink should hit the resolution depth cap (V1)")
	}
}

func TestPathTooLong(t *testing.T) {
	long := "/" + strings.Repeat("a", maxPathLen+1)
	if _, err := splitClean(long); err == nil {
		t.Error("a path over 4096 bytes should be rejected (V1)")
	}
}

func TestComponentTooLong(t *testing.T) {
	p := "/" + strings.Repeat("a", maxNameLen+1)
	if _, err := splitClean(p); err == nil {
		t.Error("a component over 255 bytes should be rejected (V1)")
	}
}

func TestStickyDirectoryDeleteRestriction(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()
	tree.Mkdir("/tmp", creds, 0o777|ModeSticky)
	tree.Create("/tmp/f", creds, 0o644)

	owner := process.New(2, 1, 2, 2)
	owner.Euid, owner.Egid = 1000, 1000

	other := process.New(3, 1, 3, 3)
	other.Euid, other.Egid = 2000, 2000

	if err := tree.Remove("/tmp/f", other); err == nil {
		t.Error("non-owner should not be able to delete in a sticky directory (V2)")
	}
}

func TestChmodUpdatesMode(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()
	tree.Create("/a.txt", creds, 0o644)
	if err := tree.Chmod("/a.txt", creds, 0o600); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	n, _, _, _ := tree.Resolve("/a.txt", true)
	if n.Mode != 0o600 {
		t.Errorf("Mode = %#o, want %#o", n.Mode, 0o600)
	}
}

func TestJailedSymlinkCannotEscapeViaAbsoluteTarget(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()

	tree.Mkdir("/sandbox", creds, 0o755)
	tree.Create("/secret", creds, 0o600)
	if err := tree.Symlink("/sandbox/escape", "/secret", creds); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	jailed := process.New(4, 1, 4, 4)
	jailed.Chroot("/sandbox")
	jailed.Cwd = "/"

	if _, _, _, err := tree.ResolveForProcess(jailed, "/escape", true); err == nil {
		t.Error("an absolute-target symlink should not let a jailed process resolve above its jail root (V3)")
	}
}

func TestJailedProcessResolvesOwnSandboxFilesNormally(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()

	tree.Mkdir("/sandbox", creds, 0o755)
	tree.Create("/sandbox/hello.txt", creds, 0o644)
	if err := tree.Symlink("/sandbox/link", "/hello.txt", creds); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	jailed := process.New(5, 1, 5, 5)
	jailed.Chroot("/sandbox")
	jailed.Cwd = "/"

	n, _, _, err := tree.ResolveForProcess(jailed, "/link", true)
	if err != nil {
		t.Fatalf("ResolveForProcess: %v", err)
	}
	if n.Kind != KindFile {
		t.Errorf("Kind = %v, want KindFile", n.Kind)
	}
}

func TestResolveThroughIntermediateDirSymlink(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()

	tree.Mkdir("/real", creds, 0o755)
	tree.Mkdir("/real/sub", creds, 0o755)
	tree.Create("/real/sub/file.txt", creds, 0o644)
	if err := tree.Symlink("/alias", "/real", creds); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	user := process.New(6, 1, 6, 6)
	user.Euid, user.Egid = 1000, 1000

	n, _, _, err := tree.ResolveForCaller("/alias/sub/file.txt", user, true)
	if err != nil {
		t.Fatalf("ResolveForCaller through a directory symlink: %v", err)
	}
	if n.Kind != KindFile {
		t.Errorf("Kind = %v, want KindFile", n.Kind)
	}
}

func TestTraversalRequiresExecuteBehindSymlink(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()

	tree.Mkdir("/locked", creds, 0o700) // no x for group/other
	tree.Create("/locked/file.txt", creds, 0o644)
	if err := tree.Symlink("/door", "/locked", creds); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	user := process.New(7, 1, 7, 7)
	user.Euid, user.Egid = 1000, 1000

	if _, _, _, err := tree.ResolveForCaller("/locked/file.txt", user, true); err == nil {
		t.Error("search of a 0700 directory should be denied to a non-owner")
	}
	if _, _, _, err := tree.ResolveForCaller("/door/file.txt", user, true); err == nil {
		t.Error("reaching the same directory through a symlink should be denied too")
	}
}

func TestUmaskAppliedOnCreate(t *testing.T) {
	tree := NewTree()
	creds := rootCreds()
	creds.Umask = 0o022
	n, err := tree.Create("/a.txt", creds, 0o666)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Mode != 0o644 {
		t.Errorf("Mode = %#o, want %#o (0666 &^ 0022)", n.Mode, 0o644)
	}
}
