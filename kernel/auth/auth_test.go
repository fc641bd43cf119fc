package auth

import (
	"strings"
	"testing"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/process"
	"github.com/axeberg/axebergos/kernel/vfs"
)

func TestPasswdRoundTrip(t *testing.T) {
	in := []byte("root:x:0:0:root:/root:/bin/sh\n# comment\n\nalice:x:1000:1000::/home/alice:/bin/sh\n")
	entries, err := ParsePasswd(in)
	if err != nil {
		t.Fatalf("ParsePasswd: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("parsed %d entries, want 2", len(entries))
	}
	if entries[1].Name != "alice" || entries[1].Uid != 1000 {
		t.Errorf("entry = %+v", entries[1])
	}
	out := FormatPasswd(entries)
	reparsed, err := ParsePasswd(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(reparsed) != 2 || reparsed[0] != entries[0] || reparsed[1] != entries[1] {
		t.Errorf("round trip mismatch: %+v vs %+v", reparsed, entries)
	}
}

func TestParsePasswdRejectsMalformedLine(t *testing.T) {
	if _, err := ParsePasswd([]byte("root:x:0:0\n")); !kerrors.IsKind(err, kerrors.InvalidArgument) {
		t.Errorf("err = %v, want InvalidArgument", err)
	}
}

func TestGroupMembers(t *testing.T) {
	entries, err := ParseGroup([]byte("wheel:x:10:alice,bob\nempty:x:11:\n"))
	if err != nil {
		t.Fatalf("ParseGroup: %v", err)
	}
	if len(entries[0].Members) != 2 || entries[0].Members[1] != "bob" {
		t.Errorf("members = %v", entries[0].Members)
	}
	if len(entries[1].Members) != 0 {
		t.Errorf("empty group has members %v", entries[1].Members)
	}
}

func TestHashPasswordVerifies(t *testing.T) {
	h, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(h, "$pbkdf2-sha256$") {
		t.Fatalf("hash format = %q", h)
	}
	if !CheckPassword("hunter2", h) {
		t.Error("correct password rejected")
	}
	if CheckPassword("hunter3", h) {
		t.Error("wrong password accepted")
	}
}

func TestHashesAreSalted(t *testing.T) {
	a, _ := HashPassword("same")
	b, _ := HashPassword("same")
	if a == b {
		t.Error("two hashes of the same password are identical; salt missing")
	}
}

func TestCheckPasswordRejectsGarbage(t *testing.T) {
	for _, stored := range []string{"", "!", "*", "$md5$x$y", "$pbkdf2-sha256$zero$AA$AA", "$pbkdf2-sha256$0$AA$AA"} {
		if CheckPassword("anything", stored) {
			t.Errorf("CheckPassword accepted stored hash %q", stored)
		}
	}
}

func TestSeedAndAuthenticate(t *testing.T) {
	tree := vfs.NewTree()
	init := process.NewRoot()
	if err := Seed(tree, init); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Seeding twice is a no-op.
	if err := Seed(tree, init); err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	db, err := Load(tree, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	u, err := db.User("root")
	if err != nil || u.Uid != 0 {
		t.Fatalf("User(root) = %+v, %v", u, err)
	}

	// root is seeded locked; nobody is disabled.
	if err := db.Authenticate("root", ""); !kerrors.IsKind(err, kerrors.PermissionDenied) {
		t.Errorf("locked root auth err = %v, want PermissionDenied", err)
	}
	if err := db.Authenticate("nobody", ""); !kerrors.IsKind(err, kerrors.PermissionDenied) {
		t.Errorf("disabled account auth err = %v, want PermissionDenied", err)
	}
	if err := db.Authenticate("ghost", ""); !kerrors.IsKind(err, kerrors.NotFound) {
		t.Errorf("unknown account auth err = %v, want NotFound", err)
	}
}

func TestAuthenticateWithSetPassword(t *testing.T) {
	h, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	db := &DB{
		Users:   []PasswdEntry{{Name: "alice", Uid: 1000, Gid: 1000}},
		Shadows: []ShadowEntry{{Name: "alice", Hash: h}, {Name: "open", Hash: ""}},
	}
	if err := db.Authenticate("alice", "correct horse"); err != nil {
		t.Errorf("valid password rejected: %v", err)
	}
	if err := db.Authenticate("alice", "battery staple"); !kerrors.IsKind(err, kerrors.PermissionDenied) {
		t.Errorf("invalid password err = %v, want PermissionDenied", err)
	}

	// Empty hash obeys the policy flag.
	if err := db.Authenticate("open", ""); !kerrors.IsKind(err, kerrors.PermissionDenied) {
		t.Errorf("empty-password login allowed with policy off: %v", err)
	}
	db.AllowEmptyPasswords = true
	if err := db.Authenticate("open", ""); err != nil {
		t.Errorf("empty-password login denied with policy on: %v", err)
	}
}
