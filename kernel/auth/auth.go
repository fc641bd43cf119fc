// Package auth implements the persisted account database: /etc/passwd,
// /etc/shadow, and /etc/group in their POSIX line formats, with
// key-stretched password hashes kept out of the world-readable passwd
// file.
package auth

import (
	"fmt"
	"strconv"
	"strings"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/process"
	"github.com/axeberg/axebergos/kernel/vfs"
)

// PasswdEntry is one /etc/passwd line: name:x:uid:gid:gecos:home:shell.
// The password field is always "x"; real hashes live in shadow.
type PasswdEntry struct {
	Name  string
	Uid   ids.Uid
	Gid   ids.Gid
	Gecos string
	Home  string
	Shell string
}

// ShadowEntry is one /etc/shadow line. Only the name and hash fields are
// interpreted; the aging fields are carried through verbatim.
type ShadowEntry struct {
	Name string
	Hash string
	Rest []string
}

// GroupEntry is one /etc/group line: name:x:gid:member,member.
type GroupEntry struct {
	Name    string
	Gid     ids.Gid
	Members []string
}

// ParsePasswd parses /etc/passwd content. Blank lines and #-comments are
// skipped; a malformed line fails the whole parse.
func ParsePasswd(data []byte) ([]PasswdEntry, error) {
	var out []PasswdEntry
	for _, line := range lines(data) {
		f := strings.Split(line, ":")
		if len(f) != 7 {
			return nil, kerrors.ErrInvalidArgument
		}
		uid, err := strconv.Atoi(f[2])
		if err != nil {
			return nil, kerrors.ErrInvalidArgument
		}
		gid, err := strconv.Atoi(f[3])
		if err != nil {
			return nil, kerrors.ErrInvalidArgument
		}
		out = append(out, PasswdEntry{Name: f[0], Uid: ids.Uid(uid), Gid: ids.Gid(gid), Gecos: f[4], Home: f[5], Shell: f[6]})
	}
	return out, nil
}

// FormatPasswd renders entries back into /etc/passwd line format.
func FormatPasswd(entries []PasswdEntry) []byte {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s:x:%d:%d:%s:%s:%s\n", e.Name, e.Uid, e.Gid, e.Gecos, e.Home, e.Shell)
	}
	return []byte(sb.String())
}

// ParseShadow parses /etc/shadow content.
func ParseShadow(data []byte) ([]ShadowEntry, error) {
	var out []ShadowEntry
	for _, line := range lines(data) {
		f := strings.Split(line, ":")
		if len(f) < 2 {
			return nil, kerrors.ErrInvalidArgument
		}
		out = append(out, ShadowEntry{Name: f[0], Hash: f[1], Rest: f[2:]})
	}
	return out, nil
}

// FormatShadow renders entries back into /etc/shadow line format.
func FormatShadow(entries []ShadowEntry) []byte {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Name)
		sb.WriteByte(':')
		sb.WriteString(e.Hash)
		rest := e.Rest
		if len(rest) == 0 {
			rest = []string{"", "", "", "", "", "", ""}
		}
		for _, r := range rest {
			sb.WriteByte(':')
			sb.WriteString(r)
		}
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// ParseGroup parses /etc/group content.
func ParseGroup(data []byte) ([]GroupEntry, error) {
	var out []GroupEntry
	for _, line := range lines(data) {
		f := strings.Split(line, ":")
		if len(f) != 4 {
			return nil, kerrors.ErrInvalidArgument
		}
		gid, err := strconv.Atoi(f[2])
		if err != nil {
			return nil, kerrors.ErrInvalidArgument
		}
		var members []string
		if f[3] != "" {
			members = strings.Split(f[3], ",")
		}
		out = append(out, GroupEntry{Name: f[0], Gid: ids.Gid(gid), Members: members})
	}
	return out, nil
}

// FormatGroup renders entries back into /etc/group line format.
func FormatGroup(entries []GroupEntry) []byte {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s:x:%d:%s\n", e.Name, e.Gid, strings.Join(e.Members, ","))
	}
	return []byte(sb.String())
}

func lines(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// DB is the account database loaded from the VFS.
type DB struct {
	Users   []PasswdEntry
	Shadows []ShadowEntry
	Groups  []GroupEntry

	// AllowEmptyPasswords permits login for accounts whose shadow hash
	// field is empty. Off by default.
	AllowEmptyPasswords bool
}

// Load reads /etc/passwd, /etc/shadow, and /etc/group out of tree with
// the given credentials (nil reads as the kernel itself).
func Load(tree *vfs.Tree, creds *process.Process) (*DB, error) {
	db := &DB{}
	passwd, err := readAll(tree, "/etc/passwd", creds)
	if err != nil {
		return nil, err
	}
	if db.Users, err = ParsePasswd(passwd); err != nil {
		return nil, err
	}
	shadow, err := readAll(tree, "/etc/shadow", creds)
	if err != nil {
		return nil, err
	}
	if db.Shadows, err = ParseShadow(shadow); err != nil {
		return nil, err
	}
	group, err := readAll(tree, "/etc/group", creds)
	if err != nil {
		return nil, err
	}
	if db.Groups, err = ParseGroup(group); err != nil {
		return nil, err
	}
	return db, nil
}

func readAll(tree *vfs.Tree, path string, creds *process.Process) ([]byte, error) {
	n, _, _, err := tree.ResolveForCaller(path, creds, true)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n.Size())
	if len(buf) == 0 {
		return nil, nil
	}
	if _, err := n.ReadAt(0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// User returns the passwd entry for name.
func (db *DB) User(name string) (PasswdEntry, error) {
	for _, u := range db.Users {
		if u.Name == name {
			return u, nil
		}
	}
	return PasswdEntry{}, kerrors.ErrNotFound
}

// Authenticate checks password against name's shadow entry. An empty
// hash field means "no password" and succeeds only when the policy
// permits; "!" or "*" means the account is disabled and always fails.
func (db *DB) Authenticate(name, password string) error {
	var sh *ShadowEntry
	for i := range db.Shadows {
		if db.Shadows[i].Name == name {
			sh = &db.Shadows[i]
			break
		}
	}
	if sh == nil {
		return kerrors.ErrNotFound
	}
	switch sh.Hash {
	case "":
		if db.AllowEmptyPasswords {
			return nil
		}
		return kerrors.ErrPermissionDenied
	case "!", "*":
		return kerrors.ErrPermissionDenied
	}
	if !CheckPassword(password, sh.Hash) {
		return kerrors.ErrPermissionDenied
	}
	return nil
}
