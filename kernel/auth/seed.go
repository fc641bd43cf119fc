package auth

import (
	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/process"
	"github.com/axeberg/axebergos/kernel/vfs"
)

// Seed writes a minimal account database into tree if /etc/passwd does
// not already exist: root (locked until a password is set) and nobody.
// Shadow is owner-readable only; passwd and group are world-readable.
// creds is the process the files are created as, normally init.
func Seed(tree *vfs.Tree, creds *process.Process) error {
	if _, _, _, err := tree.Resolve("/etc/passwd", true); err == nil {
		return nil
	}
	if err := tree.Mkdir("/etc", creds, 0o755); err != nil && !kerrors.IsKind(err, kerrors.Exists) {
		return err
	}

	users := []PasswdEntry{
		{Name: "root", Uid: 0, Gid: 0, Gecos: "root", Home: "/root", Shell: "/bin/sh"},
		{Name: "nobody", Uid: 65534, Gid: 65534, Gecos: "nobody", Home: "/", Shell: "/bin/false"},
	}
	shadows := []ShadowEntry{
		{Name: "root", Hash: "!"},
		{Name: "nobody", Hash: "*"},
	}
	groups := []GroupEntry{
		{Name: "root", Gid: 0},
		{Name: "nobody", Gid: 65534},
	}

	files := []struct {
		path string
		mode uint32
		data []byte
	}{
		{"/etc/passwd", 0o644, FormatPasswd(users)},
		{"/etc/shadow", 0o600, FormatShadow(shadows)},
		{"/etc/group", 0o644, FormatGroup(groups)},
	}
	for _, f := range files {
		n, err := tree.Create(f.path, creds, f.mode)
		if err != nil {
			return err
		}
		if _, err := n.WriteAt(0, f.data); err != nil {
			return err
		}
	}
	return nil
}
