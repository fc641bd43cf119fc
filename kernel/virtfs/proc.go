// Package virtfs synthesizes /proc, /dev, and /sys content at read time
// from live kernel state, instead of storing it in the VFS tree.
package virtfs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/process"
)

// sensitiveProcFiles lists the /proc/<pid>/ entries restricted to the
// process's own owner or a process holding sys-admin.
var sensitiveProcFiles = map[string]bool{
	"environ": true,
	"cmdline": true,
	"maps":    true,
	"fd":      true,
	"cwd":     true,
	"exe":     true,
}

// Proc synthesizes /proc/<pid>/{status,cmdline,environ,maps,fd,cwd,exe}
// from the live process table.
type Proc struct {
	Table *process.Table
}

// NewProc returns a procfs view over table.
func NewProc(table *process.Table) *Proc { return &Proc{Table: table} }

// Read returns the synthesized content of /proc/<pid>/<file>, gated by
// the sensitive-file access rule.
func (p *Proc) Read(path string, requester *process.Process) ([]byte, error) {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	if len(parts) != 2 {
		return nil, kerrors.ErrNotFound
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, kerrors.ErrNotFound
	}
	target, err := p.Table.Get(ids.Pid(pid))
	if err != nil {
		return nil, err
	}

	file := parts[1]
	if sensitiveProcFiles[file] && !authorized(requester, target) {
		return nil, kerrors.ErrPermissionDenied
	}

	switch file {
	case "status":
		return []byte(statusOf(target)), nil
	case "cmdline":
		return []byte(strings.Join(commandLine(target), "\x00") + "\x00"), nil
	case "environ":
		var sb strings.Builder
		for k, v := range target.Environ {
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(v)
			sb.WriteByte(0)
		}
		return []byte(sb.String()), nil
	case "maps":
		return []byte(mapsOf(target)), nil
	case "cwd":
		return []byte(target.Cwd), nil
	case "exe":
		return []byte(""), nil
	default:
		if strings.HasPrefix(file, "fd") {
			return []byte(fdListOf(target)), nil
		}
		return nil, kerrors.ErrNotFound
	}
}

func authorized(requester, target *process.Process) bool {
	if requester == nil {
		return true
	}
	if requester.Pid == target.Pid {
		return true
	}
	if requester.Euid == 0 || requester.HasCap(process.CapSysAdmin) {
		return true
	}
	return requester.Euid == target.Euid
}

func statusOf(p *process.Process) string {
	return fmt.Sprintf("Pid:\t%d\nPPid:\t%d\nState:\t%s\nUid:\t%d\nGid:\t%d\n",
		p.Pid, p.Ppid, p.State(), p.Euid, p.Egid)
}

func commandLine(p *process.Process) []string {
	if v, ok := p.Environ["_cmdline"]; ok {
		return strings.Split(v, " ")
	}
	return []string{}
}

func mapsOf(p *process.Process) string {
	return fmt.Sprintf("# memory map for pid %d unavailable without a bound memory.Space\n", p.Pid)
}

func fdListOf(p *process.Process) string {
	fds := p.Fds().All()
	list := make([]int, 0, len(fds))
	for fd := range fds {
		list = append(list, int(fd))
	}
	sort.Ints(list)
	var sb strings.Builder
	for _, fd := range list {
		fmt.Fprintf(&sb, "%d -> handle %d\n", fd, fds[ids.Fd(fd)])
	}
	return sb.String()
}
