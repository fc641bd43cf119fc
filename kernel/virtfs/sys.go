package virtfs

import (
	"fmt"
	"sort"
	"strings"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/memory"
	"github.com/axeberg/axebergos/kernel/process"
)

// Sys synthesizes /sys: read-only kernel identification and live
// resource counters sourced from the memory accountant and the process
// table. Everything under it is world-readable; there are no sensitive
// entries the way procfs has.
type Sys struct {
	Version    string
	Scheduling string
	Mem        *memory.System
	Procs      *process.Table
}

// NewSys returns a /sys view over the given memory accountant and
// process table.
func NewSys(version, scheduling string, mem *memory.System, procs *process.Table) *Sys {
	return &Sys{Version: version, Scheduling: scheduling, Mem: mem, Procs: procs}
}

// Read returns the synthesized content of /sys/<group>/<file>.
func (s *Sys) Read(path string) ([]byte, error) {
	switch strings.TrimPrefix(path, "/") {
	case "kernel/version":
		return []byte(s.Version + "\n"), nil
	case "kernel/scheduling":
		return []byte(s.Scheduling + "\n"), nil
	case "kernel/pids":
		return []byte(s.pidList()), nil
	case "memory/used":
		return []byte(fmt.Sprintf("%d\n", s.Mem.Used())), nil
	default:
		return nil, kerrors.ErrNotFound
	}
}

// List enumerates the entries under one of the /sys groups.
func (s *Sys) List(path string) ([]string, error) {
	switch strings.Trim(path, "/") {
	case "":
		return []string{"kernel", "memory"}, nil
	case "kernel":
		return []string{"pids", "scheduling", "version"}, nil
	case "memory":
		return []string{"used"}, nil
	default:
		return nil, kerrors.ErrNotFound
	}
}

func (s *Sys) pidList() string {
	pids := make([]int, 0)
	for _, p := range s.Procs.All() {
		pids = append(pids, int(p.Pid))
	}
	sort.Ints(pids)
	var sb strings.Builder
	for _, pid := range pids {
		fmt.Fprintf(&sb, "%d\n", pid)
	}
	return sb.String()
}
