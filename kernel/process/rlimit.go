package process

import kerrors "github.com/axeberg/axebergos/errors"

// Resource identifies one of the resource-limit classes a process is
// metered against.
type Resource int

const (
	ResNoFile Resource = iota
	ResNProc
	ResFSize
	ResStack
	ResCPU
	ResCore
	ResData
	ResAS

	numResources
)

// Unlimited marks a limit as having no ceiling.
const Unlimited uint64 = 1<<64 - 1

// Rlimit is a soft/hard resource limit pair. The soft limit is checked at
// the call site; the hard limit bounds how high the soft limit may be
// raised without the sys-resource capability.
type Rlimit struct {
	Soft uint64
	Hard uint64
}

// defaultRlimits mirrors conservative POSIX shell defaults.
func defaultRlimits() [numResources]Rlimit {
	return [numResources]Rlimit{
		ResNoFile: {Soft: 1024, Hard: 4096},
		ResNProc:  {Soft: 256, Hard: 1024},
		ResFSize:  {Soft: Unlimited, Hard: Unlimited},
		ResStack:  {Soft: 8 << 20, Hard: Unlimited},
		ResCPU:    {Soft: Unlimited, Hard: Unlimited},
		ResCore:   {Soft: 0, Hard: Unlimited},
		ResData:   {Soft: Unlimited, Hard: Unlimited},
		ResAS:     {Soft: Unlimited, Hard: Unlimited},
	}
}

// GetRlimit returns the current limit pair for r.
func (p *Process) GetRlimit(r Resource) (Rlimit, error) {
	if r < 0 || r >= numResources {
		return Rlimit{}, kerrors.ErrInvalidArgument
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rlimits[r], nil
}

// SetRlimit installs a new limit pair for r. Raising the hard limit
// requires CapSysResource; any process may lower either limit, and may
// raise the soft limit up to the current hard limit.
func (p *Process) SetRlimit(r Resource, lim Rlimit) error {
	if r < 0 || r >= numResources {
		return kerrors.ErrInvalidArgument
	}
	if lim.Soft > lim.Hard {
		return kerrors.ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.rlimits[r]
	if lim.Hard > cur.Hard && !p.caps.Has(CapSysResource) {
		return kerrors.ErrPermissionDenied
	}
	p.rlimits[r] = lim
	return nil
}
