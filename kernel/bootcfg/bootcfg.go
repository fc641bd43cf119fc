// Package bootcfg defines the boot configuration for a kernel instance:
// scheduling mode, resident memory quota, the system-wide open-file
// ceiling, and an optional initial VFS snapshot to restore from.
package bootcfg

import (
	"encoding/json"
	"os"

	"github.com/axeberg/axebergos/kernel/process"
)

// ConfigVersion is the boot configuration schema version this build targets.
const ConfigVersion = "1.0.0"

// SchedMode selects which executor model a booted kernel uses.
type SchedMode string

const (
	// SchedCooperative runs the single-threaded cooperative executor
	// (kernel/exec1).
	SchedCooperative SchedMode = "cooperative"
	// SchedWorkStealing runs the work-stealing executor (kernel/exec2).
	SchedWorkStealing SchedMode = "work-stealing"
)

// Config is the top-level boot configuration, loadable from a JSON file
// or built programmatically.
type Config struct {
	// Version is the boot config schema version.
	Version string `json:"version"`

	// Scheduling selects the executor model.
	Scheduling SchedMode `json:"scheduling"`

	// Workers is the worker goroutine count when Scheduling is
	// SchedWorkStealing; ignored otherwise.
	Workers int `json:"workers,omitempty"`

	// MemoryQuotaBytes caps total resident pages across every process
	// (the limit passed to kernel/memory.NewSystem).
	MemoryQuotaBytes int64 `json:"memoryQuotaBytes"`

	// SystemNofileCeiling sets, at boot, the init process's fd-table cap
	// (the most fds it may hold open), which forked and exec'd processes
	// inherit. SetRlimit does not consult it, so a process holding
	// CAP_SYS_RESOURCE can raise its RLIMIT_NOFILE hard limit above it.
	SystemNofileCeiling uint64 `json:"systemNofileCeiling"`

	// InitialSnapshotPath, if set, is restored into the VFS before the
	// init process is created.
	InitialSnapshotPath string `json:"initialSnapshotPath,omitempty"`

	// TraceRingCapacity sizes the boot-time trace ring buffer.
	TraceRingCapacity int `json:"traceRingCapacity,omitempty"`

	// TraceEnabledAtBoot starts the trace ring in the enabled state.
	TraceEnabledAtBoot bool `json:"traceEnabledAtBoot,omitempty"`

	// InitRlimits seeds the init process's resource limits; any resource
	// not listed keeps the kernel's built-in default.
	InitRlimits []RlimitEntry `json:"initRlimits,omitempty"`
}

// RlimitEntry names one resource's soft/hard pair in JSON form.
type RlimitEntry struct {
	ResourceName string `json:"resource"`
	Soft         uint64 `json:"soft"`
	Hard         uint64 `json:"hard"`
}

var resourceNames = map[string]process.Resource{
	"NOFILE": process.ResNoFile,
	"NPROC":  process.ResNProc,
	"FSIZE":  process.ResFSize,
	"STACK":  process.ResStack,
	"CPU":    process.ResCPU,
	"CORE":   process.ResCore,
	"DATA":   process.ResData,
	"AS":     process.ResAS,
}

// Resource resolves the entry's resource name to a process.Resource,
// returning false if the name is unrecognized.
func (e RlimitEntry) Resource() (process.Resource, bool) {
	r, ok := resourceNames[e.ResourceName]
	return r, ok
}

// Load reads and parses a boot configuration file (boot_load).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Version == "" {
		cfg.Version = ConfigVersion
	}
	return &cfg, nil
}

// Save writes cfg to path as indented JSON (boot_save).
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns a minimal boot configuration suitable for most runs.
func Default() *Config {
	return &Config{
		Version:             ConfigVersion,
		Scheduling:          SchedCooperative,
		Workers:             4,
		MemoryQuotaBytes:    256 << 20,
		SystemNofileCeiling: 4096,
		TraceRingCapacity:   4096,
		InitRlimits: []RlimitEntry{
			{ResourceName: "NOFILE", Soft: 256, Hard: 4096},
			{ResourceName: "NPROC", Soft: 64, Hard: 1024},
		},
	}
}
