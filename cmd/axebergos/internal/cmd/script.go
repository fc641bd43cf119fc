package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/axeberg/axebergos/kernel"
	"github.com/axeberg/axebergos/kernel/bootcfg"
	"github.com/axeberg/axebergos/kernel/ids"
	"github.com/axeberg/axebergos/kernel/lifecycle"
	"github.com/axeberg/axebergos/kernel/signal"
	"github.com/axeberg/axebergos/kernel/vfs"
	"github.com/axeberg/axebergos/logging"
)

var scriptCmd = &cobra.Command{
	Use:   "script <file>",
	Short: "Replay a JSON-lines syscall script against a booted kernel",
	Long: `script reads one JSON object per line, each naming a syscall-level
operation to drive through the kernel's dispatcher, standing in for an
interactive shell. Supported "op" values: mkdir, rmdir, unlink, open, pipe,
write, read, close, chdir, getcwd, symlink, link, rename, chmod, fork, exec,
waitpid, exit, kill, deliver, trace_enable, trace_disable, trace_summary,
snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

var scriptBootConfig string

func init() {
	rootCmd.AddCommand(scriptCmd)
	scriptCmd.Flags().StringVar(&scriptBootConfig, "boot-config", "", "boot configuration file (default config if unset)")
}

// scriptOp is one JSON-lines entry. Every field beyond op is optional and
// interpreted according to op's meaning; pid defaults to the init process
// and fd/pid labels introduced by fork are tracked by label for later
// reference from subsequent lines.
type scriptOp struct {
	Op     string `json:"op"`
	Pid    string `json:"pid,omitempty"`
	Label  string `json:"label,omitempty"`
	Path   string `json:"path,omitempty"`
	Target string `json:"target,omitempty"`
	Mode   uint32 `json:"mode,omitempty"`
	Flags  uint32 `json:"flags,omitempty"`
	Fd     int    `json:"fd,omitempty"`
	Data   string `json:"data,omitempty"`
	N      int    `json:"n,omitempty"`
	Status int32  `json:"status,omitempty"`
	Signal string `json:"signal,omitempty"`
}

func runScript(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()

	cfg := bootcfg.Default()
	if scriptBootConfig != "" {
		loaded, err := bootcfg.Load(scriptBootConfig)
		if err != nil {
			return fmt.Errorf("loading boot config: %w", err)
		}
		cfg = loaded
	}

	k, err := kernel.Boot(cfg)
	if err != nil {
		return fmt.Errorf("booting kernel: %w", err)
	}

	return replayScript(k, f)
}

// replayScriptInto opens path and replays it against an already-booted
// kernel, as trace dump does ahead of printing the trace ring.
func replayScriptInto(k *kernel.Kernel, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()
	return replayScript(k, f)
}

func replayScript(k *kernel.Kernel, f io.Reader) error {
	pids := map[string]ids.Pid{"init": k.Init.Pid}
	fds := map[string]ids.Fd{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		var op scriptOp
		if err := json.Unmarshal([]byte(line), &op); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := applyOp(k, pids, fds, op); err != nil {
			return fmt.Errorf("line %d (%s): %w", lineNo, op.Op, err)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading script: %w", err)
	}

	logging.Info("script: replay complete", "lines", lineNo)
	return nil
}

func resolvePid(pids map[string]ids.Pid, label string) ids.Pid {
	if label == "" {
		return pids["init"]
	}
	return pids[label]
}

func fdLabel(op scriptOp) string {
	if op.Label != "" {
		return op.Label
	}
	return "last"
}

func applyOp(k *kernel.Kernel, pids map[string]ids.Pid, fds map[string]ids.Fd, op scriptOp) error {
	pid := resolvePid(pids, op.Pid)
	s := k.Sys

	switch op.Op {
	case "mkdir":
		return s.Mkdir(pid, op.Path, op.Mode)
	case "rmdir":
		return s.RemoveDir(pid, op.Path)
	case "unlink":
		return s.RemoveFile(pid, op.Path)
	case "open":
		fd, err := s.Open(pid, op.Path, vfs.OpenFlags(op.Flags), op.Mode)
		if err != nil {
			return err
		}
		label := op.Label
		if label == "" {
			label = "last"
		}
		fds[label] = fd
		logging.Info("script: opened", "path", op.Path, "fd", fd, "label", label)
		return nil
	case "pipe":
		rFd, wFd, err := s.Pipe(pid)
		if err != nil {
			return err
		}
		label := fdLabel(op)
		fds[label+"_r"] = rFd
		fds[label+"_w"] = wFd
		logging.Info("script: pipe", "read_fd", rFd, "write_fd", wFd, "label", label)
		return nil
	case "write":
		fd, err := s.Open(pid, op.Path, vfs.OCreate|vfs.OWrOnly|vfs.OAppend, 0o644)
		if err != nil {
			return err
		}
		_, err = s.Write(pid, fd, []byte(op.Data))
		return err
	case "read":
		fd, ok := fds[fdLabel(op)]
		if !ok {
			return fmt.Errorf("no open fd labeled %q", fdLabel(op))
		}
		n := op.N
		if n <= 0 {
			n = 4096
		}
		buf := make([]byte, n)
		read, err := s.Read(pid, fd, buf)
		if err != nil {
			return err
		}
		logging.Info("script: read", "fd", fd, "bytes", read, "data", string(buf[:read]))
		return nil
	case "close":
		fd, ok := fds[fdLabel(op)]
		if !ok {
			return fmt.Errorf("no open fd labeled %q", fdLabel(op))
		}
		err := s.Close(pid, fd)
		delete(fds, fdLabel(op))
		return err
	case "chdir":
		return s.Chdir(pid, op.Path)
	case "getcwd":
		cwd, err := s.Getcwd(pid)
		if err != nil {
			return err
		}
		logging.Info("script: cwd", "pid", pid, "cwd", cwd)
		return nil
	case "symlink":
		return s.Symlink(pid, op.Path, op.Target)
	case "link":
		return s.Link(pid, op.Target, op.Path)
	case "rename":
		return s.Rename(pid, op.Path, op.Target)
	case "chmod":
		return s.Chmod(pid, op.Path, op.Mode)
	case "fork":
		child, err := s.Fork(pid)
		if err != nil {
			return err
		}
		if op.Label != "" {
			pids[op.Label] = child
		}
		logging.Info("script: forked", "parent", pid, "child", child, "label", op.Label)
		return nil
	case "exec":
		_, err := s.Exec(pid, op.Path, nil, nil)
		return err
	case "waitpid":
		target := resolvePid(pids, op.Target)
		res, err := s.WaitPid(pid, target, waitOptionsFromOp(op))
		if err != nil {
			return err
		}
		logging.Info("script: waited", "pid", pid, "child", res.Pid, "status", res.Status)
		return nil
	case "exit":
		return s.Exit(pid, op.Status)
	case "kill":
		target := resolvePid(pids, op.Target)
		sig, err := parseSignal(op.Signal)
		if err != nil {
			return err
		}
		return s.Kill(pid, target, sig)
	case "deliver":
		del, ok, err := s.Deliver(pid)
		if err != nil {
			return err
		}
		if ok {
			logging.Info("script: delivered", "pid", pid, "signal", del.Signal.String(), "action", int(del.Action))
		} else {
			logging.Info("script: nothing deliverable", "pid", pid)
		}
		return nil
	case "trace_enable":
		k.Trace.Enable()
		return nil
	case "trace_disable":
		k.Trace.Disable()
		return nil
	case "trace_summary":
		sum := k.Trace.Summary()
		logging.Info("script: trace summary", "total", sum.TotalEvents, "counters", sum.Counters)
		return nil
	case "snapshot":
		return k.Snapshot(op.Path)
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
}

func waitOptionsFromOp(op scriptOp) lifecycle.WaitOptions {
	return lifecycle.WaitOptions{NoHang: true}
}

func parseSignal(name string) (signal.Signal, error) {
	switch name {
	case "", "SIGTERM":
		return signal.SIGTERM, nil
	case "SIGKILL":
		return signal.SIGKILL, nil
	case "SIGSTOP":
		return signal.SIGSTOP, nil
	case "SIGCONT":
		return signal.SIGCONT, nil
	case "SIGCHLD":
		return signal.SIGCHLD, nil
	case "SIGINT":
		return signal.SIGINT, nil
	case "SIGHUP":
		return signal.SIGHUP, nil
	case "SIGPIPE":
		return signal.SIGPIPE, nil
	default:
		return 0, fmt.Errorf("unknown signal %q", name)
	}
}
