package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/axeberg/axebergos/kernel"
	"github.com/axeberg/axebergos/kernel/bootcfg"
	"github.com/axeberg/axebergos/logging"
)

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Boot a kernel instance and idle until interrupted",
	Long: `boot constructs a boot configuration (from --config, or the built-in
default), boots every subsystem table and the init process, and blocks until
SIGINT or SIGTERM. If --snapshot-out is set, the VFS tree is persisted to
that path before exiting. With --console, anything init or its descendants
write to /dev/console is streamed to the host terminal as it arrives.`,
	Args: cobra.NoArgs,
	RunE: runBoot,
}

var (
	bootConfigPath  string
	bootSnapshotOut string
	bootConsole     bool
)

func init() {
	rootCmd.AddCommand(bootCmd)
	bootCmd.Flags().StringVar(&bootConfigPath, "config", "", "boot configuration file (default config if unset)")
	bootCmd.Flags().StringVar(&bootSnapshotOut, "snapshot-out", "", "save the VFS tree to this path on shutdown")
	bootCmd.Flags().BoolVar(&bootConsole, "console", false, "stream /dev/console writes to the host terminal")
}

func runBoot(cmd *cobra.Command, args []string) error {
	cfg := bootcfg.Default()
	if bootConfigPath != "" {
		loaded, err := bootcfg.Load(bootConfigPath)
		if err != nil {
			return fmt.Errorf("loading boot config: %w", err)
		}
		cfg = loaded
	}

	k, err := kernel.Boot(cfg)
	if err != nil {
		return fmt.Errorf("booting kernel: %w", err)
	}

	logging.Info("boot: kernel running, waiting for interrupt", "initPid", k.Init.Pid, "scheduling", string(cfg.Scheduling))

	ctx := GetContext()

	if bootConsole {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				logging.Info("boot: streaming /dev/console", "width", w, "height", h)
			}
		}
		go streamConsole(ctx, k)
	}

	<-ctx.Done()

	logging.Info("boot: shutting down")

	if bootSnapshotOut != "" {
		if err := k.Snapshot(bootSnapshotOut); err != nil {
			return fmt.Errorf("saving shutdown snapshot: %w", err)
		}
		logging.Info("boot: saved shutdown snapshot", "path", bootSnapshotOut)
	}

	return nil
}

// streamConsole polls /dev/console for bytes written by processes inside
// the kernel and copies them to the host's stdout until ctx is canceled.
func streamConsole(ctx context.Context, k *kernel.Kernel) {
	buf := make([]byte, 4096)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := k.Dev.Read("console", buf)
			if err != nil || n == 0 {
				continue
			}
			os.Stdout.Write(buf[:n])
		}
	}
}
