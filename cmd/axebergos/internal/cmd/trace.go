package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/axeberg/axebergos/kernel"
	"github.com/axeberg/axebergos/kernel/bootcfg"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect the boot-time trace ring",
}

var traceDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Boot a kernel, replay a script against it, and dump the resulting trace",
	Long: `dump boots a kernel with tracing forced on, optionally replays a
syscall script against it via --script, and prints the recorded events and
per-syscall counters as JSON.`,
	Args: cobra.NoArgs,
	RunE: runTraceDump,
}

var (
	traceBootConfig string
	traceScriptPath string
	traceSummaryOnly bool
)

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.AddCommand(traceDumpCmd)

	traceDumpCmd.Flags().StringVar(&traceBootConfig, "boot-config", "", "boot configuration file (default config if unset)")
	traceDumpCmd.Flags().StringVar(&traceScriptPath, "script", "", "syscall script to replay before dumping")
	traceDumpCmd.Flags().BoolVar(&traceSummaryOnly, "summary-only", false, "print only the per-syscall counters, not the full event list")
}

func runTraceDump(cmd *cobra.Command, args []string) error {
	cfg := bootcfg.Default()
	if traceBootConfig != "" {
		loaded, err := bootcfg.Load(traceBootConfig)
		if err != nil {
			return fmt.Errorf("loading boot config: %w", err)
		}
		cfg = loaded
	}
	cfg.TraceEnabledAtBoot = true

	k, err := kernel.Boot(cfg)
	if err != nil {
		return fmt.Errorf("booting kernel: %w", err)
	}

	if traceScriptPath != "" {
		if err := replayScriptInto(k, traceScriptPath); err != nil {
			return fmt.Errorf("replaying script: %w", err)
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if traceSummaryOnly {
		return encoder.Encode(k.Trace.Summary())
	}
	return encoder.Encode(struct {
		Summary any `json:"summary"`
		Events  any `json:"events"`
	}{
		Summary: k.Trace.Summary(),
		Events:  k.Trace.Events(),
	})
}
