package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/axeberg/axebergos/kernel/bootcfg"
)

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Generate a default boot configuration",
	Long:  `Print a default boot configuration (boot.json) to stdout or a file.`,
	Args:  cobra.NoArgs,
	RunE:  runSpec,
}

var (
	specOut        string
	specWorkStealing bool
	specWorkers    int
)

func init() {
	rootCmd.AddCommand(specCmd)

	specCmd.Flags().StringVarP(&specOut, "out", "o", "", "write to this path instead of stdout")
	specCmd.Flags().BoolVar(&specWorkStealing, "work-stealing", false, "select the work-stealing executor instead of the cooperative one")
	specCmd.Flags().IntVar(&specWorkers, "workers", 0, "worker goroutine count for the work-stealing executor (0 keeps the default)")
}

func runSpec(cmd *cobra.Command, args []string) error {
	cfg := bootcfg.Default()

	if specWorkStealing {
		cfg.Scheduling = bootcfg.SchedWorkStealing
		if specWorkers > 0 {
			cfg.Workers = specWorkers
		}
	}

	if specOut != "" {
		return cfg.Save(specOut)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}
