package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axeberg/axebergos/kernel"
	"github.com/axeberg/axebergos/kernel/bootcfg"
	"github.com/axeberg/axebergos/kernel/snapshot"
	"github.com/axeberg/axebergos/kernel/vfs"
	"github.com/axeberg/axebergos/logging"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save or restore a VFS snapshot",
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save <out>",
	Short: "Boot a kernel and save its VFS tree to a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotSave,
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <path>",
	Short: "Load a snapshot manifest and report its contents",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotRestore,
}

var snapshotBootConfig string

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)

	snapshotSaveCmd.Flags().StringVar(&snapshotBootConfig, "boot-config", "", "boot configuration file whose initialSnapshotPath, if any, is restored before saving")
}

func runSnapshotSave(cmd *cobra.Command, args []string) error {
	cfg := bootcfg.Default()
	if snapshotBootConfig != "" {
		loaded, err := bootcfg.Load(snapshotBootConfig)
		if err != nil {
			return fmt.Errorf("loading boot config: %w", err)
		}
		cfg = loaded
	}

	k, err := kernel.Boot(cfg)
	if err != nil {
		return fmt.Errorf("booting kernel: %w", err)
	}

	if err := k.Snapshot(args[0]); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	logging.Info("snapshot: saved", "path", args[0])
	return nil
}

func runSnapshotRestore(cmd *cobra.Command, args []string) error {
	manifest, err := snapshot.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	tree := vfs.NewTree()
	if err := snapshot.Restore(tree, manifest, args[0]+".blobs"); err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}

	logging.Info("snapshot: restored", "generation", manifest.Generation.String(), "entries", len(manifest.Entries))
	return nil
}
