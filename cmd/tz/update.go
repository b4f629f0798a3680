package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/terrazul/tpm/pkg/display"
	"github.com/terrazul/tpm/pkg/orchestrator"
)

var (
	updateDryRun  bool
	updateOffline bool
	updateFrozen  bool
	updateForce   bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update dependencies to their latest satisfying versions",
	Long: `Re-resolves the project's dependency ranges biased toward the
latest non-yanked version of each, ignoring the existing lockfile's
pins. --dry-run prints the resulting version plan without touching
disk; otherwise the new tree is staged and swapped into place
atomically only once every package has installed successfully.`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "Print the update plan without writing anything")
	updateCmd.Flags().BoolVar(&updateOffline, "offline", false, "Resolve from the existing lockfile only; never contact the registry (not applied with --dry-run)")
	updateCmd.Flags().BoolVar(&updateFrozen, "frozen-lockfile", false, "Fail if the resolution would differ from the existing lockfile")
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "Re-fetch and re-extract even if the store already has the package")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(dirFlag)
	if err != nil {
		return err
	}

	o := newOrchestrator(dirFlag, storeDirFlag)
	mode := orchestrator.Mode{Offline: updateOffline, FrozenLockfile: updateFrozen, Force: updateForce}

	summary, plan, err := o.Update(cmdContext(cmd), m, mode, updateDryRun)
	if err != nil {
		return err
	}

	if updateDryRun {
		display.RenderPlan(os.Stdout, plan.Diff)
		return nil
	}

	display.RenderSummary(os.Stdout, summary.Packages, summary.Warnings)
	return nil
}
