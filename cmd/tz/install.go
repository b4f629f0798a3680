package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/terrazul/tpm/pkg/display"
	"github.com/terrazul/tpm/pkg/orchestrator"
)

var (
	installOffline bool
	installFrozen  bool
	installForce   bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Resolve and install the project's declared dependencies",
	Long: `Reads agents.toml, resolves its dependency ranges against the
registry (or, with --offline, entirely from the existing lockfile),
fetches and verifies each package's archive, links it into
agent_modules, and writes agents-lock.toml.`,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installOffline, "offline", false, "Resolve from the existing lockfile only; never contact the registry")
	installCmd.Flags().BoolVar(&installFrozen, "frozen-lockfile", false, "Fail if the resolution would differ from the existing lockfile")
	installCmd.Flags().BoolVar(&installForce, "force", false, "Re-fetch and re-extract even if the store already has the package")
}

func runInstall(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(dirFlag)
	if err != nil {
		return err
	}

	o := newOrchestrator(dirFlag, storeDirFlag)
	mode := orchestrator.Mode{Offline: installOffline, FrozenLockfile: installFrozen, Force: installForce}

	summary, err := o.Install(cmdContext(cmd), m, mode)
	if err != nil {
		return err
	}

	display.RenderSummary(os.Stdout, summary.Packages, summary.Warnings)
	return nil
}
