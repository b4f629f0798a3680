package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/terrazul/tpm/pkg/tzerr"
	"github.com/terrazul/tpm/pkg/verbose"
)

// exitFunc is a package-level indirection over os.Exit so tests can
// observe the exit code without killing the test binary.
var exitFunc = os.Exit

// Global flags shared by every subcommand.
var (
	dirFlag      string
	registryFlag string
	storeDirFlag string
	verboseCount int
)

var rootCmd = &cobra.Command{
	Use:   "tz",
	Short: "Package manager for agent configuration bundles",
	Long: `tz resolves a project's declared bundle dependencies against a
registry, fetches and verifies their content-addressable archives, and
materializes them into agent_modules with a deterministic lockfile.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseCount > 0 {
			verbose.Enable()
			verbose.SetLevel(verboseCount)
		}
	},
}

// Execute runs the root command and exits with the error's stable exit
// code on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		exitFunc(tzerr.ExitCode(err))
	}
}

// executeTest runs the root command for testing and returns the error
// directly instead of calling exitFunc.
func executeTest(args ...string) error {
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	return rootCmd.Execute()
}

func printError(err error) {
	if e, ok := tzerr.As(err); ok {
		if verbose.IsEnabled() {
			fmt.Fprintln(os.Stderr, "error:", e.Verbose())
			return
		}
		fmt.Fprintln(os.Stderr, "error:", e.Error())
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "C", ".", "Project root directory")
	rootCmd.PersistentFlags().StringVar(&registryFlag, "registry", "https://registry.terrazul.dev", "Registry base URL")
	rootCmd.PersistentFlags().StringVar(&storeDirFlag, "store-dir", "", "Content store directory (default: user cache dir)")
	rootCmd.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "Increase verbosity (-v, -vv, -vvv)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(updateCmd)
}

// cmdContext returns cmd's context, falling back to context.Background
// when Execute (rather than ExecuteContext) drove this run.
func cmdContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// registryToken resolves the bearer token for registry calls: the
// single TZ_TOKEN environment-variable override, read
// exactly once here and passed explicitly into registry.HTTPClient —
// never read inside pkg/*.
func registryToken() string {
	return os.Getenv("TZ_TOKEN")
}
