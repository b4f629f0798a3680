package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the CLI's semantic version, set at build time via
// -ldflags "-X main.Version=...". "dev" marks an untagged build.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tz %s (%s/%s, %s)\n", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}
