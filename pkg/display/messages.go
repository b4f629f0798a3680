package display

import (
	"fmt"
	"io"

	"github.com/terrazul/tpm/pkg/orchestrator"
)

// Icon prefixes for the fixed set of sources and messages this package
// renders.
const (
	IconRemote  = "↓" // fetched from the registry
	IconCache   = "✓" // reused from the local store
	IconOffline = "○" // resolved from the lockfile, no registry contact
	IconLocal   = "→" // linked straight from a filesystem path
	IconWarn    = "⚠"
)

// sourceIcon maps a package's Source to its display icon. An
// unrecognized source renders with no icon rather than guessing.
func sourceIcon(source orchestrator.Source) string {
	switch source {
	case orchestrator.SourceRemote:
		return IconRemote
	case orchestrator.SourceCache:
		return IconCache
	case orchestrator.SourceOffline:
		return IconOffline
	case orchestrator.SourceLocal:
		return IconLocal
	default:
		return " "
	}
}

// RenderSummary writes a NAME / VERSION / SOURCE table of an install or
// update run's outcome to w, followed by any resolver warnings.
func RenderSummary(w io.Writer, packages []orchestrator.PackageResult, warnings []string) {
	table := NewTable("", "NAME", "VERSION", "SOURCE")
	for _, p := range packages {
		table.AddRow(sourceIcon(p.Source), p.Name, p.Version, string(p.Source))
	}
	table.Fprint(w)
	PrintWarnings(w, warnings)
}

// PrintWarnings prints one warning per line, each prefixed with a
// warning icon, preceded by a blank line for separation from the table
// above it. It does nothing if warnings is empty.
func PrintWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, msg := range warnings {
		fmt.Fprintf(w, "%s %s\n", IconWarn, msg)
	}
}

// RenderPlan writes a NAME / FROM / TO table of an update plan's version
// diff to w, showing "(new)" for a dependency with no previous version.
func RenderPlan(w io.Writer, diff []orchestrator.VersionChange) {
	table := NewTable("NAME", "FROM", "TO")
	for _, change := range diff {
		from := change.Old
		if from == "" {
			from = "(new)"
		}
		table.AddRow(change.Name, from, change.New)
	}
	table.Fprint(w)
}
