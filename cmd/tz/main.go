// Command tz is the package manager CLI for agent configuration
// bundles. It is a thin caller of the pkg/orchestrator kernel: flag
// parsing, environment plumbing, and summary rendering live here; every
// piece of dependency-resolution, integrity, and filesystem behavior
// lives in pkg/*.
package main

func main() {
	Execute()
}
