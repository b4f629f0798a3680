package orchestrator

import (
	"sort"

	"github.com/terrazul/tpm/pkg/lockfile"
	"github.com/terrazul/tpm/pkg/resolver"
	"github.com/terrazul/tpm/pkg/tzerr"
)

// resolveOffline reconstructs a resolution entirely from the existing
// lockfile, without any registry access, by walking only the closure
// reachable from roots (root → its Dependencies → their Dependencies,
// transitively): every root's range must be satisfied by the lock's
// pinned version, and every reachable locked package's own declared
// dependency ranges must likewise be satisfied by their pinned
// versions. Lock entries
// outside that closure (e.g. orphaned after a dependency was dropped
// from the manifest while offline) are ignored entirely, so they
// neither block the install on a missing/incomplete entry nor survive
// the subsequent prune-to-closure.
func resolveOffline(prev *lockfile.Lockfile, roots map[string]string) (*resolver.Result, error) {
	if prev == nil {
		if len(roots) == 0 {
			return &resolver.Result{Packages: map[string]resolver.ResolvedPackage{}}, nil
		}
		return nil, tzerr.New(tzerr.StorageError, "offline resolution requires a lockfile, none found")
	}

	result := &resolver.Result{Packages: map[string]resolver.ResolvedPackage{}}

	names := make([]string, 0, len(roots))
	for name := range roots {
		names = append(names, name)
	}
	sort.Strings(names)

	queue := append([]string(nil), names...)
	visited := map[string]bool{}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		entry, ok := prev.Packages[name]
		if !ok {
			return nil, tzerr.New(tzerr.StorageError, "offline resolution: %s is not present in the lockfile", name)
		}
		if rangeStr, isRoot := roots[name]; isRoot {
			if err := checkEntrySatisfiesRange(name, entry.Version, rangeStr); err != nil {
				return nil, err
			}
		}
		if err := checkEntryHasProvenance(name, entry); err != nil {
			return nil, err
		}

		deps := make(map[string]string, len(entry.Dependencies))
		depNames := make([]string, 0, len(entry.Dependencies))
		for _, d := range entry.Dependencies {
			deps[d.Name] = d.Range
			depNames = append(depNames, d.Name)
		}
		sort.Strings(depNames)
		result.Packages[name] = resolver.ResolvedPackage{
			Version:      entry.Version,
			Dependencies: deps,
			Yanked:       entry.Yanked,
		}

		for _, depName := range depNames {
			depEntry, ok := prev.Packages[depName]
			if !ok {
				return nil, tzerr.VersionConflictErr(depName, deps[depName], "not present in lockfile")
			}
			if err := checkEntrySatisfiesRange(depName, depEntry.Version, deps[depName]); err != nil {
				return nil, err
			}
			if !visited[depName] {
				queue = append(queue, depName)
			}
		}
	}

	return result, nil
}

// checkEntryHasProvenance rejects a lockfile entry whose Resolved or
// Integrity field is empty before any file mutation happens; such an
// entry has lost its provenance and must be refetched.
// Offline mode has no registry to refetch from, so this surfaces as a
// hard error rather than a silent refetch.
func checkEntryHasProvenance(name string, entry lockfile.LockedPackage) error {
	if entry.Resolved == "" || entry.Integrity == "" {
		return tzerr.New(tzerr.StorageError, "offline resolution: %s@%s has an incomplete lockfile entry (empty resolved/integrity field)", name, entry.Version)
	}
	return nil
}

func checkEntrySatisfiesRange(name, version, rangeStr string) error {
	v, err := resolver.ParseVersion(version)
	if err != nil {
		return err
	}
	r, err := resolver.ParseRange(rangeStr)
	if err != nil {
		return err
	}
	if r.IsLatest() {
		return nil
	}
	if !r.Satisfies(v) {
		return tzerr.VersionConflictErr(name, rangeStr, version)
	}
	return nil
}
