// Package orchestrator drives the install/update state machine: it
// turns a project manifest and an optional existing lockfile into a
// resolved, fetched, verified, extracted, and linked dependency tree,
// then writes the lockfile atomically. See Install and Update.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/terrazul/tpm/pkg/link"
	"github.com/terrazul/tpm/pkg/lockfile"
	"github.com/terrazul/tpm/pkg/manifest"
	"github.com/terrazul/tpm/pkg/registry"
	"github.com/terrazul/tpm/pkg/resolver"
	"github.com/terrazul/tpm/pkg/store"
	"github.com/terrazul/tpm/pkg/tzerr"
	"github.com/terrazul/tpm/pkg/verbose"
)

// maxConcurrentFetches bounds the fetch stage's fan-out: at most 5
// concurrent tarball downloads per install.
const maxConcurrentFetches = 5

// Source names where a package's content came from for one run.
type Source string

const (
	SourceRemote  Source = "remote"
	SourceCache   Source = "cache"
	SourceOffline Source = "offline"
	SourceLocal   Source = "local"
)

// Mode carries the three flags the orchestrator's behavior branches on.
type Mode struct {
	Offline        bool
	FrozenLockfile bool
	Force          bool
}

// PackageResult is one resolved package's outcome for the run summary.
type PackageResult struct {
	Name    string
	Version string
	Source  Source
}

// Summary is the orchestrator's return value: the sorted per-package
// outcomes plus any resolver warnings. Packages are sorted
// lexicographically by name, independent of completion order.
type Summary struct {
	Packages []PackageResult
	Warnings []string
}

// Orchestrator ties together the registry client, content store, and
// project root an install/update run operates against.
type Orchestrator struct {
	ProjectRoot string
	Client      registry.Client
	Store       *store.Store

	// Now returns the current time for lockfile metadata; overridable in
	// tests for deterministic generated_at values.
	Now func() time.Time

	// CLIVersion is stamped into the lockfile's metadata table.
	CLIVersion string
}

// New returns an Orchestrator rooted at projectRoot, storing content
// under storeBase, talking to client.
func New(projectRoot string, client registry.Client, storeBase string) *Orchestrator {
	return &Orchestrator{
		ProjectRoot: projectRoot,
		Client:      client,
		Store:       store.New(storeBase),
		Now:         time.Now,
	}
}

// Plan is the pure PLAN+RESOLVE output: the set of root dependency
// ranges, the resolution over them, and — when a previous lockfile is
// present — the per-name version diff against it. It has no side
// effects, so a caller (update --dry-run, or a future UI) can render it
// without mutating any project state.
type Plan struct {
	Roots      map[string]string
	Resolution *resolver.Result
	Diff       []VersionChange
}

// VersionChange is one name's old → new version in a plan, old is
// empty for a newly added dependency.
type VersionChange struct {
	Name string
	Old  string
	New  string
}

// stripScope turns "@owner/name" into "owner/name" for filesystem use.
func stripScope(name string) string {
	if len(name) > 0 && name[0] == '@' {
		return name[1:]
	}
	return name
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Plan computes PLAN + RESOLVE without fetching, extracting, linking,
// or writing anything.
func (o *Orchestrator) Plan(ctx context.Context, m *manifest.Manifest, opts resolver.Options) (*Plan, error) {
	roots := rootsFromManifest(m)
	if len(roots) == 0 {
		return &Plan{Roots: roots, Resolution: &resolver.Result{Packages: map[string]resolver.ResolvedPackage{}}}, nil
	}

	prevLock, err := lockfile.Read(o.ProjectRoot)
	if err != nil {
		return nil, err
	}

	// The previous lockfile feeds the diff only, never the resolution:
	// a plan answers "what would an update pick", so pin preference
	// would mask every available upgrade.
	result, err := resolver.Resolve(ctx, resolver.Input{
		Roots:   roots,
		Client:  registry.NewCachingClient(o.Client),
		Options: opts,
	})
	if err != nil {
		return nil, err
	}

	diff := diffAgainstLock(prevLock, result)
	return &Plan{Roots: roots, Resolution: result, Diff: diff}, nil
}

// rootsFromManifest builds the SAT resolver's root set from the
// manifest's declared dependencies, excluding any whose range is a
// local-path spec: those bypass resolution entirely and
// are linked separately by linkLocalDeps.
func rootsFromManifest(m *manifest.Manifest) map[string]string {
	roots := make(map[string]string, len(m.Dependencies))
	for _, d := range m.Dependencies {
		if IsLocalPath(d.Range) {
			continue
		}
		roots[d.Name] = d.Range
	}
	return roots
}

// localDepsFromManifest returns the dependency specs (the manifest's
// raw range strings) that name a filesystem path rather than a
// registry range.
func localDepsFromManifest(m *manifest.Manifest) []string {
	var specs []string
	for _, d := range m.Dependencies {
		if IsLocalPath(d.Range) {
			specs = append(specs, d.Range)
		}
	}
	return specs
}

// linkLocalDeps materializes every local-path dependency declared in m
// straight into linkRoot, bypassing the resolver, the store, and the
// lockfile. It always re-links, even on a cache hit.
func (o *Orchestrator) linkLocalDeps(m *manifest.Manifest, linkRoot string) ([]LocalPackageResult, error) {
	specs := localDepsFromManifest(m)
	sort.Strings(specs)
	results := make([]LocalPackageResult, 0, len(specs))
	for _, spec := range specs {
		result, err := o.LinkLocal(spec, linkRoot)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func diffAgainstLock(prev *lockfile.Lockfile, result *resolver.Result) []VersionChange {
	names := make([]string, 0, len(result.Packages))
	for name := range result.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	var diff []VersionChange
	for _, name := range names {
		newVersion := result.Packages[name].Version
		old := ""
		if prev != nil {
			if entry, ok := prev.Packages[name]; ok {
				old = entry.Version
			}
		}
		if old != newVersion {
			diff = append(diff, VersionChange{Name: name, Old: old, New: newVersion})
		}
	}
	return diff
}

// Install runs the full PLAN through LOCK pipeline and replaces
// agent_modules/ in place. mode.Offline reconstructs the resolution
// from the existing lockfile instead of querying the registry.
func (o *Orchestrator) Install(ctx context.Context, m *manifest.Manifest, mode Mode) (*Summary, error) {
	opts := resolver.Options{SkipYanked: true, AllowYankedFromLock: true}
	summary, pending, err := o.run(ctx, m, mode, opts, true, filepath.Join(o.ProjectRoot, "agent_modules"))
	if err != nil {
		return nil, err
	}
	if err := lockfile.WriteAtomic(pending, o.ProjectRoot); err != nil {
		return nil, err
	}
	return summary, nil
}

// Update behaves like Install but biases resolution toward the latest
// satisfying version and ignores the previous lockfile's pins. A
// non-dry-run update stages into agent_modules.new
// and swaps atomically on success; DryRun performs Plan only, which
// always resolves against the registry and does not consult mode.
func (o *Orchestrator) Update(ctx context.Context, m *manifest.Manifest, mode Mode, dryRun bool) (*Summary, *Plan, error) {
	opts := resolver.Options{SkipYanked: true, AllowYankedFromLock: false}

	if dryRun {
		plan, err := o.Plan(ctx, m, opts)
		if err != nil {
			return nil, nil, err
		}
		return nil, plan, nil
	}

	staged := filepath.Join(o.ProjectRoot, "agent_modules.new")
	summary, pending, err := o.run(ctx, m, mode, opts, false, staged)
	if err != nil {
		os.RemoveAll(staged)
		return nil, nil, err
	}

	// The lockfile is written only after the swap lands, so a failed
	// swap leaves both the previous tree and the previous lockfile
	// intact.
	final := filepath.Join(o.ProjectRoot, "agent_modules")
	if err := swapStagedTree(staged, final); err != nil {
		return nil, nil, err
	}
	if err := lockfile.WriteAtomic(pending, o.ProjectRoot); err != nil {
		return nil, nil, err
	}
	return summary, nil, nil
}

// run executes PLAN through LINK against linkRoot and returns the
// summary plus the merged, pruned lockfile for the caller to write; the
// lock itself is never written here, so Update can defer it until after
// the staged-tree swap.
func (o *Orchestrator) run(ctx context.Context, m *manifest.Manifest, mode Mode, opts resolver.Options, useLockPins bool, linkRoot string) (*Summary, *lockfile.Lockfile, error) {
	localResults, err := o.linkLocalDeps(m, linkRoot)
	if err != nil {
		return nil, nil, err
	}

	roots := rootsFromManifest(m)
	if len(roots) == 0 {
		empty := lockfile.New()
		empty.Metadata = lockfile.Metadata{GeneratedAt: o.now().UTC().Format(time.RFC3339), CLIVersion: o.CLIVersion}
		return &Summary{Packages: summaryFromLocal(localResults)}, empty, nil
	}

	prevLock, err := lockfile.Read(o.ProjectRoot)
	if err != nil {
		return nil, nil, err
	}

	var lockPins map[string]string
	if useLockPins {
		lockPins = lockPinsFrom(prevLock)
	}

	var result *resolver.Result
	if mode.Offline {
		result, err = resolveOffline(prevLock, roots)
	} else {
		result, err = resolver.Resolve(ctx, resolver.Input{
			Roots:   roots,
			Lock:    lockPins,
			Client:  registry.NewCachingClient(o.Client),
			Options: opts,
		})
	}
	if err != nil {
		return nil, nil, err
	}

	if mode.FrozenLockfile {
		if err := checkFrozen(prevLock, result); err != nil {
			return nil, nil, err
		}
	}

	results, updates, err := o.fetchAll(ctx, result, mode)
	if err != nil {
		return nil, nil, err
	}

	for name, pr := range results {
		extractedPath, err := o.Store.ExtractedPath(name, pr.Version)
		if err != nil {
			return nil, nil, err
		}
		linkPath := filepath.Join(linkRoot, filepath.FromSlash(stripScope(name)))
		if _, err := link.Link(o.ProjectRoot, extractedPath, linkPath); err != nil {
			return nil, nil, err
		}
	}

	keep := map[string]bool{}
	for name := range result.Packages {
		keep[name] = true
	}
	merged := lockfile.Merge(prevLock, updates, o.now().UTC().Format(time.RFC3339), o.CLIVersion)
	pruned := lockfile.Prune(merged, keep)

	return summaryFrom(results, result.Warnings, localResults), pruned, nil
}

func lockPinsFrom(prev *lockfile.Lockfile) map[string]string {
	pins := map[string]string{}
	if prev == nil {
		return pins
	}
	for name, entry := range prev.Packages {
		pins[name] = entry.Version
	}
	return pins
}

func summaryFrom(results map[string]PackageResult, warnings []string, localResults []LocalPackageResult) *Summary {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	summary := &Summary{Warnings: warnings}
	for _, name := range names {
		summary.Packages = append(summary.Packages, results[name])
	}
	summary.Packages = append(summary.Packages, summaryFromLocal(localResults)...)
	sort.Slice(summary.Packages, func(i, j int) bool { return summary.Packages[i].Name < summary.Packages[j].Name })
	return summary
}

// summaryFromLocal turns LinkLocal outcomes into summary rows with no
// version (local packages are never pinned), sorted by name.
func summaryFromLocal(localResults []LocalPackageResult) []PackageResult {
	packages := make([]PackageResult, 0, len(localResults))
	for _, r := range localResults {
		packages = append(packages, PackageResult{Name: r.Name, Version: "", Source: SourceLocal})
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })
	return packages
}

// fetchAll runs FETCH → VERIFY → EXTRACT for every resolved package,
// at most maxConcurrentFetches at a time.
func (o *Orchestrator) fetchAll(ctx context.Context, result *resolver.Result, mode Mode) (map[string]PackageResult, map[string]lockfile.LockedPackage, error) {
	type outcome struct {
		name   string
		pr     PackageResult
		locked lockfile.LockedPackage
	}

	names := make([]string, 0, len(result.Packages))
	for name := range result.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	outcomes := make([]outcome, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for i, name := range names {
		i, name := i, name
		pkg := result.Packages[name]
		g.Go(func() error {
			pr, locked, err := o.fetchOne(gctx, name, pkg, mode)
			if err != nil {
				return err
			}
			outcomes[i] = outcome{name: name, pr: pr, locked: locked}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	results := make(map[string]PackageResult, len(names))
	updates := make(map[string]lockfile.LockedPackage, len(names))
	for _, oc := range outcomes {
		results[oc.name] = oc.pr
		updates[oc.name] = oc.locked
	}
	return results, updates, nil
}

func (o *Orchestrator) fetchOne(ctx context.Context, name string, pkg resolver.ResolvedPackage, mode Mode) (PackageResult, lockfile.LockedPackage, error) {
	deps := make([]lockfile.Dependency, 0, len(pkg.Dependencies))
	depNames := make([]string, 0, len(pkg.Dependencies))
	for dep := range pkg.Dependencies {
		depNames = append(depNames, dep)
	}
	sort.Strings(depNames)
	for _, dep := range depNames {
		deps = append(deps, lockfile.Dependency{Name: dep, Range: pkg.Dependencies[dep]})
	}

	if mode.Offline {
		has, err := o.Store.HasExtracted(name, pkg.Version)
		if err != nil {
			return PackageResult{}, lockfile.LockedPackage{}, err
		}
		if !has {
			return PackageResult{}, lockfile.LockedPackage{}, tzerr.New(tzerr.StorageError, "offline install: %s@%s is not present in the store", name, pkg.Version)
		}
		// resolveOffline already checked every reachable entry has a
		// non-empty resolved/integrity pair; carry it through so the
		// re-lock never drops provenance.
		resolved, integrity := o.cachedProvenance(name, pkg.Version)
		verbose.FetchSource(name, pkg.Version, "offline")
		return PackageResult{Name: name, Version: pkg.Version, Source: SourceOffline},
			lockfile.LockedPackage{Version: pkg.Version, Resolved: resolved, Integrity: integrity, Dependencies: deps, Yanked: pkg.Yanked},
			nil
	}

	if !mode.Force {
		has, err := o.Store.HasExtracted(name, pkg.Version)
		if err != nil {
			return PackageResult{}, lockfile.LockedPackage{}, err
		}
		if has {
			// A cache hit is only usable if the prior lockfile entry
			// actually recorded its provenance; an entry with an empty
			// Resolved/Integrity field must be treated as
			// "must refetch" rather than trusted as-is.
			resolved, integrity := o.cachedProvenance(name, pkg.Version)
			if resolved != "" && integrity != "" {
				verbose.FetchSource(name, pkg.Version, "cache")
				return PackageResult{Name: name, Version: pkg.Version, Source: SourceCache},
					lockfile.LockedPackage{Version: pkg.Version, Resolved: resolved, Integrity: integrity, Dependencies: deps, Yanked: pkg.Yanked},
					nil
			}
		}
	}

	info, err := o.Client.GetTarballInfo(ctx, name, pkg.Version)
	if err != nil {
		return PackageResult{}, lockfile.LockedPackage{}, err
	}
	body, err := o.Client.DownloadTarball(ctx, info.URL)
	if err != nil {
		return PackageResult{}, lockfile.LockedPackage{}, err
	}
	defer body.Close()

	_, computed, err := o.Store.StoreArchive(ctx, name, pkg.Version, body, info.Integrity)
	if err != nil {
		return PackageResult{}, lockfile.LockedPackage{}, err
	}
	if _, err := o.Store.Extract(ctx, name, pkg.Version); err != nil {
		return PackageResult{}, lockfile.LockedPackage{}, err
	}

	// The registry's integrity field is optional. When it
	// omitted one, adopt the hash computed while streaming the archive
	// instead of recording an empty field in the lockfile.
	recordedIntegrity := info.Integrity
	if recordedIntegrity == "" {
		recordedIntegrity = computed
	}

	verbose.FetchSource(name, pkg.Version, info.URL)
	return PackageResult{Name: name, Version: pkg.Version, Source: SourceRemote},
		lockfile.LockedPackage{Version: pkg.Version, Resolved: info.URL, Integrity: recordedIntegrity, Dependencies: deps, Yanked: pkg.Yanked},
		nil
}

// cachedProvenance reuses the existing lockfile's resolved/integrity
// fields for a package the store already has extracted, so a cache hit
// never loses that provenance on re-lock.
func (o *Orchestrator) cachedProvenance(name, version string) (resolved, integrity string) {
	prev, err := lockfile.Read(o.ProjectRoot)
	if err != nil || prev == nil {
		return "", ""
	}
	entry, ok := prev.Packages[name]
	if !ok || entry.Version != version {
		return "", ""
	}
	return entry.Resolved, entry.Integrity
}

func checkFrozen(prev *lockfile.Lockfile, result *resolver.Result) error {
	if prev == nil {
		if len(result.Packages) == 0 {
			return nil
		}
		return tzerr.ConfigInvalidErr("frozen lockfile requested but no lockfile exists")
	}
	if len(prev.Packages) != len(result.Packages) {
		return tzerr.ConfigInvalidErr("resolution differs from the frozen lockfile")
	}
	for name, pkg := range result.Packages {
		entry, ok := prev.Packages[name]
		if !ok || entry.Version != pkg.Version {
			return tzerr.ConfigInvalidErr("resolution differs from the frozen lockfile")
		}
	}
	return nil
}
