package resolver

import (
	"context"
	"sort"

	"github.com/terrazul/tpm/pkg/registry"
	"github.com/terrazul/tpm/pkg/tzerr"
	"github.com/terrazul/tpm/pkg/verbose"
	"github.com/terrazul/tpm/pkg/warnings"
)

// universe is the full discovered graph: every name reachable from the
// roots, its published versions, and every range any candidate requires
// of it. It is built once, before the SAT encoding, by a fixed-point
// walk over registry metadata.
type universe struct {
	client  registry.Client
	lock    map[string]string
	options Options

	versions map[string][]candidate   // name -> all published versions (parsed, sorted desc)
	edges    map[string][]edgeRange   // name -> every range a candidate requires of it
	warned   map[string]bool          // dedupe yanked-pin warnings
}

// edgeRange records that some dependent requires name under range r.
type edgeRange struct {
	from string // dependent name, "" for a root
	r    Range
}

func newUniverse(client registry.Client, lock map[string]string, opts Options) *universe {
	return &universe{
		client:   client,
		lock:     lock,
		options:  opts,
		versions: map[string][]candidate{},
		edges:    map[string][]edgeRange{},
		warned:   map[string]bool{},
	}
}

// discover walks outward from roots, fetching every reachable package's
// full version metadata exactly once, and recording every range under
// which any discovered candidate depends on it.
func (u *universe) discover(ctx context.Context, roots map[string]string) error {
	for name, rangeStr := range roots {
		r, err := ParseRange(rangeStr)
		if err != nil {
			return err
		}
		u.edges[name] = append(u.edges[name], edgeRange{from: "", r: r})
	}

	queue := make([]string, 0, len(roots))
	seen := map[string]bool{}
	for name := range roots {
		queue = append(queue, name)
		seen[name] = true
	}
	sort.Strings(queue)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := queue[0]
		queue = queue[1:]

		if err := u.fetch(ctx, name); err != nil {
			return err
		}

		for _, c := range u.versions[name] {
			depNames := make([]string, 0, len(c.deps))
			for dep := range c.deps {
				depNames = append(depNames, dep)
			}
			sort.Strings(depNames)
			for _, dep := range depNames {
				r, err := ParseRange(c.deps[dep])
				if err != nil {
					return err
				}
				u.edges[dep] = append(u.edges[dep], edgeRange{from: name, r: r})
				if !seen[dep] {
					seen[dep] = true
					queue = append(queue, dep)
				}
			}
		}
	}
	return nil
}

func (u *universe) fetch(ctx context.Context, name string) error {
	if _, ok := u.versions[name]; ok {
		return nil
	}
	meta, err := u.client.GetVersions(ctx, name)
	if err != nil {
		return err
	}
	if len(meta) == 0 {
		return tzerr.PackageNotFoundErr(name)
	}

	cands := make([]candidate, 0, len(meta))
	for verStr, vm := range meta {
		v, err := ParseVersion(verStr)
		if err != nil {
			verbose.Tracef("resolver: skipping unparsable version %s@%s", name, verStr)
			continue
		}
		cands = append(cands, candidate{name: name, version: v, yanked: vm.Yanked, deps: vm.Dependencies})
	}
	sort.Sort(byDescendingVersion(cands))
	u.versions[name] = cands
	return nil
}

// candidatesFor returns the filtered, decision-ordered candidate set for
// name: every published version satisfying at least one range recorded
// against it (root range or any dependent's range), minus yanked
// versions unless the lockfile pins that exact version and
// AllowYankedFromLock is set. A lock-pinned candidate is moved to the
// front of the order so the solver tries it before the latest.
func (u *universe) candidatesFor(name string) []candidate {
	all := u.versions[name]
	ranges := u.edges[name]
	pinned, hasPin := u.lock[name]

	hasLatestEdge := false
	for _, e := range ranges {
		if e.r.IsLatest() {
			hasLatestEdge = true
			break
		}
	}

	out := make([]candidate, 0, len(all))
	for _, c := range all {
		included := u.matchesAnyRange(c.version, ranges)
		if !included && hasLatestEdge {
			if latest, ok := u.latestVersion(name); ok && latest.version.String() == c.version.String() {
				included = true
			}
		}
		if !included {
			continue
		}
		if c.yanked && u.options.SkipYanked {
			if hasPin && pinned == c.version.String() && u.options.AllowYankedFromLock {
				if !u.warned[name] {
					u.warned[name] = true
					warnings.Warn(name + "@" + c.version.String() + " is yanked but pinned by the lockfile")
				}
			} else {
				continue
			}
		}
		out = append(out, c)
	}

	if hasPin {
		for i, c := range out {
			if c.version.String() == pinned {
				reordered := make([]candidate, 0, len(out))
				reordered = append(reordered, c)
				reordered = append(reordered, out[:i]...)
				reordered = append(reordered, out[i+1:]...)
				out = reordered
				break
			}
		}
	}
	return out
}

func (u *universe) matchesAnyRange(v Version, ranges []edgeRange) bool {
	for _, e := range ranges {
		if e.r.IsLatest() {
			continue // handled by latestVersion, not a per-candidate predicate
		}
		if e.r.Satisfies(v) {
			return true
		}
	}
	return false
}

// rootRange returns the parsed range a root name was declared with.
func (u *universe) rootRange(name string) (Range, bool) {
	for _, e := range u.edges[name] {
		if e.from == "" {
			return e.r, true
		}
	}
	return Range{}, false
}

// satisfying returns the subset of name's candidate set that satisfies
// r, or just the highest version if r is the "latest" sentinel.
func (u *universe) satisfying(name string, r Range) []candidate {
	cands := u.candidatesFor(name)
	if r.IsLatest() {
		latest, ok := u.latestVersion(name)
		if !ok {
			return nil
		}
		for _, c := range cands {
			if c.version.String() == latest.version.String() {
				return []candidate{c}
			}
		}
		return nil
	}
	out := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if r.Satisfies(c.version) {
			out = append(out, c)
		}
	}
	return out
}

// latestVersion returns the highest non-prerelease, non-yanked version
// of name, for the "latest" sentinel range.
func (u *universe) latestVersion(name string) (candidate, bool) {
	for _, c := range u.versions[name] {
		if c.version.Prerelease() {
			continue
		}
		if c.yanked {
			continue
		}
		return c, true
	}
	return candidate{}, false
}
