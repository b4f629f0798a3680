package resolver

import (
	"context"
	"sort"

	"github.com/terrazul/tpm/pkg/registry"
	"github.com/terrazul/tpm/pkg/tzerr"
	"github.com/terrazul/tpm/pkg/verbose"
)

// Options carries the yanked-version policy flags, both
// defaulted true by DefaultOptions. Prefer-latest-by-default and
// lockfile-pin stability are both properties of the decision order
// itself (descending version sort, unconditional pin override when the
// pin satisfies the operative range) rather than a separate toggle, so
// there is no PreferLatest flag to set here.
type Options struct {
	SkipYanked          bool
	AllowYankedFromLock bool
}

// DefaultOptions returns the standard policy: skip yanked
// versions, allow one from the lockfile pin.
func DefaultOptions() Options {
	return Options{SkipYanked: true, AllowYankedFromLock: true}
}

// Input is everything the resolver needs to produce a resolution.
type Input struct {
	// Roots maps a root dependency name to its declared range.
	Roots map[string]string

	// Lock maps a name to the version the existing lockfile pinned it
	// to, if any. An empty or nil map disables lockfile preference.
	Lock map[string]string

	Client  registry.Client
	Options Options
}

// ResolvedPackage is one name's resolved version plus its own declared
// dependencies, carried forward for lockfile and install use.
type ResolvedPackage struct {
	Version      string
	Dependencies map[string]string
	Yanked       bool
}

// Result is a full transitive resolution: every root and every
// transitively required name mapped to its selected version.
type Result struct {
	Packages map[string]ResolvedPackage
	Warnings []string
}

// Resolve runs the SAT encoding over Input and returns the
// resolution, or a tzerr.VersionConflict with a minimal witness if no
// assignment satisfies every clause.
func Resolve(ctx context.Context, in Input) (*Result, error) {
	if len(in.Roots) == 0 {
		return &Result{Packages: map[string]ResolvedPackage{}}, nil
	}

	// Zero-value Options is treated as unset, not as both-flags-false.
	opts := in.Options
	if opts == (Options{}) {
		opts = DefaultOptions()
	}

	u := newUniverse(in.Client, in.Lock, opts)
	if err := u.discover(ctx, in.Roots); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(u.edges))
	for name := range u.edges {
		names = append(names, name)
	}
	sort.Strings(names)

	builder := newClauseBuilder(u, names)
	formula, err := builder.build(in.Roots)
	if err != nil {
		return nil, err
	}

	assign, ok := formula.solve()
	if !ok {
		verbose.Debugf("resolver: no satisfying assignment over %d variables", formula.nVars)
		return nil, explainConflict(u, names)
	}

	result := &Result{Packages: map[string]ResolvedPackage{}}
	for _, name := range names {
		for _, c := range u.candidatesFor(name) {
			v := builder.varOf(name, c.version.String())
			if v < 0 {
				continue
			}
			if assign[v] == 1 {
				reason := "highest satisfying version"
				if pinned, ok := u.lock[name]; ok && pinned == c.version.String() {
					reason = "lockfile pin"
				}
				verbose.ResolveDecision(name, c.version.String(), reason)
				result.Packages[name] = ResolvedPackage{
					Version:      c.version.String(),
					Dependencies: c.deps,
					Yanked:       c.yanked,
				}
				if c.yanked {
					result.Warnings = append(result.Warnings, name+"@"+c.version.String()+" is yanked")
				}
				break
			}
		}
		if _, ok := result.Packages[name]; !ok {
			if _, isRoot := in.Roots[name]; isRoot {
				return nil, explainConflict(u, names)
			}
		}
	}

	for root := range in.Roots {
		if _, ok := result.Packages[root]; !ok {
			return nil, tzerr.New(tzerr.VersionConflict, "no version of %s satisfies %q", root, in.Roots[root]).
				WithContext("package", root).WithContext("range", in.Roots[root])
		}
	}

	return result, nil
}
