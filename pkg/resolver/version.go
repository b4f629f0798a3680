// Package resolver encodes dependency version selection as a Boolean
// satisfiability problem and drives a DPLL-style solver over it: one
// variable per candidate (name, version) pair, at-most-one clauses per
// name, at-least-one clauses per root, and implication clauses per
// declared dependency. See resolver.go for the entry point.
package resolver

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/terrazul/tpm/pkg/tzerr"
)

// LatestToken is the distinguished range value meaning "the highest
// non-prerelease, non-yanked version".
const LatestToken = "latest"

// Version wraps a parsed semantic version. Ordering follows standard
// semver precedence via the underlying library.
type Version struct {
	raw string
	v   *semver.Version
}

// ParseVersion parses a MAJOR.MINOR.PATCH[-pre][+build] string.
func ParseVersion(s string) (Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return Version{}, tzerr.New(tzerr.ConfigInvalid, "invalid version %q: %v", s, err)
	}
	return Version{raw: s, v: v}, nil
}

// String returns the version in its original textual form.
func (v Version) String() string {
	if v.v == nil {
		return v.raw
	}
	return v.v.Original()
}

// Compare returns -1, 0, or 1 as v orders before, equal to, or after other,
// by standard semver precedence.
func (v Version) Compare(other Version) int {
	return v.v.Compare(other.v)
}

// Prerelease reports whether v carries a prerelease identifier.
func (v Version) Prerelease() bool {
	return v.v.Prerelease() != ""
}

// candidate is one (name, version) pair under consideration, carrying
// its published metadata for clause construction.
type candidate struct {
	name    string
	version Version
	yanked  bool
	deps    map[string]string
}

// byDescendingVersion sorts candidates from highest to lowest version,
// the resolver's default decision order.
type byDescendingVersion []candidate

func (c byDescendingVersion) Len() int      { return len(c) }
func (c byDescendingVersion) Swap(i, j int) { c[i], c[j] = c[j], c[i] }
func (c byDescendingVersion) Less(i, j int) bool {
	return c[i].version.Compare(c[j].version) > 0
}
