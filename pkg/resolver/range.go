package resolver

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/terrazul/tpm/pkg/tzerr"
)

// Range is a semver range expression, or the distinguished "latest"
// token.
type Range struct {
	raw    string
	latest bool
	c      *semver.Constraints
}

// ParseRange parses a range expression. "latest" is recognized before
// constraint parsing and never reaches the semver constraint parser.
func ParseRange(s string) (Range, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == LatestToken {
		return Range{raw: trimmed, latest: true}, nil
	}
	c, err := semver.NewConstraint(trimmed)
	if err != nil {
		return Range{}, tzerr.New(tzerr.ConfigInvalid, "invalid version range %q: %v", s, err)
	}
	return Range{raw: trimmed, c: c}, nil
}

// IsLatest reports whether r is the "latest" sentinel.
func (r Range) IsLatest() bool { return r.latest }

// String returns the range's original textual form.
func (r Range) String() string { return r.raw }

// Satisfies reports whether v satisfies r. Callers must not invoke this
// on a "latest" range: latest candidate selection has its own path in
// candidates.go (highest non-prerelease, non-yanked version), since it
// is not a per-version predicate.
func (r Range) Satisfies(v Version) bool {
	if r.latest {
		return false
	}
	return r.c.Check(v.v)
}
