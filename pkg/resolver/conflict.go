package resolver

import (
	"sort"

	"github.com/terrazul/tpm/pkg/tzerr"
)

// explainConflict runs after the SAT search reports infeasibility. It is
// not part of the solver proper: it re-examines the universe to name a
// minimal witness: the intersecting ranges for the conflicting name.
func explainConflict(u *universe, names []string) error {
	sort.Strings(names)

	// First: a name required under some range that no published version
	// satisfies at all, paired with whichever other recorded range made
	// that requirement necessary.
	for _, name := range names {
		ranges := u.edges[name]
		all := u.versions[name]
		for i, e := range ranges {
			if e.r.IsLatest() || anySatisfies(all, e.r) {
				continue
			}
			other := e
			for j, o := range ranges {
				if j != i {
					other = o
					break
				}
			}
			return tzerr.VersionConflictErr(name, describeRange(e), describeRange(other))
		}
	}

	// Next: any name whose candidate set is empty outright (no
	// published version satisfies any recorded range, each individually
	// satisfiable elsewhere but not together with the yanked/lock policy).
	for _, name := range names {
		if len(u.candidatesFor(name)) == 0 && len(u.versions[name]) > 0 {
			ranges := u.edges[name]
			if len(ranges) > 0 {
				return tzerr.VersionConflictErr(name, ranges[0].r.String(), describeRange(ranges[len(ranges)-1]))
			}
		}
	}

	// Next: a name required under two ranges whose candidate sets don't
	// overlap, even though each is individually non-empty.
	for _, name := range names {
		ranges := u.edges[name]
		all := u.versions[name]
		for i := 0; i < len(ranges); i++ {
			if ranges[i].r.IsLatest() {
				continue
			}
			for j := i + 1; j < len(ranges); j++ {
				if ranges[j].r.IsLatest() {
					continue
				}
				if ranges[i].r.String() == ranges[j].r.String() {
					continue
				}
				if !anySatisfies(all, ranges[i].r) || !anySatisfies(all, ranges[j].r) {
					continue
				}
				if !rangesOverlap(all, ranges[i].r, ranges[j].r) {
					return tzerr.VersionConflictErr(name, ranges[i].r.String(), ranges[j].r.String())
				}
			}
		}
	}

	// Fall back: a generic conflict naming the alphabetically first name
	// in the universe.
	if len(names) > 0 {
		return tzerr.New(tzerr.VersionConflict, "no resolution satisfies the declared dependency set (first implicated: %s)", names[0]).
			WithContext("package", names[0])
	}
	return tzerr.New(tzerr.VersionConflict, "no resolution satisfies the declared dependency set")
}

func anySatisfies(cands []candidate, r Range) bool {
	for _, c := range cands {
		if r.Satisfies(c.version) {
			return true
		}
	}
	return false
}

func rangesOverlap(cands []candidate, a, b Range) bool {
	for _, c := range cands {
		if a.Satisfies(c.version) && b.Satisfies(c.version) {
			return true
		}
	}
	return false
}

func describeRange(e edgeRange) string {
	if e.r.IsLatest() {
		return LatestToken
	}
	return e.r.String()
}
