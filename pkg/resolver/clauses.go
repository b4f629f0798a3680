package resolver

import "sort"

// clauseBuilder assigns a SAT variable to every (name, version) the
// universe admits and encodes the three clause families: at-most-one
// per name, at-least-one per root, and dependency implications.
type clauseBuilder struct {
	u     *universe
	names []string

	varIndex map[string]int
	order    []int
}

func candidateKey(name, version string) string { return name + "@" + version }

func newClauseBuilder(u *universe, names []string) *clauseBuilder {
	return &clauseBuilder{u: u, names: names, varIndex: map[string]int{}}
}

// varOf returns the variable index for (name, version), or -1 if no such
// candidate was admitted into the universe.
func (b *clauseBuilder) varOf(name, version string) int {
	v, ok := b.varIndex[candidateKey(name, version)]
	if !ok {
		return -1
	}
	return v
}

func (b *clauseBuilder) assign(name, version string) int {
	key := candidateKey(name, version)
	if v, ok := b.varIndex[key]; ok {
		return v
	}
	v := len(b.varIndex)
	b.varIndex[key] = v
	b.order = append(b.order, v)
	return v
}

// build assigns variables and clauses for every admitted candidate, in
// the decision order the solver will try them in: names in b.names
// order, each name's own candidates in their already-decided preference
// order (descending version, lock pin first; see universe.candidatesFor).
func (b *clauseBuilder) build(roots map[string]string) (*cnf, error) {
	for _, name := range b.names {
		for _, c := range b.u.candidatesFor(name) {
			b.assign(name, c.version.String())
		}
	}

	formula := &cnf{nVars: len(b.varIndex), order: b.order}

	for _, name := range b.names {
		cands := b.u.candidatesFor(name)

		// At-most-one per name.
		for i := 0; i < len(cands); i++ {
			for j := i + 1; j < len(cands); j++ {
				vi := b.varOf(name, cands[i].version.String())
				vj := b.varOf(name, cands[j].version.String())
				formula.clauses = append(formula.clauses, clause{lit(vi, false), lit(vj, false)})
			}
		}

		// At-least-one for roots.
		if rangeStr, isRoot := roots[name]; isRoot {
			r, err := ParseRange(rangeStr)
			if err != nil {
				return nil, err
			}
			satisfying := b.u.satisfying(name, r)
			cl := make(clause, 0, len(satisfying))
			for _, c := range satisfying {
				cl = append(cl, lit(b.varOf(name, c.version.String()), true))
			}
			formula.clauses = append(formula.clauses, cl)
		}

		// Dependency implications.
		for _, c := range cands {
			v := b.varOf(name, c.version.String())
			depNames := make([]string, 0, len(c.deps))
			for dep := range c.deps {
				depNames = append(depNames, dep)
			}
			sort.Strings(depNames)
			for _, dep := range depNames {
				r, err := ParseRange(c.deps[dep])
				if err != nil {
					return nil, err
				}
				satisfying := b.u.satisfying(dep, r)
				if len(satisfying) == 0 {
					formula.clauses = append(formula.clauses, clause{lit(v, false)})
					continue
				}
				cl := make(clause, 0, len(satisfying)+1)
				cl = append(cl, lit(v, false))
				for _, s := range satisfying {
					cl = append(cl, lit(b.varOf(dep, s.version.String()), true))
				}
				formula.clauses = append(formula.clauses, cl)
			}
		}
	}

	return formula, nil
}
