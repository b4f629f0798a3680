package resolver

// literal is a DIMACS-style signed variable reference: a positive int n
// denotes variable (n-1) is true, a negative int denotes it is false.
type literal int

func lit(v int, positive bool) literal {
	if positive {
		return literal(v + 1)
	}
	return literal(-(v + 1))
}

func (l literal) variable() int {
	if l < 0 {
		return int(-l) - 1
	}
	return int(l) - 1
}
func (l literal) positive() bool {
	return l > 0
}

func negateOf(l literal) literal { return -l }

// clause is a disjunction of literals; the solver requires at least one
// to be true in any satisfying assignment.
type clause []literal

// assignment is tri-state per variable: 0 unassigned, 1 true, -1 false.
type assignment []int8

func (a assignment) value(l literal) int8 {
	v := a[l.variable()]
	if v == 0 {
		return 0
	}
	if l.positive() {
		return v
	}
	return -v
}

// cnf is the full clause set plus the decision order the solver tries
// variables in: higher versions first, lock-pinned version preferred.
type cnf struct {
	nVars   int
	clauses []clause
	order   []int // variable indices in decision-try order
}

// propagate applies unit propagation to a fixed point. It returns the
// (possibly mutated in place) assignment and false if a conflict was
// found.
func (c *cnf) propagate(a assignment) (assignment, bool) {
	changed := true
	for changed {
		changed = false
		for _, cl := range c.clauses {
			unassignedCount := 0
			satisfied := false
			var unit literal
			for _, l := range cl {
				v := a.value(l)
				if v == 1 {
					satisfied = true
					break
				}
				if v == 0 {
					unassignedCount++
					unit = l
				}
			}
			if satisfied {
				continue
			}
			if unassignedCount == 0 {
				return a, false // every literal false: conflict
			}
			if unassignedCount == 1 {
				if a[unit.variable()] == 0 {
					if unit.positive() {
						a[unit.variable()] = 1
					} else {
						a[unit.variable()] = -1
					}
					changed = true
				}
			}
		}
	}
	return a, true
}

// solve runs DPLL: propagate, pick the next undecided variable in
// decision order, try it true first (the resolver's prefer-latest /
// prefer-lock-pin bias lives entirely in how `order` was built), then
// false.
func (c *cnf) solve() (assignment, bool) {
	return c.search(make(assignment, c.nVars))
}

func (c *cnf) search(a assignment) (assignment, bool) {
	next, ok := c.propagate(append(assignment(nil), a...))
	if !ok {
		return nil, false
	}
	a = next

	decideVar := -1
	for _, v := range c.order {
		if a[v] == 0 {
			decideVar = v
			break
		}
	}
	if decideVar == -1 {
		return a, true
	}

	trueBranch := append(assignment(nil), a...)
	trueBranch[decideVar] = 1
	if result, ok := c.search(trueBranch); ok {
		return result, true
	}

	falseBranch := append(assignment(nil), a...)
	falseBranch[decideVar] = -1
	return c.search(falseBranch)
}
