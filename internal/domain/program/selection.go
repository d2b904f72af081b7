package program

import "sort"

// Programs derives the ordered program list from a set of assignments.
// Ordering is by DisplayOrder, then name, so every surface shows the same
// list in the same order.
// PRE: assignments belong to a single user
// POST: Returns one Program per assignment, sorted
func Programs(assignments []Assignment) []Program {
	programs := make([]Program, 0, len(assignments))
	for _, a := range assignments {
		programs = append(programs, a.Program)
	}
	sort.SliceStable(programs, func(i, j int) bool {
		if programs[i].DisplayOrder != programs[j].DisplayOrder {
			return programs[i].DisplayOrder < programs[j].DisplayOrder
		}
		return programs[i].Name < programs[j].Name
	})
	return programs
}

// DefaultProgram picks the program a fresh session should start in: the
// assignment flagged IsDefault wins, otherwise the first program in display
// order. Returns false if the user has no assignments.
// INVARIANT: assignments are not mutated
func DefaultProgram(assignments []Assignment) (Program, bool) {
	if len(assignments) == 0 {
		return Program{}, false
	}
	for _, a := range assignments {
		if a.IsDefault {
			return a.Program, true
		}
	}
	return Programs(assignments)[0], true
}

// Contains reports whether programs includes id.
func Contains(programs []Program, id string) bool {
	for _, p := range programs {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Reconcile revalidates a previously selected program id against a refreshed
// assignment list. A selection that is still accessible is kept; a stale or
// empty one is replaced by the default. Returns false if no program can be
// selected at all.
// PRE: assignments belong to the user who made the selection
// POST: Returned program, if any, appears in the assignment list
func Reconcile(selectedID string, assignments []Assignment) (Program, bool) {
	if selectedID != "" {
		for _, a := range assignments {
			if a.Program.ID == selectedID {
				return a.Program, true
			}
		}
	}
	return DefaultProgram(assignments)
}
