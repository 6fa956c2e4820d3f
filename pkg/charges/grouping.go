// Package charges provides pure functions for arranging per-person charge
// rows for tabular display: filtering, grouping by person, and ordering
// base rows before adjustment rows within each group.
package charges

import "strings"

// AllDepartments is the sentinel department filter meaning "no filter".
const AllDepartments = "__all__"

// Entry is the minimal view of a charge row needed for filtering and
// grouping. Index-preserving: callers map Placement.Index back to their
// own row slice.
type Entry struct {
	Name         string
	IDNumber     string
	Department   string
	IsAdjustment bool
}

// Placement positions one input entry in the displayed table.
type Placement struct {
	Index        int  // index into the input slice passed to Arrange
	FirstInGroup bool // true only for the first row of a person's group
	Sequence     int  // 1-based group number; 0 on non-first rows
}

// MatchesFilter reports whether an entry passes the search text and
// department filter. Search matches case-insensitively on name OR as a
// plain substring on the id number. Department matches as a substring;
// AllDepartments (or empty) disables the department filter.
func MatchesFilter(e Entry, search, department string) bool {
	if search != "" {
		nameHit := strings.Contains(strings.ToLower(e.Name), strings.ToLower(search))
		idHit := strings.Contains(e.IDNumber, search)
		if !nameHit && !idHit {
			return false
		}
	}
	if department != "" && department != AllDepartments {
		if !strings.Contains(e.Department, department) {
			return false
		}
	}
	return true
}

// Filter returns the indices of entries passing MatchesFilter, in input order.
func Filter(entries []Entry, search, department string) []int {
	kept := []int{}
	for i, e := range entries {
		if MatchesFilter(e, search, department) {
			kept = append(kept, i)
		}
	}
	return kept
}

// Arrange groups entries by (name, id number) and orders each group with
// base rows before adjustment rows, both sub-orders stable. Groups appear
// in first-seen order of the input — this is a partition, not a sort.
// Only the first row of each group is flagged FirstInGroup and carries the
// group sequence number; the remaining rows render a blank sequence cell.
func Arrange(entries []Entry) []Placement {
	type group struct {
		base []int
		adj  []int
	}

	order := []string{}
	groups := map[string]*group{}

	for i, e := range entries {
		key := e.Name + "\x00" + e.IDNumber
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		if e.IsAdjustment {
			g.adj = append(g.adj, i)
		} else {
			g.base = append(g.base, i)
		}
	}

	out := make([]Placement, 0, len(entries))
	for seq, key := range order {
		g := groups[key]
		first := true
		for _, idx := range append(g.base, g.adj...) {
			p := Placement{Index: idx}
			if first {
				p.FirstInGroup = true
				p.Sequence = seq + 1
				first = false
			}
			out = append(out, p)
		}
	}
	return out
}

// ArrangeFiltered filters then arranges in one pass, returning placements
// whose Index values point into the ORIGINAL entries slice. Grouping is
// recomputed from scratch; cross-group order follows the filtered input.
func ArrangeFiltered(entries []Entry, search, department string) []Placement {
	kept := Filter(entries, search, department)
	sub := make([]Entry, len(kept))
	for i, idx := range kept {
		sub[i] = entries[idx]
	}

	placements := Arrange(sub)
	for i := range placements {
		placements[i].Index = kept[placements[i].Index]
	}
	return placements
}
