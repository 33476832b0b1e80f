package run

import (
	"fmt"
	"slices"
	"sort"
)

// GroupID is a stable identity token for a line group. IDs survive
// recomputation when the group's line interval is unchanged, so the UI
// can track "the same" group across updates. Zero means unassigned;
// the session tracker fills IDs in during reconciliation.
type GroupID int64

// Group is a maximal line-contiguous cluster of execution results: the
// primary unit of display and of cross-pane layout synchronization.
//
// Invariants, for any snapshot of groups: pairwise line-disjoint, sorted
// ascending by LineStart, non-empty membership, and minimal (no group can
// be split into two line-disjoint halves without separating results that
// share a line).
type Group struct {
	ID GroupID

	// ResultIDs is the member set, sorted ascending, deduplicated.
	ResultIDs []int64

	// LineStart/LineEnd cover the union of the members' line spans.
	LineStart int
	LineEnd   int

	// State is the merged lifecycle state of the members (see MergeStates).
	State State

	// HasError is the OR over members.
	HasError bool

	// AllInvisible is the AND over members.
	AllInvisible bool

	// PreviousResultIDs is the membership this group had before the most
	// recent update, when identity was reused. Nil otherwise. Used for
	// change highlighting.
	PreviousResultIDs []int64
}

// Span returns the group's covered line range.
func (g Group) Span() Span {
	return Span{Start: g.LineStart, End: g.LineEnd}
}

func (g Group) String() string {
	return fmt.Sprintf("group %d %s %s %v", g.ID, g.Span(), g.State, g.ResultIDs)
}

// MergeStates derives a group-level state from its members' states:
// executing if any member is executing; else cancelled if any member is
// cancelled; else pending if any member is pending; else done.
func MergeStates(states []State) State {
	merged := StateDone
	for _, s := range states {
		switch s {
		case StateExecuting:
			return StateExecuting
		case StateCancelled:
			merged = StateCancelled
		case StatePending:
			if merged != StateCancelled {
				merged = StatePending
			}
		}
	}
	return merged
}

// unionFind is a disjoint-set over result indexes with path compression.
// Union order is deterministic: the root with the smaller index wins, so
// ties resolve by input order rather than by insertion order of groups.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]] // path compression
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if ra > rb {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
}

// ComputeLineGroups partitions results into maximal line-contiguous
// clusters. Two results land in the same group iff they share at least
// one line number, transitively. Results that merely abut (end 3, start 4)
// stay separate.
//
// The output is sorted ascending by LineStart and its groups are pairwise
// line-disjoint. Group IDs are left zero; callers that need stable
// identity assign them (see the session tracker).
//
// A result with a malformed range rejects the whole call: submitting such
// data is a contract violation by the caller, not a condition to paper
// over by dropping the result.
func ComputeLineGroups(results []Result) ([]Group, error) {
	if len(results) == 0 {
		return nil, nil
	}
	for _, r := range results {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}

	uf := newUnionFind(len(results))

	// line number -> index of the first result seen touching that line.
	owner := make(map[int]int)
	for i, r := range results {
		for line := r.LineStart; line <= r.LineEnd; line++ {
			if j, ok := owner[line]; ok {
				uf.union(i, j)
			} else {
				owner[line] = i
			}
		}
	}

	// Partition by root, preserving input order within each partition.
	parts := make(map[int][]int)
	var roots []int
	for i := range results {
		root := uf.find(i)
		if _, ok := parts[root]; !ok {
			roots = append(roots, root)
		}
		parts[root] = append(parts[root], i)
	}

	groups := make([]Group, 0, len(roots))
	for _, root := range roots {
		members := parts[root]

		g := Group{
			LineStart:    results[members[0]].LineStart,
			LineEnd:      results[members[0]].LineEnd,
			AllInvisible: true,
		}
		states := make([]State, 0, len(members))
		for _, i := range members {
			r := results[i]
			g.ResultIDs = append(g.ResultIDs, r.ID)
			g.LineStart = min(g.LineStart, r.LineStart)
			g.LineEnd = max(g.LineEnd, r.LineEnd)
			g.HasError = g.HasError || r.HasError
			g.AllInvisible = g.AllInvisible && r.Invisible
			states = append(states, r.State)
		}
		g.State = MergeStates(states)

		slices.Sort(g.ResultIDs)
		g.ResultIDs = slices.Compact(g.ResultIDs)

		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].LineStart < groups[j].LineStart
	})
	return groups, nil
}
