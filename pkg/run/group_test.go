package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func res(id int64, start, end int) Result {
	return Result{ID: id, LineStart: start, LineEnd: end, State: StateDone}
}

func TestComputeSharedLineMerges(t *testing.T) {
	groups, err := ComputeLineGroups([]Result{
		res(1, 1, 3),
		res(2, 3, 5),
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []int64{1, 2}, groups[0].ResultIDs)
	assert.Equal(t, 1, groups[0].LineStart)
	assert.Equal(t, 5, groups[0].LineEnd)
}

func TestComputeDisjointStaySeparate(t *testing.T) {
	groups, err := ComputeLineGroups([]Result{
		res(1, 1, 1),
		res(2, 5, 6),
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []int64{1}, groups[0].ResultIDs)
	assert.Equal(t, []int64{2}, groups[1].ResultIDs)
	assert.Less(t, groups[0].LineStart, groups[1].LineStart)
}

func TestComputeAdjacentWithoutSharedLineStaySeparate(t *testing.T) {
	// End 3 next to start 4: touching endpoints, no common line.
	groups, err := ComputeLineGroups([]Result{
		res(1, 1, 3),
		res(2, 4, 5),
	})
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestComputeTransitiveMerge(t *testing.T) {
	// 1 and 3 share no line but both share one with 2.
	groups, err := ComputeLineGroups([]Result{
		res(1, 1, 2),
		res(3, 4, 6),
		res(2, 2, 4),
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []int64{1, 2, 3}, groups[0].ResultIDs)
	assert.Equal(t, 1, groups[0].LineStart)
	assert.Equal(t, 6, groups[0].LineEnd)
}

func TestComputeIdempotent(t *testing.T) {
	input := []Result{
		res(1, 1, 2),
		res(2, 2, 3),
		res(3, 7, 9),
		res(4, 9, 9),
		res(5, 12, 12),
	}
	first, err := ComputeLineGroups(input)
	require.NoError(t, err)
	second, err := ComputeLineGroups(input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeDisjointAndSorted(t *testing.T) {
	groups, err := ComputeLineGroups([]Result{
		res(5, 20, 22),
		res(1, 1, 2),
		res(3, 10, 10),
		res(2, 2, 4),
		res(4, 21, 21),
	})
	require.NoError(t, err)
	for i := 1; i < len(groups); i++ {
		prev, cur := groups[i-1], groups[i]
		assert.Less(t, prev.LineEnd, cur.LineStart,
			"groups %v and %v must be line-disjoint and sorted", prev, cur)
	}
}

func TestComputeEmptyInput(t *testing.T) {
	groups, err := ComputeLineGroups(nil)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestComputeNeverDropsResults(t *testing.T) {
	input := []Result{
		res(1, 1, 1), res(2, 1, 1), res(3, 2, 2), res(4, 8, 9),
	}
	groups, err := ComputeLineGroups(input)
	require.NoError(t, err)
	seen := map[int64]bool{}
	for _, g := range groups {
		require.NotEmpty(t, g.ResultIDs)
		for _, id := range g.ResultIDs {
			seen[id] = true
		}
	}
	assert.Len(t, seen, len(input))
}

func TestComputeMalformedRangeRejected(t *testing.T) {
	_, err := ComputeLineGroups([]Result{res(1, 5, 3)})
	require.Error(t, err)

	_, err = ComputeLineGroups([]Result{res(1, 0, 2)})
	require.Error(t, err)
}

func TestComputeFlags(t *testing.T) {
	groups, err := ComputeLineGroups([]Result{
		{ID: 1, LineStart: 1, LineEnd: 2, State: StateDone, HasError: true, Invisible: true},
		{ID: 2, LineStart: 2, LineEnd: 3, State: StateDone, Invisible: true},
		{ID: 3, LineStart: 5, LineEnd: 5, State: StateDone},
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.True(t, groups[0].HasError)
	assert.True(t, groups[0].AllInvisible)
	assert.False(t, groups[1].HasError)
	assert.False(t, groups[1].AllInvisible)
}

func TestMergeStates(t *testing.T) {
	cases := []struct {
		name   string
		states []State
		want   State
	}{
		{"executing wins", []State{StateDone, StateExecuting, StateCancelled}, StateExecuting},
		{"cancelled over pending", []State{StatePending, StateCancelled, StateDone}, StateCancelled},
		{"pending over done", []State{StateDone, StatePending}, StatePending},
		{"all done", []State{StateDone, StateDone}, StateDone},
		{"single member", []State{StateCancelled}, StateCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MergeStates(tc.states))
		})
	}
}

func TestClasses(t *testing.T) {
	g := Group{State: StateExecuting, HasError: true}
	assert.Equal(t, []string{"group-executing", "group-has-error"}, Classes(g, false))

	g = Group{State: StateDone, AllInvisible: true}
	assert.Equal(t, []string{"group-done", "group-all-invisible", "group-stale"}, Classes(g, true))
}
