package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vito/tandem/pkg/run"
)

func span(start, end int) run.Span {
	return run.Span{Start: start, End: end}
}

func TestBeginBatchFirstExecutingRestPending(t *testing.T) {
	tr := NewTracker()
	groups, err := tr.BeginBatch([]run.Span{span(1, 2), span(3, 4), span(6, 7)}, nil)
	require.NoError(t, err)
	// Spans 1-2 and 3-4 abut without sharing a line: separate groups.
	require.Len(t, groups, 3)
	assert.Equal(t, run.StateExecuting, groups[0].State)
	assert.Equal(t, run.StatePending, groups[1].State)
	assert.Equal(t, run.StatePending, groups[2].State)
}

func TestBatchArrivalOrderDrivesExecuting(t *testing.T) {
	// First arrival is executing even when it is not first in line order.
	tr := NewTracker()
	groups, err := tr.BeginBatch([]run.Span{span(5, 6), span(1, 2)}, nil)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, run.StatePending, groups[0].State)   // lines 1-2
	assert.Equal(t, run.StateExecuting, groups[1].State) // lines 5-6
}

func TestEmptyBatchYieldsNoGroups(t *testing.T) {
	tr := NewTracker()
	groups, err := tr.BeginBatch(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestCompletePromotesNextPending(t *testing.T) {
	tr := NewTracker()
	_, err := tr.BeginBatch([]run.Span{span(1, 1), span(3, 3), span(5, 5)}, nil)
	require.NoError(t, err)

	groups, err := tr.Complete(run.Result{
		LineStart: 1, LineEnd: 1,
		Output: []run.OutputItem{{Kind: "text", Text: "2"}},
	})
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, run.StateDone, groups[0].State)
	assert.Equal(t, run.StateExecuting, groups[1].State)
	assert.Equal(t, run.StatePending, groups[2].State)

	done := tr.entries[span(1, 1)]
	require.Len(t, done.Output, 1)
	assert.Equal(t, "2", done.Output[0].Text)
}

func TestCompleteUnknownRangeIsNoop(t *testing.T) {
	tr := NewTracker()
	_, err := tr.BeginBatch([]run.Span{span(1, 1)}, nil)
	require.NoError(t, err)

	groups, err := tr.Complete(run.Result{LineStart: 9, LineEnd: 9})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, run.StateExecuting, groups[0].State)
}

func TestCancelMarksPendingAndExecuting(t *testing.T) {
	tr := NewTracker()
	_, err := tr.BeginBatch([]run.Span{span(1, 1), span(3, 3), span(5, 5)}, nil)
	require.NoError(t, err)
	_, err = tr.Complete(run.Result{LineStart: 1, LineEnd: 1})
	require.NoError(t, err)

	cancelled, groups, err := tr.Cancel([]run.Span{span(1, 1), span(3, 3), span(5, 5), span(9, 9)})
	require.NoError(t, err)
	assert.Len(t, cancelled, 2) // done entry untouched, unknown range ignored
	require.Len(t, groups, 3)
	assert.Equal(t, run.StateDone, groups[0].State)
	assert.Equal(t, run.StateCancelled, groups[1].State)
	assert.Equal(t, run.StateCancelled, groups[2].State)
}

func TestCancelFlagsStaleGroupsAndBatchClears(t *testing.T) {
	tr := NewTracker()
	_, err := tr.BeginBatch([]run.Span{span(1, 1), span(3, 3)}, nil)
	require.NoError(t, err)

	_, groups, err := tr.Cancel([]run.Span{span(3, 3)})
	require.NoError(t, err)
	var stale, fresh run.GroupID
	for _, g := range groups {
		if g.LineStart == 3 {
			stale = g.ID
		} else {
			fresh = g.ID
		}
	}
	assert.True(t, tr.IsStale(stale))
	assert.False(t, tr.IsStale(fresh))

	_, err = tr.BeginBatch([]run.Span{span(1, 1)}, nil)
	require.NoError(t, err)
	assert.False(t, tr.IsStale(stale), "new batch clears stale flags")
}

func TestIdentityReuseOnMatchingInterval(t *testing.T) {
	tr := NewTracker()
	first, err := tr.BeginBatch([]run.Span{span(1, 2), span(4, 5)}, nil)
	require.NoError(t, err)
	require.Len(t, first, 2)
	firstIDs := []run.GroupID{first[0].ID, first[1].ID}
	firstMembers := append([]int64(nil), first[0].ResultIDs...)

	second, err := tr.BeginBatch([]run.Span{span(1, 2), span(4, 5)}, nil)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, firstIDs[0], second[0].ID)
	assert.Equal(t, firstIDs[1], second[1].ID)
	assert.Equal(t, firstMembers, second[0].PreviousResultIDs)
	assert.NotEqual(t, firstMembers, second[0].ResultIDs, "fresh results get fresh ids")
}

func TestNewIntervalGetsNewIdentity(t *testing.T) {
	tr := NewTracker()
	first, err := tr.BeginBatch([]run.Span{span(1, 2)}, nil)
	require.NoError(t, err)
	second, err := tr.BeginBatch([]run.Span{span(1, 3)}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.Nil(t, second[0].PreviousResultIDs)
}

func TestProvisionalOutputAttachedFromPreviousRun(t *testing.T) {
	tr := NewTracker()
	_, err := tr.BeginBatch([]run.Span{span(1, 2)}, nil)
	require.NoError(t, err)
	_, err = tr.Complete(run.Result{
		LineStart: 1, LineEnd: 2,
		Output:   []run.OutputItem{{Kind: "text", Text: "42"}},
		HasError: false,
	})
	require.NoError(t, err)

	// Re-running the same range shows the old output while pending.
	groups, err := tr.BeginBatch([]run.Span{span(1, 2)}, nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, run.StateExecuting, groups[0].State)

	// The provisional output lives on the registered result.
	res := tr.entries[span(1, 2)]
	require.Len(t, res.Output, 1)
	assert.Equal(t, "42", res.Output[0].Text)
}

func TestPartialExecutionMerge(t *testing.T) {
	// Prior groups [1,2] and [5,6]; re-execute [3,4].
	tr := NewTracker()
	prior, err := tr.BeginBatch([]run.Span{span(1, 2), span(5, 6)}, nil)
	require.NoError(t, err)
	require.Len(t, prior, 2)
	keptA, keptB := prior[0].ID, prior[1].ID

	scope := span(3, 4)
	groups, err := tr.BeginBatch([]run.Span{span(3, 4)}, &scope)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, keptA, groups[0].ID)
	assert.Equal(t, 3, groups[1].LineStart)
	assert.Equal(t, 4, groups[1].LineEnd)
	assert.Equal(t, keptB, groups[2].ID)
	// Sorted ascending by LineStart.
	for i := 1; i < len(groups); i++ {
		assert.Less(t, groups[i-1].LineStart, groups[i].LineStart)
	}
}

func TestPartialMergeDiscardsOverlappingPriorGroups(t *testing.T) {
	tr := NewTracker()
	_, err := tr.BeginBatch([]run.Span{span(1, 2), span(4, 5), span(7, 8)}, nil)
	require.NoError(t, err)

	// Re-execute [4,5]: the overlapping prior group goes away, the two
	// outside survive.
	scope := span(4, 5)
	groups, err := tr.BeginBatch([]run.Span{span(4, 5)}, &scope)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, 1, groups[0].LineStart)
	assert.Equal(t, 4, groups[1].LineStart)
	assert.Equal(t, run.StateExecuting, groups[1].State)
	assert.Equal(t, 7, groups[2].LineStart)
}

func TestResetDiscardsEverything(t *testing.T) {
	tr := NewTracker()
	_, err := tr.BeginBatch([]run.Span{span(1, 1)}, nil)
	require.NoError(t, err)
	tr.Reset()
	assert.Empty(t, tr.Groups())
	assert.Empty(t, tr.StaleGroups())
}
