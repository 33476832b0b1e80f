package realign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vito/tandem/pkg/run"
)

func group(id run.GroupID, start, end int) run.Group {
	return run.Group{
		ID:        id,
		ResultIDs: []int64{int64(id)},
		LineStart: start,
		LineEnd:   end,
		State:     run.StateDone,
	}
}

func TestIdenticalContentIsIdentity(t *testing.T) {
	text := "a\nb\nc\nd\n"
	groups := []run.Group{group(1, 1, 2), group(2, 4, 4)}
	out := AdjustGroups(text, text, groups)
	assert.Equal(t, groups, out)
}

func TestInsertionAboveShiftsDown(t *testing.T) {
	out := AdjustGroups("a\nb\nc\n", "new\na\nb\nc\n", []run.Group{group(1, 2, 3)})
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].LineStart)
	assert.Equal(t, 4, out[0].LineEnd)
	// Non-geometry fields untouched.
	assert.Equal(t, []int64{1}, out[0].ResultIDs)
	assert.Equal(t, run.StateDone, out[0].State)
}

func TestDeletionInsideSpanDropsGroup(t *testing.T) {
	out := AdjustGroups("a\nb\nc\n", "a\nc\n", []run.Group{group(1, 1, 3)})
	assert.Empty(t, out)
}

func TestInsertionInsideSpanDropsGroup(t *testing.T) {
	// Splitting a 3-line group leaves its mapped lines non-contiguous.
	out := AdjustGroups("a\nb\nc\n", "a\nX\nb\nc\n", []run.Group{group(1, 1, 3)})
	assert.Empty(t, out)
}

func TestDeletionOutsideSpanShiftsUp(t *testing.T) {
	out := AdjustGroups("x\na\nb\n", "a\nb\n", []run.Group{group(1, 2, 3)})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].LineStart)
	assert.Equal(t, 2, out[0].LineEnd)
}

func TestChangedLineDropsSpanningGroup(t *testing.T) {
	// A replacement removes the old line, so any group spanning it dies.
	out := AdjustGroups("a\nb\nc\n", "a\nB\nc\n", []run.Group{
		group(1, 1, 1),
		group(2, 2, 3),
	})
	require.Len(t, out, 1)
	assert.Equal(t, run.GroupID(1), out[0].ID)
}

func TestTrailingLineWithoutNewlineTreatedAsReplacement(t *testing.T) {
	out := AdjustGroups("a\nb", "a\nb!", []run.Group{group(1, 2, 2), group(2, 1, 1)})
	require.Len(t, out, 1)
	assert.Equal(t, run.GroupID(2), out[0].ID)
}

func TestSpanBeyondDocumentDropped(t *testing.T) {
	out := AdjustGroups("a\n", "a\n", []run.Group{group(1, 5, 9)})
	assert.Empty(t, out)
}

func TestMixedSurvivalAcrossGroups(t *testing.T) {
	oldText := "a\nb\nc\nd\ne\n"
	newText := "a\nb\nMID\nc\nd\n" // insert after b, delete e
	out := AdjustGroups(oldText, newText, []run.Group{
		group(1, 1, 2), // unchanged, stays [1,2]
		group(2, 3, 4), // shifted to [4,5]
		group(3, 5, 5), // e deleted, dropped
	})
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].LineStart)
	assert.Equal(t, 2, out[0].LineEnd)
	assert.Equal(t, 4, out[1].LineStart)
	assert.Equal(t, 5, out[1].LineEnd)
}
