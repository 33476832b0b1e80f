// Package session tracks one execute/interrupt cycle of an execution
// backend: which statement occupies which line range, each statement's
// lifecycle state, and the line-group list currently on display.
//
// The tracker is the single writer of the displayed group list. It feeds
// every registered result through run.ComputeLineGroups after each event,
// then reconciles the fresh groups against the previous list so that
// group identity (and therefore layout state keyed on it) survives
// recomputation.
package session

import (
	"log/slog"
	"sort"

	"github.com/vito/tandem/pkg/run"
)

// Tracker maintains the running execution session and the displayed
// group list. All methods must be called from the single event
// goroutine; the tracker does no locking of its own.
type Tracker struct {
	nextResultID int64
	nextGroupID  run.GroupID

	// Registered entries for the current session, keyed by line range.
	// order preserves registration (batch arrival) order, which drives
	// the pending -> executing promotion.
	entries map[run.Span]*run.Result
	order   []run.Span

	// scope is the sub-range being (re-)executed, nil for a full run.
	scope *run.Span

	// displayed is the last-shown group list; lastShown indexes the
	// results backing it, for provisional-output reuse on the next batch.
	displayed []run.Group
	lastShown map[int64]run.Result

	// stale is the set of displayed groups whose member was cancelled or
	// superseded; kept for display but dimmed by the UI.
	stale map[run.GroupID]struct{}
}

// NewTracker returns an empty tracker. The zero result/group ID is never
// allocated.
func NewTracker() *Tracker {
	return &Tracker{
		entries:   make(map[run.Span]*run.Result),
		lastShown: make(map[int64]run.Result),
		stale:     make(map[run.GroupID]struct{}),
	}
}

// Groups returns the displayed group list: pairwise line-disjoint,
// sorted ascending by LineStart. Callers must not mutate it.
func (t *Tracker) Groups() []run.Group {
	return t.displayed
}

// IsStale reports whether the group is flagged stale (a member was
// cancelled since it was last shown).
func (t *Tracker) IsStale(id run.GroupID) bool {
	_, ok := t.stale[id]
	return ok
}

// Results returns the results backing the displayed groups, keyed by
// result ID. Output panes use it to render each group's member output.
func (t *Tracker) Results() map[int64]run.Result {
	out := make(map[int64]run.Result, len(t.lastShown))
	for id, r := range t.lastShown {
		out[id] = r
	}
	return out
}

// StaleGroups returns the stale flag set as a map keyed by group ID.
func (t *Tracker) StaleGroups() map[run.GroupID]bool {
	out := make(map[run.GroupID]bool, len(t.stale))
	for id := range t.stale {
		out[id] = true
	}
	return out
}

// Reset discards the session and the displayed list entirely.
func (t *Tracker) Reset() {
	t.entries = make(map[run.Span]*run.Result)
	t.order = nil
	t.scope = nil
	t.displayed = nil
	t.lastShown = make(map[int64]run.Result)
	t.stale = make(map[run.GroupID]struct{})
}

// BeginBatch starts a new execution session for the given statement
// spans, in arrival order. The first statement is marked executing, the
// rest pending. scope, when non-nil, is the sub-range being re-executed;
// displayed groups entirely outside it are retained across the session.
//
// If a span matches the range of a previously displayed group, the most
// recent occupant's output is attached provisionally so the UI keeps
// showing stale output while the new run is pending.
//
// Stale flags are cleared: a new batch supersedes any cancellation dimming.
func (t *Tracker) BeginBatch(spans []run.Span, scope *run.Span) ([]run.Group, error) {
	t.entries = make(map[run.Span]*run.Result, len(spans))
	t.order = t.order[:0]
	t.scope = scope
	t.stale = make(map[run.GroupID]struct{})

	prev := t.previousOccupants()

	for i, span := range spans {
		if err := span.Validate(); err != nil {
			return nil, err
		}
		t.nextResultID++
		r := &run.Result{
			ID:        t.nextResultID,
			LineStart: span.Start,
			LineEnd:   span.End,
			State:     run.StatePending,
		}
		if i == 0 {
			r.State = run.StateExecuting
		}
		if old, ok := prev[span]; ok {
			r.Output = old.Output
			r.HasError = old.HasError
			r.Invisible = old.Invisible
		}
		t.entries[span] = r
		t.order = append(t.order, span)
	}

	return t.refresh()
}

// previousOccupants maps each previously displayed range to the result
// that most recently occupied it, read off the last-shown group list via
// each group's last (highest) result ID.
func (t *Tracker) previousOccupants() map[run.Span]run.Result {
	prev := make(map[run.Span]run.Result, len(t.displayed))
	for _, g := range t.displayed {
		if len(g.ResultIDs) == 0 {
			continue
		}
		last := g.ResultIDs[len(g.ResultIDs)-1]
		if r, ok := t.lastShown[last]; ok {
			prev[g.Span()] = r
		}
	}
	return prev
}

// Complete records a finished statement. The registered entry at the
// result's range is replaced with the completed result (state done, real
// output); a missing range is a no-op. The first still-pending entry in
// registration order is then promoted to executing.
func (t *Tracker) Complete(res run.Result) ([]run.Group, error) {
	entry, ok := t.entries[res.Span()]
	if !ok {
		slog.Debug("completion for unregistered range ignored", "span", res.Span())
		return t.displayed, nil
	}

	res.State = run.StateDone
	if res.ID == 0 {
		res.ID = entry.ID
	}
	*entry = res

	for _, span := range t.order {
		if t.entries[span].State == run.StatePending {
			t.entries[span].State = run.StateExecuting
			break
		}
	}

	return t.refresh()
}

// Cancel marks the entries at the given ranges cancelled, provided they
// are still pending or executing. Ranges with no registered entry are
// ignored. Displayed groups containing a cancelled result are flagged
// stale. Returns the cancelled result IDs.
func (t *Tracker) Cancel(spans []run.Span) ([]int64, []run.Group, error) {
	var cancelled []int64
	for _, span := range spans {
		entry, ok := t.entries[span]
		if !ok {
			continue
		}
		switch entry.State {
		case run.StatePending, run.StateExecuting:
			entry.State = run.StateCancelled
			cancelled = append(cancelled, entry.ID)
		}
	}
	if len(cancelled) == 0 {
		return nil, t.displayed, nil
	}

	groups, err := t.refresh()
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[int64]struct{}, len(cancelled))
	for _, id := range cancelled {
		byID[id] = struct{}{}
	}
	for _, g := range groups {
		for _, id := range g.ResultIDs {
			if _, ok := byID[id]; ok {
				t.stale[g.ID] = struct{}{}
				break
			}
		}
	}

	return cancelled, groups, nil
}

// ReplaceGroups overwrites the displayed list wholesale. Used after diff
// realignment, where group geometry changed without any session event.
// Stale flags are pruned to groups that still exist.
func (t *Tracker) ReplaceGroups(groups []run.Group) {
	t.displayed = groups
	t.pruneStale()
}

// refresh recomputes groups from all registered results and reconciles
// them against the displayed list.
func (t *Tracker) refresh() ([]run.Group, error) {
	results := make([]run.Result, 0, len(t.order))
	for _, span := range t.order {
		results = append(results, *t.entries[span])
	}

	fresh, err := run.ComputeLineGroups(results)
	if err != nil {
		return nil, err
	}

	t.reconcile(fresh)

	shown := make(map[int64]run.Result, len(results))
	for _, r := range results {
		shown[r.ID] = r
	}
	// Retained out-of-scope groups still reference prior-session results;
	// carry those over so the next batch can reuse their output.
	for _, g := range t.displayed {
		for _, id := range g.ResultIDs {
			if _, ok := shown[id]; !ok {
				if old, ok := t.lastShown[id]; ok {
					shown[id] = old
				}
			}
		}
	}
	t.lastShown = shown

	return t.displayed, nil
}

// reconcile merges freshly computed groups into the displayed list:
// identity reuse on exact interval match, partial-execution retention of
// out-of-scope groups, full replacement otherwise.
func (t *Tracker) reconcile(fresh []run.Group) {
	bySpan := make(map[run.Span]run.Group, len(t.displayed))
	for _, g := range t.displayed {
		bySpan[g.Span()] = g
	}

	for i := range fresh {
		if old, ok := bySpan[fresh[i].Span()]; ok {
			fresh[i].ID = old.ID
			fresh[i].PreviousResultIDs = old.ResultIDs
		} else {
			t.nextGroupID++
			fresh[i].ID = t.nextGroupID
		}
	}

	if t.scope != nil {
		var next []run.Group
		for _, g := range t.displayed {
			if g.LineEnd < t.scope.Start || g.LineStart > t.scope.End {
				next = append(next, g)
			}
		}
		next = append(next, fresh...)
		sort.Slice(next, func(i, j int) bool {
			return next[i].LineStart < next[j].LineStart
		})
		t.displayed = next
	} else {
		t.displayed = fresh
	}

	t.pruneStale()
}

// pruneStale drops stale flags for groups no longer in the displayed list.
func (t *Tracker) pruneStale() {
	if len(t.stale) == 0 {
		return
	}
	live := make(map[run.GroupID]struct{}, len(t.displayed))
	for _, g := range t.displayed {
		live[g.ID] = struct{}{}
	}
	for id := range t.stale {
		if _, ok := live[id]; !ok {
			delete(t.stale, id)
		}
	}
}
