// Package editor ties the engine together: a pure reducer over display
// state (groups + stale flags + document text), fed by execution-backend
// events and external document changes, with an explicit undo stack and
// origin-tagged change notification.
//
// The reducer shape keeps the engine independent of any rendering
// widget: hosts subscribe to state snapshots and draw however they like.
package editor

import (
	"context"
	"log/slog"

	"github.com/kr/pretty"

	"github.com/vito/tandem/pkg/backend"
	"github.com/vito/tandem/pkg/layout"
	"github.com/vito/tandem/pkg/realign"
	"github.com/vito/tandem/pkg/run"
	"github.com/vito/tandem/pkg/session"
)

// Event is one input to the reducer.
type Event interface {
	// EventOrigin tags who caused the event, for self-causation
	// filtering by subscribers. Empty means external (the backend).
	EventOrigin() layout.Origin
}

// BatchStarted begins an execution session (backend "expressions").
type BatchStarted struct {
	Spans []run.Span
	// Scope is the sub-range being re-executed, nil for a full run.
	Scope *run.Span
}

// ExpressionDone records one finished statement (backend "done").
type ExpressionDone struct {
	Result run.Result
}

// Interrupted cancels the statements at the given ranges.
type Interrupted struct {
	Spans []run.Span
}

// DocumentChanged reports the document's new full text, e.g. after a
// file reload. Displayed groups are realigned through a line diff.
type DocumentChanged struct {
	NewText string
	Origin  layout.Origin
}

// Reset discards the session and all displayed groups.
type Reset struct{}

func (BatchStarted) EventOrigin() layout.Origin      { return "" }
func (ExpressionDone) EventOrigin() layout.Origin    { return "" }
func (Interrupted) EventOrigin() layout.Origin       { return "" }
func (e DocumentChanged) EventOrigin() layout.Origin { return e.Origin }
func (Reset) EventOrigin() layout.Origin             { return "" }

// State is one display snapshot: the current document text, the ordered
// disjoint group list, and the stale flags.
type State struct {
	Text   string
	Groups []run.Group
	Stale  map[run.GroupID]bool
	// Results backs the groups' ResultIDs, for output rendering.
	Results map[int64]run.Result
}

type undoEntry struct {
	state State
	event Event
}

type subscriber struct {
	origin layout.Origin
	fn     func(State, Event)
}

// Editor is the reducer plus its collaborators. Not safe for concurrent
// use: all events must be applied from the single event goroutine.
type Editor struct {
	cfg     Config
	tracker *session.Tracker
	state   State
	undo    []undoEntry
	subs    []subscriber
}

// New creates an editor over the given initial document text. The
// execution backend is injected by whoever pumps its events into Apply
// (see Run); the editor holds no backend singleton.
func New(text string, cfg Config) *Editor {
	return &Editor{
		cfg:     cfg,
		tracker: session.NewTracker(),
		state:   State{Text: text},
	}
}

// State returns the current snapshot.
func (e *Editor) State() State {
	return e.state
}

// Subscribe registers a state listener. Updates caused by an event
// tagged with the subscriber's own origin are not delivered — the
// subscriber already knows about its own mutations.
func (e *Editor) Subscribe(origin layout.Origin, fn func(State, Event)) {
	e.subs = append(e.subs, subscriber{origin: origin, fn: fn})
}

// Apply runs one event through the reducer: mutate, record the
// pre-mutation snapshot for undo, publish. An event that fails leaves
// no undo entry.
func (e *Editor) Apply(ev Event) (State, error) {
	snap := e.snapshot()

	switch ev := ev.(type) {
	case BatchStarted:
		groups, err := e.tracker.BeginBatch(ev.Spans, ev.Scope)
		if err != nil {
			return e.state, err
		}
		e.state.Groups = groups

	case ExpressionDone:
		groups, err := e.tracker.Complete(ev.Result)
		if err != nil {
			return e.state, err
		}
		e.state.Groups = groups

	case Interrupted:
		_, groups, err := e.tracker.Cancel(ev.Spans)
		if err != nil {
			return e.state, err
		}
		e.state.Groups = groups

	case DocumentChanged:
		adjusted := realign.AdjustGroups(e.state.Text, ev.NewText, e.state.Groups)
		e.tracker.ReplaceGroups(adjusted)
		e.state.Text = ev.NewText
		e.state.Groups = adjusted

	case Reset:
		e.tracker.Reset()
		e.state.Groups = nil
	}

	e.pushUndo(snap, ev)

	e.state.Stale = e.tracker.StaleGroups()
	e.state.Results = e.tracker.Results()

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("state updated",
			"event", pretty.Sprintf("%T", ev),
			"groups", len(e.state.Groups))
	}

	e.publish(ev)
	return e.state, nil
}

// Undo restores the snapshot taken before the most recent event and
// returns that event. ok is false when the stack is empty.
//
// Session registrations cannot be rolled back to an arbitrary midpoint:
// undoing a session event (batch, completion, interrupt, reset)
// discards the running session, keeping only the restored display
// list, so later backend events for the undone session fall through as
// unknown-range no-ops. Undoing a document change leaves the session
// alone.
func (e *Editor) Undo() (Event, bool) {
	if len(e.undo) == 0 {
		return nil, false
	}
	entry := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]

	switch entry.event.(type) {
	case BatchStarted, ExpressionDone, Interrupted, Reset:
		e.tracker.Reset()
	}

	e.state = entry.state
	e.tracker.ReplaceGroups(entry.state.Groups)
	e.publish(entry.event)
	return entry.event, true
}

// Run pumps a backend's event stream through the reducer until the
// stream closes or the context is cancelled.
func (e *Editor) Run(ctx context.Context, client backend.Client) error {
	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				return nil
			}
			var err error
			switch ev := ev.(type) {
			case backend.ExpressionsEvent:
				_, err = e.Apply(BatchStarted{Spans: ev.Spans, Scope: ev.Scope})
			case backend.DoneEvent:
				_, err = e.Apply(ExpressionDone{Result: ev.Result})
			}
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Interrupt asks the backend to stop and applies the resulting
// cancellation.
func (e *Editor) Interrupt(ctx context.Context, client backend.Client) error {
	spans, err := client.Interrupt(ctx)
	if err != nil {
		return err
	}
	_, err = e.Apply(Interrupted{Spans: spans})
	return err
}

// snapshot deep-copies the mutable parts of the current state.
func (e *Editor) snapshot() State {
	snap := e.state
	snap.Groups = append([]run.Group(nil), e.state.Groups...)
	snap.Stale = make(map[run.GroupID]bool, len(e.state.Stale))
	for id, v := range e.state.Stale {
		snap.Stale[id] = v
	}
	return snap
}

func (e *Editor) pushUndo(snap State, ev Event) {
	e.undo = append(e.undo, undoEntry{state: snap, event: ev})
	if max := e.cfg.UndoDepth; max > 0 && len(e.undo) > max {
		e.undo = e.undo[len(e.undo)-max:]
	}
}

func (e *Editor) publish(ev Event) {
	for _, sub := range e.subs {
		if sub.origin != "" && sub.origin == ev.EventOrigin() {
			// The subscriber caused this update; delivering it back
			// would only re-trigger its own recomputation.
			continue
		}
		sub.fn(e.state, ev)
	}
}
