// Package backend defines the execution-backend interface the engine
// consumes: a stream of "expressions" / "done" events plus an interrupt
// control returning the cancelled ranges.
//
// The backend is an injected dependency of the editor, never a
// package-level singleton. Two implementations ship here: an RPC client
// speaking JSON-RPC to a real execution service, and a Scripted backend
// for tests and demo playback.
package backend

import (
	"context"

	"github.com/vito/tandem/pkg/run"
)

// Event is one message from the execution backend.
type Event interface {
	event()
}

// ExpressionsEvent announces that execution is starting: it carries the
// line spans of every statement about to run, in execution order.
type ExpressionsEvent struct {
	Spans []run.Span
	// Scope is the sub-range being re-executed, nil for a full run.
	Scope *run.Span
}

// DoneEvent reports one finished statement with its real output.
type DoneEvent struct {
	Result run.Result
}

func (ExpressionsEvent) event() {}
func (DoneEvent) event()        {}

// Client is an execution backend.
type Client interface {
	// Events returns the event stream. The channel closes when the
	// backend disconnects or is closed.
	Events() <-chan Event

	// Interrupt stops execution and returns the line ranges whose
	// statements were cancelled (still pending or executing).
	Interrupt(ctx context.Context) ([]run.Span, error)

	// Close releases the connection. The event channel closes soon after.
	Close() error
}
