package run

import (
	"fmt"
)

// State is the lifecycle state of an execution result.
type State int

const (
	StatePending State = iota
	StateExecuting
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Span is an inclusive, 1-based range of source lines.
type Span struct {
	Start int `json:"lineStart"`
	End   int `json:"lineEnd"`
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d]", s.Start, s.End)
}

// Validate reports whether the span is a well-formed 1-based range.
func (s Span) Validate() error {
	if s.Start < 1 {
		return fmt.Errorf("span %s: line numbers are 1-based", s)
	}
	if s.End < s.Start {
		return fmt.Errorf("span %s: end before start", s)
	}
	return nil
}

// Contains reports whether line falls inside the span.
func (s Span) Contains(line int) bool {
	return line >= s.Start && line <= s.End
}

// Overlaps reports whether the two spans share at least one line.
func (s Span) Overlaps(other Span) bool {
	return s.Start <= other.End && other.Start <= s.End
}

// OutputItem is one typed piece of output produced by a statement. The
// engine carries items opaquely; rendering them is the output pane's job.
type OutputItem struct {
	Kind string `json:"kind"` // "text", "error", "html", "image", ...
	Text string `json:"text"`
}

// Result is a single statement's execution record: the source lines it
// occupies, its lifecycle state, and whatever output has streamed in so
// far. Results are created when the backend reports a statement boundary
// and replaced wholesale when a new session starts.
type Result struct {
	// ID is process-unique and increasing. Allocated by the session
	// tracker, never reused.
	ID int64 `json:"id"`

	LineStart int   `json:"lineStart"`
	LineEnd   int   `json:"lineEnd"`
	State     State `json:"state"`

	Output []OutputItem `json:"output,omitempty"`

	HasError bool `json:"hasError,omitempty"`

	// Invisible is true when the statement produced no user-visible
	// output (e.g. an assignment).
	Invisible bool `json:"isInvisible,omitempty"`
}

// Span returns the result's line range.
func (r Result) Span() Span {
	return Span{Start: r.LineStart, End: r.LineEnd}
}

func (r Result) validate() error {
	if err := r.Span().Validate(); err != nil {
		return fmt.Errorf("result %d: %w", r.ID, err)
	}
	return nil
}
