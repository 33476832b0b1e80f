package backend

import (
	"context"
	"sync"
	"time"

	"github.com/vito/tandem/pkg/run"
)

// Step is one statement in a scripted session: its span and the
// completed result to report for it.
type Step struct {
	Span   run.Span
	Result run.Result
	// Delay before the done event, simulating execution time.
	Delay time.Duration
}

// Scripted is a deterministic in-memory backend replaying a fixed
// session. It drives the same Client interface as a live connection, so
// the demo and the tests exercise the real event path.
type Scripted struct {
	steps  []Step
	scope  *run.Span
	events chan Event

	mu          sync.Mutex
	next        int // first step not yet done
	interrupted bool
	closed      bool
}

var _ Client = (*Scripted)(nil)

// NewScripted builds a backend that will replay the given steps.
func NewScripted(steps []Step, scope *run.Span) *Scripted {
	return &Scripted{
		steps:  steps,
		scope:  scope,
		events: make(chan Event, len(steps)+1),
	}
}

// Run replays the session: one expressions event, then a done event per
// step. Returns when the script finishes, the context is cancelled, or
// Interrupt was called.
func (s *Scripted) Run(ctx context.Context) error {
	spans := make([]run.Span, len(s.steps))
	for i, st := range s.steps {
		spans[i] = st.Span
	}
	if err := s.emit(ctx, ExpressionsEvent{Spans: spans, Scope: s.scope}); err != nil {
		return err
	}

	for i, st := range s.steps {
		if st.Delay > 0 {
			select {
			case <-time.After(st.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		s.mu.Lock()
		if s.interrupted || s.closed {
			s.mu.Unlock()
			return nil
		}
		s.next = i + 1
		s.mu.Unlock()

		res := st.Result
		res.LineStart = st.Span.Start
		res.LineEnd = st.Span.End
		res.State = run.StateDone
		if err := s.emit(ctx, DoneEvent{Result: res}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scripted) emit(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	// The buffer is sized for the whole script, so this never blocks.
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events implements Client.
func (s *Scripted) Events() <-chan Event {
	return s.events
}

// Interrupt implements Client. It stops playback and returns the spans
// of the steps that had not completed yet.
func (s *Scripted) Interrupt(ctx context.Context) ([]run.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = true
	var remaining []run.Span
	for _, st := range s.steps[s.next:] {
		remaining = append(remaining, st.Span)
	}
	return remaining, nil
}

// Close implements Client.
func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.interrupted = true
	close(s.events)
	return nil
}
