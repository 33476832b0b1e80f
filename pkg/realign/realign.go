// Package realign remaps line groups across an external document change
// (e.g. a file reload) using a line-level diff. The policy is
// deliberately conservative: any edit that deletes a line inside a
// group's span, or fragments the span's mapped image, invalidates the
// group rather than guessing a new shape.
package realign

import (
	"log/slog"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/vito/tandem/pkg/run"
)

// deleted is the sentinel for an old line with no counterpart in the new
// content.
const deleted = -1

// lineMapping maps 1-based old line numbers to 1-based new line numbers.
// Index 0 is unused. Removed and replaced lines map to deleted; inserted
// lines consume no old-line slot.
type lineMapping []int

// newLineMapping diffs the two texts line-by-line and builds the old->new
// table. It is computed once per document change and discarded after use.
func newLineMapping(oldText, newText string) lineMapping {
	a := strings.Split(oldText, "\n")
	b := strings.Split(newText, "\n")

	mapping := make(lineMapping, len(a)+1)
	for i := range mapping {
		mapping[i] = deleted
	}

	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		if op.Tag != 'e' {
			// 'r' and 'd' leave their old lines mapped to deleted; 'i'
			// consumes no old-line slot.
			continue
		}
		for k := 0; k < op.I2-op.I1; k++ {
			mapping[op.I1+k+1] = op.J1 + k + 1
		}
	}
	return mapping
}

// AdjustGroups maps each group's line numbers from oldText to newText.
//
// A group survives only if every line in its span maps to a live new
// line and the mapped lines remain strictly contiguous (each exactly one
// greater than the previous). Survivors keep all fields except
// LineStart/LineEnd, which become the mapped extremes. Everything else
// is dropped. With oldText == newText this is the identity.
func AdjustGroups(oldText, newText string, groups []run.Group) []run.Group {
	if len(groups) == 0 {
		return nil
	}

	mapping := newLineMapping(oldText, newText)

	var out []run.Group
	for _, g := range groups {
		mapped, ok := mapSpan(mapping, g.Span())
		if !ok {
			slog.Debug("group invalidated by document change", "group", g.ID, "span", g.Span())
			continue
		}
		g.LineStart = mapped.Start
		g.LineEnd = mapped.End
		out = append(out, g)
	}
	return out
}

// mapSpan maps every line of the span through the table, enforcing the
// contiguity invariant.
func mapSpan(mapping lineMapping, s run.Span) (run.Span, bool) {
	if s.Start < 1 || s.End >= len(mapping) {
		// Span reaches outside the old document: stale geometry, drop.
		return run.Span{}, false
	}

	prev := deleted
	var mapped run.Span
	for line := s.Start; line <= s.End; line++ {
		to := mapping[line]
		if to == deleted {
			return run.Span{}, false
		}
		if prev != deleted && to != prev+1 {
			return run.Span{}, false
		}
		if line == s.Start {
			mapped.Start = to
		}
		mapped.End = to
		prev = to
	}
	return mapped, true
}
