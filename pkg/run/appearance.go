package run

import (
	"charm.land/lipgloss/v2"
	"github.com/iancoleman/strcase"
)

// SpacerClass is the visual class applied to alignment spacer blocks in
// both panes.
const SpacerClass = "tandem-spacer"

var stateStyles = map[State]lipgloss.Style{
	StatePending:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	StateExecuting: lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
	StateDone:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	StateCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true),
}

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

// Classes derives the visual class list for a group: its merged state
// plus error/invisible/stale modifiers. Class names are kebab-case with
// a "group-" prefix, e.g. "group-executing", "group-has-error".
func Classes(g Group, stale bool) []string {
	classes := []string{"group-" + strcase.ToKebab(g.State.String())}
	if g.HasError {
		classes = append(classes, "group-"+strcase.ToKebab("HasError"))
	}
	if g.AllInvisible {
		classes = append(classes, "group-"+strcase.ToKebab("AllInvisible"))
	}
	if stale {
		classes = append(classes, "group-stale")
	}
	return classes
}

// Style returns the lipgloss style for a group's current state. Errors
// win over state coloring; staleness dims whatever else applies.
func Style(g Group, stale bool) lipgloss.Style {
	st, ok := stateStyles[g.State]
	if !ok {
		st = lipgloss.NewStyle()
	}
	if g.HasError {
		st = errorStyle
	}
	if stale {
		st = st.Faint(true)
	}
	return st
}
