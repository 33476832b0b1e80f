package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/vito/tandem/pkg/editor"
	"github.com/vito/tandem/pkg/layout"
	"github.com/vito/tandem/pkg/run"
)

// The demo's "pixel" is a terminal row: every block is measured in rows
// after wrapping at the pane width, so the reconciler works against the
// same geometry the renderer draws.

// rows is the rendered height of one line wrapped at width columns.
func rows(line string, width int) float64 {
	w := ansi.StringWidth(line)
	if w <= width {
		return 1
	}
	return float64((w + width - 1) / width)
}

// sourcePane holds the document and implements layout.Pane over its
// line geometry.
type sourcePane struct {
	mu         sync.Mutex
	width      int
	lines      []string
	spacers    []layout.Spacer
	onGeometry func(layout.Update)
}

func newSourcePane(text string, width int) *sourcePane {
	return &sourcePane{
		width: width,
		lines: strings.Split(strings.TrimSuffix(text, "\n"), "\n"),
	}
}

func (p *sourcePane) setState(st editor.State) {
	p.mu.Lock()
	p.lines = strings.Split(strings.TrimSuffix(st.Text, "\n"), "\n")
	p.mu.Unlock()
}

// GroupExtent implements layout.Pane. Height includes the group's
// trailing spacer, mirroring how a real pane measures rendered blocks.
func (p *sourcePane) GroupExtent(g run.Group) (layout.Extent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g.LineEnd > len(p.lines) {
		return layout.Extent{}, fmt.Errorf("group %d beyond document (%d lines)", g.ID, len(p.lines))
	}

	var top float64
	for i := 0; i < g.LineStart-1; i++ {
		top += rows(p.lines[i], p.width)
	}
	for _, sp := range p.spacers {
		if sp.Anchor < g.LineStart {
			top += sp.Height
		}
	}

	var height float64
	for i := g.LineStart - 1; i < g.LineEnd; i++ {
		height += rows(p.lines[i], p.width)
	}
	height += p.spacerHeight(g.ID)

	return layout.Extent{Height: height, Top: top}, nil
}

// Natural is the group's content height with no spacer contribution;
// the demo's height synchronizer reads it from both panes to pick the
// shared target.
func (p *sourcePane) Natural(g run.Group) (float64, error) {
	ext, err := p.GroupExtent(g)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return ext.Height - p.spacerHeight(g.ID), nil
}

func (p *sourcePane) spacerHeight(id run.GroupID) float64 {
	for _, sp := range p.spacers {
		if sp.GroupID == id {
			return sp.Height
		}
	}
	return 0
}

// ApplySpacers implements layout.Pane.
func (p *sourcePane) ApplySpacers(spacers []layout.Spacer, origin layout.Origin) {
	p.mu.Lock()
	p.spacers = spacers
	notify := p.onGeometry
	p.mu.Unlock()
	if notify != nil {
		notify(layout.Update{Origin: origin})
	}
}

// outputPane stacks one rendered block per group, in group order.
type outputPane struct {
	mu         sync.Mutex
	width      int
	order      []run.GroupID
	blocks     map[run.GroupID][]string
	spacers    []layout.Spacer
	onGeometry func(layout.Update)
}

func newOutputPane(width int) *outputPane {
	return &outputPane{
		width:  width,
		blocks: make(map[run.GroupID][]string),
	}
}

// setState rebuilds the block list from the displayed groups and their
// member results' output.
func (p *outputPane) setState(st editor.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.order = p.order[:0]
	p.blocks = make(map[run.GroupID][]string, len(st.Groups))
	for _, g := range st.Groups {
		p.order = append(p.order, g.ID)
		p.blocks[g.ID] = renderBlock(g, st)
	}
}

// renderBlock flattens a group's member output into displayable lines.
func renderBlock(g run.Group, st editor.State) []string {
	header := fmt.Sprintf("%s %s", g.Span(), strings.Join(run.Classes(g, st.Stale[g.ID]), " "))
	lines := []string{header}
	for _, id := range g.ResultIDs {
		res, ok := st.Results[id]
		if !ok || res.Invisible {
			continue
		}
		for _, item := range res.Output {
			for _, l := range strings.Split(item.Text, "\n") {
				lines = append(lines, l)
			}
		}
	}
	if g.State == run.StateExecuting || g.State == run.StatePending {
		lines = append(lines, "...")
	}
	return lines
}

// GroupExtent implements layout.Pane.
func (p *outputPane) GroupExtent(g run.Group) (layout.Extent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	block, ok := p.blocks[g.ID]
	if !ok {
		return layout.Extent{}, fmt.Errorf("group %d has no block yet", g.ID)
	}

	var top float64
	for _, id := range p.order {
		if id == g.ID {
			break
		}
		top += p.blockHeight(id)
	}

	height := p.measure(block) + p.spacerHeight(g.ID)
	return layout.Extent{Height: height, Top: top}, nil
}

// Natural mirrors sourcePane.Natural for the output side.
func (p *outputPane) Natural(g run.Group) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	block, ok := p.blocks[g.ID]
	if !ok {
		return 0, fmt.Errorf("group %d has no block yet", g.ID)
	}
	return p.measure(block), nil
}

// blockHeight is a block's rendered height including its spacer.
func (p *outputPane) blockHeight(id run.GroupID) float64 {
	return p.measure(p.blocks[id]) + p.spacerHeight(id)
}

func (p *outputPane) measure(block []string) float64 {
	var h float64
	for _, l := range block {
		h += rows(l, p.width)
	}
	return h
}

func (p *outputPane) spacerHeight(id run.GroupID) float64 {
	for _, sp := range p.spacers {
		if sp.GroupID == id {
			return sp.Height
		}
	}
	return 0
}

// ApplySpacers implements layout.Pane.
func (p *outputPane) ApplySpacers(spacers []layout.Spacer, origin layout.Origin) {
	p.mu.Lock()
	p.spacers = spacers
	notify := p.onGeometry
	p.mu.Unlock()
	if notify != nil {
		notify(layout.Update{Origin: origin})
	}
}
