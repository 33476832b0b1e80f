package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vito/tandem/pkg/backend"
	"github.com/vito/tandem/pkg/editor"
	"github.com/vito/tandem/pkg/layout"
	"github.com/vito/tandem/pkg/run"
)

const demoSource = `nums = [1, 2, 3]
total = sum(nums)
print("total:", total)

for n in nums:
    print(n)

total * 2
`

const (
	sourceWidth = 40
	outputWidth = 34
	// settle is how long the demo waits for the reconcilers' frame
	// loops after disturbing geometry.
	settle = 30 * time.Millisecond
)

// scriptedSession is the built-in demo playback.
func scriptedSession(delay time.Duration) *backend.Scripted {
	return backend.NewScripted([]backend.Step{
		{
			Span:   run.Span{Start: 1, End: 1},
			Result: run.Result{Invisible: true},
			Delay:  delay,
		},
		{
			Span:   run.Span{Start: 2, End: 2},
			Result: run.Result{Invisible: true},
			Delay:  delay,
		},
		{
			Span:   run.Span{Start: 3, End: 3},
			Result: run.Result{Output: []run.OutputItem{{Kind: "text", Text: "total: 6"}}},
			Delay:  delay,
		},
		{
			Span:   run.Span{Start: 5, End: 6},
			Result: run.Result{Output: []run.OutputItem{{Kind: "text", Text: "1\n2\n3"}}},
			Delay:  delay,
		},
		{
			Span:   run.Span{Start: 8, End: 8},
			Result: run.Result{Output: []run.OutputItem{{Kind: "text", Text: "12"}}},
			Delay:  delay,
		},
	}, nil)
}

type demo struct {
	cfg    editor.Config
	client backend.Client
	debug  bool
}

func (d *demo) run(ctx context.Context) error {
	ed := editor.New(demoSource, d.cfg)
	src := newSourcePane(demoSource, sourceWidth)
	out := newOutputPane(outputWidth)

	lcfg := d.cfg.LayoutConfig()
	srcRec := layout.New(src, "source-pane", lcfg)
	outRec := layout.New(out, "output-pane", lcfg)
	defer srcRec.Stop()
	defer outRec.Stop()

	// Each pane routes its geometry notifications to its own
	// reconciler, which drops the ones it caused itself.
	src.onGeometry = srcRec.OnGeometryChanged
	out.onGeometry = outRec.OnGeometryChanged

	if d.debug {
		srcRec.SetDebugWriter(os.Stderr)
		outRec.SetDebugWriter(os.Stderr)
	}
	publishSyncStats(func() any {
		return map[string]layout.SyncStats{
			"source": srcRec.Stats(),
			"output": outRec.Stats(),
		}
	})

	// The external height synchronizer: on every state change, push the
	// group list at both reconcilers and target the max natural height.
	ed.Subscribe("demo", func(st editor.State, ev editor.Event) {
		src.setState(st)
		out.setState(st)
		u := layout.Update{Origin: "tracker", Groups: st.Groups}
		srcRec.OnGeometryChanged(u)
		outRec.OnGeometryChanged(u)
		syncTargets(st, src, out, srcRec, outRec)

		time.Sleep(settle)
		fmt.Println(renderFrame(src, out, st))
	})

	eg, ctx := errgroup.WithContext(ctx)
	if scripted, ok := d.client.(*backend.Scripted); ok {
		eg.Go(func() error {
			defer scripted.Close()
			return scripted.Run(ctx)
		})
	}
	eg.Go(func() error {
		return ed.Run(ctx, d.client)
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	// Showcase diff realignment: an external edit shifts every group
	// down one line, and the engine carries the output along.
	_, err := ed.Apply(editor.DocumentChanged{
		NewText: "# edited externally\n" + demoSource,
		Origin:  "file-watcher",
	})
	return err
}

// syncTargets measures both panes' natural heights and pushes the max
// as the shared target for every group.
func syncTargets(st editor.State, src *sourcePane, out *outputPane, srcRec, outRec *layout.Reconciler) {
	for _, g := range st.Groups {
		hs, err := src.Natural(g)
		if err != nil {
			continue
		}
		ho, err := out.Natural(g)
		if err != nil {
			continue
		}
		target := math.Max(hs, ho)
		srcRec.SetTarget(g.ID, target)
		outRec.SetTarget(g.ID, target)
	}
}

// renderFrame draws the two panes side by side. Spacers become blank
// rows, which is exactly what keeps the columns level.
func renderFrame(src *sourcePane, out *outputPane, st editor.State) string {
	left := renderSource(src, st)
	right := renderOutput(out, st)

	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("241")).
		Padding(0, 1)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		border.Width(sourceWidth+2).Render(strings.Join(left, "\n")),
		border.Width(outputWidth+2).Render(strings.Join(right, "\n")),
	)
}

func renderSource(p *sourcePane, st editor.State) []string {
	p.mu.Lock()
	lines := append([]string(nil), p.lines...)
	spacers := append([]layout.Spacer(nil), p.spacers...)
	p.mu.Unlock()

	groupAt := func(line int) (run.Group, bool) {
		for _, g := range st.Groups {
			if g.Span().Contains(line) {
				return g, true
			}
		}
		return run.Group{}, false
	}

	var rendered []string
	for i, text := range lines {
		line := i + 1
		if g, ok := groupAt(line); ok {
			text = run.Style(g, st.Stale[g.ID]).Render(text)
		}
		rendered = append(rendered, text)
		for _, sp := range spacers {
			if sp.Anchor == line {
				rendered = append(rendered, blankRows(sp.Height)...)
			}
		}
	}
	return rendered
}

func renderOutput(p *outputPane, st editor.State) []string {
	p.mu.Lock()
	order := append([]run.GroupID(nil), p.order...)
	blocks := make(map[run.GroupID][]string, len(p.blocks))
	for id, b := range p.blocks {
		blocks[id] = b
	}
	spacers := append([]layout.Spacer(nil), p.spacers...)
	p.mu.Unlock()

	spacerFor := func(id run.GroupID) float64 {
		for _, sp := range spacers {
			if sp.GroupID == id {
				return sp.Height
			}
		}
		return 0
	}

	var rendered []string
	for _, id := range order {
		var g run.Group
		for _, cand := range st.Groups {
			if cand.ID == id {
				g = cand
				break
			}
		}
		style := run.Style(g, st.Stale[id])
		for _, l := range blocks[id] {
			rendered = append(rendered, style.Render(l))
		}
		rendered = append(rendered, blankRows(spacerFor(id))...)
	}
	return rendered
}

// blankRows converts a spacer height to whole blank terminal rows.
func blankRows(height float64) []string {
	n := int(math.Round(height))
	if n <= 0 {
		return nil
	}
	return make([]string, n)
}
