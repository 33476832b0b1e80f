package layout

import (
	"fmt"

	"github.com/vito/tandem/pkg/run"
)

// Origin identifies who caused a geometry update. Every state-mutating
// operation carries its origin so that consumers can ignore updates
// they caused themselves (the self-causation guard).
type Origin string

// Update is a geometry-change notification delivered to a reconciler:
// "something about the pane's layout changed, re-synchronize".
type Update struct {
	// Origin tags who mutated the pane. A reconciler skips updates
	// carrying its own origin.
	Origin Origin

	// Groups, when non-nil, is the new displayed group list accompanying
	// the change. Nil means geometry changed without the list changing
	// (e.g. a block was re-rendered at a different height).
	Groups []run.Group
}

// Spacer is an invisible sized block inserted after a group's last
// block to equalize rendered height between the two panes.
type Spacer struct {
	GroupID run.GroupID
	// Anchor is the source line (or output block index) immediately
	// after which the spacer sits: the group's trailing edge.
	Anchor int
	// Height in pixels. Always > 0; a spacer never shrinks a pane.
	Height float64
	// Class is the visual class, for styling and for spacer-set
	// comparison.
	Class string
}

func (s Spacer) String() string {
	return fmt.Sprintf("spacer@%d h=%.2f %s", s.Anchor, s.Height, s.Class)
}

// Extent is one group's measured geometry in a pane.
type Extent struct {
	// Height is the summed rendered height of the group's blocks,
	// including any applied trailing spacer. The reconciler subtracts
	// the spacer it applied itself to recover the natural height.
	Height float64
	// Top is the scroll-relative offset of the group's first block.
	Top float64
}

// Pane is one of the two independently-flowing visual regions (source
// or output). It supplies measurements and accepts spacer mutations.
//
// Measurement may fail transiently (a block not yet rendered, already
// unmounted); the reconciler treats a failed measure as absent and
// retries on the next pass.
type Pane interface {
	// GroupExtent measures one group's current rendered geometry.
	GroupExtent(g run.Group) (Extent, error)

	// ApplySpacers replaces the pane's entire spacer set. The pane must
	// tag any geometry notifications it emits in response with origin.
	ApplySpacers(spacers []Spacer, origin Origin)
}

// TopSink receives the full top-offset map after a pass in which any
// offset moved beyond tolerance. The counterpart pane uses it to
// absolutely position its own blocks.
type TopSink func(tops map[run.GroupID]float64)
