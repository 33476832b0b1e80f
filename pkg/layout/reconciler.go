// Package layout equalizes the rendered height of each line group
// between the two independently-flowing panes (source and output) by
// injecting invisible, sized spacer blocks after each group.
//
// One Reconciler owns one pane. Target heights (typically the max of
// both panes' natural heights) are pushed in by an external height
// synchronizer; the reconciler measures, computes the spacer set, and
// mutates the pane only when the set actually changed.
//
// Synchronization runs on a single dedicated goroutine, one pass per
// frame request, the same serialized-loop shape as a render loop. The
// frame boundary is the only yield point: requests landing while a pass
// is in flight coalesce into one follow-up pass scheduled when the
// guard clears. Within a pass all reads (measurements) happen before
// any write (spacer application).
package layout

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/vito/tandem/pkg/run"
)

// Config tunes the reconciler's tolerances.
type Config struct {
	// Epsilon is the minimum height difference worth a spacer. Smaller
	// diffs emit none.
	Epsilon float64

	// HeightTolerance is the per-spacer height slack when comparing the
	// computed set against the applied one. Differences within it do
	// not trigger a pane mutation.
	HeightTolerance float64

	// TopTolerance filters sub-pixel top-offset noise: the offset map
	// is only re-reported when some offset moved by more than this.
	TopTolerance float64

	// ContentPadding is the fixed padding added to each group's block
	// top when reporting offsets.
	ContentPadding float64
}

// DefaultConfig returns the tolerances used in production.
func DefaultConfig() Config {
	return Config{
		Epsilon:         0.05,
		HeightTolerance: 1.0,
		TopTolerance:    0.5,
		ContentPadding:  0,
	}
}

// Reconciler keeps one pane's per-group rendered heights equal to the
// externally supplied targets.
type Reconciler struct {
	pane   Pane
	origin Origin
	cfg    Config

	mu sync.Mutex // protects all mutable state below

	groups  []run.Group
	targets map[run.GroupID]float64

	// applied is the spacer set currently in the pane, by group.
	applied map[run.GroupID]Spacer

	// lastTops is the last-reported top-offset map, for tolerance
	// comparison against feedback from sub-pixel noise.
	lastTops map[run.GroupID]float64

	topSink TopSink

	// syncing marks a pass in flight; cleared at the frame boundary.
	// pending records that a request landed mid-pass, so the frame
	// boundary schedules exactly one follow-up pass.
	syncing bool
	pending bool
	stopped bool

	frameCh chan struct{}

	stats       SyncStats
	debugWriter io.Writer
}

// New creates a Reconciler for the pane and starts its frame loop.
// origin tags every mutation the reconciler applies, so the pane's
// resulting geometry notifications can be recognized as self-caused.
func New(pane Pane, origin Origin, cfg Config) *Reconciler {
	r := newReconciler(pane, origin, cfg)
	go r.frameLoop()
	return r
}

// newReconciler creates a Reconciler without starting the frame loop.
// Used by tests that drive doSync synchronously.
func newReconciler(pane Pane, origin Origin, cfg Config) *Reconciler {
	return &Reconciler{
		pane:     pane,
		origin:   origin,
		cfg:      cfg,
		targets:  make(map[run.GroupID]float64),
		applied:  make(map[run.GroupID]Spacer),
		lastTops: make(map[run.GroupID]float64),
		frameCh:  make(chan struct{}, 1),
	}
}

// frameLoop processes sync requests serially. Each iteration is one
// "animation frame": run the pass, clear the in-flight guard, then
// schedule a follow-up pass if anything asked for one mid-flight or a
// measurement failed.
func (r *Reconciler) frameLoop() {
	for range r.frameCh {
		retry := r.doSync()
		r.mu.Lock()
		r.syncing = false
		again := retry || r.pending
		r.pending = false
		r.mu.Unlock()
		if again {
			r.RequestSync()
		}
	}
}

// Stop shuts the frame loop down. Further requests are ignored.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.frameCh)
}

// SetDebugWriter enables per-pass JSONL stats logging. Pass nil to
// disable.
func (r *Reconciler) SetDebugWriter(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debugWriter = w
}

// Stats returns a snapshot of the pass counters.
func (r *Reconciler) Stats() SyncStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// OnTopOffsets registers the sink that receives the top-offset map for
// the counterpart pane.
func (r *Reconciler) OnTopOffsets(sink TopSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topSink = sink
}

// SetTarget pushes a target height for a group and schedules a pass.
func (r *Reconciler) SetTarget(id run.GroupID, height float64) {
	r.mu.Lock()
	r.targets[id] = height
	r.mu.Unlock()
	r.RequestSync()
}

// ClearTarget forgets a group's target (e.g. when the group went away).
func (r *Reconciler) ClearTarget(id run.GroupID) {
	r.mu.Lock()
	delete(r.targets, id)
	r.mu.Unlock()
	r.RequestSync()
}

// OnGeometryChanged feeds a pane geometry notification into the
// reconciler. Updates carrying the reconciler's own origin are the echo
// of its latest spacer application and are ignored — this is what keeps
// spacer insertion from re-triggering itself.
func (r *Reconciler) OnGeometryChanged(u Update) {
	r.mu.Lock()
	if u.Origin == r.origin {
		r.stats.SkippedByOrigin++
		r.mu.Unlock()
		return
	}
	if u.Groups != nil {
		r.groups = u.Groups
		r.pruneDeparted()
	}
	r.mu.Unlock()
	r.RequestSync()
}

// RequestSync schedules a synchronization pass on the next frame.
// Requests landing while a pass is in flight coalesce into a single
// follow-up pass at the frame boundary; the change that prompted them
// is picked up by that pass's fresh state snapshot.
func (r *Reconciler) RequestSync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if r.syncing {
		r.stats.SkippedByGuard++
		r.pending = true
		return
	}
	r.syncing = true

	// Buffered by 1; with the syncing guard held this never blocks.
	select {
	case r.frameCh <- struct{}{}:
	default:
	}
}

// pruneDeparted drops per-group state for groups no longer displayed.
// Caller holds r.mu.
func (r *Reconciler) pruneDeparted() {
	live := make(map[run.GroupID]struct{}, len(r.groups))
	for _, g := range r.groups {
		live[g.ID] = struct{}{}
	}
	for id := range r.targets {
		if _, ok := live[id]; !ok {
			delete(r.targets, id)
		}
	}
	for id := range r.applied {
		if _, ok := live[id]; !ok {
			delete(r.applied, id)
		}
	}
	for id := range r.lastTops {
		if _, ok := live[id]; !ok {
			delete(r.lastTops, id)
		}
	}
}

// doSync runs one synchronization pass: measure every group, compute
// the desired spacer set, apply it if it differs from the applied set,
// then report top offsets if any moved beyond tolerance. Returns true
// when a measurement failed and the pass should be retried on the next
// frame.
func (r *Reconciler) doSync() bool {
	started := time.Now()

	r.mu.Lock()
	groups := r.groups
	targets := make(map[run.GroupID]float64, len(r.targets))
	for id, h := range r.targets {
		targets[id] = h
	}
	applied := make(map[run.GroupID]Spacer, len(r.applied))
	for id, s := range r.applied {
		applied[id] = s
	}
	r.mu.Unlock()

	// Read phase: measure everything before mutating anything.
	type measured struct {
		group   run.Group
		natural float64
		top     float64
	}
	var (
		measures []measured
		failures int
	)
	for _, g := range groups {
		ext, err := r.pane.GroupExtent(g)
		if err != nil {
			// Treat as absent; a later pass will see the block once it
			// is rendered again.
			failures++
			continue
		}
		natural := ext.Height
		if sp, ok := applied[g.ID]; ok {
			// The applied trailing spacer is part of the rendered
			// height; take it back out so spacers never self-accumulate.
			natural -= sp.Height
		}
		measures = append(measures, measured{group: g, natural: natural, top: ext.Top})
	}

	// Compute the desired spacer set.
	desired := make(map[run.GroupID]Spacer, len(measures))
	for _, m := range measures {
		target, ok := targets[m.group.ID]
		if !ok {
			continue
		}
		diff := target - m.natural
		if diff <= r.cfg.Epsilon {
			// Never negative: a spacer only grows a pane.
			continue
		}
		desired[m.group.ID] = Spacer{
			GroupID: m.group.ID,
			Anchor:  m.group.LineEnd,
			Height:  diff,
			Class:   run.SpacerClass,
		}
	}

	// Write phase, only when the set actually changed.
	wrote := false
	if !spacersEqual(desired, applied, r.cfg.HeightTolerance) {
		list := make([]Spacer, 0, len(desired))
		for _, g := range groups {
			if sp, ok := desired[g.ID]; ok {
				list = append(list, sp)
			}
		}
		r.pane.ApplySpacers(list, r.origin)
		wrote = true
		slog.Debug("applied spacers", "origin", r.origin, "count", len(list))
	}

	// Top-offset report, filtered by tolerance.
	tops := make(map[run.GroupID]float64, len(measures))
	for _, m := range measures {
		tops[m.group.ID] = m.top + r.cfg.ContentPadding
	}

	r.mu.Lock()
	if wrote {
		r.applied = desired
	}
	moved := len(tops) != len(r.lastTops)
	if !moved {
		for id, top := range tops {
			last, ok := r.lastTops[id]
			if !ok || math.Abs(top-last) > r.cfg.TopTolerance {
				moved = true
				break
			}
		}
	}
	sink := r.topSink
	if moved {
		r.lastTops = tops
	}

	r.stats.Passes++
	r.stats.Measures += len(measures)
	r.stats.MeasureFailures += failures
	if wrote {
		r.stats.SpacerWrites++
	} else {
		r.stats.NoopPasses++
	}
	if moved && sink != nil {
		r.stats.TopReports++
	}
	r.stats.LastPass = time.Since(started)
	w := r.debugWriter
	r.mu.Unlock()

	if moved && sink != nil {
		sink(tops)
	}

	writeStats(w, syncStatsJSON{
		Ts:              started.UnixMicro(),
		PassUs:          time.Since(started).Microseconds(),
		Groups:          len(groups),
		Measures:        len(measures),
		MeasureFailures: failures,
		Spacers:         len(desired),
		Wrote:           wrote,
		TopReported:     moved && sink != nil,
	})

	// A failed measure means a block wasn't rendered yet; retry once the
	// current frame has fully settled.
	return failures > 0
}

// spacersEqual compares two spacer sets by anchor, class, and height
// within tolerance.
func spacersEqual(a, b map[run.GroupID]Spacer, tolerance float64) bool {
	if len(a) != len(b) {
		return false
	}
	for id, sa := range a {
		sb, ok := b[id]
		if !ok {
			return false
		}
		if sa.Anchor != sb.Anchor || sa.Class != sb.Class {
			return false
		}
		if math.Abs(sa.Height-sb.Height) > tolerance {
			return false
		}
	}
	return true
}
