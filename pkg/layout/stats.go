package layout

import (
	"encoding/json"
	"io"
	"time"
)

// SyncStats captures counters for the reconciler's synchronization
// passes. Useful for spotting feedback loops: a healthy reconciler
// settles into no-op passes; a climbing SpacerWrites count means
// something keeps disturbing the geometry.
type SyncStats struct {
	// Passes is the number of doSync executions.
	Passes int

	// Measures is the number of successful group measurements.
	Measures int

	// MeasureFailures is the number of measurements that errored and
	// were treated as absent (retried on the next pass).
	MeasureFailures int

	// SpacerWrites is the number of passes that mutated the pane.
	SpacerWrites int

	// NoopPasses is the number of passes whose computed spacer set
	// matched the applied one.
	NoopPasses int

	// SkippedByGuard counts sync requests that arrived while a pass was
	// in flight and were coalesced into the follow-up pass.
	SkippedByGuard int

	// SkippedByOrigin counts updates ignored because they carried the
	// reconciler's own origin tag.
	SkippedByOrigin int

	// TopReports is the number of passes that pushed a top-offset map
	// to the sink.
	TopReports int

	// LastPass is the wall-clock duration of the most recent pass.
	LastPass time.Duration
}

// syncStatsJSON is the JSONL record written by the debug writer after
// each pass.
type syncStatsJSON struct {
	Ts              int64 `json:"ts"`
	PassUs          int64 `json:"pass_us"`
	Groups          int   `json:"groups"`
	Measures        int   `json:"measures"`
	MeasureFailures int   `json:"measure_failures"`
	Spacers         int   `json:"spacers"`
	Wrote           bool  `json:"wrote"`
	TopReported     bool  `json:"top_reported"`
}

func writeStats(w io.Writer, rec syncStatsJSON) {
	if w == nil {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	b = append(b, '\n')
	w.Write(b) //nolint:errcheck
}
