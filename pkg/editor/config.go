package editor

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/vito/tandem/pkg/layout"
)

// Config is the user-tunable engine configuration, loaded from TOML.
type Config struct {
	// SpacerEpsilon is the minimum pane-height difference worth a
	// spacer, in pixels.
	SpacerEpsilon float64 `toml:"spacer_epsilon"`

	// HeightTolerance is the spacer-height slack below which a
	// recomputed spacer set is considered unchanged.
	HeightTolerance float64 `toml:"height_tolerance"`

	// TopTolerance filters sub-pixel top-offset noise.
	TopTolerance float64 `toml:"top_tolerance"`

	// ContentPadding is fixed padding added to reported block tops.
	ContentPadding float64 `toml:"content_padding"`

	// UndoDepth bounds the editor's undo stack.
	UndoDepth int `toml:"undo_depth"`

	// PlaybackDelayMS is the per-statement delay used by scripted
	// playback (the demo).
	PlaybackDelayMS int `toml:"playback_delay_ms"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	lc := layout.DefaultConfig()
	return Config{
		SpacerEpsilon:   lc.Epsilon,
		HeightTolerance: lc.HeightTolerance,
		TopTolerance:    lc.TopTolerance,
		ContentPadding:  lc.ContentPadding,
		UndoDepth:       100,
		PlaybackDelayMS: 200,
	}
}

// LoadConfig reads a TOML config file, filling unset fields with
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// LayoutConfig converts to the reconciler's tuning struct.
func (c Config) LayoutConfig() layout.Config {
	return layout.Config{
		Epsilon:         c.SpacerEpsilon,
		HeightTolerance: c.HeightTolerance,
		TopTolerance:    c.TopTolerance,
		ContentPadding:  c.ContentPadding,
	}
}
