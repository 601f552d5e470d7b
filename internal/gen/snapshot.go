// Package gen holds the live generation configuration and the immutable
// snapshots that drive jobs. The orchestrator and queue operate on snapshots
// only; the live Config keeps mutating underneath without affecting them.
package gen

import "genbridge/pkg/types"

// Inpaint modes. Automatic derives the fill behavior from the selection;
// everything else requires an active selection.
const (
	InpaintAutomatic = "automatic"
	InpaintFill      = "fill"
	InpaintExpand    = "expand"
	InpaintReplace   = "replace_background"
)

// LoraWeight is one LoRA override in the configuration.
type LoraWeight struct {
	Name     string
	Strength float64
	Enabled  bool
}

// ControlLayer describes one conditioning input. Image takes precedence over
// LayerID when both are set.
type ControlLayer struct {
	Name       string
	Mode       string
	LayerID    string
	Image      string
	Strength   float64
	RangeStart float64
	RangeEnd   float64
	Enabled    bool
	Preprocess bool
}

// Region is a masked sub-area of the canvas with its own prompt. Mask caches
// a previously captured payload; when empty the mask is captured from the
// layer's transparency at job time.
type Region struct {
	Prompt  string
	LayerID string
	Mask    string
	Bounds  types.Bounds
	Visible bool
}

// Config is the live, user-edited generation configuration.
type Config struct {
	Prompt         string
	NegativePrompt string
	// Strength in 0..100. 100 generates from scratch, below 100 refines the
	// captured document image.
	Strength       int
	InpaintMode    string
	InpaintFill    string
	InpaintContext string
	InpaintPadding int
	InpaintGrow    int
	InpaintFeather int
	BatchSize      int
	Seed           int64
	FixedSeed      bool
	// StyleID selects a style, empty for none.
	StyleID          string
	UseStyleDefaults bool
	Width            int
	Height           int
	Steps            int
	CFGScale         float64
	Sampler          string
	Scheduler        string
	Loras            []LoraWeight
	Control          []ControlLayer
	Regions          []Region
}

// Snapshot is an immutable deep copy of a Config. Mutating the Config after
// taking a snapshot is never observable through it.
type Snapshot struct {
	Prompt           string
	NegativePrompt   string
	Strength         int
	InpaintMode      string
	InpaintFill      string
	InpaintContext   string
	InpaintPadding   int
	InpaintGrow      int
	InpaintFeather   int
	BatchSize        int
	Seed             int64
	FixedSeed        bool
	StyleID          string
	UseStyleDefaults bool
	Width            int
	Height           int
	Steps            int
	CFGScale         float64
	Sampler          string
	Scheduler        string
	Loras            []LoraWeight
	Control          []ControlLayer
	Regions          []Region
}

// Snapshot freezes the current configuration. Slices are cloned so the
// returned value shares no mutable state with the Config.
func (c *Config) Snapshot() *Snapshot {
	s := &Snapshot{
		Prompt:           c.Prompt,
		NegativePrompt:   c.NegativePrompt,
		Strength:         c.Strength,
		InpaintMode:      c.InpaintMode,
		InpaintFill:      c.InpaintFill,
		InpaintContext:   c.InpaintContext,
		InpaintPadding:   c.InpaintPadding,
		InpaintGrow:      c.InpaintGrow,
		InpaintFeather:   c.InpaintFeather,
		BatchSize:        c.BatchSize,
		Seed:             c.Seed,
		FixedSeed:        c.FixedSeed,
		StyleID:          c.StyleID,
		UseStyleDefaults: c.UseStyleDefaults,
		Width:            c.Width,
		Height:           c.Height,
		Steps:            c.Steps,
		CFGScale:         c.CFGScale,
		Sampler:          c.Sampler,
		Scheduler:        c.Scheduler,
	}
	if len(c.Loras) > 0 {
		s.Loras = make([]LoraWeight, len(c.Loras))
		copy(s.Loras, c.Loras)
	}
	if len(c.Control) > 0 {
		s.Control = make([]ControlLayer, len(c.Control))
		copy(s.Control, c.Control)
	}
	if len(c.Regions) > 0 {
		s.Regions = make([]Region, len(c.Regions))
		copy(s.Regions, c.Regions)
	}
	return s
}

// RefineMode reports whether the snapshot runs image-to-image against a
// captured base image (strength below 100).
func (s *Snapshot) RefineMode() bool { return s.Strength < 100 }

// Default returns a Config with the same defaults the original bridge
// assumes when a field is omitted.
func Default() Config {
	return Config{
		Strength:       100,
		InpaintMode:    InpaintAutomatic,
		InpaintFill:    "neutral",
		InpaintContext: InpaintAutomatic,
		BatchSize:      1,
		Seed:           -1,
		Width:          512,
		Height:         512,
		Steps:          20,
		CFGScale:       7.0,
		Sampler:        "euler",
		Scheduler:      "normal",
	}
}
