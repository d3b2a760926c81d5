package warp

import (
	"errors"
	"log"
	"math/rand"

	"github.com/dustin/go-humanize"
)

// DisplayMode selects whether uploaded photos are animated.
type DisplayMode int

const (
	ModeClear DisplayMode = iota
	ModeDynamic
)

func (m DisplayMode) String() string {
	switch m {
	case ModeClear:
		return "clear"
	case ModeDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// ParseDisplayMode is the inverse of DisplayMode.String.
func ParseDisplayMode(s string) (DisplayMode, bool) {
	switch s {
	case "clear":
		return ModeClear, true
	case "dynamic":
		return ModeDynamic, true
	}
	return ModeDynamic, false
}

// TileSink receives decoded tiles. It returns false to abort the decode.
type TileSink interface {
	OnTile(x, y, w, h int, pixels []uint16) bool
}

// Display writes RGB565 pixels to the screen. Blit must not keep pixels.
type Display interface {
	Blit(x, y, w, h int, pixels []uint16)
}

// MemoryProbe reports how much memory is available right now.
type MemoryProbe interface {
	FreeMemoryBytes() uint64
}

// ModeSource reports the configured display mode.
type ModeSource interface {
	DisplayMode() DisplayMode
}

// Decision records which path a tile took through the gate.
type Decision int

const (
	PassClear Decision = iota
	PassLowMemory
	PassActivate
	PassScratchFailure
	Warped
)

func (d Decision) String() string {
	switch d {
	case PassClear:
		return "PASS_CLEAR"
	case PassLowMemory:
		return "PASS_LOW_MEMORY"
	case PassActivate:
		return "PASS_ACTIVATE"
	case PassScratchFailure:
		return "PASS_SCRATCH_FAILURE"
	case Warped:
		return "WARPED"
	default:
		return "UNKNOWN"
	}
}

// Skipped reports whether the decision degraded a tile that would otherwise
// have been warped.
func (d Decision) Skipped() bool {
	return d == PassLowMemory || d == PassScratchFailure
}

// Observer is told about every gate decision.
type Observer func(d Decision)

// State is the animation context for one screen.
type State struct {
	Grid    *Grid
	Enabled bool

	// WaveStrength is the K constant of the wave envelope.
	WaveStrength float64

	rng *rand.Rand
}

// NewState returns a disabled state with a zeroed grid.
func NewState(grid *Grid, waveStrength float64, rng *rand.Rand) *State {
	return &State{Grid: grid, WaveStrength: waveStrength, rng: rng}
}

// Reset disables the animation and clears the grid. Called when a new photo
// replaces the current one.
func (s *State) Reset() {
	s.Enabled = false
	s.Grid.Reset()
}

// Trigger sets new grid targets for a wave starting at corner c. It does
// nothing until the first tile of the current photo has been drawn.
func (s *State) Trigger(c Corner) Corner {
	if !s.Enabled {
		return c
	}
	if c < TopLeft || c > BottomRight {
		c = Corner(s.rng.Intn(4))
	}
	s.Grid.ApplyWave(Falloff(s.Grid.N, c, s.WaveStrength), s.rng)
	return c
}

// Gate is the TileSink handed to the decoder. It decides per tile whether to
// warp and forwards the result to the display.
type Gate struct {
	State        *State
	Display      Display
	Mode         ModeSource
	Memory       MemoryProbe
	Resampler    *Resampler
	MinFreeBytes uint64
	Observer     Observer
}

var _ TileSink = (*Gate)(nil)

// OnTile implements TileSink.
func (g *Gate) OnTile(x, y, w, h int, pixels []uint16) bool {
	d := g.route(x, y, w, h, pixels)
	if g.Observer != nil {
		g.Observer(d)
	}
	return true
}

func (g *Gate) route(x, y, w, h int, pixels []uint16) Decision {
	if g.Mode.DisplayMode() == ModeClear {
		g.Display.Blit(x, y, w, h, pixels)
		return PassClear
	}

	if free := g.Memory.FreeMemoryBytes(); free < g.MinFreeBytes {
		log.Printf("warp: low memory (%s free), skipping tile processing", humanize.Bytes(free))
		g.Display.Blit(x, y, w, h, pixels)
		return PassLowMemory
	}

	if !g.State.Enabled {
		g.State.Grid.Reset()
		g.State.Enabled = true
		g.Display.Blit(x, y, w, h, pixels)
		return PassActivate
	}

	err := g.Resampler.Warp(g.State.Grid, w, h, pixels, func(out []uint16) {
		g.Display.Blit(x, y, w, h, out)
	})
	if err != nil {
		if !errors.Is(err, ErrScratchUnavailable) {
			log.Printf("warp: tile %d,%d %dx%d: %v", x, y, w, h, err)
		}
		g.Display.Blit(x, y, w, h, pixels)
		return PassScratchFailure
	}
	return Warped
}
