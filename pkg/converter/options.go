package converter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// VelocityMode selects how requested velocities shape the output
type VelocityMode string

const (
	VelocityKeep  VelocityMode = "keep"
	VelocitySplit VelocityMode = "split"
)

// DrumVelocityMode selects the fallback for drum notes without a matching layer
type DrumVelocityMode string

const (
	DrumClosest DrumVelocityMode = "closest"
	DrumStrict  DrumVelocityMode = "strict"
)

// Playmode is the engine playmode of a multisample preset
type Playmode string

const (
	PlaymodeAuto   Playmode = "auto"
	PlaymodePoly   Playmode = "poly"
	PlaymodeMono   Playmode = "mono"
	PlaymodeLegato Playmode = "legato"
)

// LoopOnRelease controls whether loops keep running after note-off
type LoopOnRelease string

const (
	ReleaseAuto LoopOnRelease = "auto"
	ReleaseOn   LoopOnRelease = "on"
	ReleaseOff  LoopOnRelease = "off"
)

// Defaults
const (
	DefaultVelocity     = 101
	DefaultResampleRate = 22050
	DefaultBitDepth     = 16
)

// ProgressFunc is called once per finished preset
type ProgressFunc func(current, total int, name string)

// Options configures a conversion run
type Options struct {
	Velocities         []int            `json:"velocities"`
	VelocityMode       VelocityMode     `json:"velocityMode"`
	ResampleRate       int              `json:"resampleRate"`
	BitDepth           int              `json:"bitDepth"`
	NoResample         bool             `json:"noResample"`
	ZeroCrossing       bool             `json:"zeroCrossing"`
	LoopEndOffset      int              `json:"loopEndOffset"`
	ForceDrum          bool             `json:"forceDrum"`
	ForceInstrument    bool             `json:"forceInstrument"`
	InstrumentPlaymode Playmode         `json:"instrumentPlaymode"`
	DrumVelocityMode   DrumVelocityMode `json:"drumVelocityMode"`
	LoopOnRelease      LoopOnRelease    `json:"loopOnRelease"`
	// Presets restricts the run to presets with these names; empty means all
	Presets []string `json:"presets,omitempty"`
	// Audition adds a MIDI test sequence per output preset
	Audition bool `json:"audition"`
	// Source names the input in the report
	Source string `json:"-"`

	Workers  int          `json:"-"`
	Logger   *slog.Logger `json:"-"`
	Progress ProgressFunc `json:"-"`
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Velocities:         []int{DefaultVelocity},
		VelocityMode:       VelocityKeep,
		ResampleRate:       DefaultResampleRate,
		BitDepth:           DefaultBitDepth,
		InstrumentPlaymode: PlaymodeAuto,
		DrumVelocityMode:   DrumClosest,
		LoopOnRelease:      ReleaseAuto,
		Workers:            runtime.NumCPU(),
	}
}

// withDefaults fills zero values so callers may pass a partially set struct
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.Velocities) == 0 {
		o.Velocities = d.Velocities
	}
	if o.VelocityMode == "" {
		o.VelocityMode = d.VelocityMode
	}
	if o.ResampleRate == 0 {
		o.ResampleRate = d.ResampleRate
	}
	if o.BitDepth == 0 {
		o.BitDepth = d.BitDepth
	}
	if o.InstrumentPlaymode == "" {
		o.InstrumentPlaymode = d.InstrumentPlaymode
	}
	if o.DrumVelocityMode == "" {
		o.DrumVelocityMode = d.DrumVelocityMode
	}
	if o.LoopOnRelease == "" {
		o.LoopOnRelease = d.LoopOnRelease
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Validate checks option ranges and combinations
func (o Options) Validate() error {
	if o.ForceDrum && o.ForceInstrument {
		return fmt.Errorf("%w: forceDrum and forceInstrument are mutually exclusive", ErrInvalidOptions)
	}
	for _, v := range o.Velocities {
		if v < 0 || v > 127 {
			return fmt.Errorf("%w: velocity %d outside 0-127", ErrInvalidOptions, v)
		}
	}
	switch o.VelocityMode {
	case "", VelocityKeep, VelocitySplit:
	default:
		return fmt.Errorf("%w: unknown velocity mode %q", ErrInvalidOptions, o.VelocityMode)
	}
	switch o.DrumVelocityMode {
	case "", DrumClosest, DrumStrict:
	default:
		return fmt.Errorf("%w: unknown drum velocity mode %q", ErrInvalidOptions, o.DrumVelocityMode)
	}
	switch o.InstrumentPlaymode {
	case "", PlaymodeAuto, PlaymodePoly, PlaymodeMono, PlaymodeLegato:
	default:
		return fmt.Errorf("%w: unknown playmode %q", ErrInvalidOptions, o.InstrumentPlaymode)
	}
	switch o.LoopOnRelease {
	case "", ReleaseAuto, ReleaseOn, ReleaseOff:
	default:
		return fmt.Errorf("%w: unknown loop-on-release mode %q", ErrInvalidOptions, o.LoopOnRelease)
	}
	switch o.BitDepth {
	case 0, 16, 24:
	default:
		return fmt.Errorf("%w: bit depth must be 16 or 24, got %d", ErrInvalidOptions, o.BitDepth)
	}
	if o.ResampleRate < 0 || o.ResampleRate > 192000 {
		return fmt.Errorf("%w: resample rate %d out of range", ErrInvalidOptions, o.ResampleRate)
	}
	return nil
}

// OptionsFile is the JSON form of Options; nil fields keep the current value
type OptionsFile struct {
	Velocities         []int    `json:"velocities"`
	VelocityMode       *string  `json:"velocityMode"`
	ResampleRate       *int     `json:"resampleRate"`
	BitDepth           *int     `json:"bitDepth"`
	NoResample         *bool    `json:"noResample"`
	ZeroCrossing       *bool    `json:"zeroCrossing"`
	LoopEndOffset      *int     `json:"loopEndOffset"`
	ForceDrum          *bool    `json:"forceDrum"`
	ForceInstrument    *bool    `json:"forceInstrument"`
	InstrumentPlaymode *string  `json:"instrumentPlaymode"`
	DrumVelocityMode   *string  `json:"drumVelocityMode"`
	LoopOnRelease      *string  `json:"loopOnRelease"`
	Presets            []string `json:"presets"`
	Audition           *bool    `json:"audition"`
}

// LoadOptionsFile reads a JSON options file and applies it over base
func LoadOptionsFile(path string, base Options) (Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read options file: %w", err)
	}
	return ApplyOptionsJSON(base, b)
}

// ApplyOptionsJSON overlays a JSON document on base and validates the result
func ApplyOptionsJSON(base Options, data []byte) (Options, error) {
	var f OptionsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	out := base
	if f.Velocities != nil {
		out.Velocities = append([]int(nil), f.Velocities...)
	}
	if f.VelocityMode != nil {
		out.VelocityMode = VelocityMode(*f.VelocityMode)
	}
	if f.ResampleRate != nil {
		out.ResampleRate = *f.ResampleRate
	}
	if f.BitDepth != nil {
		out.BitDepth = *f.BitDepth
	}
	if f.NoResample != nil {
		out.NoResample = *f.NoResample
	}
	if f.ZeroCrossing != nil {
		out.ZeroCrossing = *f.ZeroCrossing
	}
	if f.LoopEndOffset != nil {
		out.LoopEndOffset = *f.LoopEndOffset
	}
	if f.ForceDrum != nil {
		out.ForceDrum = *f.ForceDrum
	}
	if f.ForceInstrument != nil {
		out.ForceInstrument = *f.ForceInstrument
	}
	if f.InstrumentPlaymode != nil {
		out.InstrumentPlaymode = Playmode(*f.InstrumentPlaymode)
	}
	if f.DrumVelocityMode != nil {
		out.DrumVelocityMode = DrumVelocityMode(*f.DrumVelocityMode)
	}
	if f.LoopOnRelease != nil {
		out.LoopOnRelease = LoopOnRelease(*f.LoopOnRelease)
	}
	if f.Presets != nil {
		out.Presets = append([]string(nil), f.Presets...)
	}
	if f.Audition != nil {
		out.Audition = *f.Audition
	}
	if err := out.Validate(); err != nil {
		return base, err
	}
	return out, nil
}
