// Package converter turns decoded SoundFont presets into device presets
package converter

import (
	"github.com/go-audio/audio"
)

// Kind is the classification of a preset
type Kind string

const (
	KindMelodic Kind = "melodic"
	KindDrum    Kind = "drum"
)

// CurveParams holds envelope values in the device's 0-32767 domain
type CurveParams struct {
	Attack  int `json:"attack"`
	Decay   int `json:"decay"`
	Sustain int `json:"sustain"`
	Release int `json:"release"`
}

// FXSends holds the two effect sends fed by SF2 chorus and reverb
type FXSends struct {
	Delay  int `json:"delay_send"`
	Reverb int `json:"reverb_send"`
	// source values in percent, kept for the report
	ChorusPercent float64 `json:"chorus_percent"`
	ReverbPercent float64 `json:"reverb_percent"`
}

// Active reports whether any send is non-zero
func (f FXSends) Active() bool {
	return f.Delay > 0 || f.Reverb > 0
}

// OutputRegion is one device zone with its audio
type OutputRegion struct {
	KeyLo         int
	KeyHi         int
	VelLo         int
	VelHi         int
	RootKey       int
	GainDB        int
	Tune          int
	Transpose     int
	Pan           int
	LoopStart     int
	LoopEnd       int
	LoopEnabled   bool
	LoopOnRelease bool
	Frames        int
	ChokeGroup    int
	Playmode      string // drum regions only: oneshot or group
	Sample        string // file name inside the preset directory
	Audio         *audio.IntBuffer
}

// OutputPreset is a complete device preset
type OutputPreset struct {
	Name     string
	Source   string
	Kind     Kind
	Playmode Playmode
	Amp      *CurveParams
	Filter   *CurveParams
	FX       *FXSends
	Velocity int // split variant velocity, 0 otherwise
	Regions  []OutputRegion
}

// ArtifactKind tells hosts what an artifact holds
type ArtifactKind string

const (
	ArtifactPatch  ArtifactKind = "patch"
	ArtifactAudio  ArtifactKind = "audio"
	ArtifactReport ArtifactKind = "report"
	ArtifactMIDI   ArtifactKind = "midi"
)

// Artifact is one output file relative to the output root
type Artifact struct {
	Path string
	Kind ArtifactKind
	Data []byte
}

// Device interface for device-specific format handling
type Device interface {
	Name() string
	ID() string
	// ZoneCeiling is the maximum number of regions per preset
	ZoneCeiling() int
	// KeySpan is the playable key range melodic presets are spread over
	KeySpan() (lo, hi int)
	// DrumBaseNote is the MIDI note of the first drum slot
	DrumBaseNote() int
	GeneratePatch(preset *OutputPreset) ([]byte, error)
	GenerateSample(region *OutputRegion) ([]byte, error)
}

// Converter handles format conversions
type Converter struct {
	device Device
}

// New creates a new Converter with the specified device
func New(device Device) *Converter {
	return &Converter{device: device}
}

// GetDevice returns the current device
func (c *Converter) GetDevice() Device {
	return c.device
}

// SetDevice sets the device for conversion
func (c *Converter) SetDevice(device Device) {
	c.device = device
}
