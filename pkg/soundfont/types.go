// Package soundfont decodes SoundFont2 (and SF3) banks into read-only
// presets, zones and sample records.
package soundfont

import (
	"github.com/go-audio/audio"
)

// SampleType mirrors the sfSampleLink field of a sample header
type SampleType uint16

const (
	SampleMono   SampleType = 0x0001
	SampleRight  SampleType = 0x0002
	SampleLeft   SampleType = 0x0004
	SampleLinked SampleType = 0x0008
	// SampleVorbis marks SF3 samples stored as Ogg Vorbis streams
	SampleVorbis SampleType = 0x0010
	SampleROM    SampleType = 0x8000
)

// Channel returns the channel role without the storage flags
func (t SampleType) Channel() SampleType {
	return t & 0x000F
}

// Compressed reports whether the sample data is an Ogg Vorbis stream
func (t SampleType) Compressed() bool {
	return t&SampleVorbis != 0
}

// Info holds the INFO list of a bank
type Info struct {
	Version   string `json:"version"`
	Engine    string `json:"engine,omitempty"`
	Name      string `json:"name,omitempty"`
	ROM       string `json:"rom,omitempty"`
	Date      string `json:"date,omitempty"`
	Engineers string `json:"engineers,omitempty"`
	Product   string `json:"product,omitempty"`
	Copyright string `json:"copyright,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Software  string `json:"software,omitempty"`
}

// Sample is one decoded sample record. PCM is interleaved and owned by the
// bank; loop points are relative to the first frame and reported as stored.
type Sample struct {
	Index           int
	Name            string
	PCM             *audio.IntBuffer
	LoopStart       int
	LoopEnd         int
	OriginalPitch   int
	PitchCorrection int
	Type            SampleType
	Link            int
}

// Frames returns the number of frames in the sample
func (s *Sample) Frames() int {
	if s == nil || s.PCM == nil {
		return 0
	}
	return s.PCM.NumFrames()
}

// Channels returns the channel count
func (s *Sample) Channels() int {
	if s == nil || s.PCM == nil || s.PCM.Format == nil {
		return 0
	}
	return s.PCM.Format.NumChannels
}

// SampleRate returns the native sample rate in Hz
func (s *Sample) SampleRate() int {
	if s == nil || s.PCM == nil || s.PCM.Format == nil {
		return 0
	}
	return s.PCM.Format.SampleRate
}

// BitDepth returns the source bit depth (16 or 24)
func (s *Sample) BitDepth() int {
	if s == nil || s.PCM == nil {
		return 0
	}
	return s.PCM.SourceBitDepth
}

// Modulator is a raw pmod/imod record
type Modulator struct {
	Source       uint16 `json:"source"`
	Destination  uint16 `json:"destination"`
	Amount       int16  `json:"amount"`
	AmountSource uint16 `json:"amountSource"`
	Transform    uint16 `json:"transform"`
}

// Zone is a flattened preset zone x instrument zone. Ranges are the
// intersection of both levels; Generators hold the resolved values.
type Zone struct {
	Instrument string
	KeyLo      int
	KeyHi      int
	VelLo      int
	VelHi      int
	Sample     *Sample
	Generators GeneratorSet
	Modulators []Modulator
}

// KeyWidth returns hi-lo of the key range
func (z *Zone) KeyWidth() int {
	return z.KeyHi - z.KeyLo
}

// RootKey returns the overriding root key when set, otherwise the sample's
// original pitch (255 means unpitched and maps to middle C).
func (z *Zone) RootKey() int {
	if v, ok := z.Generators.Get(GenOverridingRootKey); ok && v >= 0 && v <= 127 {
		return v
	}
	if z.Sample == nil || z.Sample.OriginalPitch > 127 {
		return 60
	}
	return z.Sample.OriginalPitch
}

// SampleModes returns the sampleModes generator (0 no loop, 1 continuous,
// 3 loop until release)
func (z *Zone) SampleModes() int {
	return z.Generators.Value(GenSampleModes, 0) & 0x3
}

// ExclusiveClass returns the exclusive class, 0 when unset
func (z *Zone) ExclusiveClass() int {
	return z.Generators.Value(GenExclusiveClass, 0)
}

// Bounds returns the sample window and loop points after applying the
// address offset generators. Values are frame indexes relative to the
// sample record and are not clamped.
func (z *Zone) Bounds() (start, end, loopStart, loopEnd int) {
	g := z.Generators
	start = g.Value(GenStartAddrsOffset, 0) + g.Value(GenStartAddrsCoarseOffset, 0)*32768
	end = z.Sample.Frames() + g.Value(GenEndAddrsOffset, 0) + g.Value(GenEndAddrsCoarseOffset, 0)*32768
	loopStart = z.Sample.LoopStart + g.Value(GenStartloopAddrsOffset, 0) + g.Value(GenStartloopAddrsCoarseOffset, 0)*32768
	loopEnd = z.Sample.LoopEnd + g.Value(GenEndloopAddrsOffset, 0) + g.Value(GenEndloopAddrsCoarseOffset, 0)*32768
	return start, end, loopStart, loopEnd
}

// Preset is a decoded preset header with its resolved zones
type Preset struct {
	Index   int
	Name    string
	Program int
	Bank    int
	Zones   []Zone
}

// Instrument keeps the raw generator tables of an instrument
type Instrument struct {
	Name   string
	Global GeneratorSet
	Zones  []GeneratorSet
}

// Bank is a decoded SoundFont. It is never modified after Decode returns.
type Bank struct {
	Info        Info
	Presets     []Preset
	Instruments []Instrument
	Samples     []*Sample
	Warnings    []string
}

// FindPreset returns the first preset whose name matches, case-insensitively
func (b *Bank) FindPreset(name string) (*Preset, bool) {
	for i := range b.Presets {
		if equalFold(b.Presets[i].Name, name) {
			return &b.Presets[i], true
		}
	}
	return nil, false
}
