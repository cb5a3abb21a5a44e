// Package devices provides device-specific format handlers
package devices

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/james-see/sf2opxy/pkg/converter"
)

// OP-XY device constants
const (
	OPXYDeviceID     = "opxy"
	OPXYPlatform     = "OP-XY"
	OPXYVersion      = 4
	OPXYZoneCeiling  = 24
	OPXYKeyLo        = 21
	OPXYKeyHi        = 108
	OPXYDrumBaseNote = 53
)

// FX parameter slots fed by the SF2 chorus and reverb sends
const (
	fxDelaySend  = 6
	fxReverbSend = 7
)

//go:embed schema/patch.schema.json
var patchSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

// ErrInvalidPatch is returned when a patch document fails schema validation
var ErrInvalidPatch = errors.New("invalid patch")

// Modulation is one modulation source of the engine
type Modulation struct {
	Amount int `json:"amount"`
	Target int `json:"target"`
}

// Engine is the engine block of a patch
type Engine struct {
	Bendrange           int                   `json:"bendrange"`
	Highpass            int                   `json:"highpass"`
	Modulation          map[string]Modulation `json:"modulation"`
	Params              []int                 `json:"params"`
	Playmode            string                `json:"playmode"`
	PortamentoAmount    int                   `json:"portamento.amount"`
	PortamentoType      int                   `json:"portamento.type"`
	Transpose           int                   `json:"transpose"`
	TuningRoot          int                   `json:"tuning.root"`
	TuningScale         int                   `json:"tuning.scale"`
	VelocitySensitivity int                   `json:"velocity.sensitivity"`
	Volume              int                   `json:"volume"`
	Width               int                   `json:"width"`
}

// Envelope holds the amp and filter envelopes
type Envelope struct {
	Amp    converter.CurveParams `json:"amp"`
	Filter converter.CurveParams `json:"filter"`
}

// Effect is an fx or lfo block
type Effect struct {
	Active bool   `json:"active"`
	Params []int  `json:"params"`
	Type   string `json:"type"`
}

// MultisampleRegion is a region of a multisampler patch
type MultisampleRegion struct {
	Framecount    int    `json:"framecount"`
	Gain          int    `json:"gain"`
	HiKey         int    `json:"hikey"`
	LoKey         int    `json:"lokey"`
	LoopCrossfade int    `json:"loop.crossfade"`
	LoopEnd       int    `json:"loop.end"`
	LoopOnRelease bool   `json:"loop.onrelease"`
	LoopEnabled   bool   `json:"loop.enabled"`
	LoopStart     int    `json:"loop.start"`
	KeyCenter     int    `json:"pitch.keycenter"`
	Reverse       bool   `json:"reverse"`
	Sample        string `json:"sample"`
	SampleEnd     int    `json:"sample.end"`
	SampleStart   int    `json:"sample.start"`
	Tune          int    `json:"tune"`
}

// DrumRegion is a one-key slot of a drum patch
type DrumRegion struct {
	FadeIn      int    `json:"fade.in"`
	FadeOut     int    `json:"fade.out"`
	Framecount  int    `json:"framecount"`
	HiKey       int    `json:"hikey"`
	LoKey       int    `json:"lokey"`
	Pan         int    `json:"pan"`
	KeyCenter   int    `json:"pitch.keycenter"`
	Playmode    string `json:"playmode"`
	Reverse     bool   `json:"reverse"`
	Sample      string `json:"sample"`
	Transpose   int    `json:"transpose"`
	Tune        int    `json:"tune"`
	Gain        int    `json:"gain"`
	SampleStart int    `json:"sample.start"`
	SampleEnd   int    `json:"sample.end"`
}

// Patch is a patch.json document
type Patch struct {
	Engine   Engine   `json:"engine"`
	Envelope Envelope `json:"envelope"`
	FX       Effect   `json:"fx"`
	LFO      Effect   `json:"lfo"`
	Name     string   `json:"name"`
	Octave   int      `json:"octave"`
	Platform string   `json:"platform"`
	Regions  any      `json:"regions"`
	Type     string   `json:"type"`
	Version  int      `json:"version"`
}

func baseMultisample() Patch {
	return Patch{
		Engine: Engine{
			Bendrange: 13653,
			Modulation: map[string]Modulation{
				"aftertouch": {Amount: 30719, Target: 4096},
				"modwheel":   {Amount: 32767, Target: 10240},
				"pitchbend":  {Amount: 16383, Target: 0},
				"velocity":   {Amount: 16383, Target: 0},
			},
			Params:              []int{16384, 16384, 16384, 16384, 16384, 16384, 16384, 16384},
			Playmode:            "poly",
			PortamentoType:      32767,
			VelocitySensitivity: 10240,
			Volume:              16466,
			Width:               3072,
		},
		Envelope: Envelope{
			Amp:    converter.CurveParams{Attack: 0, Decay: 20295, Sustain: 14989, Release: 16383},
			Filter: converter.CurveParams{Attack: 0, Decay: 16895, Sustain: 16896, Release: 19968},
		},
		FX:       Effect{Params: []int{19661, 0, 7391, 24063, 0, 32767, 0, 0}, Type: "svf"},
		LFO:      Effect{Params: []int{19024, 32255, 4048, 17408, 0, 0, 0, 0}, Type: "element"},
		Platform: OPXYPlatform,
		Type:     "multisampler",
		Version:  OPXYVersion,
	}
}

func baseDrum() Patch {
	return Patch{
		Engine: Engine{
			Bendrange: 8191,
			Modulation: map[string]Modulation{
				"aftertouch": {Amount: 16383, Target: 0},
				"modwheel":   {Amount: 16383, Target: 0},
				"pitchbend":  {Amount: 16383, Target: 0},
				"velocity":   {Amount: 16383, Target: 0},
			},
			Params:              []int{16384, 16384, 16384, 16384, 16384, 16384, 16384, 16384},
			Playmode:            "poly",
			PortamentoType:      32767,
			VelocitySensitivity: 19660,
			Volume:              18348,
		},
		Envelope: Envelope{
			Amp:    converter.CurveParams{Attack: 0, Decay: 0, Sustain: 32767, Release: 1000},
			Filter: converter.CurveParams{Attack: 0, Decay: 3276, Sustain: 983, Release: 23757},
		},
		FX:       Effect{Params: []int{22014, 0, 30285, 11880, 0, 32767, 0, 0}, Type: "ladder"},
		LFO:      Effect{Params: []int{20309, 5679, 19114, 15807, 0, 0, 0, 12287}, Type: "random"},
		Platform: OPXYPlatform,
		Type:     "drum",
		Version:  OPXYVersion,
	}
}

// OPXY implements the Device interface for the Teenage Engineering OP-XY
type OPXY struct{}

// NewOPXY creates a new OP-XY device handler
func NewOPXY() *OPXY {
	return &OPXY{}
}

// Name returns the device name
func (d *OPXY) Name() string {
	return "Teenage Engineering OP-XY"
}

// ID returns the device ID
func (d *OPXY) ID() string {
	return OPXYDeviceID
}

// ZoneCeiling returns the maximum regions per patch
func (d *OPXY) ZoneCeiling() int {
	return OPXYZoneCeiling
}

// KeySpan returns the 88-key range melodic patches are spread over
func (d *OPXY) KeySpan() (int, int) {
	return OPXYKeyLo, OPXYKeyHi
}

// DrumBaseNote returns the note of the first drum slot
func (d *OPXY) DrumBaseNote() int {
	return OPXYDrumBaseNote
}

// BuildPatch fills the base document of the preset's kind
func (d *OPXY) BuildPatch(p *converter.OutputPreset) Patch {
	patch := baseMultisample()
	if p.Kind == converter.KindDrum {
		patch = baseDrum()
	}
	patch.Name = p.Name
	if p.Kind != converter.KindDrum && p.Playmode != "" && p.Playmode != converter.PlaymodeAuto {
		patch.Engine.Playmode = string(p.Playmode)
	}
	if p.Amp != nil {
		patch.Envelope.Amp = *p.Amp
	}
	if p.Filter != nil {
		patch.Envelope.Filter = *p.Filter
	}
	if p.FX != nil {
		patch.FX.Params[fxDelaySend] = p.FX.Delay
		patch.FX.Params[fxReverbSend] = p.FX.Reverb
		patch.FX.Active = p.FX.Active()
	}

	if p.Kind == converter.KindDrum {
		regions := make([]DrumRegion, 0, len(p.Regions))
		for _, r := range p.Regions {
			regions = append(regions, DrumRegion{
				Framecount:  r.Frames,
				HiKey:       r.KeyHi,
				LoKey:       r.KeyLo,
				Pan:         r.Pan,
				KeyCenter:   r.RootKey,
				Playmode:    r.Playmode,
				Sample:      r.Sample,
				Transpose:   r.Transpose,
				Tune:        r.Tune,
				Gain:        r.GainDB,
				SampleStart: 0,
				SampleEnd:   r.Frames,
			})
		}
		patch.Regions = regions
		return patch
	}

	regions := make([]MultisampleRegion, 0, len(p.Regions))
	for _, r := range p.Regions {
		regions = append(regions, MultisampleRegion{
			Framecount:    r.Frames,
			Gain:          r.GainDB,
			HiKey:         r.KeyHi,
			LoKey:         r.KeyLo,
			LoopEnd:       r.LoopEnd,
			LoopOnRelease: r.LoopOnRelease,
			LoopEnabled:   r.LoopEnabled,
			LoopStart:     r.LoopStart,
			KeyCenter:     r.RootKey,
			Sample:        r.Sample,
			SampleEnd:     r.Frames,
			Tune:          r.Tune,
		})
	}
	patch.Regions = regions
	return patch
}

// GeneratePatch renders and validates patch.json for a preset
func (d *OPXY) GeneratePatch(p *converter.OutputPreset) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil preset")
	}
	data, err := json.MarshalIndent(d.BuildPatch(p), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Validate checks a patch document against the embedded schema
func Validate(doc []byte) error {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(patchSchema))
	})
	if schemaErr != nil {
		return fmt.Errorf("failed to load patch schema: %w", schemaErr)
	}
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidPatch, strings.Join(msgs, "; "))
	}
	return nil
}
