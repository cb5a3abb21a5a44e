package preview

import (
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/go-audio/audio"

	"github.com/james-see/sf2opxy/pkg/converter"
)

// Calibration tone
const (
	CalibrationRate      = 22050
	CalibrationFrequency = 441.0
	CalibrationSeconds   = 1.0
	CalibrationAmplitude = 0.8
	calibrationRoot      = 69
)

// Calibration manifest file names
const (
	CalibrationManifestJSON = "calibration-manifest.json"
	CalibrationManifestText = "calibration-manifest.txt"
)

// DefaultLadder is the set of parameter values measured per envelope stage
var DefaultLadder = []int{0, 256, 512, 1024, 2048, 4096, 8192, 12288, 16384, 20480, 24576, 28672, 32767}

// CalibrationEntry is one generated preset
type CalibrationEntry struct {
	Preset    string  `json:"preset"`
	Parameter string  `json:"parameter"`
	Value     int     `json:"value"`
	Predicted float64 `json:"predicted_seconds"`
}

// CalibrationManifest lists the generated presets and the seconds the
// current calibration predicts for each
type CalibrationManifest struct {
	Calibration string             `json:"calibration"`
	Device      string             `json:"device"`
	SampleRate  int                `json:"sample_rate"`
	Frequency   float64            `json:"frequency"`
	Presets     []CalibrationEntry `json:"presets"`
}

// CalibrationTone is a looping sine whose period divides the buffer exactly
func CalibrationTone() *audio.IntBuffer {
	frames := int(CalibrationRate * CalibrationSeconds)
	data := make([]int, frames)
	for i := range data {
		v := CalibrationAmplitude * math.Sin(2*math.Pi*CalibrationFrequency*float64(i)/CalibrationRate)
		data[i] = int(math.Round(v * 32767))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: CalibrationRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func calibrationPreset(d converter.Device, name string, amp converter.CurveParams, tone *audio.IntBuffer) *converter.OutputPreset {
	frames := tone.NumFrames()
	lo, hi := d.KeySpan()
	return &converter.OutputPreset{
		Name:     name,
		Kind:     converter.KindMelodic,
		Playmode: converter.PlaymodePoly,
		Amp:      &amp,
		Regions: []converter.OutputRegion{{
			KeyLo:         lo,
			KeyHi:         hi,
			VelHi:         127,
			RootKey:       calibrationRoot,
			LoopEnd:       frames,
			LoopEnabled:   true,
			LoopOnRelease: true,
			Frames:        frames,
			Sample:        "tone.wav",
			Audio:         tone,
		}},
	}
}

// Calibration builds attack and release ladders for a device. Each preset
// holds a sustained sine with one envelope stage set to a ladder value.
func Calibration(d converter.Device, ladder []int) (*CalibrationManifest, []converter.Artifact, error) {
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	table := converter.CalibrationV2
	m := &CalibrationManifest{
		Calibration: table.Name,
		Device:      d.Name(),
		SampleRate:  CalibrationRate,
		Frequency:   CalibrationFrequency,
		Presets:     []CalibrationEntry{},
	}
	tone := CalibrationTone()
	var arts []converter.Artifact
	add := func(name, param string, v int, amp converter.CurveParams, predicted float64) error {
		p := calibrationPreset(d, name, amp, tone)
		dir := converter.EnsurePresetDir(name)
		patch, err := d.GeneratePatch(p)
		if err != nil {
			return fmt.Errorf("failed to generate %s: %w", name, err)
		}
		wav, err := d.GenerateSample(&p.Regions[0])
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		arts = append(arts,
			converter.Artifact{Path: path.Join(dir, "patch.json"), Kind: converter.ArtifactPatch, Data: patch},
			converter.Artifact{Path: path.Join(dir, p.Regions[0].Sample), Kind: converter.ArtifactAudio, Data: wav},
		)
		m.Presets = append(m.Presets, CalibrationEntry{Preset: name, Parameter: param, Value: v, Predicted: predicted})
		return nil
	}
	for _, v := range ladder {
		v = max(0, min(v, converter.MaxParam))
		amp := converter.CurveParams{Attack: v, Sustain: converter.MaxParam}
		if err := add(fmt.Sprintf("Attack_%05d", v), "attack", v, amp, table.AttackSeconds(v)); err != nil {
			return nil, nil, err
		}
	}
	for _, v := range ladder {
		v = max(0, min(v, converter.MaxParam))
		amp := converter.CurveParams{Sustain: converter.MaxParam, Release: v}
		if err := add(fmt.Sprintf("Release_%05d", v), "release", v, amp, table.ReleaseSeconds(v)); err != nil {
			return nil, nil, err
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	arts = append(arts,
		converter.Artifact{Path: CalibrationManifestJSON, Kind: converter.ArtifactReport, Data: data},
		converter.Artifact{Path: CalibrationManifestText, Kind: converter.ArtifactReport, Data: m.Text()},
	)
	return m, arts, nil
}

// Text renders the manifest as a measurement sheet
func (m *CalibrationManifest) Text() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Calibration %s for %s\n", m.Calibration, m.Device)
	fmt.Fprintf(&b, "Tone: %.0f Hz sine at %d Hz, play A4 and hold\n\n", m.Frequency, m.SampleRate)
	fmt.Fprintf(&b, "%-16s %-8s %6s %10s %10s\n", "preset", "stage", "value", "predicted", "measured")
	for _, e := range m.Presets {
		fmt.Fprintf(&b, "%-16s %-8s %6d %9.3fs %10s\n", e.Preset, e.Parameter, e.Value, e.Predicted, "______")
	}
	return []byte(b.String())
}
