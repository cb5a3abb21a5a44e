package preview

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/james-see/sf2opxy/pkg/converter"
	"github.com/james-see/sf2opxy/pkg/converter/devices"
)

// Loop preview defaults
const (
	DefaultIterations  = 6
	DefaultTailSeconds = 2.0
	ManifestFile       = "manifest.json"
)

// DefaultOffsets are the loop-end offsets rendered when none are given
var DefaultOffsets = []int{-1, 0, 1}

// ErrNoLoop is returned when a preset has no looped region
var ErrNoLoop = errors.New("no looped region")

// LoopOptions configures a loop preview
type LoopOptions struct {
	Offsets     []int
	Iterations  int
	TailSeconds float64
	// Sample selects a region by file name; empty picks the region nearest middle C
	Sample string
}

// LoopOutput is one rendered offset
type LoopOutput struct {
	Offset  int    `json:"offset"`
	File    string `json:"file"`
	LoopEnd int    `json:"loop_end"`
}

// LoopManifest describes a loop preview run
type LoopManifest struct {
	Preset     string       `json:"preset"`
	Sample     string       `json:"sample"`
	Channels   int          `json:"channels"`
	SampleRate int          `json:"sample_rate"`
	Framecount int          `json:"framecount"`
	LoopStart  int          `json:"loop_start"`
	LoopEnd    int          `json:"loop_end"`
	Iterations int          `json:"iterations"`
	TailFrames int          `json:"tail_frames"`
	Outputs    []LoopOutput `json:"outputs"`
}

type presetDoc struct {
	Name    string                      `json:"name"`
	Regions []devices.MultisampleRegion `json:"regions"`
}

func (o LoopOptions) withDefaults() LoopOptions {
	if len(o.Offsets) == 0 {
		o.Offsets = DefaultOffsets
	}
	if o.Iterations <= 0 {
		o.Iterations = DefaultIterations
	}
	if o.TailSeconds < 0 {
		o.TailSeconds = 0
	}
	return o
}

// pickRegion returns the looped region named sample, or the looped region
// whose key center is closest to 60
func pickRegion(regions []devices.MultisampleRegion, sample string) (devices.MultisampleRegion, error) {
	best := -1
	for i, r := range regions {
		if !r.LoopEnabled || r.LoopEnd <= r.LoopStart {
			continue
		}
		if sample != "" {
			if r.Sample == sample {
				return r, nil
			}
			continue
		}
		if best < 0 || abs(r.KeyCenter-60) < abs(regions[best].KeyCenter-60) {
			best = i
		}
	}
	if best < 0 {
		if sample != "" {
			return devices.MultisampleRegion{}, fmt.Errorf("%w named %q", ErrNoLoop, sample)
		}
		return devices.MultisampleRegion{}, ErrNoLoop
	}
	return regions[best], nil
}

// LoopPreviews renders one region of a preset directory at several loop-end
// offsets. The returned artifacts are the WAVs followed by the manifest.
func LoopPreviews(presetDir string, opts LoopOptions) (*LoopManifest, []converter.Artifact, error) {
	opts = opts.withDefaults()
	raw, err := os.ReadFile(filepath.Join(presetDir, "patch.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read patch: %w", err)
	}
	var doc presetDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse patch: %w", err)
	}
	region, err := pickRegion(doc.Regions, opts.Sample)
	if err != nil {
		return nil, nil, err
	}
	wavData, err := os.ReadFile(filepath.Join(presetDir, region.Sample))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sample: %w", err)
	}
	buf, err := devices.DecodeWAV(wavData)
	if err != nil {
		return nil, nil, err
	}

	frames := buf.NumFrames()
	tail := int(math.Round(opts.TailSeconds * float64(buf.Format.SampleRate)))
	m := &LoopManifest{
		Preset:     doc.Name,
		Sample:     region.Sample,
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
		Framecount: frames,
		LoopStart:  region.LoopStart,
		LoopEnd:    region.LoopEnd,
		Iterations: opts.Iterations,
		TailFrames: tail,
		Outputs:    []LoopOutput{},
	}
	stem := converter.SanitizeName(trimExt(region.Sample))
	var arts []converter.Artifact
	for _, off := range opts.Offsets {
		end := converter.ApplyLoopEndOffset(region.LoopStart, region.LoopEnd, frames, off)
		rendered := converter.RenderLoopPreview(buf, region.LoopStart, end, opts.Iterations, tail)
		data, err := devices.EncodeWAV(rendered)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode offset %d: %w", off, err)
		}
		name := fmt.Sprintf("%s_loop_end_%+d.wav", stem, off)
		arts = append(arts, converter.Artifact{Path: name, Kind: converter.ArtifactAudio, Data: data})
		m.Outputs = append(m.Outputs, LoopOutput{Offset: off, File: name, LoopEnd: end})
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	arts = append(arts, converter.Artifact{Path: ManifestFile, Kind: converter.ArtifactReport, Data: manifest})
	return m, arts, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
