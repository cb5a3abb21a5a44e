package converter

import (
	"github.com/go-audio/audio"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

func mono(data ...int) *audio.IntBuffer {
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func counting(frames int) *audio.IntBuffer {
	data := make([]int, frames)
	for i := range data {
		data[i] = i
	}
	return mono(data...)
}

func testSample(name string, frames, root int) *soundfont.Sample {
	data := make([]int, frames)
	for i := range data {
		data[i] = (i%40 - 20) * 500
	}
	return &soundfont.Sample{
		Name:          name,
		PCM:           mono(data...),
		LoopStart:     frames / 4,
		LoopEnd:       frames * 3 / 4,
		OriginalPitch: root,
	}
}

func testZone(keyLo, keyHi, velLo, velHi int, s *soundfont.Sample, gens soundfont.GeneratorSet) soundfont.Zone {
	if gens == nil {
		gens = soundfont.GeneratorSet{}
	}
	return soundfont.Zone{KeyLo: keyLo, KeyHi: keyHi, VelLo: velLo, VelHi: velHi, Sample: s, Generators: gens}
}

func candidates(p *soundfont.Preset) []Candidate {
	out := make([]Candidate, 0, len(p.Zones))
	for i := range p.Zones {
		out = append(out, candidate(p, i))
	}
	return out
}

func opxyConfig() SelectConfig {
	return SelectConfig{
		Velocities: []int{DefaultVelocity},
		Mode:       VelocityKeep,
		DrumMode:   DrumClosest,
		Ceiling:    24,
		SpanLo:     21,
		SpanHi:     108,
		DrumBase:   53,
	}
}
