// Package preview renders audio for listening checks: the source SoundFont
// through a reference synthesizer, loop seams at several loop-end offsets and
// envelope calibration ladders.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/go-audio/audio"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

// ReferenceTail is rendered past the end of the sequence so releases decay
const ReferenceTail = 1.0

const renderBlock = 1024

// RenderReference plays a MIDI file through the source SoundFont and returns
// seconds+ReferenceTail of 16-bit stereo audio at rate.
func RenderReference(sf2, mid []byte, rate int, seconds float64) (*audio.IntBuffer, error) {
	if rate <= 0 || seconds <= 0 {
		return nil, errors.New("rate and duration must be positive")
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(sf2))
	if err != nil {
		return nil, fmt.Errorf("failed to load soundfont: %w", err)
	}
	mf, err := meltysynth.NewMidiFile(bytes.NewReader(mid))
	if err != nil {
		return nil, fmt.Errorf("failed to load midi: %w", err)
	}
	synth, err := meltysynth.NewSynthesizer(sf, meltysynth.NewSynthesizerSettings(int32(rate)))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	seq := meltysynth.NewMidiFileSequencer(synth)
	seq.Play(mf, false)

	frames := int(math.Ceil((seconds + ReferenceTail) * float64(rate)))
	out := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: rate},
		Data:           make([]int, 0, frames*2),
		SourceBitDepth: 16,
	}
	left := make([]float32, renderBlock)
	right := make([]float32, renderBlock)
	for done := 0; done < frames; done += renderBlock {
		n := min(renderBlock, frames-done)
		seq.Render(left[:n], right[:n])
		for i := 0; i < n; i++ {
			out.Data = append(out.Data, toInt16(left[i]), toInt16(right[i]))
		}
	}
	return out, nil
}

func toInt16(v float32) int {
	return int(math.Round(math.Max(-1, math.Min(1, float64(v))) * 32767))
}

// Peak returns the largest absolute sample value of a buffer
func Peak(buf *audio.IntBuffer) int {
	peak := 0
	for _, v := range buf.Data {
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	return peak
}
