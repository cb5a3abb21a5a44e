package soundfont

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-audio/audio"
	"github.com/jfreymuth/oggvorbis"
)

// decodeSamples builds the sample pool; the terminal EOS record is dropped
func (d *decoder) decodeSamples(shdr []rawShdr) {
	points := len(d.smpl) / 2
	d.bank.Samples = make([]*Sample, 0, len(shdr)-1)
	for i, h := range shdr[:len(shdr)-1] {
		s := &Sample{
			Index:           i,
			Name:            cString(h.Name[:]),
			OriginalPitch:   int(h.OriginalPitch),
			PitchCorrection: int(h.PitchCorrection),
			Type:            SampleType(h.Type),
			Link:            int(h.Link),
		}
		switch {
		case s.Type&SampleROM != 0:
			d.warnf("sample %q references ROM data and is left empty", s.Name)
			s.PCM = emptyBuffer(int(h.SampleRate))
		case s.Type.Compressed():
			s.PCM = d.decodeVorbis(s.Name, h)
			// SF3 loop points are already relative to the decoded stream
			s.LoopStart = int(h.StartLoop)
			s.LoopEnd = int(h.EndLoop)
		default:
			start, end := int(h.Start), int(h.End)
			if end > points {
				d.warnf("sample %q end %d clamped to %d", s.Name, end, points)
				end = points
			}
			if start > end {
				d.warnf("sample %q has start %d after end %d", s.Name, start, end)
				start = end
			}
			s.PCM = d.pcm(start, end, int(h.SampleRate))
			s.LoopStart = int(h.StartLoop) - int(h.Start)
			s.LoopEnd = int(h.EndLoop) - int(h.Start)
		}
		d.bank.Samples = append(d.bank.Samples, s)
	}
}

func emptyBuffer(rate int) *audio.IntBuffer {
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           []int{},
		SourceBitDepth: 16,
	}
}

// pcm slices [start,end) sample points out of smpl, merging sm24 when present
func (d *decoder) pcm(start, end, rate int) *audio.IntBuffer {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, end-start),
		SourceBitDepth: 16,
	}
	if d.sm24 != nil {
		buf.SourceBitDepth = 24
	}
	for i := start; i < end; i++ {
		v := int(int16(binary.LittleEndian.Uint16(d.smpl[2*i:])))
		if d.sm24 != nil {
			v = v<<8 | int(d.sm24[i])
		}
		buf.Data[i-start] = v
	}
	return buf
}

// decodeVorbis decodes an SF3 sample; start/end are byte offsets into smpl
func (d *decoder) decodeVorbis(name string, h rawShdr) *audio.IntBuffer {
	start, end := int(h.Start), int(h.End)
	if start > end || end > len(d.smpl) {
		d.warnf("sample %q compressed range [%d,%d) outside smpl", name, start, end)
		return emptyBuffer(int(h.SampleRate))
	}
	data, format, err := oggvorbis.ReadAll(bytes.NewReader(d.smpl[start:end]))
	if err != nil {
		d.warnf("sample %q: %v", name, fmt.Errorf("failed to decode vorbis: %w", err))
		return emptyBuffer(int(h.SampleRate))
	}
	rate := int(h.SampleRate)
	if rate == 0 {
		rate = format.SampleRate
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: format.Channels, SampleRate: rate},
		Data:           make([]int, len(data)),
		SourceBitDepth: 16,
	}
	for i, f := range data {
		v := math.Round(float64(f) * 32767)
		buf.Data[i] = int(math.Max(-32768, math.Min(32767, v)))
	}
	return buf
}

// stereoPair interleaves a left and right sample into one two-channel record
func stereoPair(left, right *Sample) *Sample {
	n := left.Frames()
	if right.Frames() < n {
		n = right.Frames()
	}
	depth := left.BitDepth()
	if right.BitDepth() > depth {
		depth = right.BitDepth()
	}
	data := make([]int, 2*n)
	for i := 0; i < n; i++ {
		data[2*i] = scaleDepth(left.PCM.Data[i], left.BitDepth(), depth)
		data[2*i+1] = scaleDepth(right.PCM.Data[i], right.BitDepth(), depth)
	}
	return &Sample{
		Index:           left.Index,
		Name:            left.Name,
		LoopStart:       left.LoopStart,
		LoopEnd:         left.LoopEnd,
		OriginalPitch:   left.OriginalPitch,
		PitchCorrection: left.PitchCorrection,
		Type:            left.Type,
		Link:            right.Index,
		PCM: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: left.SampleRate()},
			Data:           data,
			SourceBitDepth: depth,
		},
	}
}

func scaleDepth(v, from, to int) int {
	if to > from {
		return v << uint(to-from)
	}
	return v
}
