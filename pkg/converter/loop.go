package converter

import (
	"fmt"

	"github.com/go-audio/audio"
)

// Loop processing limits
const (
	FakeLoopMaxLength  = 3
	FakeLoopEndMargin  = 4
	ZeroCrossingWindow = 1000
	LoopPadFrames      = 4
)

// LoopOptions configures ProcessLoop
type LoopOptions struct {
	Mode         LoopOnRelease
	Offset       int
	ZeroCrossing bool
	Window       int

	// Fake is the IsFakeLoop verdict on the source sample, before any
	// resampling moved the loop points
	Fake bool
}

// AdjustedLoop is the loop a region plays after processing
type AdjustedLoop struct {
	Start     int
	End       int
	Enabled   bool
	OnRelease bool
	Fake      bool
	Invalid   bool
	Clamped   bool
	Snapped   bool
}

// LoopEnabled reports whether an SF2 sampleModes value loops
func LoopEnabled(sampleModes int) bool {
	return sampleModes == 1 || sampleModes == 3
}

// ResolveLoopOnRelease decides whether the loop keeps running after note-off.
// Mode 1 loops continuously, mode 3 stops looping on release.
func ResolveLoopOnRelease(mode LoopOnRelease, sampleModes int) bool {
	switch mode {
	case ReleaseOn:
		return true
	case ReleaseOff:
		return false
	default:
		return sampleModes == 1
	}
}

// IsFakeLoop reports a loop of at most 3 frames sitting within 4 frames of
// the end of the sample.
func IsFakeLoop(start, end, frames int) bool {
	dist := frames - end
	if dist < 0 {
		dist = -dist
	}
	return end-start <= FakeLoopMaxLength && dist <= FakeLoopEndMargin
}

// ApplyLoopEndOffset moves the loop end by offset, clamped to
// [start+1, frames].
func ApplyLoopEndOffset(start, end, frames, offset int) int {
	return clampInt(end+offset, start+1, frames)
}

// ProcessLoop validates and adjusts the loop of buf. Input points are frame
// indexes on buf's grid; buf is not modified. Fake loops are judged by the
// caller on the source grid and passed in opts.
func ProcessLoop(buf *audio.IntBuffer, start, end, sampleModes int, opts LoopOptions) AdjustedLoop {
	out := AdjustedLoop{
		Start:     start,
		End:       end,
		Enabled:   LoopEnabled(sampleModes),
		OnRelease: ResolveLoopOnRelease(opts.Mode, sampleModes),
	}
	if !out.Enabled {
		out.Start, out.End = 0, 0
		return out
	}
	frames := buf.NumFrames()
	if opts.Fake {
		out.Enabled, out.Fake = false, true
		out.Start, out.End = 0, 0
		return out
	}
	if frames < 2 || end <= start {
		out.Enabled, out.Invalid = false, true
		out.Start, out.End = 0, 0
		return out
	}

	out.Start = clampInt(start, 0, frames-1)
	out.End = clampInt(end, out.Start+1, frames)
	out.Clamped = out.Start != start || out.End != end

	if opts.Offset != 0 {
		out.End = ApplyLoopEndOffset(out.Start, out.End, frames, opts.Offset)
	}
	if opts.ZeroCrossing {
		window := opts.Window
		if window <= 0 {
			window = ZeroCrossingWindow
		}
		s, e, ok := SnapLoop(buf, out.Start, out.End, window)
		if ok && (s != out.Start || e != out.End) {
			out.Start, out.End, out.Snapped = s, e, true
		}
	}
	return out
}

// describe returns report lines for the non-trivial outcomes
func (l AdjustedLoop) describe(srcStart, srcEnd int) []string {
	var lines []string
	if l.Fake {
		lines = append(lines, fmt.Sprintf("loop %d-%d is an end-of-sample artifact, disabled", srcStart, srcEnd))
	}
	if l.Invalid {
		lines = append(lines, fmt.Sprintf("loop %d-%d is empty, disabled", srcStart, srcEnd))
	}
	return lines
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// FindZeroCrossing returns the frame in [lo, hi] nearest to pos where every
// channel is zero or changes sign from the previous frame. Only frames within
// window of pos are searched.
func FindZeroCrossing(buf *audio.IntBuffer, pos, lo, hi, window int) (int, bool) {
	frames := buf.NumFrames()
	lo = max(lo, pos-window, 0)
	hi = min(hi, pos+window, frames-1)
	for d := 0; d <= window; d++ {
		if i := pos - d; i >= lo && i <= hi && crossingAt(buf, i) {
			return i, true
		}
		if i := pos + d; d > 0 && i >= lo && i <= hi && crossingAt(buf, i) {
			return i, true
		}
	}
	return pos, false
}

// SnapLoop moves both loop points to nearby zero crossings. A point without a
// crossing in range stays put; the result never inverts the loop.
func SnapLoop(buf *audio.IntBuffer, start, end, window int) (int, int, bool) {
	frames := buf.NumFrames()
	if frames < 2 || end <= start {
		return start, end, false
	}
	s, _ := FindZeroCrossing(buf, start, 0, end-1, window)
	e, _ := FindZeroCrossing(buf, min(end, frames-1), s+1, frames-1, window)
	if end == frames && e == frames-1 && !crossingAt(buf, e) {
		e = end
	}
	if e <= s {
		return start, end, false
	}
	return s, e, true
}

// crossingAt requires all channels to cross at frame i, so opposite-polarity
// channels cannot fake a crossing in their sum
func crossingAt(buf *audio.IntBuffer, i int) bool {
	ch := buf.Format.NumChannels
	for c := 0; c < ch; c++ {
		cur := buf.Data[i*ch+c]
		if cur == 0 {
			continue
		}
		if i == 0 || sign(buf.Data[(i-1)*ch+c]) == sign(cur) {
			return false
		}
	}
	return true
}

// RenderLoopPreview concatenates the frames before the loop, the loop body
// repeated iterations times, and up to tail frames after the loop.
func RenderLoopPreview(buf *audio.IntBuffer, start, end, iterations, tail int) *audio.IntBuffer {
	ch := buf.Format.NumChannels
	frames := buf.NumFrames()
	start = clampInt(start, 0, frames)
	end = clampInt(end, start, frames)
	out := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: ch, SampleRate: buf.Format.SampleRate},
		SourceBitDepth: buf.SourceBitDepth,
	}
	if end <= start || iterations <= 0 {
		out.Data = append([]int(nil), buf.Data...)
		return out
	}
	tailEnd := min(frames, end+max(0, tail))
	data := make([]int, 0, (start+(end-start)*iterations+tailEnd-end)*ch)
	data = append(data, buf.Data[:start*ch]...)
	for i := 0; i < iterations; i++ {
		data = append(data, buf.Data[start*ch:end*ch]...)
	}
	data = append(data, buf.Data[end*ch:tailEnd*ch]...)
	out.Data = data
	return out
}

// PadLoopForInterpolation overwrites the pad frames after the loop end with
// the first pad frames of the loop, growing the buffer when needed, so an
// interpolating player reads loop data across the seam. Loops not longer
// than 2*pad are left alone. The returned buffer is always a copy.
func PadLoopForInterpolation(buf *audio.IntBuffer, start, end, pad int) (*audio.IntBuffer, bool) {
	ch := buf.Format.NumChannels
	out := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: ch, SampleRate: buf.Format.SampleRate},
		Data:           append([]int(nil), buf.Data...),
		SourceBitDepth: buf.SourceBitDepth,
	}
	frames := buf.NumFrames()
	if pad <= 0 || start < 0 || end > frames || end-start <= 2*pad {
		return out, false
	}
	if need := (end + pad) * ch; need > len(out.Data) {
		out.Data = append(out.Data, make([]int, need-len(out.Data))...)
	}
	copy(out.Data[end*ch:(end+pad)*ch], out.Data[start*ch:(start+pad)*ch])
	return out, true
}
