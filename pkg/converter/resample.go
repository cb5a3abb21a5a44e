package converter

import (
	"fmt"
	"math"

	"github.com/go-audio/audio"
)

// Resample converts buf to dstRate and dstBitDepth using linear
// interpolation. Channel interleaving is preserved and the output has
// round(frames*dstRate/srcRate) frames. A zero dstBitDepth keeps the source
// depth. The input buffer is never modified.
func Resample(buf *audio.IntBuffer, dstRate, dstBitDepth int) (*audio.IntBuffer, error) {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing format", ErrResampleOutOfRange)
	}
	srcRate := buf.Format.SampleRate
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("%w: rate %d -> %d", ErrResampleOutOfRange, srcRate, dstRate)
	}
	frames := buf.NumFrames()
	if frames == 0 {
		return nil, fmt.Errorf("%w: empty sample", ErrResampleOutOfRange)
	}
	srcDepth := bitDepth(buf)
	if dstBitDepth == 0 {
		dstBitDepth = srcDepth
	}
	if dstBitDepth < 8 || dstBitDepth > 32 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrResampleOutOfRange, dstBitDepth)
	}

	ch := buf.Format.NumChannels
	out := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: ch, SampleRate: dstRate},
		SourceBitDepth: dstBitDepth,
	}
	if srcRate == dstRate && srcDepth == dstBitDepth {
		out.Data = append([]int(nil), buf.Data[:frames*ch]...)
		return out, nil
	}

	n := frames
	if srcRate != dstRate {
		n = int(math.Round(float64(frames) * float64(dstRate) / float64(srcRate)))
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %d frames at %d Hz leave nothing at %d Hz", ErrResampleOutOfRange, frames, srcRate, dstRate)
	}

	scale := math.Ldexp(1, dstBitDepth-srcDepth)
	lo, hi := -(1 << (dstBitDepth - 1)), (1<<(dstBitDepth-1))-1
	step := float64(srcRate) / float64(dstRate)
	out.Data = make([]int, n*ch)
	for i := 0; i < n; i++ {
		pos := float64(i) * step
		i0 := min(int(pos), frames-1)
		i1 := min(i0+1, frames-1)
		frac := pos - float64(i0)
		for c := 0; c < ch; c++ {
			a := float64(buf.Data[i0*ch+c])
			b := float64(buf.Data[i1*ch+c])
			v := int(math.Round((a + (b-a)*frac) * scale))
			out.Data[i*ch+c] = clampInt(v, lo, hi)
		}
	}
	return out, nil
}

// ScaleLoopPoint moves a frame index from srcRate to dstRate
func ScaleLoopPoint(frame, srcRate, dstRate int) int {
	if srcRate <= 0 || srcRate == dstRate {
		return frame
	}
	return int(math.Round(float64(frame) * float64(dstRate) / float64(srcRate)))
}

func bitDepth(buf *audio.IntBuffer) int {
	if buf.SourceBitDepth > 0 {
		return buf.SourceBitDepth
	}
	return 16
}
