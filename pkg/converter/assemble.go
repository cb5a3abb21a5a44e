package converter

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/go-audio/audio"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

// AutoPlaymode guesses a playmode from the preset name and zones
func AutoPlaymode(name string, zones []Candidate) Playmode {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "legato") || strings.Contains(lower, "porta") {
		return PlaymodeLegato
	}
	if strings.Contains(lower, "mono") {
		return PlaymodeMono
	}
	for _, c := range zones {
		if c.Zone.ExclusiveClass() > 0 {
			return PlaymodeMono
		}
	}
	return PlaymodePoly
}

// ChokeGroups numbers the distinct exclusive classes 1..n in ascending order
func ChokeGroups(zones []Candidate) map[int]int {
	var classes []int
	for _, c := range zones {
		if ec := c.Zone.ExclusiveClass(); ec > 0 && !slices.Contains(classes, ec) {
			classes = append(classes, ec)
		}
	}
	slices.Sort(classes)
	groups := make(map[int]int, len(classes))
	for i, ec := range classes {
		groups[ec] = i + 1
	}
	return groups
}

// SanitizeName keeps letters, digits, '-' and '_' and turns spaces into
// underscores. Everything else becomes '_'.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Join(strings.Fields(b.String()), "_")
	if out == "" {
		return "preset"
	}
	return out
}

// nameSet hands out unique file names. Every issued name is a key; the value
// is the last suffix tried for that base.
type nameSet map[string]int

func (s nameSet) unique(base string) string {
	name := base
	n, used := s[base]
	for used {
		n++
		name = fmt.Sprintf("%s_%d", base, n)
		_, used = s[name]
	}
	s[base] = n
	if name != base {
		s[name] = 0
	}
	return name
}

// modeOf returns the most common value (earliest on ties) and the number of
// distinct values
func modeOf[T comparable](values []T) (T, int) {
	counts := map[T]int{}
	var best T
	bestN := 0
	for _, v := range values {
		counts[v]++
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best, len(counts)
}

func presetEnvelope(zones []Candidate, read func(*soundfont.Zone) (EnvelopeTimes, bool), label string, n *notes) *CurveParams {
	var values []CurveParams
	for _, c := range zones {
		t, ok := read(c.Zone)
		if !ok {
			continue
		}
		p, clamped := CalibrationV2.Map(t)
		for _, msg := range clamped {
			n.adjustf(AdjustClampedValue, sampleName(c.Zone), "%s envelope %s", label, msg)
		}
		values = append(values, p)
	}
	if len(values) == 0 {
		return nil
	}
	p, distinct := modeOf(values)
	if distinct > 1 {
		n.adjustf(AdjustMixedEnvelope, "", "%s envelope has %d variants across zones, using the most common", label, distinct)
	}
	return &p
}

func presetFX(zones []Candidate, n *notes) *FXSends {
	values := make([]FXSends, 0, len(zones))
	for _, c := range zones {
		values = append(values, ZoneFX(c.Zone))
	}
	if len(values) == 0 {
		return nil
	}
	fx, distinct := modeOf(values)
	if distinct > 1 {
		n.adjustf(AdjustMixedFX, "", "fx sends have %d variants across zones, using the most common", distinct)
	}
	return &fx
}

// assemble builds the output preset of one variant
func assemble(cls Classification, v Variant, opts Options, n *notes) (*OutputPreset, error) {
	out := &OutputPreset{
		Name:     v.Name,
		Source:   n.preset,
		Kind:     cls.Kind,
		Velocity: v.Velocity,
		Amp:      presetEnvelope(v.Zones, VolumeEnvelope, "amp", n),
		Filter:   presetEnvelope(v.Zones, ModulationEnvelope, "filter", n),
		FX:       presetFX(v.Zones, n),
	}

	var groups map[int]int
	if cls.Kind == KindDrum {
		groups = ChokeGroups(v.Zones)
		if len(groups) > 1 {
			n.adjustf(AdjustChokeGroups, "", "%s: %d exclusive classes mapped to separate choke groups", v.Name, len(groups))
		}
	} else {
		out.Playmode = opts.InstrumentPlaymode
		if out.Playmode == PlaymodeAuto || out.Playmode == "" {
			out.Playmode = AutoPlaymode(n.preset, v.Zones)
		}
	}

	names := nameSet{}
	for _, c := range v.Zones {
		r, err := buildRegion(c, cls.Kind, opts, n)
		if err != nil {
			reason := "unusable_sample"
			if errors.Is(err, ErrResampleOutOfRange) {
				reason = "resample_out_of_range"
			}
			n.discard(c.Zone, reason, v.Velocity)
			opts.Logger.Debug("zone skipped", "preset", v.Name, "sample", sampleName(c.Zone), "error", err)
			continue
		}
		base := SanitizeName(sampleName(c.Zone))
		if cls.Kind == KindDrum {
			r.ChokeGroup = groups[c.Zone.ExclusiveClass()]
			r.Playmode = "oneshot"
			if r.ChokeGroup > 0 {
				r.Playmode = "group"
			}
		} else {
			base = fmt.Sprintf("%s_%d", base, c.Root)
		}
		r.Sample = names.unique(base) + ".wav"
		out.Regions = append(out.Regions, r)
	}
	if len(out.Regions) == 0 {
		return nil, fmt.Errorf("%w: %q has no usable zones", ErrPresetSkipped, v.Name)
	}
	return out, nil
}

// sourceWindow copies the frames a zone plays out of the shared sample
func sourceWindow(z *soundfont.Zone) (*audio.IntBuffer, int, int, error) {
	s := z.Sample
	if s == nil || s.PCM == nil || s.PCM.Format == nil {
		return nil, 0, 0, fmt.Errorf("%w: zone has no sample data", ErrResampleOutOfRange)
	}
	frames := s.Frames()
	start, end, ls, le := z.Bounds()
	start = clampInt(start, 0, frames)
	end = clampInt(end, start, frames)
	if end <= start {
		return nil, 0, 0, fmt.Errorf("%w: sample %q has no frames", ErrResampleOutOfRange, s.Name)
	}
	ch := s.Channels()
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: ch, SampleRate: s.SampleRate()},
		Data:           append([]int(nil), s.PCM.Data[start*ch:end*ch]...),
		SourceBitDepth: s.BitDepth(),
	}
	return buf, ls - start, le - start, nil
}

func buildRegion(c Candidate, kind Kind, opts Options, n *notes) (OutputRegion, error) {
	z := c.Zone
	name := sampleName(z)
	src, ls, le, err := sourceWindow(z)
	if err != nil {
		return OutputRegion{}, err
	}

	// judged on source frames; resampling can shrink a real loop into the fake window
	fake := LoopEnabled(z.SampleModes()) && IsFakeLoop(ls, le, src.NumFrames())
	srcLs, srcLe := ls, le

	buf := src
	if !opts.NoResample {
		buf, err = Resample(src, opts.ResampleRate, opts.BitDepth)
		if err != nil {
			return OutputRegion{}, err
		}
		ls = ScaleLoopPoint(ls, src.Format.SampleRate, opts.ResampleRate)
		le = ScaleLoopPoint(le, src.Format.SampleRate, opts.ResampleRate)
	}

	shift, cents := Tune(
		z.Generators.Value(soundfont.GenCoarseTune, 0),
		z.Generators.Value(soundfont.GenFineTune, 0),
		z.Sample.PitchCorrection,
	)
	gain, clamped := GainDB(z.Generators.Value(soundfont.GenInitialAttenuation, 0))
	if clamped {
		n.adjustf(AdjustClampedValue, name, "gain clamped to %d dB", gain)
	}

	r := OutputRegion{
		KeyLo:   c.KeyLo,
		KeyHi:   c.KeyHi,
		VelLo:   z.VelLo,
		VelHi:   z.VelHi,
		RootKey: clampInt(c.Root-shift, 0, 127),
		GainDB:  gain,
		Tune:    cents,
		Pan:     Pan(z),
	}

	if kind == KindDrum {
		// drum slots play at native pitch around middle C
		r.RootKey, r.Transpose = 60, shift
	} else {
		loop := ProcessLoop(buf, ls, le, z.SampleModes(), LoopOptions{
			Mode:         opts.LoopOnRelease,
			Offset:       opts.LoopEndOffset,
			ZeroCrossing: opts.ZeroCrossing,
			Fake:         fake,
		})
		for _, msg := range loop.describe(srcLs, srcLe) {
			ak := AdjustInvalidLoop
			if loop.Fake {
				ak = AdjustFakeLoop
			}
			n.adjustf(ak, name, "%s", msg)
		}
		if loop.Clamped {
			n.adjustf(AdjustClampedValue, name, "loop %d-%d clamped to the sample", ls, le)
		}
		if loop.Enabled && opts.LoopEndOffset != 0 {
			n.adjustf(AdjustLoopOffset, name, "loop end offset %+d gives %d", opts.LoopEndOffset, loop.End)
		}
		if loop.Snapped {
			n.adjustf(AdjustZeroCrossing, name, "loop moved to zero crossings %d-%d", loop.Start, loop.End)
		}
		if loop.Enabled && loop.OnRelease {
			// the tail past a release loop is never played
			if padded, ok := PadLoopForInterpolation(buf, loop.Start, loop.End, LoopPadFrames); ok {
				buf = padded
			}
		}
		r.LoopStart, r.LoopEnd = loop.Start, loop.End
		r.LoopEnabled, r.LoopOnRelease = loop.Enabled, loop.OnRelease
	}

	r.Audio = buf
	r.Frames = buf.NumFrames()
	return r, nil
}
