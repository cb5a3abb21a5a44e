package converter

import (
	"errors"
	"testing"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Grand Piano", "Grand_Piano"},
		{"  Warm   Pad ", "Warm_Pad"},
		{"a/b:c", "a_b_c"},
		{"Kit-01_x", "Kit-01_x"},
		{"", "preset"},
		{"   ", "preset"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNameSetUnique(t *testing.T) {
	s := nameSet{}
	got := []string{
		s.unique("kick"), s.unique("kick"), s.unique("snare"), s.unique("kick"),
		s.unique("kick_1"), s.unique("tom_1"), s.unique("tom"), s.unique("tom"),
	}
	want := []string{"kick", "kick_1", "snare", "kick_2", "kick_1_1", "tom_1", "tom", "tom_2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("unique() #%d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAutoPlaymode(t *testing.T) {
	plain := candidates(rootPreset("p", 60))
	z := testZone(60, 60, 0, 127, testSample("s", 100, 60), soundfont.GeneratorSet{soundfont.GenExclusiveClass: 1})
	exclusive := []Candidate{{Zone: &z}}

	tests := []struct {
		name  string
		zones []Candidate
		want  Playmode
	}{
		{"Legato Strings", plain, PlaymodeLegato},
		{"Porta Lead", plain, PlaymodeLegato},
		{"Mono Bass", plain, PlaymodeMono},
		{"Organ", exclusive, PlaymodeMono},
		{"Piano", plain, PlaymodePoly},
	}
	for _, tt := range tests {
		if got := AutoPlaymode(tt.name, tt.zones); got != tt.want {
			t.Errorf("AutoPlaymode(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestChokeGroups(t *testing.T) {
	var zones []Candidate
	for _, ec := range []int{5, 2, 5, 0} {
		z := testZone(36, 36, 0, 127, nil, soundfont.GeneratorSet{soundfont.GenExclusiveClass: ec})
		zones = append(zones, Candidate{Zone: &z})
	}
	got := ChokeGroups(zones)
	if len(got) != 2 || got[2] != 1 || got[5] != 2 {
		t.Errorf("ChokeGroups() = %v, want map[2:1 5:2]", got)
	}
}

func TestBuildRegionMelodic(t *testing.T) {
	s := testSample("piano", 1000, 60)
	z := testZone(21, 108, 0, 127, s, soundfont.GeneratorSet{
		soundfont.GenSampleModes:        1,
		soundfont.GenCoarseTune:         1,
		soundfont.GenInitialAttenuation: 60,
	})
	opts := DefaultOptions().withDefaults()
	n := &notes{preset: "Piano"}

	r, err := buildRegion(Candidate{Zone: &z, Root: 60, KeyLo: 21, KeyHi: 108}, KindMelodic, opts, n)
	if err != nil {
		t.Fatalf("buildRegion() error = %v", err)
	}
	if r.Frames != 500 || r.Audio.Format.SampleRate != 22050 {
		t.Errorf("audio = %d frames at %d Hz, want 500 at 22050", r.Frames, r.Audio.Format.SampleRate)
	}
	if r.LoopStart != 125 || r.LoopEnd != 375 || !r.LoopEnabled || !r.LoopOnRelease {
		t.Errorf("loop = %d-%d enabled=%v onRelease=%v, want 125-375 true true",
			r.LoopStart, r.LoopEnd, r.LoopEnabled, r.LoopOnRelease)
	}
	// padded seam repeats the loop start
	for i := 0; i < LoopPadFrames; i++ {
		if r.Audio.Data[r.LoopEnd+i] != r.Audio.Data[r.LoopStart+i] {
			t.Errorf("frame %d = %d, want loop start frame %d", r.LoopEnd+i, r.Audio.Data[r.LoopEnd+i], r.Audio.Data[r.LoopStart+i])
		}
	}
	if r.RootKey != 59 || r.Tune != 0 {
		t.Errorf("RootKey, Tune = %d, %d, want 59, 0", r.RootKey, r.Tune)
	}
	if r.GainDB != -6 {
		t.Errorf("GainDB = %d, want -6", r.GainDB)
	}
	if s.PCM.NumFrames() != 1000 {
		t.Errorf("source sample modified")
	}
}

func TestBuildRegionDrum(t *testing.T) {
	z := testZone(38, 38, 0, 127, testSample("snare", 400, 38), soundfont.GeneratorSet{
		soundfont.GenCoarseTune:  -2,
		soundfont.GenSampleModes: 1,
	})
	opts := DefaultOptions().withDefaults()
	opts.NoResample = true
	r, err := buildRegion(Candidate{Zone: &z, Root: 38, KeyLo: 53, KeyHi: 53}, KindDrum, opts, &notes{})
	if err != nil {
		t.Fatalf("buildRegion() error = %v", err)
	}
	if r.RootKey != 60 || r.Transpose != -2 {
		t.Errorf("RootKey, Transpose = %d, %d, want 60, -2", r.RootKey, r.Transpose)
	}
	if r.LoopEnabled {
		t.Errorf("drum region loops")
	}
	if r.Frames != 400 || r.Audio.Format.SampleRate != 44100 {
		t.Errorf("audio = %d frames at %d Hz, want untouched", r.Frames, r.Audio.Format.SampleRate)
	}
}

func TestBuildRegionFakeLoopUsesSourceFrames(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		enabled    bool
		loop       [2]int
	}{
		// 6 frames long and 6 from the end at 44.1 kHz, 3 and 3 after resampling
		{"short loop near the end", 988, 994, true, [2]int{494, 497}},
		{"end-of-sample artifact", 997, 999, false, [2]int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSample("pad", 1000, 60)
			s.LoopStart, s.LoopEnd = tt.start, tt.end
			z := testZone(21, 108, 0, 127, s, soundfont.GeneratorSet{soundfont.GenSampleModes: 1})
			n := &notes{preset: "Pad"}

			r, err := buildRegion(Candidate{Zone: &z, Root: 60, KeyLo: 21, KeyHi: 108}, KindMelodic, DefaultOptions().withDefaults(), n)
			if err != nil {
				t.Fatalf("buildRegion() error = %v", err)
			}
			if r.Audio.Format.SampleRate != 22050 {
				t.Fatalf("SampleRate = %d, want 22050", r.Audio.Format.SampleRate)
			}
			if r.LoopEnabled != tt.enabled || [2]int{r.LoopStart, r.LoopEnd} != tt.loop {
				t.Errorf("loop = %d-%d enabled=%v, want %v enabled=%v", r.LoopStart, r.LoopEnd, r.LoopEnabled, tt.loop, tt.enabled)
			}
			fake := 0
			for _, a := range n.adjust {
				if a.Kind == AdjustFakeLoop {
					fake++
				}
			}
			if got := fake > 0; got == tt.enabled {
				t.Errorf("fake_loop adjustments = %v", n.adjust)
			}
		})
	}
}

func TestBuildRegionEmptySample(t *testing.T) {
	z := testZone(60, 60, 0, 127, &soundfont.Sample{Name: "empty", PCM: mono()}, nil)
	_, err := buildRegion(Candidate{Zone: &z}, KindMelodic, DefaultOptions().withDefaults(), &notes{})
	if !errors.Is(err, ErrResampleOutOfRange) {
		t.Errorf("buildRegion() error = %v, want ErrResampleOutOfRange", err)
	}
}

func TestAssembleDrumKit(t *testing.T) {
	kick := testZone(36, 36, 0, 127, testSample("hit", 200, 36), nil)
	hat := testZone(42, 42, 0, 127, testSample("hit", 200, 42), soundfont.GeneratorSet{soundfont.GenExclusiveClass: 7})
	open := testZone(46, 46, 0, 127, testSample("open hat", 200, 46), soundfont.GeneratorSet{soundfont.GenExclusiveClass: 7})
	v := Variant{Name: "Kit", Zones: []Candidate{
		{Zone: &kick, Root: 36, KeyLo: 53, KeyHi: 53},
		{Zone: &hat, Root: 42, KeyLo: 54, KeyHi: 54},
		{Zone: &open, Root: 46, KeyLo: 55, KeyHi: 55},
	}}
	n := &notes{preset: "Kit"}
	out, err := assemble(Classification{Kind: KindDrum}, v, DefaultOptions().withDefaults(), n)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	if len(out.Regions) != 3 {
		t.Fatalf("len(Regions) = %d, want 3", len(out.Regions))
	}
	want := []struct {
		sample   string
		playmode string
		group    int
	}{
		{"hit.wav", "oneshot", 0},
		{"hit_1.wav", "group", 1},
		{"open_hat.wav", "group", 1},
	}
	for i, w := range want {
		r := out.Regions[i]
		if r.Sample != w.sample || r.Playmode != w.playmode || r.ChokeGroup != w.group {
			t.Errorf("region %d = %s %s group %d, want %s %s group %d",
				i, r.Sample, r.Playmode, r.ChokeGroup, w.sample, w.playmode, w.group)
		}
	}
	if out.Playmode != "" {
		t.Errorf("drum preset playmode = %q, want empty", out.Playmode)
	}
}

func TestAssembleMelodicEnvelopeMode(t *testing.T) {
	short := soundfont.GeneratorSet{soundfont.GenReleaseVolEnv: 0}
	long := soundfont.GeneratorSet{soundfont.GenReleaseVolEnv: 2400}
	a := testZone(21, 59, 0, 127, testSample("a", 200, 48), short)
	b := testZone(60, 80, 0, 127, testSample("b", 200, 60), short)
	c := testZone(81, 108, 0, 127, testSample("c", 200, 72), long)
	v := Variant{Name: "Pad", Zones: []Candidate{
		{Zone: &a, Root: 48, KeyLo: 21, KeyHi: 59},
		{Zone: &b, Root: 60, KeyLo: 60, KeyHi: 80},
		{Zone: &c, Root: 72, KeyLo: 81, KeyHi: 108},
	}}
	n := &notes{preset: "Pad"}
	opts := DefaultOptions().withDefaults()
	opts.InstrumentPlaymode = PlaymodeMono
	out, err := assemble(Classification{Kind: KindMelodic}, v, opts, n)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	if out.Amp == nil || out.Amp.Release != CalibrationV2.ReleaseValue(1) {
		t.Errorf("Amp = %+v, want release of the most common zone", out.Amp)
	}
	if out.Filter != nil {
		t.Errorf("Filter = %+v, want nil without mod envelope generators", out.Filter)
	}
	if out.Playmode != PlaymodeMono {
		t.Errorf("Playmode = %q, want mono", out.Playmode)
	}
	if out.Regions[0].Sample != "a_48.wav" {
		t.Errorf("Sample = %q, want a_48.wav", out.Regions[0].Sample)
	}
	mixed := false
	for _, adj := range n.adjust {
		if adj.Kind == AdjustMixedEnvelope {
			mixed = true
		}
	}
	if !mixed {
		t.Errorf("no mixed_envelope adjustment in %+v", n.adjust)
	}
}

func TestAssembleSkipsWithoutRegions(t *testing.T) {
	z := testZone(60, 60, 0, 127, &soundfont.Sample{Name: "empty", PCM: mono()}, nil)
	n := &notes{preset: "Broken"}
	_, err := assemble(Classification{Kind: KindMelodic}, Variant{Name: "Broken", Zones: []Candidate{{Zone: &z}}}, DefaultOptions().withDefaults(), n)
	if !errors.Is(err, ErrPresetSkipped) {
		t.Errorf("assemble() error = %v, want ErrPresetSkipped", err)
	}
	if len(n.discarded) != 1 || n.discarded[0].Reason != "resample_out_of_range" {
		t.Errorf("discarded = %+v", n.discarded)
	}
}
