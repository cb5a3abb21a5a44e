package devices

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-audio/audio"

	"github.com/james-see/sf2opxy/pkg/converter"
)

func tone(frames, channels, rate, depth int) *audio.IntBuffer {
	data := make([]int, frames*channels)
	for i := range data {
		data[i] = (i%50 - 25) * 100
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: depth,
	}
}

func melodicPreset() *converter.OutputPreset {
	return &converter.OutputPreset{
		Name:     "Grand Piano",
		Kind:     converter.KindMelodic,
		Playmode: converter.PlaymodeLegato,
		Amp:      &converter.CurveParams{Attack: 100, Decay: 200, Sustain: 300, Release: 400},
		FX:       &converter.FXSends{Delay: 0, Reverb: 6553},
		Regions: []converter.OutputRegion{
			{KeyLo: 21, KeyHi: 64, RootKey: 60, Frames: 1000, LoopStart: 100, LoopEnd: 900, LoopEnabled: true, Sample: "Grand_Piano_60.wav", Tune: -12, GainDB: -3},
			{KeyLo: 65, KeyHi: 108, RootKey: 72, Frames: 800, Sample: "Grand_Piano_72.wav"},
		},
	}
}

func TestOPXYName(t *testing.T) {
	d := NewOPXY()
	if d.Name() != "Teenage Engineering OP-XY" {
		t.Errorf("Name() = %q, want %q", d.Name(), "Teenage Engineering OP-XY")
	}
	if d.ID() != OPXYDeviceID {
		t.Errorf("ID() = %q, want %q", d.ID(), OPXYDeviceID)
	}
	if d.ZoneCeiling() != 24 {
		t.Errorf("ZoneCeiling() = %d, want 24", d.ZoneCeiling())
	}
	lo, hi := d.KeySpan()
	if lo != 21 || hi != 108 {
		t.Errorf("KeySpan() = %d, %d, want 21, 108", lo, hi)
	}
}

func TestGeneratePatchMultisample(t *testing.T) {
	d := NewOPXY()
	data, err := d.GeneratePatch(melodicPreset())
	if err != nil {
		t.Fatalf("GeneratePatch() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("patch is not JSON: %v", err)
	}
	if doc["type"] != "multisampler" {
		t.Errorf("type = %v, want multisampler", doc["type"])
	}
	if doc["platform"] != "OP-XY" {
		t.Errorf("platform = %v, want OP-XY", doc["platform"])
	}
	if doc["version"] != float64(4) {
		t.Errorf("version = %v, want 4", doc["version"])
	}
	engine := doc["engine"].(map[string]any)
	if engine["playmode"] != "legato" {
		t.Errorf("engine.playmode = %v, want legato", engine["playmode"])
	}
	amp := doc["envelope"].(map[string]any)["amp"].(map[string]any)
	if amp["release"] != float64(400) {
		t.Errorf("amp.release = %v, want 400", amp["release"])
	}
	fx := doc["fx"].(map[string]any)
	if fx["active"] != true {
		t.Errorf("fx.active = %v, want true", fx["active"])
	}
	params := fx["params"].([]any)
	if params[7] != float64(6553) || params[6] != float64(0) {
		t.Errorf("fx.params[6:8] = %v, want [0 6553]", params[6:8])
	}

	regions := doc["regions"].([]any)
	if len(regions) != 2 {
		t.Fatalf("len(regions) = %d, want 2", len(regions))
	}
	r := regions[0].(map[string]any)
	checks := map[string]any{
		"lokey":           float64(21),
		"hikey":           float64(64),
		"pitch.keycenter": float64(60),
		"loop.start":      float64(100),
		"loop.end":        float64(900),
		"loop.enabled":    true,
		"sample.end":      float64(1000),
		"tune":            float64(-12),
		"gain":            float64(-3),
		"sample":          "Grand_Piano_60.wav",
	}
	for key, want := range checks {
		if r[key] != want {
			t.Errorf("regions[0][%q] = %v, want %v", key, r[key], want)
		}
	}
}

func TestGeneratePatchDrum(t *testing.T) {
	d := NewOPXY()
	p := &converter.OutputPreset{
		Name: "Standard Kit",
		Kind: converter.KindDrum,
		Regions: []converter.OutputRegion{
			{KeyLo: 53, KeyHi: 53, RootKey: 60, Frames: 400, Sample: "kick.wav", Playmode: "oneshot"},
			{KeyLo: 54, KeyHi: 54, RootKey: 60, Frames: 300, Sample: "hat.wav", Playmode: "group", Transpose: 2, Pan: -20},
		},
	}
	data, err := d.GeneratePatch(p)
	if err != nil {
		t.Fatalf("GeneratePatch() error = %v", err)
	}
	var patch struct {
		Type    string       `json:"type"`
		Engine  Engine       `json:"engine"`
		Regions []DrumRegion `json:"regions"`
	}
	if err := json.Unmarshal(data, &patch); err != nil {
		t.Fatalf("patch is not JSON: %v", err)
	}
	if patch.Type != "drum" {
		t.Errorf("type = %q, want drum", patch.Type)
	}
	if patch.Engine.VelocitySensitivity != 19660 {
		t.Errorf("velocity.sensitivity = %d, want 19660", patch.Engine.VelocitySensitivity)
	}
	hat := patch.Regions[1]
	if hat.Playmode != "group" || hat.Transpose != 2 || hat.Pan != -20 || hat.KeyCenter != 60 {
		t.Errorf("regions[1] = %+v", hat)
	}
	if hat.SampleEnd != 300 {
		t.Errorf("regions[1].sample.end = %d, want 300", hat.SampleEnd)
	}
}

func TestGeneratePatchRejectsInvalid(t *testing.T) {
	d := NewOPXY()
	tests := []struct {
		name   string
		preset *converter.OutputPreset
	}{
		{"nil", nil},
		{"no regions", &converter.OutputPreset{Name: "Empty", Kind: converter.KindMelodic}},
		{"key out of range", &converter.OutputPreset{Name: "Bad", Kind: converter.KindMelodic, Regions: []converter.OutputRegion{
			{KeyLo: 0, KeyHi: 200, RootKey: 60, Frames: 10, Sample: "a.wav"},
		}}},
		{"too many regions", &converter.OutputPreset{Name: "Big", Kind: converter.KindMelodic, Regions: make([]converter.OutputRegion, 25)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.GeneratePatch(tt.preset); err == nil {
				t.Errorf("GeneratePatch() error = nil, want error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	err := Validate([]byte(`{"name":"x"}`))
	if !errors.Is(err, ErrInvalidPatch) {
		t.Errorf("Validate() error = %v, want ErrInvalidPatch", err)
	}
	if err := Validate([]byte(`not json`)); err == nil {
		t.Errorf("Validate() on garbage error = nil")
	}
}

func TestEncodeDecodeWAV(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		depth    int
	}{
		{"mono 16", 1, 16},
		{"stereo 16", 2, 16},
		{"mono 24", 1, 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := tone(500, tt.channels, 22050, tt.depth)
			data, err := EncodeWAV(src)
			if err != nil {
				t.Fatalf("EncodeWAV() error = %v", err)
			}
			if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
				t.Fatalf("EncodeWAV() header = %q", data[:12])
			}
			// sizes are patched in after the samples are written
			if size := binary.LittleEndian.Uint32(data[4:8]); int(size) != len(data)-8 {
				t.Errorf("RIFF size = %d, want %d", size, len(data)-8)
			}
			got, err := DecodeWAV(data)
			if err != nil {
				t.Fatalf("DecodeWAV() error = %v", err)
			}
			if got.Format.SampleRate != 22050 || got.Format.NumChannels != tt.channels {
				t.Errorf("format = %+v", got.Format)
			}
			if got.SourceBitDepth != tt.depth {
				t.Errorf("bit depth = %d, want %d", got.SourceBitDepth, tt.depth)
			}
			if got.NumFrames() != 500 {
				t.Errorf("NumFrames() = %d, want 500", got.NumFrames())
			}
			for i := range src.Data {
				if got.Data[i] != src.Data[i] {
					t.Fatalf("sample %d = %d, want %d", i, got.Data[i], src.Data[i])
				}
			}
		})
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not a wav file")); err == nil {
		t.Errorf("DecodeWAV() error = nil, want error")
	}
}

func TestGenerateSampleEmpty(t *testing.T) {
	d := NewOPXY()
	if _, err := d.GenerateSample(&converter.OutputRegion{}); err == nil {
		t.Errorf("GenerateSample() without audio error = nil")
	}
}

func TestOffsetVariants(t *testing.T) {
	d := NewOPXY()
	patch, err := d.GeneratePatch(melodicPreset())
	if err != nil {
		t.Fatalf("GeneratePatch() error = %v", err)
	}

	variants, err := OffsetVariants(patch, []int{-1, 0, 1, 500}, 0)
	if err != nil {
		t.Fatalf("OffsetVariants() error = %v", err)
	}
	want := []struct {
		name string
		end  int
	}{
		{"Grand Piano offset -1", 899},
		{"Grand Piano offset 0", 900},
		{"Grand Piano offset +1", 901},
		{"Grand Piano offset +500", 1000},
	}
	if len(variants) != len(want) {
		t.Fatalf("len(variants) = %d, want %d", len(variants), len(want))
	}
	for i, w := range want {
		var doc struct {
			Name    string              `json:"name"`
			Regions []MultisampleRegion `json:"regions"`
		}
		if err := json.Unmarshal(variants[i].Patch, &doc); err != nil {
			t.Fatalf("variant %d is not JSON: %v", i, err)
		}
		if doc.Name != w.name || variants[i].Name != w.name {
			t.Errorf("variant %d name = %q, want %q", i, doc.Name, w.name)
		}
		if doc.Regions[0].LoopEnd != w.end {
			t.Errorf("variant %d loop.end = %d, want %d", i, doc.Regions[0].LoopEnd, w.end)
		}
		// region without a loop is untouched
		if doc.Regions[1].LoopEnd != 0 {
			t.Errorf("variant %d unlooped loop.end = %d, want 0", i, doc.Regions[1].LoopEnd)
		}
		if !strings.Contains(string(variants[i].Patch), `"pitch.keycenter"`) {
			t.Errorf("variant %d lost fields", i)
		}
	}
}

func TestOffsetVariantsRelativeToBase(t *testing.T) {
	patch := []byte(`{"name":"P","regions":[{"loop.enabled":true,"loop.start":10,"loop.end":20,"framecount":30}]}`)
	variants, err := OffsetVariants(patch, []int{2}, 2)
	if err != nil {
		t.Fatalf("OffsetVariants() error = %v", err)
	}
	if !strings.Contains(string(variants[0].Patch), `"loop.end": 20`) {
		t.Errorf("variant at base offset moved loop end: %s", variants[0].Patch)
	}
}

func TestOffsetLabel(t *testing.T) {
	tests := map[int]string{0: "0", 3: "+3", -2: "-2"}
	for in, want := range tests {
		if got := OffsetLabel(in); got != want {
			t.Errorf("OffsetLabel(%d) = %q, want %q", in, got, want)
		}
	}
}
