package converter

import (
	"testing"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

func TestClassify(t *testing.T) {
	wide := func(n int) []soundfont.Zone {
		var zones []soundfont.Zone
		for i := 0; i < n; i++ {
			zones = append(zones, testZone(i*12, i*12+11, 0, 127, nil, nil))
		}
		return zones
	}
	single := func(n int) []soundfont.Zone {
		var zones []soundfont.Zone
		for i := 0; i < n; i++ {
			zones = append(zones, testZone(36+i, 36+i, 0, 127, nil, nil))
		}
		return zones
	}

	tests := []struct {
		name   string
		preset soundfont.Preset
		force  Force
		want   Kind
		forced bool
	}{
		{"percussion bank", soundfont.Preset{Name: "Standard", Bank: 128, Zones: wide(2)}, ForceNone, KindDrum, false},
		{"drum in name", soundfont.Preset{Name: "Rock Drums", Zones: wide(2)}, ForceNone, KindDrum, false},
		{"perc in name", soundfont.Preset{Name: "Latin Percussion", Zones: wide(2)}, ForceNone, KindDrum, false},
		{"kit token", soundfont.Preset{Name: "Jazz Kit", Zones: wide(2)}, ForceNone, KindDrum, false},
		{"808 token", soundfont.Preset{Name: "TR-808", Zones: wide(2)}, ForceNone, KindDrum, false},
		{"kit inside a word", soundfont.Preset{Name: "Kitchen Piano", Zones: wide(2)}, ForceNone, KindMelodic, false},
		{"single key zones", soundfont.Preset{Name: "Hits", Zones: single(5)}, ForceNone, KindDrum, false},
		{"half single key", soundfont.Preset{Name: "Mixed", Zones: append(single(2), wide(2)...)}, ForceNone, KindMelodic, false},
		{"plain instrument", soundfont.Preset{Name: "Strings", Zones: wide(4)}, ForceNone, KindMelodic, false},
		{"forced drum", soundfont.Preset{Name: "Strings", Zones: wide(4)}, ForceDrum, KindDrum, true},
		{"forced instrument", soundfont.Preset{Name: "Standard", Bank: 128}, ForceInstrument, KindMelodic, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(&tt.preset, tt.force)
			if got.Kind != tt.want || got.Forced != tt.forced {
				t.Errorf("Classify(%q) = %+v, want %s forced=%v", tt.preset.Name, got, tt.want, tt.forced)
			}
			if got.Reason == "" {
				t.Errorf("Classify(%q) has no reason", tt.preset.Name)
			}
			if got.Confidence <= 0 || got.Confidence > 1 {
				t.Errorf("Classify(%q) confidence = %v", tt.preset.Name, got.Confidence)
			}
		})
	}
}

func TestOptionsForce(t *testing.T) {
	if got := (Options{ForceDrum: true}).Force(); got != ForceDrum {
		t.Errorf("Force() = %v, want ForceDrum", got)
	}
	if got := (Options{ForceInstrument: true}).Force(); got != ForceInstrument {
		t.Errorf("Force() = %v, want ForceInstrument", got)
	}
	if got := (Options{}).Force(); got != ForceNone {
		t.Errorf("Force() = %v, want ForceNone", got)
	}
}
