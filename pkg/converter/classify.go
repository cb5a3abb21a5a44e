package converter

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

// DrumBank is the General MIDI percussion bank number
const DrumBank = 128

// Force overrides classification
type Force int

const (
	ForceNone Force = iota
	ForceDrum
	ForceInstrument
)

// Force returns the override selected by the options
func (o Options) Force() Force {
	switch {
	case o.ForceDrum:
		return ForceDrum
	case o.ForceInstrument:
		return ForceInstrument
	default:
		return ForceNone
	}
}

// Classification is the outcome of Classify
type Classification struct {
	Kind       Kind    `json:"kind"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Forced     bool    `json:"forced,omitempty"`
}

var (
	drumSubstrings = []string{"drum", "perc"}
	drumTokens     = map[string]bool{"kit": true, "808": true, "909": true}
)

// Classify labels a preset as drum kit or melodic instrument
func Classify(p *soundfont.Preset, force Force) Classification {
	switch force {
	case ForceDrum:
		return Classification{Kind: KindDrum, Reason: "forced drum", Confidence: 1, Forced: true}
	case ForceInstrument:
		return Classification{Kind: KindMelodic, Reason: "forced instrument", Confidence: 1, Forced: true}
	}
	if p.Bank == DrumBank {
		return Classification{Kind: KindDrum, Reason: "bank 128", Confidence: 1}
	}
	if tok, ok := drumName(p.Name); ok {
		return Classification{Kind: KindDrum, Reason: fmt.Sprintf("name contains %q", tok), Confidence: 0.8}
	}

	single := 0
	for i := range p.Zones {
		if p.Zones[i].KeyWidth() == 0 {
			single++
		}
	}
	total := len(p.Zones)
	if total > 0 && single*2 > total {
		return Classification{
			Kind:       KindDrum,
			Reason:     fmt.Sprintf("%d of %d zones span a single key", single, total),
			Confidence: float64(single) / float64(total),
		}
	}
	conf := 1.0
	if total > 0 {
		conf = 1 - float64(single)/float64(total)
	}
	return Classification{Kind: KindMelodic, Reason: "no drum signals", Confidence: conf}
}

func drumName(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, s := range drumSubstrings {
		if strings.Contains(lower, s) {
			return s, true
		}
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if drumTokens[w] {
			return w, true
		}
	}
	return "", false
}
