package converter

import (
	"fmt"
	"strings"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

// PresetSummary describes one source preset without converting it
type PresetSummary struct {
	Name           string         `json:"name"`
	Bank           int            `json:"bank"`
	Program        int            `json:"program"`
	Classification Classification `json:"classification"`
	Zones          int            `json:"zones"`
	Looped         int            `json:"looped"`
	KeyLo          int            `json:"keyLo"`
	KeyHi          int            `json:"keyHi"`
	Velocities     []int          `json:"velocityLayers"`
}

// Inspection is the summary of a decoded bank
type Inspection struct {
	Info     soundfont.Info  `json:"info"`
	Samples  int             `json:"samples"`
	Presets  []PresetSummary `json:"presets"`
	Warnings []string        `json:"warnings"`
}

// Inspect decodes data and classifies every preset
func Inspect(data []byte, force Force) (*Inspection, error) {
	bank, err := soundfont.Decode(data)
	if err != nil {
		return nil, newFailure(err)
	}
	out := &Inspection{
		Info:     bank.Info,
		Samples:  len(bank.Samples),
		Presets:  make([]PresetSummary, 0, len(bank.Presets)),
		Warnings: append([]string{}, bank.Warnings...),
	}
	for i := range bank.Presets {
		out.Presets = append(out.Presets, summarize(&bank.Presets[i], force))
	}
	return out, nil
}

func summarize(p *soundfont.Preset, force Force) PresetSummary {
	s := PresetSummary{
		Name:           p.Name,
		Bank:           p.Bank,
		Program:        p.Program,
		Classification: Classify(p, force),
		Zones:          len(p.Zones),
		KeyLo:          127,
		Velocities:     []int{},
	}
	if len(p.Zones) == 0 {
		s.KeyLo = 0
	}
	seen := map[int]bool{}
	for i := range p.Zones {
		z := &p.Zones[i]
		s.KeyLo = min(s.KeyLo, z.KeyLo)
		s.KeyHi = max(s.KeyHi, z.KeyHi)
		if LoopEnabled(z.SampleModes()) {
			s.Looped++
		}
		if !seen[z.VelLo] {
			seen[z.VelLo] = true
			s.Velocities = append(s.Velocities, z.VelLo)
		}
	}
	return s
}

// Text renders the inspection as a table
func (in *Inspection) Text() string {
	var b strings.Builder
	name := in.Info.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&b, "%s  version %s  %d samples  %d presets\n", name, in.Info.Version, in.Samples, len(in.Presets))
	for _, w := range in.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	fmt.Fprintf(&b, "\n%-7s %-24s %-8s %5s %6s %-7s %s\n", "bank:pg", "name", "kind", "zones", "looped", "keys", "reason")
	for _, p := range in.Presets {
		fmt.Fprintf(&b, "%3d:%-3d %-24s %-8s %5d %6d %3d-%-3d %s\n",
			p.Bank, p.Program, p.Name, p.Classification.Kind, p.Zones, p.Looped, p.KeyLo, p.KeyHi, p.Classification.Reason)
	}
	return b.String()
}
