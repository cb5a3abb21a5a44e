package converter

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

// Candidate is a zone retained for output together with its final key range.
// For drum kits KeyLo == KeyHi is the slot note.
type Candidate struct {
	Index    int
	Zone     *soundfont.Zone
	Root     int
	KeyLo    int
	KeyHi    int
	Fallback bool
}

// Variant is the zone set of one output preset
type Variant struct {
	Name     string
	Velocity int
	Zones    []Candidate
}

// SelectConfig drives SelectZones
type SelectConfig struct {
	Velocities []int
	Mode       VelocityMode
	DrumMode   DrumVelocityMode
	Ceiling    int
	SpanLo     int
	SpanHi     int
	DrumBase   int
}

// Selection is the result of SelectZones
type Selection struct {
	Variants    []Variant
	Adjustments []Adjustment
	Discarded   []ZoneEvent
}

// SelectZones filters a preset's zones by velocity and fits each resulting
// variant under the zone ceiling. It returns ErrPresetSkipped when nothing
// remains.
func SelectZones(p *soundfont.Preset, kind Kind, cfg SelectConfig) (Selection, error) {
	n := &notes{preset: p.Name}
	variants, err := selectZones(p, kind, cfg, n)
	return Selection{Variants: variants, Adjustments: n.adjust, Discarded: n.discarded}, err
}

func selectZones(p *soundfont.Preset, kind Kind, cfg SelectConfig, n *notes) ([]Variant, error) {
	if cfg.Ceiling <= 0 {
		return nil, fmt.Errorf("%w: zone ceiling must be > 0", ErrInvalidOptions)
	}
	if len(cfg.Velocities) == 0 {
		cfg.Velocities = []int{DefaultVelocity}
	}

	type layer struct {
		name     string
		velocity int
		zones    []Candidate
	}
	var layers []layer
	if cfg.Mode == VelocitySplit {
		for _, v := range cfg.Velocities {
			layers = append(layers, layer{
				name:     fmt.Sprintf("%s_vel%d", p.Name, v),
				velocity: v,
				zones:    filterVelocity(p, kind, []int{v}, cfg.DrumMode, n),
			})
		}
	} else {
		layers = append(layers, layer{name: p.Name, zones: filterVelocity(p, kind, cfg.Velocities, cfg.DrumMode, n)})
	}

	var out []Variant
	for _, l := range layers {
		if len(l.zones) == 0 {
			n.adjustf(AdjustVelocityFallback, "", "%s: no zones match the requested velocities", l.name)
			continue
		}
		if kind == KindDrum {
			out = append(out, drumKits(l.name, l.velocity, l.zones, cfg, n)...)
			continue
		}
		out = append(out, Variant{
			Name:     l.name,
			Velocity: l.velocity,
			Zones:    fitMelodic(l.zones, cfg, n),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q has no zones after velocity filtering", ErrPresetSkipped, p.Name)
	}
	return out, nil
}

func candidate(p *soundfont.Preset, i int) Candidate {
	z := &p.Zones[i]
	return Candidate{Index: i, Zone: z, Root: z.RootKey(), KeyLo: z.KeyLo, KeyHi: z.KeyHi}
}

func containsAny(z *soundfont.Zone, velocities []int) bool {
	for _, v := range velocities {
		if z.VelLo <= v && v <= z.VelHi {
			return true
		}
	}
	return false
}

func filterVelocity(p *soundfont.Preset, kind Kind, velocities []int, drumMode DrumVelocityMode, n *notes) []Candidate {
	if kind == KindDrum {
		return drumVelocity(p, velocities, drumMode == DrumStrict, n)
	}
	var out []Candidate
	for i := range p.Zones {
		z := &p.Zones[i]
		if containsAny(z, velocities) {
			out = append(out, candidate(p, i))
			continue
		}
		v := 0
		if len(velocities) == 1 {
			v = velocities[0]
		}
		n.discard(z, "velocity_filtered", v)
	}
	return out
}

// drumVelocity keeps one zone per note. A zone containing a requested
// velocity wins (narrowest range, then the higher layer); otherwise closest
// mode falls back to the zone whose range midpoint is nearest.
func drumVelocity(p *soundfont.Preset, velocities []int, strict bool, n *notes) []Candidate {
	groups := map[int][]int{}
	var keys []int
	for i := range p.Zones {
		k := p.Zones[i].KeyLo
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	slices.Sort(keys)

	var out []Candidate
	for _, key := range keys {
		idx := groups[key]
		best, fallback := -1, false
		for _, i := range idx {
			z := &p.Zones[i]
			if !containsAny(z, velocities) {
				continue
			}
			if best < 0 || betterContaining(z, &p.Zones[best]) {
				best = i
			}
		}
		if best < 0 && !strict {
			fallback = true
			for _, i := range idx {
				if best < 0 || midpointDistance(&p.Zones[i], velocities) < midpointDistance(&p.Zones[best], velocities) ||
					(midpointDistance(&p.Zones[i], velocities) == midpointDistance(&p.Zones[best], velocities) &&
						p.Zones[i].VelLo < p.Zones[best].VelLo) {
					best = i
				}
			}
		}
		for _, i := range idx {
			if i == best {
				continue
			}
			reason := "drum_velocity_choice"
			if best < 0 {
				reason = "drum_velocity_missing"
			}
			n.discard(&p.Zones[i], reason, 0)
		}
		if best < 0 {
			continue
		}
		c := candidate(p, best)
		c.Fallback = fallback
		if fallback {
			z := c.Zone
			n.adjustf(AdjustVelocityFallback, sampleName(z), "note %d: no layer contains %v, using %d-%d", key, velocities, z.VelLo, z.VelHi)
		}
		out = append(out, c)
	}
	return out
}

func betterContaining(a, b *soundfont.Zone) bool {
	wa, wb := a.VelHi-a.VelLo, b.VelHi-b.VelLo
	if wa != wb {
		return wa < wb
	}
	return a.VelLo > b.VelLo
}

// midpointDistance is twice the distance from the range midpoint to the
// nearest requested velocity, kept integral.
func midpointDistance(z *soundfont.Zone, velocities []int) int {
	best := math.MaxInt
	for _, v := range velocities {
		d := z.VelLo + z.VelHi - 2*v
		if d < 0 {
			d = -d
		}
		best = min(best, d)
	}
	return best
}

// fitMelodic clamps key ranges to the span, or downselects and reassigns
// ranges when the ceiling is exceeded.
func fitMelodic(zones []Candidate, cfg SelectConfig, n *notes) []Candidate {
	if len(zones) <= cfg.Ceiling {
		out := slices.Clone(zones)
		for i := range out {
			lo := clampInt(out[i].KeyLo, cfg.SpanLo, cfg.SpanHi)
			hi := clampInt(out[i].KeyHi, cfg.SpanLo, cfg.SpanHi)
			if lo != out[i].KeyLo || hi != out[i].KeyHi {
				n.adjustf(AdjustClampedValue, sampleName(out[i].Zone), "key range %d-%d clamped to %d-%d",
					out[i].KeyLo, out[i].KeyHi, lo, hi)
			}
			out[i].KeyLo, out[i].KeyHi = lo, hi
		}
		slices.SortStableFunc(out, func(a, b Candidate) int {
			return cmp.Or(cmp.Compare(a.KeyLo, b.KeyLo), cmp.Compare(a.Zone.VelLo, b.Zone.VelLo), cmp.Compare(a.Index, b.Index))
		})
		return out
	}

	kept := Downselect(zones, cfg.Ceiling)
	keep := map[int]bool{}
	for _, c := range kept {
		keep[c.Index] = true
	}
	for _, c := range zones {
		if !keep[c.Index] {
			n.discard(c.Zone, "zone_downselect", 0)
		}
	}
	n.adjustf(AdjustDownselect, "", "%d zones reduced to %d", len(zones), len(kept))
	return AssignKeyRanges(kept, cfg.SpanLo, cfg.SpanHi)
}

// Downselect picks ceiling zones at an even stride over the root-key ordered
// list. The lowest and highest zones are always kept.
func Downselect(zones []Candidate, ceiling int) []Candidate {
	sorted := sortByRoot(zones)
	n := len(sorted)
	if n <= ceiling {
		return sorted
	}
	if ceiling == 1 {
		return sorted[:1]
	}
	out := make([]Candidate, 0, ceiling)
	for k := 0; k < ceiling; k++ {
		idx := int(math.Round(float64(k*(n-1)) / float64(ceiling-1)))
		out = append(out, sorted[idx])
	}
	return out
}

// AssignKeyRanges spreads contiguous key ranges over lo..hi, splitting at
// the midpoints between neighbouring root keys.
func AssignKeyRanges(zones []Candidate, lo, hi int) []Candidate {
	out := sortByRoot(zones)
	for i := range out {
		low, high := lo, hi
		if i > 0 {
			low = (out[i-1].Root+out[i].Root)/2 + 1
		}
		if i < len(out)-1 {
			high = (out[i].Root + out[i+1].Root) / 2
		}
		low = clampInt(low, lo, hi)
		high = clampInt(high, lo, hi)
		if high < low {
			high = low
		}
		out[i].KeyLo, out[i].KeyHi = low, high
	}
	return out
}

func sortByRoot(zones []Candidate) []Candidate {
	out := slices.Clone(zones)
	slices.SortStableFunc(out, func(a, b Candidate) int {
		return cmp.Or(cmp.Compare(a.Root, b.Root), cmp.Compare(a.KeyLo, b.KeyLo), cmp.Compare(a.Index, b.Index))
	})
	return out
}

// drumKits orders drum zones by note and splits them into kits of at most
// ceiling slots, numbering slots from the device's base note.
func drumKits(name string, velocity int, zones []Candidate, cfg SelectConfig, n *notes) []Variant {
	sorted := slices.Clone(zones)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		return cmp.Or(cmp.Compare(a.KeyLo, b.KeyLo), cmp.Compare(a.Index, b.Index))
	})
	chunks := ChunkDrums(sorted, cfg.Ceiling)
	if len(chunks) > 1 {
		n.adjustf(AdjustDrumChunked, "", "%d drum zones split into %d kits", len(sorted), len(chunks))
	}
	out := make([]Variant, 0, len(chunks))
	for i, chunk := range chunks {
		kit := Variant{Name: name, Velocity: velocity}
		if len(chunks) > 1 {
			kit.Name = fmt.Sprintf("%s_%02d", name, i+1)
		}
		for slot, c := range chunk {
			c.KeyLo = cfg.DrumBase + slot
			c.KeyHi = c.KeyLo
			kit.Zones = append(kit.Zones, c)
		}
		out = append(out, kit)
	}
	return out
}

// ChunkDrums splits zones into consecutive groups of at most size
func ChunkDrums(zones []Candidate, size int) [][]Candidate {
	var out [][]Candidate
	for start := 0; start < len(zones); start += size {
		out = append(out, zones[start:min(start+size, len(zones))])
	}
	return out
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func sampleName(z *soundfont.Zone) string {
	if z == nil || z.Sample == nil {
		return ""
	}
	return z.Sample.Name
}
