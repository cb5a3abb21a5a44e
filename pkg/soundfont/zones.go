package soundfont

// envelope timecent generators default to -12000 (about 1 ms)
var defaults = map[Generator]int{
	GenDelayModEnv:   -12000,
	GenAttackModEnv:  -12000,
	GenHoldModEnv:    -12000,
	GenDecayModEnv:   -12000,
	GenReleaseModEnv: -12000,
	GenDelayVolEnv:   -12000,
	GenAttackVolEnv:  -12000,
	GenHoldVolEnv:    -12000,
	GenDecayVolEnv:   -12000,
	GenReleaseVolEnv: -12000,
}

// DefaultValue returns the SF2 default of a generator
func DefaultValue(gen Generator) int {
	return defaults[gen]
}

type bagZone struct {
	amounts rawAmounts
	mods    []Modulator
}

type instrumentZones struct {
	name   string
	global bagZone
	locals []bagZone
}

func bagZones(bags []rawBag, from, to int, gens []rawGen, mods []Modulator) []bagZone {
	var out []bagZone
	for j := from; j < to && j < len(bags); j++ {
		genEnd, modEnd := len(gens), len(mods)
		if j+1 < len(bags) {
			genEnd, modEnd = int(bags[j+1].Gen), int(bags[j+1].Mod)
		}
		z := bagZone{amounts: rawAmounts{}}
		for _, g := range gens[bags[j].Gen:genEnd] {
			z.amounts[Generator(g.Oper)] = g.Amount
		}
		z.mods = append(z.mods, mods[bags[j].Mod:modEnd]...)
		out = append(out, z)
	}
	return out
}

// splitGlobal separates the optional leading global zone from the zones
// carrying the terminal generator.
func (d *decoder) splitGlobal(owner string, zones []bagZone, terminal Generator) (bagZone, []bagZone) {
	global := bagZone{amounts: rawAmounts{}}
	var locals []bagZone
	for i, z := range zones {
		if _, ok := z.amounts[terminal]; ok {
			locals = append(locals, z)
			continue
		}
		if i == 0 {
			global = z
			continue
		}
		d.warnf("%s: zone %d has no terminal generator and is ignored", owner, i)
	}
	return global, locals
}

func (d *decoder) resolve(h *hydra) {
	instruments := make([]instrumentZones, 0, len(h.inst)-1)
	for i := 0; i < len(h.inst)-1; i++ {
		name := cString(h.inst[i].Name[:])
		zones := bagZones(h.ibag, int(h.inst[i].Bag), int(h.inst[i+1].Bag), h.igen, h.imod)
		global, locals := d.splitGlobal("instrument "+name, zones, GenSampleID)
		instruments = append(instruments, instrumentZones{name: name, global: global, locals: locals})

		raw := Instrument{Name: name, Global: global.amounts.set()}
		for _, z := range locals {
			raw.Zones = append(raw.Zones, z.amounts.set())
		}
		d.bank.Instruments = append(d.bank.Instruments, raw)
	}

	pairs := map[[2]int]*Sample{}
	for i := 0; i < len(h.phdr)-1; i++ {
		ph := h.phdr[i]
		preset := Preset{
			Index:   i,
			Name:    cString(ph.Name[:]),
			Program: int(ph.Preset),
			Bank:    int(ph.Bank),
		}
		zones := bagZones(h.pbag, int(ph.Bag), int(h.phdr[i+1].Bag), h.pgen, h.pmod)
		pglobal, plocals := d.splitGlobal("preset "+preset.Name, zones, GenInstrument)
		for _, pz := range plocals {
			idx := int(pz.amounts[GenInstrument])
			if idx >= len(instruments) {
				d.warnf("preset %q references missing instrument %d", preset.Name, idx)
				continue
			}
			inst := instruments[idx]
			for _, iz := range inst.locals {
				if z, ok := d.flatten(preset.Name, inst, pglobal, pz, iz); ok {
					preset.Zones = append(preset.Zones, z)
				}
			}
		}
		preset.Zones = mergeStereo(preset.Zones, pairs)
		d.bank.Presets = append(d.bank.Presets, preset)
	}
}

func overlay(global, local rawAmounts) rawAmounts {
	out := make(rawAmounts, len(global)+len(local))
	for g, v := range global {
		out[g] = v
	}
	for g, v := range local {
		out[g] = v
	}
	return out
}

func (d *decoder) flatten(presetName string, inst instrumentZones, pglobal, pz, iz bagZone) (Zone, bool) {
	pre := overlay(pglobal.amounts, pz.amounts)
	ins := overlay(inst.global.amounts, iz.amounts)

	keyLo, keyHi, ok := intersect(pre, ins, GenKeyRange)
	if !ok {
		d.warnf("preset %q instrument %q: empty key range, zone skipped", presetName, inst.name)
		return Zone{}, false
	}
	velLo, velHi, ok := intersect(pre, ins, GenVelRange)
	if !ok {
		d.warnf("preset %q instrument %q: empty velocity range, zone skipped", presetName, inst.name)
		return Zone{}, false
	}
	idx := int(ins[GenSampleID])
	if idx >= len(d.bank.Samples) {
		d.warnf("preset %q instrument %q: missing sample %d, zone skipped", presetName, inst.name, idx)
		return Zone{}, false
	}

	gens := ins.set()
	for g, v := range pre.set() {
		if instrumentOnly[g] {
			continue
		}
		gens[g] = gens.Value(g, DefaultValue(g)) + v
	}

	mods := make([]Modulator, 0, len(iz.mods)+len(pz.mods))
	mods = append(mods, iz.mods...)
	mods = append(mods, pz.mods...)

	return Zone{
		Instrument: inst.name,
		KeyLo:      keyLo,
		KeyHi:      keyHi,
		VelLo:      velLo,
		VelHi:      velHi,
		Sample:     d.bank.Samples[idx],
		Generators: gens,
		Modulators: mods,
	}, true
}

func intersect(pre, ins rawAmounts, gen Generator) (lo, hi int, ok bool) {
	plo, phi, _ := pre.rangeOf(gen)
	ilo, ihi, _ := ins.rangeOf(gen)
	if plo > phi || ilo > ihi {
		return 0, 0, false
	}
	lo, hi = max(plo, ilo), min(phi, ihi)
	if hi > 127 {
		hi = 127
	}
	return lo, hi, lo <= hi
}

// mergeStereo folds linked left/right zones with identical ranges into a
// single two-channel zone.
func mergeStereo(zones []Zone, pairs map[[2]int]*Sample) []Zone {
	drop := make([]bool, len(zones))
	for i := range zones {
		s := zones[i].Sample
		ch := s.Type.Channel()
		if drop[i] || (ch != SampleLeft && ch != SampleRight) {
			continue
		}
		for j := range zones {
			o := zones[j]
			if j == i || drop[j] || o.Sample.Index != s.Link || o.Sample.Link != s.Index {
				continue
			}
			if o.Instrument != zones[i].Instrument || o.KeyLo != zones[i].KeyLo || o.KeyHi != zones[i].KeyHi ||
				o.VelLo != zones[i].VelLo || o.VelHi != zones[i].VelHi {
				continue
			}
			li, ri := i, j
			if ch == SampleRight {
				li, ri = j, i
			}
			key := [2]int{zones[li].Sample.Index, zones[ri].Sample.Index}
			pair, ok := pairs[key]
			if !ok {
				pair = stereoPair(zones[li].Sample, zones[ri].Sample)
				pairs[key] = pair
			}
			zones[li].Sample = pair
			drop[ri] = true
			break
		}
	}
	out := make([]Zone, 0, len(zones))
	for i, z := range zones {
		if !drop[i] {
			out = append(out, z)
		}
	}
	return out
}
