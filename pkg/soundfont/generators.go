package soundfont

import "strings"

// Generator is an SF2 generator operator
type Generator uint16

// Generator operators used by the converter
const (
	GenStartAddrsOffset           Generator = 0
	GenEndAddrsOffset             Generator = 1
	GenStartloopAddrsOffset       Generator = 2
	GenEndloopAddrsOffset         Generator = 3
	GenStartAddrsCoarseOffset     Generator = 4
	GenEndAddrsCoarseOffset       Generator = 12
	GenChorusEffectsSend          Generator = 15
	GenReverbEffectsSend          Generator = 16
	GenPan                        Generator = 17
	GenDelayModEnv                Generator = 25
	GenAttackModEnv               Generator = 26
	GenHoldModEnv                 Generator = 27
	GenDecayModEnv                Generator = 28
	GenSustainModEnv              Generator = 29
	GenReleaseModEnv              Generator = 30
	GenDelayVolEnv                Generator = 33
	GenAttackVolEnv               Generator = 34
	GenHoldVolEnv                 Generator = 35
	GenDecayVolEnv                Generator = 36
	GenSustainVolEnv              Generator = 37
	GenReleaseVolEnv              Generator = 38
	GenInstrument                 Generator = 41
	GenKeyRange                   Generator = 43
	GenVelRange                   Generator = 44
	GenStartloopAddrsCoarseOffset Generator = 45
	GenKeynum                     Generator = 46
	GenVelocity                   Generator = 47
	GenInitialAttenuation         Generator = 48
	GenEndloopAddrsCoarseOffset   Generator = 50
	GenCoarseTune                 Generator = 51
	GenFineTune                   Generator = 52
	GenSampleID                   Generator = 53
	GenSampleModes                Generator = 54
	GenScaleTuning                Generator = 56
	GenExclusiveClass             Generator = 57
	GenOverridingRootKey          Generator = 58
)

// instrumentOnly generators are not additive; a preset-level value is ignored
var instrumentOnly = map[Generator]bool{
	GenStartAddrsOffset:           true,
	GenEndAddrsOffset:             true,
	GenStartloopAddrsOffset:       true,
	GenEndloopAddrsOffset:         true,
	GenStartAddrsCoarseOffset:     true,
	GenEndAddrsCoarseOffset:       true,
	GenStartloopAddrsCoarseOffset: true,
	GenEndloopAddrsCoarseOffset:   true,
	GenKeynum:                     true,
	GenVelocity:                   true,
	GenSampleModes:                true,
	GenExclusiveClass:             true,
	GenOverridingRootKey:          true,
}

// structural generators are consumed while resolving zones
var structural = map[Generator]bool{
	GenInstrument: true,
	GenKeyRange:   true,
	GenVelRange:   true,
	GenSampleID:   true,
}

// GeneratorSet maps generators to signed amounts
type GeneratorSet map[Generator]int

// Get returns the value and whether it was set
func (g GeneratorSet) Get(gen Generator) (int, bool) {
	v, ok := g[gen]
	return v, ok
}

// Value returns the value or def when unset
func (g GeneratorSet) Value(gen Generator, def int) int {
	if v, ok := g[gen]; ok {
		return v
	}
	return def
}

// Has reports whether any of gens is set
func (g GeneratorSet) Has(gens ...Generator) bool {
	for _, gen := range gens {
		if _, ok := g[gen]; ok {
			return true
		}
	}
	return false
}

// rawAmounts keeps the unsigned 16-bit amounts of one bag
type rawAmounts map[Generator]uint16

func (r rawAmounts) signed(gen Generator) (int, bool) {
	v, ok := r[gen]
	return int(int16(v)), ok
}

func (r rawAmounts) rangeOf(gen Generator) (lo, hi int, ok bool) {
	v, ok := r[gen]
	if !ok {
		return 0, 127, false
	}
	return int(v & 0xFF), int(v >> 8), true
}

func (r rawAmounts) set() GeneratorSet {
	out := make(GeneratorSet, len(r))
	for gen := range r {
		if structural[gen] {
			continue
		}
		out[gen], _ = r.signed(gen)
	}
	return out
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
