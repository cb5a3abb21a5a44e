package converter

import (
	"fmt"
	"math"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

// MaxParam is the top of the device's parameter range
const MaxParam = 32767

// Region gain limits in dB
const (
	GainMinDB = -30
	GainMaxDB = 20
)

// CalibrationTable holds the constants of the envelope curves fit against
// measured device response.
type CalibrationTable struct {
	Name string
	// attack and decay: exponential curve, 50% output near 2 s
	AttackMinSeconds float64
	AttackCurveB     float64
	AttackMaxSeconds float64
	// release: offset power curve reaching full scale at ReleaseMaxSeconds
	ReleaseFloorSeconds float64
	ReleaseMaxSeconds   float64
	ReleaseExponent     float64
}

// CalibrationV2 is the calibration in use
var CalibrationV2 = CalibrationTable{
	Name:                "v2",
	AttackMinSeconds:    0.0111,
	AttackCurveB:        10.386,
	AttackMaxSeconds:    360,
	ReleaseFloorSeconds: 0.005,
	ReleaseMaxSeconds:   30,
	ReleaseExponent:     1.0 / 3.0,
}

// EnvelopeTimes is an SF2 envelope in seconds, sustain as a 0..1 level
type EnvelopeTimes struct {
	Delay   float64
	Attack  float64
	Hold    float64
	Decay   float64
	Sustain float64
	Release float64
}

// TimecentsToSeconds converts SF2 timecents (0 = 1 s)
func TimecentsToSeconds(tc int) float64 {
	return math.Pow(2, float64(tc)/1200)
}

// CentibelsToLevel converts an attenuation in centibels to an amplitude
func CentibelsToLevel(cb int) float64 {
	if cb < 0 {
		cb = 0
	}
	return math.Pow(10, -float64(cb)/200)
}

// AttackValue maps seconds through the attack curve
func (c CalibrationTable) AttackValue(seconds float64) int {
	if seconds <= c.AttackMinSeconds {
		return 0
	}
	seconds = math.Min(seconds, c.AttackMaxSeconds)
	x := math.Log(seconds/c.AttackMinSeconds) / c.AttackCurveB
	return int(math.Round(clampFloat(x, 0, 1) * MaxParam))
}

// ReleaseValue maps seconds through the release curve
func (c CalibrationTable) ReleaseValue(seconds float64) int {
	if seconds <= c.ReleaseFloorSeconds {
		return 0
	}
	seconds = math.Min(seconds, c.ReleaseMaxSeconds)
	x := (seconds - c.ReleaseFloorSeconds) / (c.ReleaseMaxSeconds - c.ReleaseFloorSeconds)
	return int(math.Round(math.Pow(clampFloat(x, 0, 1), c.ReleaseExponent) * MaxParam))
}

// AttackSeconds is the inverse of AttackValue
func (c CalibrationTable) AttackSeconds(v int) float64 {
	x := clampFloat(float64(v)/MaxParam, 0, 1)
	return c.AttackMinSeconds * math.Exp(x*c.AttackCurveB)
}

// ReleaseSeconds is the inverse of ReleaseValue
func (c CalibrationTable) ReleaseSeconds(v int) float64 {
	x := clampFloat(float64(v)/MaxParam, 0, 1)
	return c.ReleaseFloorSeconds + (c.ReleaseMaxSeconds-c.ReleaseFloorSeconds)*math.Pow(x, 1/c.ReleaseExponent)
}

// Map converts an envelope; the returned strings describe clamped inputs.
// Delay folds into attack and hold into decay.
func (c CalibrationTable) Map(t EnvelopeTimes) (CurveParams, []string) {
	attack := t.Delay + t.Attack
	decay := t.Hold + t.Decay
	var clamped []string
	if attack > c.AttackMaxSeconds {
		clamped = append(clamped, fmt.Sprintf("attack %.1fs clamped to %.0fs", attack, c.AttackMaxSeconds))
	}
	if decay > c.AttackMaxSeconds {
		clamped = append(clamped, fmt.Sprintf("decay %.1fs clamped to %.0fs", decay, c.AttackMaxSeconds))
	}
	if t.Release > c.ReleaseMaxSeconds {
		clamped = append(clamped, fmt.Sprintf("release %.1fs clamped to %.0fs", t.Release, c.ReleaseMaxSeconds))
	}
	return CurveParams{
		Attack:  c.AttackValue(attack),
		Decay:   c.AttackValue(decay),
		Sustain: int(math.Round(clampFloat(t.Sustain, 0, 1) * MaxParam)),
		Release: c.ReleaseValue(t.Release),
	}, clamped
}

// MapEnvelope converts an envelope with CalibrationV2
func MapEnvelope(t EnvelopeTimes) CurveParams {
	p, _ := CalibrationV2.Map(t)
	return p
}

var (
	volEnvGens = []soundfont.Generator{
		soundfont.GenDelayVolEnv, soundfont.GenAttackVolEnv, soundfont.GenHoldVolEnv,
		soundfont.GenDecayVolEnv, soundfont.GenSustainVolEnv, soundfont.GenReleaseVolEnv,
	}
	modEnvGens = []soundfont.Generator{
		soundfont.GenDelayModEnv, soundfont.GenAttackModEnv, soundfont.GenHoldModEnv,
		soundfont.GenDecayModEnv, soundfont.GenSustainModEnv, soundfont.GenReleaseModEnv,
	}
)

func envSeconds(g soundfont.GeneratorSet, gen soundfont.Generator) float64 {
	return TimecentsToSeconds(g.Value(gen, soundfont.DefaultValue(gen)))
}

// VolumeEnvelope reads the volume envelope of a zone; ok is false when the
// zone sets none of its generators.
func VolumeEnvelope(z *soundfont.Zone) (EnvelopeTimes, bool) {
	g := z.Generators
	return EnvelopeTimes{
		Delay:   envSeconds(g, soundfont.GenDelayVolEnv),
		Attack:  envSeconds(g, soundfont.GenAttackVolEnv),
		Hold:    envSeconds(g, soundfont.GenHoldVolEnv),
		Decay:   envSeconds(g, soundfont.GenDecayVolEnv),
		Sustain: CentibelsToLevel(g.Value(soundfont.GenSustainVolEnv, 0)),
		Release: envSeconds(g, soundfont.GenReleaseVolEnv),
	}, g.Has(volEnvGens...)
}

// ModulationEnvelope reads the modulation envelope of a zone, which drives
// the device's filter envelope. Its sustain is a decrease in 0.1% units.
func ModulationEnvelope(z *soundfont.Zone) (EnvelopeTimes, bool) {
	g := z.Generators
	sustain := 1 - float64(clampInt(g.Value(soundfont.GenSustainModEnv, 0), 0, 1000))/1000
	return EnvelopeTimes{
		Delay:   envSeconds(g, soundfont.GenDelayModEnv),
		Attack:  envSeconds(g, soundfont.GenAttackModEnv),
		Hold:    envSeconds(g, soundfont.GenHoldModEnv),
		Decay:   envSeconds(g, soundfont.GenDecayModEnv),
		Sustain: sustain,
		Release: envSeconds(g, soundfont.GenReleaseModEnv),
	}, g.Has(modEnvGens...)
}

// GainDB converts initial attenuation to region gain; clamped reports
// whether the value hit the device range.
func GainDB(cb int) (db int, clamped bool) {
	raw := int(math.Round(-float64(cb) / 10))
	db = clampInt(raw, GainMinDB, GainMaxDB)
	return db, db != raw
}

// Tune sums coarse and fine tuning with the sample's pitch correction and
// splits the result into whole semitones and a cent remainder in [-50, 50].
// A positive shift raises the pitch, so the key center moves down by shift.
func Tune(coarse, fine, correction int) (shift, cents int) {
	total := coarse*100 + fine + correction
	shift = int(math.Round(float64(total) / 100))
	return shift, total - shift*100
}

// FXSend maps a percentage to a send amount
func FXSend(percent float64) int {
	return int(math.Round(clampFloat(percent, 0, 100) / 100 * MaxParam))
}

// ZoneFX reads chorus and reverb sends (0.1% units) of a zone
func ZoneFX(z *soundfont.Zone) FXSends {
	chorus := float64(z.Generators.Value(soundfont.GenChorusEffectsSend, 0)) / 10
	reverb := float64(z.Generators.Value(soundfont.GenReverbEffectsSend, 0)) / 10
	return FXSends{
		Delay:         FXSend(chorus),
		Reverb:        FXSend(reverb),
		ChorusPercent: chorus,
		ReverbPercent: reverb,
	}
}

// Pan maps SF2 pan (-500..500) to -100..100
func Pan(z *soundfont.Zone) int {
	return clampInt(int(math.Round(float64(z.Generators.Value(soundfont.GenPan, 0))/5)), -100, 100)
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
