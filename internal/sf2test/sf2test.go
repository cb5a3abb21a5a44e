// Package sf2test builds small SoundFont2 banks in memory for tests.
package sf2test

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

// Range is an optional key or velocity range
type Range struct {
	Lo, Hi int
	Set    bool
}

// R returns a set range
func R(lo, hi int) Range {
	return Range{Lo: lo, Hi: hi, Set: true}
}

// Sample describes one sample header and its 16-bit data
type Sample struct {
	Name       string
	Data       []int16
	Low        []byte // optional sm24 bytes, one per point
	Rate       int
	LoopStart  int
	LoopEnd    int
	Root       int
	Correction int
	Type       soundfont.SampleType
	Link       int

	// Ogg stores the sample as an SF3 Vorbis stream; Data is then ignored
	// and loop points are relative to the decoded stream
	Ogg []byte
}

// Zone is an instrument zone
type Zone struct {
	Sample int
	Key    Range
	Vel    Range
	Gens   map[soundfont.Generator]int
}

// Instrument is an instrument with an optional global zone
type Instrument struct {
	Name   string
	Global map[soundfont.Generator]int
	Zones  []Zone
}

// Preset references one instrument through a single zone
type Preset struct {
	Name       string
	Program    int
	Bank       int
	Instrument int
	Key        Range
	Vel        Range
	Gens       map[soundfont.Generator]int
	Global     map[soundfont.Generator]int
}

// Bank is a complete bank description
type Bank struct {
	Name        string
	Samples     []Sample
	Instruments []Instrument
	Presets     []Preset
}

// Sine returns n frames of a sine wave with the given period and amplitude
func Sine(n, period int, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(math.Round(amp * 32767 * math.Sin(2*math.Pi*float64(i)/float64(period))))
	}
	return out
}

// Ramp returns n frames counting up from start
func Ramp(n, start int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(start + i)
	}
	return out
}

// Bytes renders the bank as an SF2 file
func (b Bank) Bytes() []byte {
	info := list("INFO",
		chunk("ifil", le(uint16(2), uint16(4))),
		chunk("isng", cstr("EMU8000")),
		chunk("INAM", cstr(b.Name)),
	)

	var smpl, sm24 bytes.Buffer
	var shdr bytes.Buffer
	useLow := false
	for _, s := range b.Samples {
		if s.Low != nil {
			useLow = true
		}
	}
	for _, s := range b.Samples {
		if s.Ogg != nil {
			shdr.Write(oggHeader(s, smpl.Len()))
			smpl.Write(s.Ogg)
			if smpl.Len()%2 != 0 {
				smpl.WriteByte(0)
			}
			continue
		}
		start := smpl.Len() / 2
		for i, v := range s.Data {
			_ = binary.Write(&smpl, binary.LittleEndian, v)
			if useLow {
				var lo byte
				if i < len(s.Low) {
					lo = s.Low[i]
				}
				sm24.WriteByte(lo)
			}
		}
		// 46 zero points between samples
		for i := 0; i < 46; i++ {
			_ = binary.Write(&smpl, binary.LittleEndian, int16(0))
			if useLow {
				sm24.WriteByte(0)
			}
		}
		typ := s.Type
		if typ == 0 {
			typ = soundfont.SampleMono
		}
		rate := s.Rate
		if rate == 0 {
			rate = 44100
		}
		shdr.Write(name20(s.Name))
		shdr.Write(le(
			uint32(start), uint32(start+len(s.Data)),
			uint32(start+s.LoopStart), uint32(start+s.LoopEnd),
			uint32(rate), uint8(s.Root), int8(s.Correction),
			uint16(s.Link), uint16(typ),
		))
	}
	shdr.Write(name20("EOS"))
	shdr.Write(make([]byte, 26))

	sdtaSubs := [][]byte{chunk("smpl", smpl.Bytes())}
	if useLow {
		sdtaSubs = append(sdtaSubs, chunk("sm24", sm24.Bytes()))
	}
	sdta := list("sdta", sdtaSubs...)

	var inst, ibag, igen bytes.Buffer
	for _, in := range b.Instruments {
		inst.Write(name20(in.Name))
		inst.Write(le(uint16(ibag.Len() / 4)))
		if len(in.Global) > 0 {
			ibag.Write(le(uint16(igen.Len()/4), uint16(0)))
			writeGens(&igen, Range{}, Range{}, in.Global)
		}
		for _, z := range in.Zones {
			ibag.Write(le(uint16(igen.Len()/4), uint16(0)))
			writeGens(&igen, z.Key, z.Vel, z.Gens)
			igen.Write(le(uint16(soundfont.GenSampleID), uint16(z.Sample)))
		}
	}
	inst.Write(name20("EOI"))
	inst.Write(le(uint16(ibag.Len() / 4)))
	ibag.Write(le(uint16(igen.Len()/4), uint16(0)))
	igen.Write(make([]byte, 4))

	var phdr, pbag, pgen bytes.Buffer
	for _, p := range b.Presets {
		phdr.Write(name20(p.Name))
		phdr.Write(le(uint16(p.Program), uint16(p.Bank), uint16(pbag.Len()/4), uint32(0), uint32(0), uint32(0)))
		if len(p.Global) > 0 {
			pbag.Write(le(uint16(pgen.Len()/4), uint16(0)))
			writeGens(&pgen, Range{}, Range{}, p.Global)
		}
		pbag.Write(le(uint16(pgen.Len()/4), uint16(0)))
		writeGens(&pgen, p.Key, p.Vel, p.Gens)
		pgen.Write(le(uint16(soundfont.GenInstrument), uint16(p.Instrument)))
	}
	phdr.Write(name20("EOP"))
	phdr.Write(le(uint16(0), uint16(0), uint16(pbag.Len()/4), uint32(0), uint32(0), uint32(0)))
	pbag.Write(le(uint16(pgen.Len()/4), uint16(0)))
	pgen.Write(make([]byte, 4))

	pdta := list("pdta",
		chunk("phdr", phdr.Bytes()),
		chunk("pbag", pbag.Bytes()),
		chunk("pmod", make([]byte, 10)),
		chunk("pgen", pgen.Bytes()),
		chunk("inst", inst.Bytes()),
		chunk("ibag", ibag.Bytes()),
		chunk("imod", make([]byte, 10)),
		chunk("igen", igen.Bytes()),
		chunk("shdr", shdr.Bytes()),
	)
	return Riff(info, sdta, pdta)
}

// oggHeader writes an SF3 sample header; offsets are bytes into smpl
func oggHeader(s Sample, offset int) []byte {
	rate := s.Rate
	if rate == 0 {
		rate = 44100
	}
	var h bytes.Buffer
	h.Write(name20(s.Name))
	h.Write(le(
		uint32(offset), uint32(offset+len(s.Ogg)),
		uint32(s.LoopStart), uint32(s.LoopEnd),
		uint32(rate), uint8(s.Root), int8(s.Correction),
		uint16(s.Link), uint16(soundfont.SampleMono|soundfont.SampleVorbis),
	))
	return h.Bytes()
}

// Riff wraps already encoded chunks in a RIFF sfbk container
func Riff(chunks ...[]byte) []byte {
	body := append([]byte("sfbk"), bytes.Join(chunks, nil)...)
	return chunk("RIFF", body)
}

// List encodes a LIST chunk
func List(kind string, subs ...[]byte) []byte {
	return list(kind, subs...)
}

// Chunk encodes one chunk with its pad byte
func Chunk(id string, data []byte) []byte {
	return chunk(id, data)
}

func writeGens(w *bytes.Buffer, key, vel Range, gens map[soundfont.Generator]int) {
	if key.Set {
		w.Write(le(uint16(soundfont.GenKeyRange), uint8(key.Lo), uint8(key.Hi)))
	}
	if vel.Set {
		w.Write(le(uint16(soundfont.GenVelRange), uint8(vel.Lo), uint8(vel.Hi)))
	}
	// deterministic order
	for op := soundfont.Generator(0); op < 64; op++ {
		if v, ok := gens[op]; ok {
			w.Write(le(uint16(op), int16(v)))
		}
	}
}

func list(kind string, subs ...[]byte) []byte {
	body := append([]byte(kind), bytes.Join(subs, nil)...)
	return chunk("LIST", body)
}

func chunk(id string, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(id)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func le(values ...any) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func name20(s string) []byte {
	b := make([]byte, 20)
	copy(b, s)
	return b
}

func cstr(s string) []byte {
	b := append([]byte(s), 0)
	if len(b)%2 == 1 {
		b = append(b, 0)
	}
	return b
}
