package converter

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/sf2opxy/pkg/soundfont"
)

// DrumChannel is the General MIDI percussion channel (zero based)
const DrumChannel = 9

// Audition describes a test sequence for one preset
type Audition struct {
	Bank     int
	Program  int
	Drum     bool
	Velocity uint8
	Notes    []uint8
}

// NewAudition builds the test sequence of a converted preset: every region's
// key center for instruments, every slot for drum kits.
func NewAudition(p *OutputPreset, bank, program int) Audition {
	a := Audition{Bank: bank, Program: program, Drum: p.Kind == KindDrum, Velocity: DefaultVelocity}
	if p.Velocity > 0 {
		a.Velocity = uint8(p.Velocity)
	}
	for _, r := range p.Regions {
		note := r.RootKey
		if a.Drum {
			note = r.KeyLo
		}
		if note < r.KeyLo || note > r.KeyHi {
			note = (r.KeyLo + r.KeyHi) / 2
		}
		if !slices.Contains(a.Notes, uint8(note)) {
			a.Notes = append(a.Notes, uint8(note))
		}
	}
	slices.Sort(a.Notes)
	return a
}

// SourceAudition builds the test sequence of an unconverted preset so the
// source can be rendered for comparison
func SourceAudition(p *soundfont.Preset, force Force) Audition {
	out := &OutputPreset{Kind: Classify(p, force).Kind}
	for i := range p.Zones {
		z := &p.Zones[i]
		out.Regions = append(out.Regions, OutputRegion{KeyLo: z.KeyLo, KeyHi: z.KeyHi, RootKey: z.RootKey()})
	}
	return NewAudition(out, p.Bank, p.Program)
}

// MIDIWriter renders auditions as standard MIDI files
type MIDIWriter struct {
	ticksPerQuarter uint16
	tempo           float64
}

// NewMIDIWriter creates a writer at 480 ticks per quarter and 120 BPM
func NewMIDIWriter() *MIDIWriter {
	return &MIDIWriter{
		ticksPerQuarter: 480,
		tempo:           120.0,
	}
}

// Generate creates MIDI data playing each note for a half note followed by
// a quarter rest
func (m *MIDIWriter) Generate(a Audition) ([]byte, error) {
	if len(a.Notes) == 0 {
		return nil, errors.New("audition has no notes")
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(m.ticksPerQuarter)

	var track smf.Track

	microsecondsPerBeat := uint32(60000000.0 / m.tempo)
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	}))
	// 4/4
	track.Add(0, smf.Message([]byte{0xFF, 0x58, 0x04, 0x04, 0x02, 0x18, 0x08}))

	channel := uint8(0)
	if a.Drum {
		channel = DrumChannel
	} else {
		track.Add(0, midi.ControlChange(channel, 0, uint8(clampInt(a.Bank, 0, 127))))
	}
	track.Add(0, midi.ProgramChange(channel, uint8(clampInt(a.Program, 0, 127))))

	hold := uint32(m.ticksPerQuarter) * 2
	rest := uint32(m.ticksPerQuarter)
	velocity := a.Velocity
	if velocity == 0 {
		velocity = DefaultVelocity
	}
	var delta uint32
	for _, note := range a.Notes {
		track.Add(delta, midi.NoteOn(channel, note, velocity))
		track.Add(hold, midi.NoteOff(channel, note))
		delta = rest
	}
	track.Close(rest)

	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// Duration returns the playing time of an audition in seconds
func (m *MIDIWriter) Duration(a Audition) float64 {
	beats := float64(len(a.Notes))*3 + 1
	return beats * 60 / m.tempo
}

// WriteFile writes the audition to a file
func (m *MIDIWriter) WriteFile(a Audition, filename string) error {
	data, err := m.Generate(a)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
