package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/james-see/sf2opxy/internal/sf2test"
	"github.com/james-see/sf2opxy/pkg/soundfont"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected bool
	}{
		{"bank.sf2", true},
		{"BANK.SF2", true},
		{"bank.sf3", true},
		{"bank.wav", false},
		{"bank", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			result := DetectFormat(tt.filename)
			if result != tt.expected {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, result, tt.expected)
			}
		})
	}
}

func TestEnsurePresetDir(t *testing.T) {
	if got := EnsurePresetDir("Piano"); got != "Piano.preset" {
		t.Errorf("EnsurePresetDir() = %q, want Piano.preset", got)
	}
	if got := EnsurePresetDir("Piano.preset"); got != "Piano.preset" {
		t.Errorf("EnsurePresetDir() = %q, want Piano.preset", got)
	}
}

// mockDevice implements Device interface for testing
type mockDevice struct {
	ceiling int
}

func (m *mockDevice) Name() string        { return "Mock Device" }
func (m *mockDevice) ID() string          { return "mock" }
func (m *mockDevice) ZoneCeiling() int    { return m.ceiling }
func (m *mockDevice) KeySpan() (int, int) { return 21, 108 }
func (m *mockDevice) DrumBaseNote() int   { return 53 }
func (m *mockDevice) GeneratePatch(p *OutputPreset) ([]byte, error) {
	return json.Marshal(map[string]any{"name": p.Name, "kind": p.Kind, "regions": len(p.Regions)})
}
func (m *mockDevice) GenerateSample(r *OutputRegion) ([]byte, error) {
	if r.Audio == nil {
		return nil, errors.New("no audio")
	}
	return []byte(fmt.Sprintf("RIFF %d", r.Frames)), nil
}

func TestConverterNew(t *testing.T) {
	device := &mockDevice{ceiling: 24}
	conv := New(device)

	if conv.GetDevice() != device {
		t.Error("GetDevice() did not return the expected device")
	}

	newDevice := &mockDevice{ceiling: 4}
	conv.SetDevice(newDevice)

	if conv.GetDevice() != newDevice {
		t.Error("SetDevice() did not update the device")
	}
}

func testBank() sf2test.Bank {
	return sf2test.Bank{
		Name: "Test Bank",
		Samples: []sf2test.Sample{
			{Name: "piano c4", Data: sf2test.Sine(4000, 100, 0.5), LoopStart: 1000, LoopEnd: 3000, Root: 60},
			{Name: "piano c5", Data: sf2test.Sine(4000, 50, 0.5), LoopStart: 1000, LoopEnd: 3000, Root: 72},
			{Name: "kick", Data: sf2test.Sine(2000, 200, 0.8), Root: 36},
			{Name: "snare", Data: sf2test.Sine(2000, 30, 0.8), Root: 38},
		},
		Instruments: []sf2test.Instrument{
			{Name: "Piano", Zones: []sf2test.Zone{
				{Sample: 0, Key: sf2test.R(0, 66), Gens: map[soundfont.Generator]int{soundfont.GenSampleModes: 1}},
				{Sample: 1, Key: sf2test.R(67, 127), Gens: map[soundfont.Generator]int{soundfont.GenSampleModes: 1}},
			}},
			{Name: "Drums", Zones: []sf2test.Zone{
				{Sample: 2, Key: sf2test.R(36, 36)},
				{Sample: 3, Key: sf2test.R(38, 38), Gens: map[soundfont.Generator]int{soundfont.GenExclusiveClass: 1}},
			}},
		},
		Presets: []sf2test.Preset{
			{Name: "Piano", Program: 0, Instrument: 0},
			{Name: "Standard", Program: 0, Bank: 128, Instrument: 1},
		},
	}
}

type collector struct {
	mu        sync.Mutex
	artifacts []Artifact
}

func (c *collector) emit(a Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts = append(c.artifacts, a)
	return nil
}

func (c *collector) paths() []string {
	var out []string
	for _, a := range c.artifacts {
		out = append(out, a.Path)
	}
	return out
}

func TestRun(t *testing.T) {
	conv := New(&mockDevice{ceiling: 24})
	var out collector
	var progress []string
	opts := DefaultOptions()
	opts.Source = "test.sf2"
	opts.Workers = 1
	opts.Progress = func(current, total int, name string) {
		progress = append(progress, fmt.Sprintf("%d/%d %s", current, total, name))
	}

	report, err := conv.Run(context.Background(), testBank().Bytes(), opts, out.emit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"Piano.preset/patch.json",
		"Piano.preset/piano_c4_60.wav",
		"Piano.preset/piano_c5_72.wav",
		"Standard.preset/patch.json",
		"Standard.preset/kick.wav",
		"Standard.preset/snare.wav",
		ReportJSON,
		ReportText,
	}
	got := out.paths()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("artifacts =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	if report.Artifacts != len(want) {
		t.Errorf("report.Artifacts = %d, want %d", report.Artifacts, len(want))
	}
	if report.Converted() != 2 {
		t.Errorf("Converted() = %d, want 2", report.Converted())
	}
	if report.Source != "test.sf2" || report.Device != "Mock Device" || report.Calibration != "v2" {
		t.Errorf("report header = %q %q %q", report.Source, report.Device, report.Calibration)
	}
	if report.Presets[1].Kind != KindDrum || report.Presets[0].Kind != KindMelodic {
		t.Errorf("kinds = %s, %s", report.Presets[0].Kind, report.Presets[1].Kind)
	}
	if len(progress) != 2 || progress[1] != "2/2 Standard" {
		t.Errorf("progress = %v", progress)
	}

	var logged Report
	if err := json.Unmarshal(out.artifacts[len(out.artifacts)-2].Data, &logged); err != nil {
		t.Fatalf("conversion log is not JSON: %v", err)
	}
	if len(logged.Presets) != 2 || logged.Source != "test.sf2" {
		t.Errorf("conversion log = %+v", logged)
	}
	if text := string(out.artifacts[len(out.artifacts)-1].Data); !strings.Contains(text, "2 converted") {
		t.Errorf("text log missing summary:\n%s", text)
	}
}

func TestRunParallelMatchesSerial(t *testing.T) {
	conv := New(&mockDevice{ceiling: 24})
	data := testBank().Bytes()
	run := func(workers int) []string {
		var out collector
		opts := DefaultOptions()
		opts.Workers = workers
		if _, err := conv.Run(context.Background(), data, opts, out.emit); err != nil {
			t.Fatalf("Run(workers=%d) error = %v", workers, err)
		}
		var lines []string
		for _, a := range out.artifacts[:len(out.artifacts)-2] {
			lines = append(lines, a.Path+" "+string(a.Data))
		}
		return lines
	}
	serial, parallel := run(1), run(8)
	if strings.Join(serial, "\n") != strings.Join(parallel, "\n") {
		t.Errorf("parallel output differs from serial output")
	}
}

func TestRunDeduplicatesOutputNames(t *testing.T) {
	bank := testBank()
	bank.Presets = append(bank.Presets, sf2test.Preset{Name: "Piano", Program: 1, Instrument: 0})
	var out collector
	report, err := New(&mockDevice{ceiling: 24}).Run(context.Background(), bank.Bytes(), DefaultOptions(), out.emit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := report.Presets[2].Outputs; len(got) != 1 || got[0] != "Piano_1.preset" {
		t.Errorf("Outputs = %v, want [Piano_1.preset]", got)
	}
	found := false
	for _, p := range out.paths() {
		if p == "Piano_1.preset/patch.json" {
			found = true
		}
	}
	if !found {
		t.Errorf("no Piano_1.preset/patch.json in %v", out.paths())
	}
}

func TestRunDeduplicatesAgainstRenamedOutputs(t *testing.T) {
	bank := testBank()
	bank.Presets = append(bank.Presets,
		sf2test.Preset{Name: "Piano", Program: 1, Instrument: 0},
		sf2test.Preset{Name: "Piano_1", Program: 2, Instrument: 0},
	)
	var out collector
	report, err := New(&mockDevice{ceiling: 24}).Run(context.Background(), bank.Bytes(), DefaultOptions(), out.emit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var outputs []string
	for _, p := range report.Presets {
		outputs = append(outputs, p.Outputs...)
	}
	slices.Sort(outputs)
	want := []string{"Piano.preset", "Piano_1.preset", "Piano_1_1.preset", "Standard.preset"}
	if !slices.Equal(outputs, want) {
		t.Errorf("outputs = %v, want %v", outputs, want)
	}

	seen := map[string]bool{}
	for _, p := range out.paths() {
		if seen[p] {
			t.Errorf("%s emitted twice", p)
		}
		seen[p] = true
	}
}

func TestRunAudition(t *testing.T) {
	var out collector
	opts := DefaultOptions()
	opts.Audition = true
	opts.Presets = []string{"piano"}
	report, err := New(&mockDevice{ceiling: 24}).Run(context.Background(), testBank().Bytes(), opts, out.emit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Presets) != 1 {
		t.Errorf("len(Presets) = %d, want 1", len(report.Presets))
	}
	var midi *Artifact
	for i, a := range out.artifacts {
		if a.Kind == ArtifactMIDI {
			midi = &out.artifacts[i]
		}
	}
	if midi == nil || midi.Path != "audition/Piano.mid" || !strings.HasPrefix(string(midi.Data), "MThd") {
		t.Errorf("audition artifact = %+v", midi)
	}
}

func TestRunSkipsBrokenPreset(t *testing.T) {
	bank := testBank()
	bank.Samples = append(bank.Samples, sf2test.Sample{Name: "soft", Data: sf2test.Sine(100, 10, 0.5), Root: 60})
	bank.Instruments = append(bank.Instruments, sf2test.Instrument{Name: "Soft", Zones: []sf2test.Zone{
		{Sample: 4, Vel: sf2test.R(0, 40)},
	}})
	bank.Presets = append(bank.Presets, sf2test.Preset{Name: "Soft", Program: 2, Instrument: 2})

	var out collector
	report, err := New(&mockDevice{ceiling: 24}).Run(context.Background(), bank.Bytes(), DefaultOptions(), out.emit)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	soft := report.Presets[2]
	if soft.Status != StatusSkipped || !strings.Contains(soft.SkipReason, "velocity") {
		t.Errorf("Soft = %+v, want skipped for velocity", soft)
	}
	if report.Converted() != 2 {
		t.Errorf("Converted() = %d, want 2", report.Converted())
	}
	if len(report.Discarded) == 0 || report.Discarded[0].Reason != "velocity_filtered" {
		t.Errorf("Discarded = %+v", report.Discarded)
	}
}

func TestRunFailures(t *testing.T) {
	data := testBank().Bytes()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		conv   *Converter
		ctx    context.Context
		data   []byte
		opts   Options
		want   FailureKind
		target error
	}{
		{"no device", New(nil), context.Background(), data, DefaultOptions(), FailureInternal, ErrNoDevice},
		{"bad options", New(&mockDevice{ceiling: 24}), context.Background(), data, Options{ForceDrum: true, ForceInstrument: true}, FailureOptions, ErrInvalidOptions},
		{"unknown preset", New(&mockDevice{ceiling: 24}), context.Background(), data, Options{Presets: []string{"Organ"}}, FailureOptions, ErrInvalidOptions},
		{"not a soundfont", New(&mockDevice{ceiling: 24}), context.Background(), []byte("RIFF\x04\x00\x00\x00WAVE"), DefaultOptions(), FailureFormat, soundfont.ErrFormat},
		{"cancelled", New(&mockDevice{ceiling: 24}), cancelled, data, DefaultOptions(), FailureCancelled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out collector
			_, err := tt.conv.Run(tt.ctx, tt.data, tt.opts, out.emit)
			var f *Failure
			if !errors.As(err, &f) {
				t.Fatalf("Run() error = %v, want *Failure", err)
			}
			if f.Kind != tt.want {
				t.Errorf("Failure.Kind = %q, want %q", f.Kind, tt.want)
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("Run() error = %v, want %v", err, tt.target)
			}
			if len(out.artifacts) != 0 {
				t.Errorf("Run() emitted %d artifacts on failure", len(out.artifacts))
			}
		})
	}
}

func TestRunEmitError(t *testing.T) {
	emit := func(Artifact) error { return errors.New("disk full") }
	_, err := New(&mockDevice{ceiling: 24}).Run(context.Background(), testBank().Bytes(), DefaultOptions(), emit)
	var f *Failure
	if !errors.As(err, &f) || f.Kind != FailureInternal || !strings.Contains(f.Message, "disk full") {
		t.Errorf("Run() error = %v, want internal failure", err)
	}
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "bank.sf2")
	if err := os.WriteFile(input, testBank().Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	report, err := New(&mockDevice{ceiling: 24}).ConvertFile(context.Background(), input, outDir, DefaultOptions())
	if err != nil {
		t.Fatalf("ConvertFile() error = %v", err)
	}
	if report.Source != "bank.sf2" {
		t.Errorf("Source = %q, want bank.sf2", report.Source)
	}
	for _, name := range []string{"Piano.preset/patch.json", "Standard.preset/kick.wav", ReportJSON, ReportText} {
		if _, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(name))); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	if _, err := New(&mockDevice{ceiling: 24}).ConvertFile(context.Background(), filepath.Join(dir, "missing.sf2"), outDir, DefaultOptions()); err == nil {
		t.Errorf("ConvertFile() on a missing file error = nil")
	}
}

func TestGetSupportedConversions(t *testing.T) {
	conversions := GetSupportedConversions()
	if len(conversions) == 0 {
		t.Error("GetSupportedConversions() returned empty list")
	}
}
