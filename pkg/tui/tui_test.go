package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/james-see/sf2opxy/internal/sf2test"
	"github.com/james-see/sf2opxy/pkg/converter"
	"github.com/james-see/sf2opxy/pkg/soundfont"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update() returned %T", next)
	}
	return model, cmd
}

func TestOutputDir(t *testing.T) {
	if got := OutputDir(filepath.Join("banks", "GM.sf2")); got != filepath.Join("banks", "GM_opxy") {
		t.Errorf("OutputDir() = %q", got)
	}
}

func TestMenuNavigation(t *testing.T) {
	m := New(converter.DefaultOptions())
	m, _ = update(t, m, key("up"))
	if m.menuIndex != 0 {
		t.Errorf("menuIndex = %d after up at top, want 0", m.menuIndex)
	}
	for range menuItems {
		m, _ = update(t, m, key("j"))
	}
	if m.menuIndex != len(menuItems)-1 {
		t.Errorf("menuIndex = %d, want %d", m.menuIndex, len(menuItems)-1)
	}

	_, cmd := update(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("enter on Exit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("enter on Exit did not quit")
	}
}

func TestMenuOpensFilePicker(t *testing.T) {
	m := New(converter.DefaultOptions())
	m, _ = update(t, m, key("down"))
	m, _ = update(t, m, key("enter"))
	if m.state != StateFilePicker || m.action.Force != converter.ForceDrum {
		t.Fatalf("state = %v action = %+v, want file picker forcing drums", m.state, m.action)
	}
	m, _ = update(t, m, key("esc"))
	if m.state != StateMenu {
		t.Errorf("esc left state %v, want menu", m.state)
	}
}

func TestProgressAndResult(t *testing.T) {
	m := New(converter.DefaultOptions())
	m.state = StateConverting
	m.action = menuItems[0]
	m.selectedFile = "bank.sf2"
	m.updates = make(chan tea.Msg)

	m, cmd := update(t, m, progressMsg{current: 1, total: 2, name: "Piano"})
	if cmd == nil {
		t.Errorf("progress did not wait for the next update")
	}
	if view := m.View(); !strings.Contains(view, "1/2 Piano") {
		t.Errorf("View() does not show progress:\n%s", view)
	}

	report := &converter.Report{Presets: []converter.PresetOutcome{
		{Name: "Piano", Status: converter.StatusConverted},
		{Name: "Kit", Status: converter.StatusSkipped},
	}}
	m, _ = update(t, m, conversionDoneMsg{report: report})
	if m.state != StateResult {
		t.Fatalf("state = %v, want result", m.state)
	}
	if view := m.View(); !strings.Contains(view, "Converted: 1 of 2 presets") {
		t.Errorf("View() does not show the summary:\n%s", view)
	}

	m, _ = update(t, m, key("enter"))
	if m.state != StateMenu || m.report != nil || m.total != 0 {
		t.Errorf("result not reset: %+v", m)
	}
}

func writeBank(t *testing.T) string {
	t.Helper()
	bank := sf2test.Bank{
		Name: "TUI Bank",
		Samples: []sf2test.Sample{
			{Name: "organ", Data: sf2test.Sine(3000, 60, 0.5), LoopStart: 600, LoopEnd: 2400, Root: 60},
		},
		Instruments: []sf2test.Instrument{
			{Name: "Organ", Zones: []sf2test.Zone{
				{Sample: 0, Gens: map[soundfont.Generator]int{soundfont.GenSampleModes: 1}},
			}},
		},
		Presets: []sf2test.Preset{
			{Name: "Organ", Program: 16, Instrument: 0},
			{Name: "Organ 2", Program: 17, Instrument: 0},
		},
	}
	path := filepath.Join(t.TempDir(), "organs.sf2")
	if err := os.WriteFile(path, bank.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPerformConversion(t *testing.T) {
	path := writeBank(t)
	m := New(converter.Options{Workers: 1})
	m.action = menuItems[0]
	m.selectedFile = path
	m.outputDir = OutputDir(path)

	updates := make(chan tea.Msg)
	go m.performConversion(context.Background(), updates)

	var progress int
	var done conversionDoneMsg
	for msg := range updates {
		if p, ok := msg.(progressMsg); ok {
			progress++
			if p.total != 2 {
				t.Errorf("progress total = %d, want 2", p.total)
			}
			continue
		}
		done = msg.(conversionDoneMsg)
		break
	}
	if done.err != nil {
		t.Fatalf("conversion error = %v", done.err)
	}
	if progress != 2 || done.report.Converted() != 2 {
		t.Errorf("progress = %d converted = %d, want 2 and 2", progress, done.report.Converted())
	}
	if _, err := os.Stat(filepath.Join(m.outputDir, "Organ_2.preset", "patch.json")); err != nil {
		t.Errorf("patch not written: %v", err)
	}
}

func TestPerformConversionStopsWhenCancelled(t *testing.T) {
	path := writeBank(t)
	m := New(converter.Options{Workers: 1})
	m.action = menuItems[0]
	m.selectedFile = path
	m.outputDir = OutputDir(path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	// nobody reads updates, as after the program has quit
	go func() {
		m.performConversion(ctx, make(chan tea.Msg))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("performConversion() blocked after cancel")
	}
}

func TestQuitWhileConvertingCancels(t *testing.T) {
	m := New(converter.DefaultOptions())
	m.state = StateConverting
	cancelled := false
	m.cancel = func() { cancelled = true }

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if !cancelled {
		t.Errorf("ctrl+c did not cancel the conversion")
	}
	if cmd == nil {
		t.Fatal("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("ctrl+c did not quit")
	}
}

func TestPerformInspection(t *testing.T) {
	m := New(converter.DefaultOptions())
	m.action = menuItems[3]
	m.selectedFile = writeBank(t)
	msg, ok := m.performInspection()().(conversionDoneMsg)
	if !ok || msg.err != nil || len(msg.inspection.Presets) != 2 {
		t.Fatalf("performInspection() = %+v", msg)
	}
	m, _ = update(t, m, msg)
	if view := m.View(); !strings.Contains(view, "TUI Bank") {
		t.Errorf("View() does not show the inspection:\n%s", view)
	}
}
