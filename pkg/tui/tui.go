// Package tui provides a terminal user interface for sf2opxy
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/sf2opxy/pkg/converter"
	"github.com/james-see/sf2opxy/pkg/converter/devices"
)

// OP-XY inspired color scheme
var (
	signalOrange = lipgloss.Color("#FF6A00")
	paleYellow   = lipgloss.Color("#F2E96B")
	silverGray   = lipgloss.Color("#C0C0C0")
	darkGray     = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(signalOrange).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(signalOrange).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(paleYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(signalOrange).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(signalOrange).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateConverting
	StateResult
)

// Action is what a menu item does with the picked bank
type Action int

const (
	ActionConvert Action = iota
	ActionInspect
	ActionExit
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Action      Action
	Force       converter.Force
}

var menuItems = []MenuItem{
	{Title: "Convert", Description: "Convert every preset, detecting drum kits", Action: ActionConvert},
	{Title: "Convert as drum kits", Description: "Treat every preset as a drum kit", Action: ActionConvert, Force: converter.ForceDrum},
	{Title: "Convert as instruments", Description: "Treat every preset as a melodic instrument", Action: ActionConvert, Force: converter.ForceInstrument},
	{Title: "Inspect", Description: "List presets and how they would be classified", Action: ActionInspect},
	{Title: "Exit", Description: "Exit the application", Action: ActionExit},
}

// Model represents the TUI model
type Model struct {
	state        State
	menuIndex    int
	filePicker   filepicker.Model
	spinner      spinner.Model
	progress     progress.Model
	selectedFile string
	outputDir    string
	action       MenuItem
	options      converter.Options
	updates      chan tea.Msg
	cancel       context.CancelFunc
	current      int
	total        int
	preset       string
	report       *converter.Report
	inspection   *converter.Inspection
	err          error
	width        int
	height       int
}

// progressMsg reports one finished preset
type progressMsg struct {
	current int
	total   int
	name    string
}

// conversionDoneMsg signals conversion completion
type conversionDoneMsg struct {
	report     *converter.Report
	inspection *converter.Inspection
	err        error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model converting with opts
func New(opts converter.Options) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".sf2", ".sf3"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(signalOrange)

	return Model{
		state:      StateMenu,
		menuIndex:  0,
		filePicker: fp,
		spinner:    s,
		progress:   progress.New(progress.WithGradient(string(signalOrange), string(paleYellow))),
		options:    opts,
	}
}

// OutputDir is where the TUI writes presets for a bank
func OutputDir(bank string) string {
	return strings.TrimSuffix(bank, filepath.Ext(bank)) + "_opxy"
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle file picker state first - it needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			return m.start(path)
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		m.progress.Width = max(10, min(60, msg.Width-20))
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateResult:
			return m.updateResult(msg)
		case StateConverting:
			if msg.String() == "ctrl+c" {
				if m.cancel != nil {
					m.cancel()
				}
				return m, tea.Quit
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.current, m.total, m.preset = msg.current, msg.total, msg.name
		return m, waitForUpdate(m.updates)

	case conversionDoneMsg:
		m.state = StateResult
		m.report = msg.report
		m.inspection = msg.inspection
		m.err = msg.err
		m.updates = nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		if menuItems[m.menuIndex].Action == ActionExit {
			return m, tea.Quit
		}
		m.action = menuItems[m.menuIndex]
		m.state = StateFilePicker
		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.err = nil
		m.selectedFile = ""
		m.outputDir = ""
		m.report = nil
		m.inspection = nil
		m.current, m.total, m.preset = 0, 0, ""
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// start runs the selected action on path in the background
func (m Model) start(path string) (tea.Model, tea.Cmd) {
	m.selectedFile = path
	m.state = StateConverting
	if m.action.Action == ActionInspect {
		return m, tea.Batch(m.spinner.Tick, m.performInspection())
	}
	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())
	m.updates = make(chan tea.Msg)
	m.outputDir = OutputDir(path)
	go m.performConversion(ctx, m.updates)
	return m, tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

// waitForUpdate delivers the next message of a running conversion
func waitForUpdate(updates chan tea.Msg) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		return <-updates
	}
}

func (m Model) performInspection() tea.Cmd {
	path, force := m.selectedFile, m.action.Force
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return conversionDoneMsg{err: err}
		}
		in, err := converter.Inspect(data, force)
		return conversionDoneMsg{inspection: in, err: err}
	}
}

// performConversion sends progress messages followed by a single
// conversionDoneMsg on updates. Once ctx is done nothing more is sent and
// the conversion stops.
func (m Model) performConversion(ctx context.Context, updates chan<- tea.Msg) {
	send := func(msg tea.Msg) {
		select {
		case updates <- msg:
		case <-ctx.Done():
		}
	}
	opts := m.options
	opts.ForceDrum = m.action.Force == converter.ForceDrum
	opts.ForceInstrument = m.action.Force == converter.ForceInstrument
	opts.Progress = func(current, total int, name string) {
		send(progressMsg{current: current, total: total, name: name})
	}
	conv := converter.New(devices.NewOPXY())
	report, err := conv.ConvertFile(ctx, m.selectedFile, m.outputDir, opts)
	send(conversionDoneMsg{report: report, err: err})
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateConverting:
		s.WriteString(m.viewConverting())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SOUNDFONT → OP-XY "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(paleYellow).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT SOUNDFONT "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewConverting() string {
	var s strings.Builder

	verb := "Converting"
	if m.action.Action == ActionInspect {
		verb = "Reading"
	}
	s.WriteString(titleStyle.Render(" " + strings.ToUpper(verb) + " "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s %s %s...\n", m.spinner.View(), verb, filepath.Base(m.selectedFile)))
	if m.total > 0 {
		s.WriteString("\n")
		s.WriteString(m.progress.ViewAs(float64(m.current) / float64(m.total)))
		s.WriteString(statusStyle.Render(fmt.Sprintf("\n  %d/%d %s", m.current, m.total, m.preset)))
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	switch {
	case m.err != nil:
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s failed: %s", m.action.Title, m.err.Error())))
	case m.inspection != nil:
		s.WriteString(titleStyle.Render(" INSPECTION "))
		s.WriteString("\n\n")
		s.WriteString(m.inspection.Text())
	case m.report != nil:
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ Conversion complete!"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("Input:     %s\n", filepath.Base(m.selectedFile)))
		s.WriteString(fmt.Sprintf("Output:    %s\n", m.outputDir))
		s.WriteString(fmt.Sprintf("Converted: %d of %d presets\n", m.report.Converted(), len(m.report.Presets)))
		s.WriteString(fmt.Sprintf("Notes:     %d adjustments, %d zones dropped", len(m.report.Adjustments), len(m.report.Discarded)))
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
        __ ____
   ___ / _|___ \ ___  _ __ __  ___   _
  / __| |_  __) / _ \| '_ \\ \/ / | | |
  \__ \  _|/ __/ (_) | |_) |>  <| |_| |
  |___/_| |_____\___/| .__//_/\_\\__, |
                     |_|         |___/
`
	return lipgloss.NewStyle().Foreground(signalOrange).Render(logo)
}

// Run starts the TUI application
func Run(opts converter.Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
