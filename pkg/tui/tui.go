// Package tui provides a terminal user interface for gba2xm
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/gba2xm/pkg/converter"
	"github.com/james-see/gba2xm/pkg/dump"
	"github.com/james-see/gba2xm/pkg/gba"
	"github.com/james-see/gba2xm/pkg/romfile"
)

// Handheld-inspired color scheme
var (
	indigo    = lipgloss.Color("#5A4FCF")
	lavender  = lipgloss.Color("#B8B2FF")
	amber     = lipgloss.Color("#FFC857")
	slateGray = lipgloss.Color("#2B2B3A")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lavender).
			Background(slateGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#C0C0C0")).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lavender).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(amber).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lavender).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(indigo).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateScanning
	StateBankPicker
	StateConverting
	StateResult
)

// Action is what to produce from the chosen bank
type Action int

const (
	ActionXM Action = iota
	ActionMIDI
	ActionSamples
	ActionExit
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Action      Action
}

var menuItems = []MenuItem{
	{Title: "ROM → XM", Description: "Convert every song of a music bank to an extended module", Action: ActionXM},
	{Title: "ROM → MIDI", Description: "Export every song of a music bank as a MIDI file", Action: ActionMIDI},
	{Title: "ROM → WAV", Description: "Export the instrument samples of a music bank", Action: ActionSamples},
	{Title: "Exit", Description: "Exit the application", Action: ActionExit},
}

// Model represents the TUI model
type Model struct {
	state        State
	menuIndex    int
	bankIndex    int
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	matches      []gba.Match
	outputFiles  []string
	action       MenuItem
	trackerName  string
	err          error
	width        int
	height       int
}

// scanDoneMsg carries the banks found in the selected ROM
type scanDoneMsg struct {
	matches []gba.Match
	err     error
}

// conversionDoneMsg signals conversion completion
type conversionDoneMsg struct {
	outputFiles []string
	err         error
}

// errNoBanks is reported when a ROM holds no music bank
var errNoBanks = errors.New("no music banks found")

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model
func New(trackerName string) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".gba", ".agb", ".bin"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lavender)

	return Model{
		state:       StateMenu,
		filePicker:  fp,
		spinner:     s,
		trackerName: trackerName,
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// the file picker needs to receive every message while it is shown
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
			m.selectedFile = path
			m.state = StateScanning
			return m, tea.Batch(m.spinner.Tick, scanFile(path))
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateBankPicker:
			return m.updateBankPicker(msg)
		case StateResult:
			return m.updateResult(msg)
		}
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case scanDoneMsg:
		if msg.err == nil && len(msg.matches) == 0 {
			msg.err = errNoBanks
		}
		if msg.err != nil {
			m.state = StateResult
			m.err = msg.err
			return m, nil
		}
		m.matches = msg.matches
		m.bankIndex = 0
		m.state = StateBankPicker
		return m, nil

	case conversionDoneMsg:
		m.state = StateResult
		m.outputFiles = msg.outputFiles
		m.err = msg.err
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
		m.action = menuItems[m.menuIndex]
		if m.action.Action == ActionExit {
			return m, tea.Quit
		}
		m.state = StateFilePicker
		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateBankPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.bankIndex > 0 {
			m.bankIndex--
		}
	case "down", "j":
		if m.bankIndex < len(m.matches)-1 {
			m.bankIndex++
		}
	case "enter":
		m.state = StateConverting
		return m, tea.Batch(m.spinner.Tick, m.performConversion())
	case "esc":
		m.state = StateMenu
		m.matches = nil
		return m, nil
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
		m.outputFiles = nil
		m.matches = nil
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func scanFile(path string) tea.Cmd {
	return func() tea.Msg {
		img, err := romfile.Open(path)
		if err != nil {
			return scanDoneMsg{err: err}
		}
		defer img.Close()

		matches, err := gba.ScanContext(context.Background(), img.Data, 0)
		return scanDoneMsg{matches: matches, err: err}
	}
}

func (m Model) performConversion() tea.Cmd {
	path, match, action, tracker := m.selectedFile, m.matches[m.bankIndex], m.action.Action, m.trackerName
	return func() tea.Msg {
		files, err := ConvertBank(path, match.Offset, action, tracker)
		return conversionDoneMsg{outputFiles: files, err: err}
	}
}

// ConvertBank runs action on the bank at address of the ROM at romPath and
// writes the results next to the ROM
func ConvertBank(romPath string, address int, action Action, trackerName string) ([]string, error) {
	outDir := filepath.Dir(romPath)
	if action == ActionXM {
		return converter.ConvertFile(romPath, address, outDir, trackerName)
	}

	img, err := romfile.Open(romPath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	conv := converter.New(img.Data, trackerName)
	bank, err := conv.DecodeBank(address)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionMIDI:
		var written []string
		mc := converter.NewMIDIConverter()
		for i := range bank.Songs {
			name := converter.SongName(converter.GameCode(conv.ROM()), address, i) + ".mid"
			path := filepath.Join(outDir, name)
			if err := mc.WriteMIDIFile(bank.Songs[i].Model(), path); err != nil {
				return written, fmt.Errorf("song %02x: %w", i, err)
			}
			written = append(written, path)
		}
		return written, nil
	case ActionSamples:
		return conv.ExportSamples(bank, outDir)
	}
	return nil, fmt.Errorf("unsupported action %d", action)
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
	case StateScanning:
		s.WriteString(m.viewBusy(" SCANNING ", "Searching %s for music banks..."))
	case StateBankPicker:
		s.WriteString(m.viewBankPicker())
	case StateConverting:
		s.WriteString(m.viewBusy(" CONVERTING ", "Converting %s..."))
	case StateResult:
		s.WriteString(m.viewResult())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT EXPORT "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(amber).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT ROM IMAGE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewBankPicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf(" %d BANKS IN %s ", len(m.matches), filepath.Base(m.selectedFile))))
	s.WriteString("\n\n")
	for i, match := range m.matches {
		line := dump.Match(match)
		if i == m.bankIndex {
			s.WriteString(selectedStyle.Render("▸ " + line))
		} else {
			s.WriteString(menuStyle.Render("  " + line))
		}
		s.WriteString("\n")
	}
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return boxStyle.Render(s.String())
}

func (m Model) viewBusy(title, format string) string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s "+format+"\n", m.spinner.View(), filepath.Base(m.selectedFile)))
	s.WriteString(statusStyle.Render("  " + m.action.Title))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %s", m.action.Title, m.err.Error())))
	} else {
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render(fmt.Sprintf("✓ Wrote %d files", len(m.outputFiles))))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("Input: %s\n", filepath.Base(m.selectedFile)))
		for _, f := range m.outputFiles {
			s.WriteString(fmt.Sprintf("  %s\n", filepath.Base(f)))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ____ ____    _    ____  __  __ __  __
  / ___| __ )  / \  |___ \ \ \/ /|  \/  |
 | |  _|  _ \ / _ \   __) | \  / | |\/| |
 | |_| | |_) / ___ \ / __/  /  \ | |  | |
  \____|____/_/   \_\_____|/_/\_\|_|  |_|
`
	return lipgloss.NewStyle().Foreground(indigo).Render(logo)
}

// Run starts the TUI application
func Run(trackerName string) error {
	p := tea.NewProgram(New(trackerName), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
