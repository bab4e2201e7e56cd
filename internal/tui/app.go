// internal/tui/app.go
//
// This is the main TUI (Terminal User Interface) for wavesync.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen
//
// The dashboard never subscribes to bus events directly; it polls the
// engine's snapshot on a refresh tick so rendering stays off the scheduler's
// hot path.

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/wavesync/internal/config"
	"github.com/kingrea/wavesync/internal/engine"
	"github.com/kingrea/wavesync/internal/logbook"
	"github.com/kingrea/wavesync/internal/module"
	"github.com/kingrea/wavesync/internal/phase"
)

const boardRefreshInterval = 500 * time.Millisecond

// Conductor is the slice of the engine the dashboard drives.
type Conductor interface {
	Start()
	Stop()
	CycleInfo() engine.CycleInfo
	Modules() []module.Registration
	Patterns() []string
	EnforceRhythmPattern(patternName string) error
	PhaseSpecs() []phase.Spec
}

type refreshMsg struct {
	info    engine.CycleInfo
	specs   []phase.Spec
	modules []module.Registration
	journal []string
	at      time.Time
}

// appState represents which "screen" we're on
type appState int

const (
	stateDashboard     appState = iota // Live cycle board
	statePatternSelect                 // Rhythm pattern picker
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithRefreshInterval overrides the board's polling cadence.
func WithRefreshInterval(interval time.Duration) AppOption {
	return func(a *App) {
		if interval > 0 {
			a.refreshInterval = interval
		}
	}
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state     appState
	config    *config.Config
	conductor Conductor
	logbook   *logbook.Logbook

	refreshInterval time.Duration

	// Latest snapshot from the engine
	info         engine.CycleInfo
	specs        []phase.Spec
	moduleItems  []module.Registration
	journalLines []string

	// UI components
	patternMenu list.Model
	statusMsg   string

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// patternItem implements list.Item for the rhythm pattern picker
type patternItem struct {
	name string
}

func (i patternItem) Title() string       { return i.name }
func (i patternItem) Description() string { return "Apply this rhythm pattern" }
func (i patternItem) FilterValue() string { return i.name }

// NewApp creates a new App instance wired to a running conductor.
func NewApp(cfg *config.Config, conductor Conductor, lb *logbook.Logbook, opts ...AppOption) (*App, error) {
	if conductor == nil {
		return nil, fmt.Errorf("tui: conductor is required")
	}

	patternMenu := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	patternMenu.Title = "Select Rhythm Pattern"
	patternMenu.SetShowStatusBar(false)
	patternMenu.SetFilteringEnabled(false)

	app := &App{
		state:           stateDashboard,
		config:          cfg,
		conductor:       conductor,
		logbook:         lb,
		refreshInterval: boardRefreshInterval,
		patternMenu:     patternMenu,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.refreshPatternMenu()
	if lb != nil {
		lb.Info("Dashboard opened")
	}
	return app, nil
}

func (a *App) refreshPatternMenu() {
	names := a.conductor.Patterns()
	items := make([]list.Item, len(names))
	for i, name := range names {
		items[i] = patternItem{name: name}
	}
	a.patternMenu.SetItems(items)
}

// snapshot gathers everything the board renders into one message.
func (a *App) snapshot() refreshMsg {
	msg := refreshMsg{
		info:    a.conductor.CycleInfo(),
		specs:   a.conductor.PhaseSpecs(),
		modules: a.conductor.Modules(),
		at:      time.Now(),
	}
	if a.logbook != nil {
		msg.journal, _ = a.logbook.Tail(8)
	}
	return msg
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(a.refreshInterval, func(time.Time) tea.Msg {
		return a.snapshot()
	})
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	snap := a.snapshot()
	return tea.Batch(
		func() tea.Msg { return snap },
		a.scheduleRefresh(),
	)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.patternMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		return a, nil

	case refreshMsg:
		a.info = msg.info
		a.specs = msg.specs
		a.moduleItems = msg.modules
		a.journalLines = msg.journal
		return a, a.scheduleRefresh()

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "ctrl+c":
			return a, tea.Quit
		case "q":
			if a.state == stateDashboard {
				return a, tea.Quit
			}
		case "esc":
			if a.state == statePatternSelect {
				a.state = stateDashboard
				return a, nil
			}
		case "s":
			if a.state == stateDashboard {
				return a.toggleRunning()
			}
		case "p":
			if a.state == stateDashboard {
				a.refreshPatternMenu()
				a.state = statePatternSelect
				a.statusMsg = "Select a rhythm pattern"
				return a, nil
			}
		case "enter":
			if a.state == statePatternSelect {
				return a.confirmPatternSelection()
			}
		}
	}

	if a.state == statePatternSelect {
		var menuCmd tea.Cmd
		a.patternMenu, menuCmd = a.patternMenu.Update(msg)
		return a, menuCmd
	}
	return a, nil
}

func (a *App) toggleRunning() (tea.Model, tea.Cmd) {
	if a.info.Running {
		a.conductor.Stop()
		a.statusMsg = "Scheduler paused"
		if a.logbook != nil {
			a.logbook.Info("Scheduler paused from dashboard")
		}
	} else {
		a.conductor.Start()
		a.statusMsg = "Scheduler running"
		if a.logbook != nil {
			a.logbook.Info("Scheduler started from dashboard")
		}
	}
	snap := a.snapshot()
	return a, func() tea.Msg { return snap }
}

func (a *App) confirmPatternSelection() (tea.Model, tea.Cmd) {
	item, ok := a.patternMenu.SelectedItem().(patternItem)
	if !ok {
		a.statusMsg = "Pattern selection unavailable"
		return a, nil
	}
	if err := a.conductor.EnforceRhythmPattern(item.name); err != nil {
		a.statusMsg = fmt.Sprintf("Pattern failed: %v", err)
		if a.logbook != nil {
			a.logbook.Error("Pattern %s failed: %v", item.name, err)
		}
		return a, nil
	}
	a.statusMsg = fmt.Sprintf("Pattern %s applied", item.name)
	if a.logbook != nil {
		a.logbook.Info("Pattern %s applied from dashboard", item.name)
	}
	a.state = stateDashboard
	snap := a.snapshot()
	return a, func() tea.Msg { return snap }
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		MarginBottom(1).
		Render("◎ WAVESYNC")

	var body string
	if a.state == statePatternSelect {
		body = a.patternMenu.View()
	} else {
		leftWidth := max(42, width/2)
		left := lipgloss.JoinVertical(lipgloss.Left,
			a.renderCyclePanel(),
			"",
			a.renderPhasePanel(),
		)
		leftBox := panelStyle.Width(leftWidth).Render(left)
		rightBox := panelStyle.Width(max(30, width-leftWidth-4)).Render(a.renderModulesPanel())
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	}

	sections := []string{header, body}
	if journal := a.renderJournalPanel(); journal != "" {
		sections = append(sections, journal)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.footerText())
	sections = append(sections, footer)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

var panelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#444444")).
	Padding(0, 1)

func (a *App) footerText() string {
	help := "s start/stop · p patterns · q quit"
	if a.state == statePatternSelect {
		help = "enter apply · esc back"
	}
	if a.statusMsg == "" {
		return help
	}
	return a.statusMsg + " · " + help
}

func (a *App) renderCyclePanel() string {
	state := "stopped"
	stateColor := "#FF6B6B"
	if a.info.Running {
		state = "running"
		stateColor = "#6BCB77"
	}
	head := lipgloss.NewStyle().Bold(true).Render("CYCLE")
	lines := []string{
		head,
		fmt.Sprintf("State     %s", lipgloss.NewStyle().Foreground(lipgloss.Color(stateColor)).Render(state)),
		fmt.Sprintf("Cycles    %d", a.info.CycleCount),
		fmt.Sprintf("Period    %s", a.info.TotalDuration),
		fmt.Sprintf("Uptime    %s", a.info.Uptime.Round(time.Second)),
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderPhasePanel() string {
	head := lipgloss.NewStyle().Bold(true).Render("PHASES")
	lines := []string{head}
	active := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	for _, spec := range a.specs {
		marker := "  "
		style := dim
		if a.info.Started && spec.Phase == a.info.Phase {
			marker = "▶ "
			style = active
		}
		lines = append(lines, style.Render(fmt.Sprintf("%s%-11s %6s  %.1fHz",
			marker, spec.Phase.FriendlyName(), spec.Duration, spec.FrequencyHz)))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderModulesPanel() string {
	head := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("MODULES · %d", len(a.moduleItems)))
	if len(a.moduleItems) == 0 {
		return head + "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("none registered")
	}
	lines := []string{head}
	for _, reg := range a.moduleItems {
		lines = append(lines, fmt.Sprintf("%-16s %.2fHz (every %s)", reg.ID, reg.FrequencyHz, reg.Period()))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderJournalPanel() string {
	if len(a.journalLines) == 0 {
		return ""
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("JOURNAL")
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(a.journalLines, "\n"))
	return panelStyle.Render(head + "\n" + body)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
