package viewer

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/ui"
)

const (
	// MaxLines is the scrollback kept by the viewer
	MaxLines = 5000

	refreshInterval = 100 * time.Millisecond
	maxPerRefresh   = 2000
)

type tickMsg time.Time

type statusMsg string

type doneMsg struct{ err error }

// Model is the bubbletea model of the live viewer. Records arrive through
// a channel that is drained on every refresh tick, so a busy stream costs
// one redraw per tick rather than one per record.
type Model struct {
	Title string

	Viewport viewport.Model
	Spinner  spinner.Model
	Help     help.Model
	Keys     keyMap

	records chan *format.Record
	text    *format.TextFormatter
	lines   []string

	Status  string
	Paused  bool
	Done    bool
	Err     error
	Frames  int
	Errors  int // error and fatal log messages
	started time.Time

	Width  int
	Height int
	ready  bool
}

// NewModel creates a viewer model reading from records
func NewModel(title string, records chan *format.Record) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ui.PrimaryColor)

	return Model{
		Title:    title,
		Viewport: viewport.New(80, 20),
		Spinner:  s,
		Help:     help.New(),
		Keys:     newKeyMap(),
		records:  records,
		text:     &format.TextFormatter{Color: true},
		Status:   "connecting",
		started:  time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the spinner and the refresh ticks
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, tick())
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Viewport.Width = msg.Width
		m.Viewport.Height = max(msg.Height-4, 1) // header, divider, footer
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Pause):
			m.Paused = !m.Paused
			if !m.Paused {
				m.refresh()
			}
			return m, nil
		case key.Matches(msg, m.Keys.Clear):
			m.lines = nil
			m.refresh()
			return m, nil
		case key.Matches(msg, m.Keys.Top):
			m.Paused = true
			m.Viewport.GotoTop()
			return m, nil
		case key.Matches(msg, m.Keys.Bottom):
			m.Paused = false
			m.refresh()
			return m, nil
		case key.Matches(msg, m.Keys.Up):
			// scrolling back stops following
			m.Paused = true
		}

	case tickMsg:
		if m.drain() > 0 && !m.Paused {
			m.refresh()
		}
		if !m.Done {
			cmds = append(cmds, tick())
		}

	case statusMsg:
		m.Status = string(msg)

	case doneMsg:
		m.drain()
		m.refresh()
		m.Done = true
		m.Err = msg.err
		m.Status = "stream ended"
		if msg.err != nil {
			m.Status = "error: " + msg.err.Error()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// drain moves pending records into the scrollback
func (m *Model) drain() int {
	n := 0
	for n < maxPerRefresh {
		select {
		case r := <-m.records:
			m.add(r)
			n++
		default:
			return n
		}
	}
	return n
}

func (m *Model) add(r *format.Record) {
	m.Frames++
	if lvl := r.Level(); lvl == dlt.LogFatal || lvl == dlt.LogError {
		m.Errors++
	}
	m.lines = append(m.lines, m.text.Line(r))
	if over := len(m.lines) - MaxLines; over > 0 {
		m.lines = append(m.lines[:0], m.lines[over:]...)
	}
}

func (m *Model) refresh() {
	m.Viewport.SetContent(strings.Join(m.lines, "\n"))
	if !m.Paused {
		m.Viewport.GotoBottom()
	}
}

// Lines returns the scrollback
func (m Model) Lines() []string { return m.lines }

// View renders the viewer
func (m Model) View() string {
	if !m.ready {
		return m.Spinner.View() + " " + m.Status + "\n"
	}

	state := m.Spinner.View() + " " + m.Status
	if m.Done {
		state = ui.StepMarkerComplete + " " + m.Status
		if m.Err != nil {
			state = ui.ErrorTitleStyle.Render(ui.FailureMarker + " " + m.Status)
		}
	}
	if m.Paused {
		state += " " + lipgloss.NewStyle().Foreground(ui.WarningColor).Render("[paused]")
	}

	counts := fmt.Sprintf("%d frames", m.Frames)
	if m.Errors > 0 {
		counts += ", " + ui.LevelStyle(dlt.LogError).Render(fmt.Sprintf("%d errors", m.Errors))
	}
	counts += fmt.Sprintf(" in %s", time.Since(m.started).Truncate(time.Second))

	header := ui.HeaderTitleStyle.Render(m.Title) + "  " + state + "  " + ui.MetaStyle.Render(counts)
	divider := ui.RenderHorizontalDivider(m.Width, "─")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		divider,
		m.Viewport.View(),
		m.Help.View(m.Keys),
	)
}
