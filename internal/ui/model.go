package ui

import (
	"context"
	"strings"
	"time"

	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"usmconv/internal/progress"
)

// DefaultGrace is how long a cancelled run may take to unwind before the
// program exits anyway.
const DefaultGrace = 5 * time.Second

const maxLogLines = 6

// Model renders a single conversion run.
type Model struct {
	title  string
	cancel context.CancelFunc
	grace  time.Duration

	phase       progress.Phase
	percent     float64
	eta         time.Duration
	videoStatus string
	audioStatus string
	message     string
	logs        []string

	result  *progress.Result
	runErr  error
	running bool

	// confirming is set after the first quit key while a run is active.
	confirming bool
	// quitting is set once the user confirmed; the run context is cancelled.
	quitting bool
	// Forced reports whether the grace period expired.
	Forced bool

	verbose bool
	width   int
	styles  Styles
	spinner spinner.Model
	bar     bubblesprogress.Model
}

// NewModel returns a Model for a run titled title. cancel aborts the run.
func NewModel(title string, cancel context.CancelFunc, grace time.Duration, verbose bool) Model {
	sty := defaultStyles()
	sp := spinner.New()
	sp.Style = sty.Spinner
	if grace <= 0 {
		grace = DefaultGrace
	}
	return Model{
		title:   title,
		cancel:  cancel,
		grace:   grace,
		phase:   progress.PhaseIdle,
		eta:     -1,
		running: true,
		verbose: verbose,
		styles:  sty,
		spinner: sp,
		bar: bubblesprogress.New(
			bubblesprogress.WithDefaultGradient(),
			bubblesprogress.WithWidth(48),
		),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 16; w > 10 && w < 80 {
			m.bar.Width = w
		}

	case updateMsg:
		u := msg.U
		m.phase = u.Phase
		m.percent = u.Percent
		m.eta = u.ETA
		if u.VideoStatus != "" {
			m.videoStatus = u.VideoStatus
		}
		if u.AudioStatus != "" {
			m.audioStatus = u.AudioStatus
		}
		if u.Message != "" {
			m.message = u.Message
		}

	case logMsg:
		line := strings.TrimRight(msg.L.Line, "\r\n")
		if line != "" {
			m.logs = append(m.logs, line)
			if len(m.logs) > maxLogLines {
				m.logs = m.logs[len(m.logs)-maxLogLines:]
			}
		}

	case resultMsg:
		r := msg.R
		m.result = &r
		m.phase = r.Phase
		m.percent = 100

	case runDoneMsg:
		m.running = false
		m.runErr = msg.Err
		return m, tea.Quit

	case forceQuitMsg:
		if m.running {
			m.Forced = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

// handleKey asks for confirmation before cancelling an active run.
func (m Model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := k.String()
	if !m.running {
		if key == "q" || key == "ctrl+c" || key == "enter" || key == "esc" {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.quitting {
		// A third key skips the grace period.
		if key == "ctrl+c" {
			m.Forced = true
			return m, tea.Quit
		}
		return m, nil
	}
	if m.confirming {
		switch key {
		case "y", "Y", "q", "ctrl+c":
			m.confirming = false
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Tick(m.grace, func(time.Time) tea.Msg { return forceQuitMsg{} })
		default:
			m.confirming = false
			return m, nil
		}
	}
	if key == "q" || key == "ctrl+c" || key == "esc" {
		m.confirming = true
	}
	return m, nil
}

// Err is the run's error, or nil.
func (m Model) Err() error {
	if m.runErr != nil {
		return m.runErr
	}
	if m.result != nil {
		return m.result.Err
	}
	return nil
}

// Result is the reported run result, if any.
func (m Model) Result() (progress.Result, bool) {
	if m.result == nil {
		return progress.Result{}, false
	}
	return *m.result, true
}

// teaReporter forwards pipeline events to the program. Send is the only way
// events reach the UI.
type teaReporter struct {
	send func(tea.Msg)
}

func (r teaReporter) Update(u progress.Update) { r.send(updateMsg{U: u}) }
func (r teaReporter) Log(l progress.Log)       { r.send(logMsg{L: l}) }
func (r teaReporter) Result(res progress.Result) {
	r.send(resultMsg{R: res})
}
