// Package tui is the interaction loop: a bubbletea model that edits the
// expression buffer, validates it, and runs submissions in the background.
package tui

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ashita-ai/sensemaker/internal/editor"
	"github.com/ashita-ai/sensemaker/internal/exprstate"
	"github.com/ashita-ai/sensemaker/internal/submit"
)

// Submitter runs one submission. *submit.Orchestrator implements it.
type Submitter interface {
	Submit(ctx context.Context, state exprstate.State) (submit.Outcome, bool)
}

// Config wires the model's collaborators.
type Config struct {
	Machine   *exprstate.Machine
	Submitter Submitter
	Editor    editor.Opener
	Logger    *slog.Logger
}

// editFinishedMsg is sent when the editor session returns the terminal.
type editFinishedMsg struct {
	session editor.Session
	err     error
}

// submissionResultMsg carries the outcome of the submission started as
// generation gen.
type submissionResultMsg struct {
	gen     uint64
	outcome submit.Outcome
	ok      bool
}

// Model is the bubbletea model. Update runs on one goroutine; submissions
// report back only through submissionResultMsg.
type Model struct {
	ctx       context.Context
	machine   *exprstate.Machine
	submitter Submitter
	editor    editor.Opener
	logger    *slog.Logger

	status  string
	pending bool
	stopped bool

	// generation identifies the latest submission. Results from older
	// generations are dropped.
	generation uint64
	cancel     context.CancelFunc

	spinner spinner.Model
	styles  styles
	width   int
}

// New creates the model. Submissions derive their context from ctx.
func New(ctx context.Context, cfg Config) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	machine := cfg.Machine
	if machine == nil {
		machine = exprstate.New(nil, logger)
	}
	ed := cfg.Editor
	if ed == nil {
		ed = editor.New()
	}
	st := newStyles()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = st.spinner
	return Model{
		ctx:       ctx,
		machine:   machine,
		submitter: cfg.Submitter,
		editor:    ed,
		logger:    logger,
		spinner:   sp,
		styles:    st,
	}
}

func (m Model) Init() tea.Cmd { return nil }

// Stopped reports whether the loop has been told to exit.
func (m Model) Stopped() bool { return m.stopped }

// Status returns the status pane text.
func (m Model) Status() string { return m.status }

// Pending reports whether a submission is outstanding.
func (m Model) Pending() bool { return m.pending }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case editFinishedMsg:
		return m.finishEdit(msg)

	case submissionResultMsg:
		return m.finishSubmission(msg)

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.stopped {
		return m, nil
	}
	switch msg.String() {
	case "q", "ctrl+c":
		m.stopped = true
		m.pending = false
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.logger.Debug("tui: quit")
		return m, tea.Quit

	case "e":
		session, err := m.editor.Open(m.machine.Buffer())
		if err != nil {
			m.status = "error: " + err.Error()
			return m, nil
		}
		return m, tea.Exec(session, func(err error) tea.Msg {
			return editFinishedMsg{session: session, err: err}
		})

	case "c":
		return m.startSubmission()
	}
	return m, nil
}

func (m Model) finishEdit(msg editFinishedMsg) (tea.Model, tea.Cmd) {
	if m.stopped {
		return m, nil
	}
	text, err := msg.session.Result()
	if err == nil {
		err = msg.err
	}
	if err != nil {
		m.logger.Warn("tui: editor failed", "error", err)
		m.status = "error: " + err.Error()
		return m, nil
	}
	m.machine.Edit(text)
	m.machine.Revalidate()
	return m, nil
}

func (m Model) startSubmission() (tea.Model, tea.Cmd) {
	state := m.machine.State()
	if !exprstate.IsValid(state) || m.submitter == nil {
		return m, nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.generation++
	gen := m.generation
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.pending = true
	m.logger.Debug("tui: submission started", "generation", gen)

	submitter := m.submitter
	run := func() tea.Msg {
		out, ok := submitter.Submit(ctx, state)
		return submissionResultMsg{gen: gen, outcome: out, ok: ok}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

func (m Model) finishSubmission(msg submissionResultMsg) (tea.Model, tea.Cmd) {
	if m.stopped || msg.gen != m.generation {
		m.logger.Debug("tui: dropped stale submission result", "generation", msg.gen)
		return m, nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.pending = false
	if msg.ok {
		m.status = msg.outcome.Status()
	}
	return m, nil
}
