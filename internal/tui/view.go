package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashita-ai/sensemaker/internal/exprstate"
)

const defaultWidth = 80

const (
	helpBase   = "**q** to quit, **e** to edit expr"
	helpSubmit = ", **c** to create entry"
)

type styles struct {
	pane    lipgloss.Style
	title   lipgloss.Style
	key     lipgloss.Style
	spinner lipgloss.Style
	// help holds the rendered help line, indexed by whether the state is Valid.
	help [2]string
}

func newStyles() styles {
	s := styles{
		pane:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		key:     lipgloss.NewStyle().Bold(true),
		spinner: lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
	}
	s.help[0] = s.renderHelp(helpBase)
	s.help[1] = s.renderHelp(helpBase + helpSubmit)
	return s
}

// renderHelp renders the markdown help line once, so View does no
// markdown work. Bold falls back to lipgloss if glamour cannot render.
func (s styles) renderHelp(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(120),
	)
	if err == nil {
		if out, err := r.Render(md); err == nil {
			return tidy(out)
		}
	}
	return s.key.Render(strings.ReplaceAll(md, "**", ""))
}

// tidy drops the blank lines and right padding glamour adds around a paragraph.
func tidy(rendered string) string {
	var lines []string
	for _, ln := range strings.Split(rendered, "\n") {
		ln = strings.TrimRight(ln, " ")
		if strings.TrimSpace(ln) == "" {
			continue
		}
		lines = append(lines, ln)
	}
	return strings.Join(lines, "\n")
}

// View renders the help line and the three panes. It reads the model only.
func (m Model) View() string {
	if m.stopped {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	state := m.machine.State()
	help := m.styles.help[0]
	if exprstate.IsValid(state) {
		help = m.styles.help[1]
	}

	status := m.status
	if m.pending {
		status = m.spinner.View() + " submitting"
		if m.status != "" {
			status += "\n" + m.status
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		help,
		m.pane(width, "expr input", m.machine.Buffer()),
		m.pane(width, "feedback on expr", state.String()),
		m.pane(width, "ledger response", status),
	)
}

func (m Model) pane(width int, title, body string) string {
	inner := lipgloss.JoinVertical(lipgloss.Left, m.styles.title.Render(title), body)
	// Width excludes the border.
	return m.styles.pane.Width(width - 2).Render(inner)
}
