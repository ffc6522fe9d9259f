package sensemaker

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ashita-ai/sensemaker/internal/editor"
	"github.com/ashita-ai/sensemaker/internal/hash"
	"github.com/ashita-ai/sensemaker/internal/lang"
)

// EditorSession is one run of an external editor. The interaction loop
// releases the terminal, calls Run, then reads Result.
type EditorSession interface {
	tea.ExecCommand
	Result() (string, error)
}

// Editor opens an editing session seeded with the current buffer.
// When provided via WithEditor, replaces the $VISUAL/$EDITOR editor.
type Editor interface {
	Open(current string) (EditorSession, error)
}

// ArgsFunc returns the arguments for a submission of expr, as header hashes
// in display form ("uhCkk..."). expr is the expression's constructor form.
// Entries that do not parse as header hashes are dropped with a warning.
type ArgsFunc func(expr string) []string

type editorAdapter struct{ e Editor }

func (a editorAdapter) Open(current string) (editor.Session, error) {
	return a.e.Open(current)
}

func argsAdapter(f ArgsFunc, logger *slog.Logger) func(lang.Expr) []hash.HeaderHash {
	return func(e lang.Expr) []hash.HeaderHash {
		raw := f(e.String())
		out := make([]hash.HeaderHash, 0, len(raw))
		for _, s := range raw {
			h, err := hash.Parse(s)
			if err == nil && h.Kind() == hash.KindHeader {
				out = append(out, hash.HeaderHash{Hash: h})
				continue
			}
			logger.Warn("sensemaker: dropping submission argument", "arg", s, "error", err)
		}
		return out
	}
}
