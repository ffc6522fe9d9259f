// Package editor hands the expression buffer to an external editor and
// returns the full replacement text.
//
// A Session satisfies tea.ExecCommand, so the interaction loop can release
// the terminal, run the session, and take the terminal back.
package editor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Session is one editing run.
type Session interface {
	tea.ExecCommand
	// Result returns the edited text after Run has returned. An editor that
	// exits without saving yields the original text.
	Result() (string, error)
}

// Opener starts editing sessions.
type Opener interface {
	Open(current string) (Session, error)
}

// ErrNotRun is returned by Result before the session has run.
var ErrNotRun = errors.New("editor: session has not run")

// DefaultFallbacks are tried, in order, after $VISUAL and $EDITOR.
var DefaultFallbacks = []string{"nano", "vim", "vi"}

// Editor opens sessions in an editor process, or in an inline line editor
// when no editor binary can be found.
type Editor struct {
	// Command overrides $VISUAL and $EDITOR. It may carry arguments.
	Command string
	// Fallbacks are tried when neither the command nor the environment
	// names an installed editor.
	Fallbacks []string
	// Inline disables the line-editor fallback when false and no editor
	// binary is found; Open then fails.
	Inline bool
}

// New returns an Editor that honors $VISUAL and $EDITOR, falls back to
// common terminal editors, and finally to the inline line editor.
func New() *Editor {
	return &Editor{Fallbacks: DefaultFallbacks, Inline: true}
}

// Open prepares a session for current. Nothing runs until the session's Run.
func (e *Editor) Open(current string) (Session, error) {
	candidates := []string{e.Command}
	if strings.TrimSpace(e.Command) == "" {
		candidates = append([]string{os.Getenv("VISUAL"), os.Getenv("EDITOR")}, e.Fallbacks...)
	}
	for _, c := range candidates {
		bin, args, err := buildCommand(c)
		if err != nil {
			continue
		}
		return newProcessSession(bin, args, current)
	}
	if e.Command != "" {
		return nil, fmt.Errorf("editor: configured editor %q not found", e.Command)
	}
	if !e.Inline {
		return nil, fmt.Errorf("editor: no editor found in $VISUAL/$EDITOR and no fallback (%s) is available",
			strings.Join(e.Fallbacks, "/"))
	}
	return newLineSession(current), nil
}

// buildCommand resolves an editor command line to a binary and its
// arguments. GUI editors that return immediately get --wait.
func buildCommand(editor string) (string, []string, error) {
	argv := strings.Fields(editor)
	if len(argv) == 0 {
		return "", nil, fmt.Errorf("empty editor")
	}
	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return "", nil, err
	}
	args := argv[1:]
	switch filepath.Base(bin) {
	case "code", "code-insiders", "codium", "vscodium", "subl":
		hasWait := false
		for _, a := range args {
			if a == "--wait" || a == "-w" {
				hasWait = true
				break
			}
		}
		if !hasWait {
			args = append(args, "--wait")
		}
	}
	return bin, args, nil
}

// processSession edits a temp file holding the buffer.
type processSession struct {
	cmd     *exec.Cmd
	path    string
	current string

	ran    bool
	result string
	err    error
}

func newProcessSession(bin string, args []string, current string) (*processSession, error) {
	f, err := os.CreateTemp("", "sensemaker-*.rep")
	if err != nil {
		return nil, fmt.Errorf("editor: create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.WriteString(current); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("editor: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("editor: close temp file: %w", err)
	}

	cmd := exec.Command(bin, append(args, path)...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return &processSession{cmd: cmd, path: path, current: current}, nil
}

func (s *processSession) SetStdin(r io.Reader)  { s.cmd.Stdin = r }
func (s *processSession) SetStdout(w io.Writer) { s.cmd.Stdout = w }
func (s *processSession) SetStderr(w io.Writer) { s.cmd.Stderr = w }

// Run blocks until the editor exits. The temp file is removed afterwards.
func (s *processSession) Run() error {
	defer func() { _ = os.Remove(s.path) }()
	s.ran = true

	if err := s.cmd.Run(); err != nil {
		s.err = fmt.Errorf("editor: %s: %w", filepath.Base(s.cmd.Path), err)
		return s.err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.err = fmt.Errorf("editor: read temp file: %w", err)
		return s.err
	}
	s.result = strings.ReplaceAll(string(data), "\r\n", "\n")
	return nil
}

func (s *processSession) Result() (string, error) {
	if !s.ran {
		return s.current, ErrNotRun
	}
	if s.err != nil {
		return s.current, s.err
	}
	return s.result, nil
}
