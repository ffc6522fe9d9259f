package editor

import (
	"io"
	"strings"

	"github.com/peterh/liner"

	"github.com/ashita-ai/sensemaker/internal/lang"
)

const (
	promptMain = "expr> "
	promptCont = "....> "
)

// lineSession edits the buffer in place with a line editor. It reads more
// lines while the text so far is an unfinished expression.
type lineSession struct {
	current string

	// prompter is replaced in tests.
	prompter func(prompt, text string) (string, error)
	closer   func()

	ran    bool
	result string
}

func newLineSession(current string) *lineSession {
	return &lineSession{current: current}
}

// liner drives the controlling terminal directly.
func (s *lineSession) SetStdin(io.Reader)  {}
func (s *lineSession) SetStdout(io.Writer) {}
func (s *lineSession) SetStderr(io.Writer) {}

func (s *lineSession) Run() error {
	s.ran = true
	if s.prompter == nil {
		ln := liner.NewLiner()
		ln.SetCtrlCAborts(true)
		ln.SetMultiLineMode(true)
		s.prompter = func(prompt, text string) (string, error) {
			return ln.PromptWithSuggestion(prompt, text, -1)
		}
		s.closer = func() { _ = ln.Close() }
	}
	if s.closer != nil {
		defer s.closer()
	}

	text, ok := s.read()
	if !ok {
		s.result = s.current
		return nil
	}
	s.result = text
	return nil
}

// read collects lines until they parse or fail for a reason other than
// running out of input. Aborting or EOF leaves the buffer unchanged.
func (s *lineSession) read() (string, bool) {
	var b strings.Builder
	seed := flatten(s.current)
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
			seed = ""
		}
		line, err := s.prompter(prompt, seed)
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.TrimSpace(src) == "" {
			return src, true
		}
		if _, _, perr := lang.Parse(src); perr != nil && lang.IsIncomplete(perr) {
			continue
		}
		return src, true
	}
}

// flatten joins the buffer into one line for the first prompt. Line
// comments are dropped first, since on a single line they would swallow
// everything after them.
func flatten(text string) string {
	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		if j := strings.IndexByte(ln, ';'); j >= 0 {
			lines[i] = ln[:j]
		}
	}
	return strings.Join(strings.Fields(strings.Join(lines, " ")), " ")
}

func (s *lineSession) Result() (string, error) {
	if !s.ran {
		return s.current, ErrNotRun
	}
	return s.result, nil
}
