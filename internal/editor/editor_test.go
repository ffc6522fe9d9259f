package editor

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script acting as an editor.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-editor")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestBuildCommand(t *testing.T) {
	_, _, err := buildCommand("   ")
	require.Error(t, err)

	_, _, err = buildCommand("definitely-not-an-editor-binary")
	require.Error(t, err)

	script := writeScript(t, "exit 0")
	bin, args, err := buildCommand(script + " -n")
	require.NoError(t, err)
	assert.Equal(t, script, bin)
	assert.Equal(t, []string{"-n"}, args)
}

func TestBuildCommand_AddsWaitForGUIEditors(t *testing.T) {
	dir := t.TempDir()
	code := filepath.Join(dir, "code")
	require.NoError(t, os.WriteFile(code, []byte("#!/bin/sh\n"), 0o755))

	_, args, err := buildCommand(code)
	require.NoError(t, err)
	assert.Equal(t, []string{"--wait"}, args)

	_, args, err = buildCommand(code + " --wait")
	require.NoError(t, err)
	assert.Equal(t, []string{"--wait"}, args)
}

func TestProcessSession_ReplacesBuffer(t *testing.T) {
	script := writeScript(t, `printf '(lam [x] x)' > "$1"`)
	ed := &Editor{Command: script}

	s, err := ed.Open("1")
	require.NoError(t, err)
	s.SetStdin(bytes.NewReader(nil))
	s.SetStdout(io.Discard)
	s.SetStderr(io.Discard)
	require.NoError(t, s.Run())

	got, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, "(lam [x] x)", got)
}

func TestProcessSession_NoOpKeepsText(t *testing.T) {
	ed := &Editor{Command: writeScript(t, "exit 0")}
	s, err := ed.Open("(if true\n  1 2)")
	require.NoError(t, err)
	require.NoError(t, s.Run())

	got, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, "(if true\n  1 2)", got)
}

func TestProcessSession_SeesCurrentBufferAndCleansUp(t *testing.T) {
	out := filepath.Join(t.TempDir(), "seen")
	script := writeScript(t, `cp "$1" "`+out+`"; echo "$1" >> "`+out+`.path"`)
	ed := &Editor{Command: script}

	s, err := ed.Open("current text")
	require.NoError(t, err)
	require.NoError(t, s.Run())

	seen, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "current text", string(seen))

	tmp, err := os.ReadFile(out + ".path")
	require.NoError(t, err)
	_, err = os.Stat(string(bytes.TrimSpace(tmp)))
	assert.True(t, errors.Is(err, os.ErrNotExist), "temp file should be removed")
}

func TestProcessSession_EditorFailure(t *testing.T) {
	ed := &Editor{Command: writeScript(t, "exit 3")}
	s, err := ed.Open("keep me")
	require.NoError(t, err)
	require.Error(t, s.Run())

	got, err := s.Result()
	require.Error(t, err)
	assert.Equal(t, "keep me", got)
}

func TestResultBeforeRun(t *testing.T) {
	ed := &Editor{Command: writeScript(t, "exit 0")}
	s, err := ed.Open("x")
	require.NoError(t, err)
	_, err = s.Result()
	assert.ErrorIs(t, err, ErrNotRun)
}

func TestOpen_PrefersVisualOverEditor(t *testing.T) {
	visual := writeScript(t, `printf visual > "$1"`)
	editor := writeScript(t, `printf editor > "$1"`)
	t.Setenv("VISUAL", visual)
	t.Setenv("EDITOR", editor)

	s, err := New().Open("")
	require.NoError(t, err)
	require.NoError(t, s.Run())
	got, _ := s.Result()
	assert.Equal(t, "visual", got)
}

func TestOpen_ConfiguredCommandMissing(t *testing.T) {
	_, err := (&Editor{Command: "no-such-editor-xyz"}).Open("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-editor-xyz")
}

func TestOpen_NoEditorFallsBackToLine(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "")
	ed := &Editor{Fallbacks: []string{"no-such-editor-xyz"}, Inline: true}

	s, err := ed.Open("1")
	require.NoError(t, err)
	_, ok := s.(*lineSession)
	assert.True(t, ok)

	ed.Inline = false
	_, err = ed.Open("1")
	require.Error(t, err)
}

// scripted returns a prompter that answers with lines in order.
func scripted(lines []string, errs ...error) (func(string, string) (string, error), *[]string) {
	var prompts []string
	i := 0
	return func(prompt, _ string) (string, error) {
		prompts = append(prompts, prompt)
		if i < len(errs) && errs[i] != nil {
			err := errs[i]
			i++
			return "", err
		}
		line := lines[i]
		i++
		return line, nil
	}, &prompts
}

func TestLineSession_SingleLine(t *testing.T) {
	s := newLineSession("old")
	s.prompter, _ = scripted([]string{"(lam [x] x)"})
	require.NoError(t, s.Run())
	got, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, "(lam [x] x)", got)
}

func TestLineSession_ContinuesUnfinishedExpression(t *testing.T) {
	s := newLineSession("")
	p, prompts := scripted([]string{"(let ([a 1])", "  a)"})
	s.prompter = p
	require.NoError(t, s.Run())

	got, _ := s.Result()
	assert.Equal(t, "(let ([a 1])\n  a)", got)
	assert.Equal(t, []string{promptMain, promptCont}, *prompts)
}

func TestLineSession_StopsOnHardError(t *testing.T) {
	s := newLineSession("")
	s.prompter, _ = scripted([]string{"())"})
	require.NoError(t, s.Run())
	got, _ := s.Result()
	assert.Equal(t, "())", got)
}

func TestLineSession_AbortKeepsBuffer(t *testing.T) {
	for _, abort := range []error{liner.ErrPromptAborted, io.EOF} {
		s := newLineSession("(f 1)")
		s.prompter, _ = scripted([]string{""}, abort)
		require.NoError(t, s.Run())
		got, err := s.Result()
		require.NoError(t, err)
		assert.Equal(t, "(f 1)", got)
	}
}

func TestLineSession_SeedsFlattenedBuffer(t *testing.T) {
	var seed string
	s := newLineSession("(if true\n  1\n  2)")
	s.prompter = func(_, text string) (string, error) {
		seed = text
		return text, nil
	}
	require.NoError(t, s.Run())
	assert.Equal(t, "(if true 1 2)", seed)
}

func TestLineSession_SeedDropsComments(t *testing.T) {
	s := newLineSession("; identity\n(lam [x] x) ; done")
	var prompts int
	s.prompter = func(_, text string) (string, error) {
		prompts++
		return text, nil
	}
	require.NoError(t, s.Run())
	got, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, "(lam [x] x)", got)
	assert.Equal(t, 1, prompts)
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, "", flatten("; only a comment"))
	assert.Equal(t, "(f 1 2)", flatten("(f 1 ; one\n   2)"))
}
