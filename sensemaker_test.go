package sensemaker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/sensemaker/internal/hash"
	"github.com/ashita-ai/sensemaker/internal/lang"
	"github.com/ashita-ai/sensemaker/internal/ledger"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func healthyNode(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"status": "ok"}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("SENSEMAKER_SUBMIT_TIMEOUT", "whenever")
	_, err := New(WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SENSEMAKER_SUBMIT_TIMEOUT")
}

func TestNew_RejectsInvalidOverride(t *testing.T) {
	_, err := New(WithLogger(quietLogger()), WithNodeURL("ws://127.0.0.1:9999"))
	require.Error(t, err)
}

func TestNew_AppliesOverrides(t *testing.T) {
	app, err := New(
		WithLogger(quietLogger()),
		WithNodeURL("http://node.test:1234"),
		WithBundlePath("/tmp/other.dna"),
		WithVersion("1.2.3"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.Equal(t, "http://node.test:1234", app.cfg.NodeURL)
	assert.Equal(t, "/tmp/other.dna", app.resolver.Path())
	assert.Equal(t, "1.2.3", app.version)
}

func TestRun_UnreachableNodeIsStartupError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	app, err := New(WithLogger(quietLogger()), WithNodeURL(url))
	require.NoError(t, err)
	defer func() { _ = app.Close(context.Background()) }()

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotConnected)
}

func TestRun_QuitKeyStopsLoop(t *testing.T) {
	srv := healthyNode(t)
	app, err := New(
		WithLogger(quietLogger()),
		WithNodeURL(srv.URL),
		WithProgramOptions(tea.WithInput(strings.NewReader("q")), tea.WithOutput(io.Discard)),
	)
	require.NoError(t, err)
	defer func() { _ = app.Close(context.Background()) }()

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after q")
	}
}

func TestArgsAdapter(t *testing.T) {
	good := hash.HeaderHashOf([]byte("prior"))
	agent := hash.PlaceholderAgent()

	var seen string
	f := argsAdapter(func(expr string) []string {
		seen = expr
		return []string{good.String(), agent.String(), "not-a-hash"}
	}, quietLogger())

	out := f(lang.Var{Name: "x"})
	require.Len(t, out, 1)
	assert.Equal(t, good.String(), out[0].String())
	assert.Equal(t, `Var("x")`, seen)
}

func TestClose_Idempotent(t *testing.T) {
	app, err := New(WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, app.Close(context.Background()))
	require.NoError(t, app.Close(context.Background()))
}
