package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensemaker.log")
	logger, closeLog, err := newLogger(path, "debug")
	require.NoError(t, err)

	logger.Debug("hello", "cell_id", "CellId(a, b)")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "CellId(a, b)", rec["cell_id"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensemaker.log")
	logger, closeLog, err := newLogger(path, "warn")
	require.NoError(t, err)
	logger.Info("dropped")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestNewLogger_DiscardsWithoutPath(t *testing.T) {
	logger, closeLog, err := newLogger("", "")
	require.NoError(t, err)
	defer closeLog()
	assert.False(t, logger.Enabled(context.Background(), -8))
}

func TestNewLogger_BadPath(t *testing.T) {
	_, _, err := newLogger(filepath.Join(t.TempDir(), "missing", "dir", "x.log"), "")
	require.Error(t, err)
}
