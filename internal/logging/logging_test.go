package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	// Given a config pointing at a temp log file
	dir := t.TempDir()
	logPath := filepath.Join(dir, "noterag.log")
	cfg := Config{
		Level:    slog.LevelInfo,
		FilePath: logPath,
	}

	// When we set up logging and emit a record
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("index complete", slog.Int("files", 3))
	cleanup()

	// Then the file contains a JSON line with our fields
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "index complete", record["msg"])
	assert.Equal(t, float64(3), record["files"])
}

func TestSetupCreatesLogDirectory(t *testing.T) {
	// Given a log path in a directory that does not exist yet
	dir := t.TempDir()
	logPath := filepath.Join(dir, "nested", "logs", "noterag.log")

	// When we set up logging
	_, cleanup, err := Setup(Config{Level: slog.LevelInfo, FilePath: logPath})
	require.NoError(t, err)
	defer cleanup()

	// Then the directory was created
	_, err = os.Stat(filepath.Dir(logPath))
	assert.NoError(t, err)
}

func TestSetupRespectsLevel(t *testing.T) {
	// Given a warn-level config
	dir := t.TempDir()
	logPath := filepath.Join(dir, "noterag.log")
	logger, cleanup, err := Setup(Config{Level: slog.LevelWarn, FilePath: logPath})
	require.NoError(t, err)

	// When we log below and at the threshold
	logger.Info("should be dropped")
	logger.Warn("should be kept")
	cleanup()

	// Then only the warn record is present
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be dropped")
	assert.Contains(t, string(data), "should be kept")
}

func TestRotatingWriterRotatesAtSizeLimit(t *testing.T) {
	// Given a writer with a 1MB limit
	dir := t.TempDir()
	logPath := filepath.Join(dir, "noterag.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	// When we write past the limit
	chunk := strings.Repeat("x", 512*1024)
	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	// Then a rotated file exists and the active file is small again
	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err)

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1024*1024))
}

func TestRotatingWriterPrunesOldFiles(t *testing.T) {
	// Given a writer keeping at most 2 files
	dir := t.TempDir()
	logPath := filepath.Join(dir, "noterag.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	// When we force several rotations
	chunk := strings.Repeat("x", 600*1024)
	for i := 0; i < 6; i++ {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	// Then only the active file and one rotation remain
	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(logPath + ".2")
	assert.True(t, os.IsNotExist(err))
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"  DEBUG  ", slog.LevelDebug},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromString(tt.in), "input %q", tt.in)
	}
}
