package logging

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestViewerTailReturnsLastEntries(t *testing.T) {
	// Given a log file with five entries
	logPath := filepath.Join(t.TempDir(), "noterag.log")
	writeLog(t, logPath,
		`{"time":"2026-08-20T10:00:00Z","level":"DEBUG","msg":"message 1"}`,
		`{"time":"2026-08-20T10:01:00Z","level":"INFO","msg":"message 2"}`,
		`{"time":"2026-08-20T10:02:00Z","level":"WARN","msg":"message 3"}`,
		`{"time":"2026-08-20T10:03:00Z","level":"ERROR","msg":"message 4"}`,
		`{"time":"2026-08-20T10:04:00Z","level":"INFO","msg":"message 5"}`,
	)

	v := NewViewer(ViewerConfig{}, &strings.Builder{})

	// When tailing the last three
	entries, err := v.Tail(logPath, 3)
	require.NoError(t, err)

	// Then the newest three come back in order
	require.Len(t, entries, 3)
	assert.Equal(t, "message 3", entries[0].Msg)
	assert.Equal(t, "message 5", entries[2].Msg)
}

func TestViewerTailLevelFilter(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "noterag.log")
	writeLog(t, logPath,
		`{"time":"2026-08-20T10:00:00Z","level":"DEBUG","msg":"chunking file"}`,
		`{"time":"2026-08-20T10:01:00Z","level":"INFO","msg":"index complete"}`,
		`{"time":"2026-08-20T10:02:00Z","level":"ERROR","msg":"embed failed"}`,
	)

	v := NewViewer(ViewerConfig{Level: "error"}, &strings.Builder{})

	entries, err := v.Tail(logPath, 10)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "embed failed", entries[0].Msg)
}

func TestViewerTailPatternFilter(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "noterag.log")
	writeLog(t, logPath,
		`{"time":"2026-08-20T10:00:00Z","level":"INFO","msg":"search_started","query":"roadmap"}`,
		`{"time":"2026-08-20T10:01:00Z","level":"INFO","msg":"index_started","vault":"work"}`,
		`{"time":"2026-08-20T10:02:00Z","level":"INFO","msg":"search_complete","results":4}`,
	)

	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`search_`)}, &strings.Builder{})

	entries, err := v.Tail(logPath, 10)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "search_started", entries[0].Msg)
	assert.Equal(t, "search_complete", entries[1].Msg)
}

func TestViewerTailIncludesRotation(t *testing.T) {
	// Given a freshly rotated log: one line active, older lines in .1
	dir := t.TempDir()
	logPath := filepath.Join(dir, "noterag.log")
	writeLog(t, logPath+".1",
		`{"time":"2026-08-20T09:58:00Z","level":"INFO","msg":"old 1"}`,
		`{"time":"2026-08-20T09:59:00Z","level":"INFO","msg":"old 2"}`,
	)
	writeLog(t, logPath,
		`{"time":"2026-08-20T10:00:00Z","level":"INFO","msg":"new 1"}`,
	)

	v := NewViewer(ViewerConfig{}, &strings.Builder{})

	// When asking for more lines than the active file holds
	entries, err := v.Tail(logPath, 3)
	require.NoError(t, err)

	// Then the rotation fills in the older lines
	require.Len(t, entries, 3)
	assert.Equal(t, "old 1", entries[0].Msg)
	assert.Equal(t, "new 1", entries[2].Msg)
}

func TestViewerTailMissingFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &strings.Builder{})

	_, err := v.Tail(filepath.Join(t.TempDir(), "absent.log"), 10)
	assert.Error(t, err)
}

func TestViewerParseLinePassesThroughNonJSON(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "noterag.log")
	writeLog(t, logPath, "panic: runtime error")

	v := NewViewer(ViewerConfig{}, &strings.Builder{})

	entries, err := v.Tail(logPath, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.False(t, entries[0].IsValid)
	assert.Equal(t, "panic: runtime error", v.FormatEntry(entries[0]))
}

func TestViewerFormatEntrySortsAttrs(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &strings.Builder{})

	entry := v.parseLine(`{"time":"2026-08-20T10:00:00Z","level":"INFO","msg":"indexed","vault":"work","chunks":12}`)
	formatted := v.FormatEntry(entry)

	assert.Contains(t, formatted, "INFO")
	assert.Contains(t, formatted, "indexed")
	assert.Contains(t, formatted, "chunks=12 vault=work")
}

func TestViewerFormatLevelNoColor(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &strings.Builder{})

	assert.Equal(t, "ERROR", strings.TrimSpace(v.formatLevel("error")))
	assert.NotContains(t, v.formatLevel("error"), "\033[")
}

func TestViewerPrint(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "noterag.log")
	writeLog(t, logPath,
		`{"time":"2026-08-20T10:00:00Z","level":"INFO","msg":"watcher started"}`,
	)

	buf := &strings.Builder{}
	v := NewViewer(ViewerConfig{NoColor: true}, buf)

	entries, err := v.Tail(logPath, 10)
	require.NoError(t, err)
	v.Print(entries)

	assert.Contains(t, buf.String(), "watcher started")
}
