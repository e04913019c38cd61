package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogsCmd_FlagDefaults(t *testing.T) {
	cmd := newLogsCmd()

	tests := []struct {
		flag string
		want string
	}{
		{"follow", "false"},
		{"lines", "50"},
		{"level", ""},
		{"filter", ""},
		{"no-color", "false"},
		{"file", ""},
	}

	for _, tt := range tests {
		flag := cmd.Flags().Lookup(tt.flag)
		require.NotNil(t, flag, "missing --%s flag", tt.flag)
		assert.Equal(t, tt.want, flag.DefValue, "--%s default", tt.flag)
	}
}

func TestResolveLogPath_FlagWins(t *testing.T) {
	assert.Equal(t, "/tmp/custom.log", resolveLogPath("/tmp/custom.log"))
}

func TestLogsCmd_MissingFile(t *testing.T) {
	// Given: a log path that does not exist
	cmd := newLogsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--file", filepath.Join(t.TempDir(), "absent.log")})

	// When: running
	err := cmd.Execute()

	// Then: a pointed error instead of an empty tail
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log file")
}

func TestLogsCmd_TailAndFilter(t *testing.T) {
	// Given: a log file with mixed levels
	logPath := filepath.Join(t.TempDir(), "noterag.log")
	content := `{"time":"2026-08-20T10:00:00Z","level":"INFO","msg":"index_started"}
{"time":"2026-08-20T10:01:00Z","level":"ERROR","msg":"embed failed"}
`
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	stdout := &bytes.Buffer{}
	cmd := newLogsCmd()
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--file", logPath, "--level", "error", "--no-color"})

	// When: tailing with a level filter
	err := cmd.Execute()

	// Then: only the error line prints
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "embed failed")
	assert.NotContains(t, stdout.String(), "index_started")
}
