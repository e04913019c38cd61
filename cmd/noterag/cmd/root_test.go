package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing with --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()

	// Then: it should show usage information
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "noterag", "Help should mention program name")
	assert.Contains(t, output, "Usage:", "Help should show usage")
}

func TestRootCmd_NoArgsShowsHelp(t *testing.T) {
	// Given: a root command with no arguments

	// When: executing
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	// Then: help is shown instead of starting a server
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Available Commands:")
}

func TestRootCmd_ShowsVersion(t *testing.T) {
	// Given: a root command

	// When: executing with --version
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--version"})

	err := cmd.Execute()

	// Then: it should show the version
	require.NoError(t, err)
	output := buf.String()
	hasVersion := strings.Contains(output, "0.") || strings.Contains(output, "dev")
	assert.True(t, hasVersion, "Version output should contain a version number or 'dev'")
	assert.Contains(t, output, "noterag", "Version output should mention program name")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: a root command

	// When: checking available commands
	cmd := NewRootCmd()

	var commandNames []string
	for _, subcmd := range cmd.Commands() {
		commandNames = append(commandNames, subcmd.Name())
	}

	// Then: every user-facing command is registered
	for _, want := range []string{
		"serve", "mcp", "index",
		"search", "ask", "person", "actions",
		"status", "doctor", "logs",
		"config", "version",
	} {
		assert.Contains(t, commandNames, want, "Should have %s subcommand", want)
	}
}

func TestRootCmd_HasConfigFlag(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()

	// Then: it should have the persistent --config flag
	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag, "Should have --config flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestRootCmd_HasDebugFlag(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()

	// Then: it should have the persistent --debug flag
	flag := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, flag, "Should have --debug flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestSearchCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing search --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"search", "--help"})

	err := cmd.Execute()

	// Then: it should show search usage
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hybrid", "Search help should mention hybrid retrieval")
}

func TestIndexCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing index --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--help"})

	err := cmd.Execute()

	// Then: it should show index usage
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "index", "Index help should mention index")
	assert.Contains(t, output, "--full", "Index help should list the --full flag")
}

func TestServeCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing serve --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"serve", "--help"})

	err := cmd.Execute()

	// Then: it should show serve usage
	require.NoError(t, err)
	output := buf.String()
	assert.True(t, strings.Contains(output, "HTTP") || strings.Contains(output, "serve"),
		"Serve help should mention serve or HTTP")
}
