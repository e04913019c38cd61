package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Found 3 results")

	// Then: output contains icon and message
	output := buf.String()
	assert.Contains(t, output, "🔍")
	assert.Contains(t, output, "Found 3 results")
}

func TestWriter_Status_EmptyIconIndents(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing without an icon
	w.Status("", "meetings/standup.md")

	// Then: the line is indented to align under iconed lines
	assert.True(t, strings.HasPrefix(buf.String(), "   "),
		"icon-less lines should be indented")
}

func TestWriter_Statusf_FormatsArguments(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Statusf("📁", "Location: %s", "/home/u/.config/noterag/config.yaml")

	assert.Contains(t, buf.String(), "Location: /home/u/.config/noterag/config.yaml")
}

func TestWriter_Success_PrintsCheckmark(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("Index complete")

	output := buf.String()
	assert.Contains(t, output, "✅")
	assert.Contains(t, output, "Index complete")
}

func TestWriter_Warning_PrintsWarningIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Warning("Keyword index unavailable")

	output := buf.String()
	assert.Contains(t, output, "⚠️")
	assert.Contains(t, output, "Keyword index unavailable")
}

func TestWriter_Error_PrintsErrorIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Error("Ollama unreachable")

	output := buf.String()
	assert.Contains(t, output, "❌")
	assert.Contains(t, output, "Ollama unreachable")
}

func TestWriter_Newline(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Newline()

	assert.Equal(t, "\n", buf.String())
}
