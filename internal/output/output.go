// Package output formats human-readable CLI output. Commands print
// through a Writer so results, hints, and warnings render consistently;
// machine output (--json) bypasses it entirely.
package output

import (
	"fmt"
	"io"
)

// Writer prints aligned status lines to a terminal.
type Writer struct {
	out io.Writer
}

// New creates a Writer printing to out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints one line prefixed with an icon. An empty icon indents
// the line so it aligns under an iconed one.
// Write errors are ignored; this is console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
}

// Statusf prints a formatted status line with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a completed-action line.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Warning prints a degraded-but-continuing line.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Error prints a failure line.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
